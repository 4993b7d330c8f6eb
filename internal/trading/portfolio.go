package trading

import (
	"sort"
	"time"

	"gpwsim/internal/errors"
	"gpwsim/internal/market"
	"gpwsim/internal/models"
)

// Portfolio owns the open positions, keyed by instrument name, and the
// valuation history. Positions with zero shares are never kept.
type Portfolio struct {
	positions map[string]*Position
	history   []models.HistoryPoint
}

// NewPortfolio creates an empty portfolio.
func NewPortfolio() *Portfolio {
	return &Portfolio{
		positions: make(map[string]*Position),
	}
}

// Buy opens or extends the position in series.
func (pf *Portfolio) Buy(series *market.Series, shares int, price float64, date time.Time) error {
	pos, ok := pf.positions[series.Name()]
	if !ok {
		pos = NewPosition(series)
	}
	if err := pos.Buy(shares, price, date); err != nil {
		return errors.Wrapf(err, "buying %s", series.Name())
	}
	if !ok {
		pf.positions[series.Name()] = pos
	}
	return nil
}

// Sell reduces the named position, removing it when no shares remain.
func (pf *Portfolio) Sell(name string, shares int) error {
	pos, ok := pf.positions[name]
	if !ok {
		return errors.NewPositionError(name, "sell", errors.ErrNoOpenPosition)
	}
	if err := pos.Sell(shares); err != nil {
		return err
	}
	if pos.shares == 0 {
		delete(pf.positions, name)
	}
	return nil
}

// SetStopTakeProfit overwrites both order thresholds of the named position.
func (pf *Portfolio) SetStopTakeProfit(name string, stopLoss, takeProfit *float64) error {
	pos, ok := pf.positions[name]
	if !ok {
		return errors.NewPositionError(name, "set orders", errors.ErrNoOpenPosition)
	}
	pos.SetOrders(stopLoss, takeProfit)
	return nil
}

// TotalValue sums shares times the as-of price of every open position.
// It does not read or modify the history.
func (pf *Portfolio) TotalValue(date time.Time) (float64, error) {
	var total float64
	for name, pos := range pf.positions {
		v, err := pos.Value(date)
		if err != nil {
			return 0, errors.Wrapf(err, "valuing %s", name)
		}
		total += v
	}
	return total, nil
}

// Holds reports whether the named instrument has an open position.
func (pf *Portfolio) Holds(name string) bool {
	_, ok := pf.positions[name]
	return ok
}

// Position returns a copy of the named position.
func (pf *Portfolio) Position(name string) (Position, bool) {
	pos, ok := pf.positions[name]
	if !ok {
		return Position{}, false
	}
	return pos.snapshot(), true
}

// Positions returns copies of all open positions sorted by name.
func (pf *Portfolio) Positions() []Position {
	out := make([]Position, 0, len(pf.positions))
	for _, name := range pf.names() {
		out = append(out, pf.positions[name].snapshot())
	}
	return out
}

// Len returns the number of open positions.
func (pf *Portfolio) Len() int { return len(pf.positions) }

// History returns a copy of the recorded valuations, oldest first.
func (pf *Portfolio) History() []models.HistoryPoint {
	out := make([]models.HistoryPoint, len(pf.history))
	copy(out, pf.history)
	return out
}

func (pf *Portfolio) names() []string {
	names := make([]string, 0, len(pf.positions))
	for name := range pf.positions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (pf *Portfolio) remove(name string) {
	delete(pf.positions, name)
}

func (pf *Portfolio) record(date time.Time, value float64) {
	pf.history = append(pf.history, models.HistoryPoint{Date: date, Value: value})
}
