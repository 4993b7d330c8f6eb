package trading

import (
	"time"

	"gpwsim/internal/errors"
	"gpwsim/internal/market"
	"gpwsim/internal/models"
)

// Position is the holding in one instrument: share count, weighted-average
// cost basis and optional stop-loss / take-profit thresholds.
// The instrument series is shared and never modified here.
type Position struct {
	series       *market.Series
	shares       int
	averageCost  float64
	firstBuyDate time.Time
	stopLoss     *float64
	takeProfit   *float64
}

// NewPosition creates an empty position in the given instrument.
func NewPosition(series *market.Series) *Position {
	return &Position{series: series}
}

// Instrument returns the shared price series.
func (p *Position) Instrument() *market.Series { return p.series }

// Name returns the instrument name.
func (p *Position) Name() string { return p.series.Name() }

// Shares returns the number of shares held.
func (p *Position) Shares() int { return p.shares }

// AverageCost returns the weighted-average purchase price.
func (p *Position) AverageCost() float64 { return p.averageCost }

// FirstBuyDate returns the date of the first purchase, if any.
func (p *Position) FirstBuyDate() (time.Time, bool) {
	return p.firstBuyDate, !p.firstBuyDate.IsZero()
}

// StopLoss returns the stop-loss threshold or nil.
func (p *Position) StopLoss() *float64 { return copyPrice(p.stopLoss) }

// TakeProfit returns the take-profit threshold or nil.
func (p *Position) TakeProfit() *float64 { return copyPrice(p.takeProfit) }

// Buy adds shares at price, updating the weighted-average cost.
func (p *Position) Buy(shares int, price float64, date time.Time) error {
	if shares <= 0 {
		return errors.NewValidationError("shares", shares, "must be positive", errors.ErrInvalidQuantity)
	}
	if price <= 0 {
		return errors.NewValidationError("price", price, "must be positive", errors.ErrInvalidPrice)
	}

	if p.firstBuyDate.IsZero() {
		p.firstBuyDate = date
	}

	total := float64(p.shares)*p.averageCost + float64(shares)*price
	p.shares += shares
	p.averageCost = total / float64(p.shares)
	return nil
}

// Sell removes shares. The average cost is left untouched; realized P&L is
// not tracked.
func (p *Position) Sell(shares int) error {
	if shares <= 0 {
		return errors.NewValidationError("shares", shares, "must be positive", errors.ErrInvalidQuantity)
	}
	if shares > p.shares {
		return errors.NewPositionError(p.Name(), "sell", errors.ErrInsufficientShares)
	}
	p.shares -= shares
	return nil
}

// SetOrders overwrites both thresholds. Passing nil clears one. No check is
// made that the stop-loss lies below the take-profit.
func (p *Position) SetOrders(stopLoss, takeProfit *float64) {
	p.stopLoss = copyPrice(stopLoss)
	p.takeProfit = copyPrice(takeProfit)
}

// Value returns shares times the as-of price on date.
func (p *Position) Value(date time.Time) (float64, error) {
	price, err := p.series.PriceAsOf(date)
	if err != nil {
		return 0, err
	}
	return float64(p.shares) * price, nil
}

// UnrealizedPnL returns the paper gain against the average cost on date.
func (p *Position) UnrealizedPnL(date time.Time) (float64, error) {
	price, err := p.series.PriceAsOf(date)
	if err != nil {
		return 0, err
	}
	return float64(p.shares) * (price - p.averageCost), nil
}

// triggered evaluates stop-loss before take-profit against price.
func (p *Position) triggered(price float64) (models.CloseReason, bool) {
	if p.stopLoss != nil && price <= *p.stopLoss {
		return models.CloseStopLoss, true
	}
	if p.takeProfit != nil && price >= *p.takeProfit {
		return models.CloseTakeProfit, true
	}
	return "", false
}

// snapshot returns a detached copy for read-only callers.
func (p *Position) snapshot() Position {
	c := *p
	c.stopLoss = copyPrice(p.stopLoss)
	c.takeProfit = copyPrice(p.takeProfit)
	return c
}

func copyPrice(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Price returns a pointer to v, for building optional thresholds.
func Price(v float64) *float64 { return &v }
