package trading

import (
	"time"

	"github.com/rs/zerolog"

	"gpwsim/internal/errors"
	"gpwsim/internal/market"
	"gpwsim/internal/models"
	"gpwsim/pkg/utils"
)

// State is the simulator lifecycle stage.
type State int

const (
	// StateNotStarted means no current date has been set.
	StateNotStarted State = iota
	// StateRunning means Advance may still move the current date.
	StateRunning
	// StateExhausted means the current date has reached the horizon.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// CloseListener receives positions removed by a triggered order.
type CloseListener func(models.ClosureEvent)

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger attaches a logger for debug events. The default discards.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Simulator) { s.logger = logger }
}

// Simulator owns simulation time and drives one Portfolio one trading day
// per Advance call. It never polls; a caller decides when to step.
type Simulator struct {
	portfolio   *Portfolio
	currentDate time.Time
	startDate   time.Time
	maxDate     time.Time

	transactions []models.Transaction
	listeners    []CloseListener
	logger       zerolog.Logger
}

// NewSimulator creates a simulator over portfolio.
func NewSimulator(portfolio *Portfolio, opts ...Option) *Simulator {
	s := &Simulator{
		portfolio: portfolio,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Portfolio returns the driven portfolio.
func (s *Simulator) Portfolio() *Portfolio { return s.portfolio }

// CurrentDate returns the simulated day, if started.
func (s *Simulator) CurrentDate() (time.Time, bool) {
	return s.currentDate, !s.currentDate.IsZero()
}

// StartDate returns the day the run started, if started.
func (s *Simulator) StartDate() (time.Time, bool) {
	return s.startDate, !s.startDate.IsZero()
}

// MaxDate returns the horizon, if any position is held.
func (s *Simulator) MaxDate() (time.Time, bool) {
	return s.maxDate, !s.maxDate.IsZero()
}

// State reports the lifecycle stage. A started run without a horizon
// (nothing held) is Running but Advance does nothing. A run is Exhausted
// once the next weekday lies past the horizon, which also covers a last
// quote recorded on a weekend.
func (s *Simulator) State() State {
	if s.currentDate.IsZero() {
		return StateNotStarted
	}
	if !s.maxDate.IsZero() && utils.NextWeekday(s.currentDate).After(s.maxDate) {
		return StateExhausted
	}
	return StateRunning
}

// OnClose registers a listener for automatic closures.
func (s *Simulator) OnClose(fn CloseListener) {
	s.listeners = append(s.listeners, fn)
}

// Transactions returns the manual trades booked through the simulator.
func (s *Simulator) Transactions() []models.Transaction {
	out := make([]models.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

// Start sets the start and current date and computes the horizon. The
// start must be a weekday.
func (s *Simulator) Start(date time.Time) error {
	if s.State() != StateNotStarted {
		return errors.ErrAlreadyStarted
	}
	day := utils.DateOnly(date)
	if utils.IsWeekend(day) {
		return errors.ErrMarketClosed
	}
	s.startDate = day
	s.currentDate = day
	s.RecalculateMaxDate()

	s.logger.Debug().
		Str("event", "start").
		Str("date", day.Format(utils.DateFormat)).
		Msg("Simulation started")
	return nil
}

// RecalculateMaxDate sets the horizon to the earliest last quote among held
// instruments, or clears it when nothing is held.
func (s *Simulator) RecalculateMaxDate() {
	var horizon time.Time
	for _, pos := range s.portfolio.positions {
		last := pos.series.LastDate()
		if horizon.IsZero() || last.Before(horizon) {
			horizon = last
		}
	}
	s.maxDate = horizon
}

// Advance moves to the next weekday, re-prices every position, closes those
// whose orders trigger on a genuine session and records the day's value.
// It reports whether a step was taken.
func (s *Simulator) Advance() bool {
	if s.State() != StateRunning || s.maxDate.IsZero() {
		return false
	}

	s.currentDate = utils.NextWeekday(s.currentDate)

	var total float64
	var closed []models.ClosureEvent
	for _, name := range s.portfolio.names() {
		pos := s.portfolio.positions[name]
		price, err := pos.series.PriceAsOf(s.currentDate)
		if err != nil {
			// Held before its data begins: contributes nothing today.
			s.logger.Debug().Err(err).Str("instrument", name).Msg("Position not priced")
			continue
		}

		if pos.series.HasQuoteOn(s.currentDate) {
			if reason, hit := pos.triggered(price); hit {
				closed = append(closed, models.ClosureEvent{
					Instrument:  name,
					Date:        s.currentDate,
					Reason:      reason,
					Price:       price,
					Shares:      pos.shares,
					AverageCost: pos.averageCost,
				})
				continue
			}
		}
		total += float64(pos.shares) * price
	}

	for _, ev := range closed {
		s.portfolio.remove(ev.Instrument)
	}
	s.portfolio.record(s.currentDate, total)

	s.logger.Debug().
		Str("event", "step").
		Str("date", s.currentDate.Format(utils.DateFormat)).
		Float64("total", total).
		Int("closed", len(closed)).
		Msg("Simulation advanced")

	for _, ev := range closed {
		for _, fn := range s.listeners {
			fn(ev)
		}
	}
	return true
}

// StartWithBuy books the first purchase at the session close of date and
// starts the run on that day.
func (s *Simulator) StartWithBuy(date time.Time, series *market.Series, shares int) error {
	if s.State() != StateNotStarted {
		return errors.ErrAlreadyStarted
	}
	day := utils.DateOnly(date)
	if err := s.buyAt(day, series, shares); err != nil {
		return err
	}
	return s.Start(day)
}

// Buy books a purchase at the current day's session close.
func (s *Simulator) Buy(series *market.Series, shares int) error {
	if s.State() == StateNotStarted {
		return errors.ErrNotStarted
	}
	if err := s.buyAt(s.currentDate, series, shares); err != nil {
		return err
	}
	s.RecalculateMaxDate()
	return nil
}

func (s *Simulator) buyAt(day time.Time, series *market.Series, shares int) error {
	if utils.IsWeekend(day) {
		return errors.NewPositionError(series.Name(), "buy", errors.ErrMarketClosed)
	}
	if !series.HasQuoteOn(day) {
		return errors.NewPositionError(series.Name(), "buy", errors.ErrNoSession)
	}
	price, err := series.PriceAsOf(day)
	if err != nil {
		return err
	}
	if err := s.portfolio.Buy(series, shares, price, day); err != nil {
		return err
	}

	s.transactions = append(s.transactions, models.Transaction{
		Instrument: series.Name(),
		Side:       models.OrderSideBuy,
		Shares:     shares,
		Price:      price,
		Date:       day,
	})
	s.logger.Debug().
		Str("event", "trade").
		Str("instrument", series.Name()).
		Str("side", string(models.OrderSideBuy)).
		Int("quantity", shares).
		Float64("price", price).
		Msg("Trade executed")
	return nil
}

// Sell sells shares of a held instrument at the current as-of price.
func (s *Simulator) Sell(name string, shares int) error {
	if s.State() == StateNotStarted {
		return errors.ErrNotStarted
	}
	pos, ok := s.portfolio.positions[name]
	if !ok {
		return errors.NewPositionError(name, "sell", errors.ErrNoOpenPosition)
	}
	price, err := pos.series.PriceAsOf(s.currentDate)
	if err != nil {
		return err
	}
	if err := s.portfolio.Sell(name, shares); err != nil {
		return err
	}

	s.transactions = append(s.transactions, models.Transaction{
		Instrument: name,
		Side:       models.OrderSideSell,
		Shares:     shares,
		Price:      price,
		Date:       s.currentDate,
	})
	if !s.portfolio.Holds(name) {
		s.RecalculateMaxDate()
	}
	s.logger.Debug().
		Str("event", "trade").
		Str("instrument", name).
		Str("side", string(models.OrderSideSell)).
		Int("quantity", shares).
		Float64("price", price).
		Msg("Trade executed")
	return nil
}

// SetOrders sets the stop-loss and take-profit of a held instrument.
func (s *Simulator) SetOrders(name string, stopLoss, takeProfit *float64) error {
	return s.portfolio.SetStopTakeProfit(name, stopLoss, takeProfit)
}

// TotalValue values the portfolio on the current day.
func (s *Simulator) TotalValue() (float64, error) {
	if s.currentDate.IsZero() {
		return 0, errors.ErrNotStarted
	}
	return s.portfolio.TotalValue(s.currentDate)
}
