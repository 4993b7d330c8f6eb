package trading

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"gpwsim/internal/errors"
	"gpwsim/pkg/utils"
)

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	return gopter.NewProperties(parameters)
}

// Property: after every buy the average cost equals the share-weighted mean
// of all purchase prices so far.
func TestProperty_WeightedAverageCost(t *testing.T) {
	properties := newProperties()
	series := mustSeries(t, "A", day(2024, 1, 1), 1.0)

	properties.Property("average cost is the share-weighted mean price", prop.ForAll(
		func(shares []int, prices []float64) bool {
			p := NewPosition(series)
			var cost float64
			var held int
			for i := range shares {
				price := prices[i%len(prices)]
				if err := p.Buy(shares[i], price, day(2024, 1, 1)); err != nil {
					return false
				}
				cost += float64(shares[i]) * price
				held += shares[i]

				want := cost / float64(held)
				if math.Abs(p.AverageCost()-want) > 1e-9*want || p.Shares() != held {
					t.Logf("after %d buys: avg=%v want=%v", i+1, p.AverageCost(), want)
					return false
				}
			}
			return true
		},
		gen.SliceOfN(10, gen.IntRange(1, 1000)),
		gen.SliceOfN(10, gen.Float64Range(0.01, 5000)),
	))

	properties.TestingRun(t)
}

// Property: from any weekday start, Advance never lands on a weekend, visits
// strictly increasing dates, appends exactly one history entry per step and
// stops at the horizon without further change.
func TestProperty_AdvanceCalendar(t *testing.T) {
	properties := newProperties()
	base := day(2023, 1, 2)

	properties.Property("weekday steps, monotonic history, horizon clamp", prop.ForAll(
		func(startOffset, sessions, steps int) bool {
			a := weekdaySeries(t, "A", base, sessions, func(i int) float64 { return 50 + float64(i%7) })
			pf := NewPortfolio()
			sim := NewSimulator(pf)
			_ = pf.Buy(a, 3, 50, base)

			start := base.AddDate(0, 0, startOffset)
			if err := sim.Start(start); err != nil {
				return utils.IsWeekend(start) && errors.Is(err, errors.ErrMarketClosed) &&
					sim.State() == StateNotStarted
			}

			taken := 0
			prev, _ := sim.CurrentDate()
			for i := 0; i < steps; i++ {
				if !sim.Advance() {
					break
				}
				taken++
				cur, _ := sim.CurrentDate()
				if utils.IsWeekend(cur) || !cur.After(prev) || !cur.Equal(utils.NextWeekday(prev)) {
					t.Logf("bad step %v -> %v", prev, cur)
					return false
				}
				prev = cur
			}

			history := pf.History()
			if len(history) != taken {
				return false
			}
			for i := 1; i < len(history); i++ {
				if !history[i].Date.After(history[i-1].Date) {
					return false
				}
			}

			max, _ := sim.MaxDate()
			if taken < steps {
				// Stopped early: must be at the horizon and stay there.
				cur, _ := sim.CurrentDate()
				if cur.Before(max) || sim.Advance() || len(pf.History()) != taken {
					return false
				}
				if sim.State() != StateExhausted {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
		gen.IntRange(2, 40),
		gen.IntRange(1, 60),
	))

	properties.TestingRun(t)
}

// Property: a stop-loss at or above the session close removes the position
// that day and the day's total excludes it.
func TestProperty_StopLossTrigger(t *testing.T) {
	properties := newProperties()

	properties.Property("session close at or below stop-loss closes the position", prop.ForAll(
		func(close, gap float64, shares int) bool {
			a := mustSeries(t, "A", day(2024, 1, 1), 100.0, day(2024, 1, 2), close)
			b := mustSeries(t, "B", day(2024, 1, 1), 10.0, day(2024, 1, 2), 10.0)
			pf := NewPortfolio()
			sim := NewSimulator(pf)
			_ = pf.Buy(a, shares, 100, day(2024, 1, 1))
			_ = pf.Buy(b, 1, 10, day(2024, 1, 1))
			_ = sim.Start(day(2024, 1, 1))
			_ = pf.SetStopTakeProfit("A", Price(close+gap), nil)

			if !sim.Advance() {
				return false
			}
			return !pf.Holds("A") && pf.Holds("B") && pf.History()[0].Value == 10
		},
		gen.Float64Range(1, 99),
		gen.Float64Range(0, 50),
		gen.IntRange(1, 500),
	))

	properties.TestingRun(t)
}
