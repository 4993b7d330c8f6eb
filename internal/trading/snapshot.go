package trading

import (
	"gpwsim/internal/models"
)

// Snapshot captures the current day, total and open positions. Positions
// that cannot be priced yet are listed with Priced false and count as zero.
func (s *Simulator) Snapshot() models.Snapshot {
	snap := models.Snapshot{
		Step:  len(s.portfolio.history),
		State: s.State().String(),
		Date:  s.currentDate,
	}

	for _, pos := range s.portfolio.Positions() {
		view := models.PositionView{
			Instrument:  pos.Name(),
			Shares:      pos.Shares(),
			AverageCost: pos.AverageCost(),
			StopLoss:    pos.StopLoss(),
			TakeProfit:  pos.TakeProfit(),
		}
		if !s.currentDate.IsZero() {
			if price, err := pos.series.PriceAsOf(s.currentDate); err == nil {
				view.Priced = true
				view.Price = price
				view.Value = float64(pos.shares) * price
				view.PnL = float64(pos.shares) * (price - pos.averageCost)
				snap.Value += view.Value
			}
		}
		snap.Positions = append(snap.Positions, view)
	}
	return snap
}
