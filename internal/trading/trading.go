// Package trading provides the simulation core: positions with weighted
// average cost, the portfolio and its valuation history, and the simulator
// that steps through trading days and fires stop-loss / take-profit orders.
package trading

import (
	"time"

	"gpwsim/internal/models"
)

// HistoryMetrics summarises a valuation history.
type HistoryMetrics struct {
	Days        int       `json:"days"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	StartValue  float64   `json:"start_value"`
	EndValue    float64   `json:"end_value"`
	PeakValue   float64   `json:"peak_value"`
	LowValue    float64   `json:"low_value"`
	Change      float64   `json:"change"`
	ChangePct   float64   `json:"change_pct"`
	MaxDrawdown float64   `json:"max_drawdown"` // percent below the running peak
}

// Summarize computes metrics over history. Closed positions leave the
// portfolio without booking proceeds, so a drop to zero counts as drawdown.
func Summarize(history []models.HistoryPoint) HistoryMetrics {
	var m HistoryMetrics
	if len(history) == 0 {
		return m
	}

	first, last := history[0], history[len(history)-1]
	m.Days = len(history)
	m.StartDate, m.EndDate = first.Date, last.Date
	m.StartValue, m.EndValue = first.Value, last.Value
	m.PeakValue, m.LowValue = first.Value, first.Value
	m.Change = last.Value - first.Value
	if first.Value != 0 {
		m.ChangePct = m.Change / first.Value * 100
	}

	peak := first.Value
	for _, p := range history {
		if p.Value > m.PeakValue {
			m.PeakValue = p.Value
		}
		if p.Value < m.LowValue {
			m.LowValue = p.Value
		}

		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			drawdown := (peak - p.Value) / peak * 100
			if drawdown > m.MaxDrawdown {
				m.MaxDrawdown = drawdown
			}
		}
	}

	return m
}
