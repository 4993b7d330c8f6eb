package report

import (
	"fmt"
	"strconv"

	"gpwsim/internal/models"
	"gpwsim/internal/trading"
	"gpwsim/pkg/utils"
)

// PositionHeaders are the column titles matching PositionRow.
var PositionHeaders = []string{"Instrument", "Shares", "Avg cost", "SL", "TP", "Price", "Value", "P&L"}

// PositionRow formats one holding. Unpriced holdings show "-" for the
// price-dependent columns.
func PositionRow(v models.PositionView) []string {
	row := []string{
		v.Instrument,
		strconv.Itoa(v.Shares),
		fmt.Sprintf("%.2f", v.AverageCost),
		utils.FormatOptional(v.StopLoss),
		utils.FormatOptional(v.TakeProfit),
	}
	if !v.Priced {
		return append(row, "-", "-", "-")
	}
	return append(row,
		fmt.Sprintf("%.2f", v.Price),
		utils.FormatCurrency(v.Value),
		utils.FormatPnL(v.PnL),
	)
}

// StatusLines is the plain-text portfolio status for a snapshot.
func StatusLines(snap models.Snapshot) []string {
	var lines []string
	for _, v := range snap.Positions {
		row := PositionRow(v)
		lines = append(lines,
			v.Instrument,
			"  Shares:      "+row[1],
			"  Avg cost:    "+row[2],
			"  Stop loss:   "+row[3],
			"  Take profit: "+row[4],
			"  Price:       "+row[5],
			"  Value:       "+row[6],
			"  P&L:         "+row[7],
		)
	}
	if snap.Date.IsZero() {
		lines = append(lines, "Simulation not started")
		return lines
	}
	lines = append(lines,
		"Date:  "+snap.Date.Format(utils.DateFormat),
		"Total: "+utils.FormatCurrency(snap.Value),
	)
	return lines
}

// ClosureLine describes an automatic closure.
func ClosureLine(ev models.ClosureEvent) string {
	reason := "stop-loss"
	if ev.Reason == models.CloseTakeProfit {
		reason = "take-profit"
	}
	return fmt.Sprintf("%s %s closed by %s at %.2f (%d shares, P&L %s)",
		ev.Date.Format(utils.DateFormat), ev.Instrument, reason, ev.Price, ev.Shares,
		utils.FormatPnL(ev.RealizedPnL()))
}

// MetricsLines summarises a valuation history.
func MetricsLines(m trading.HistoryMetrics) []string {
	if m.Days == 0 {
		return []string{"No history recorded"}
	}
	return []string{
		fmt.Sprintf("Period:       %s .. %s (%d days)", m.StartDate.Format(utils.DateFormat), m.EndDate.Format(utils.DateFormat), m.Days),
		"Start value:  " + utils.FormatCurrency(m.StartValue),
		"End value:    " + utils.FormatCurrency(m.EndValue),
		"Peak / low:   " + utils.FormatCurrency(m.PeakValue) + " / " + utils.FormatCurrency(m.LowValue),
		"Change:       " + utils.FormatPnL(m.Change) + " (" + utils.FormatPercent(m.ChangePct) + ")",
		"Max drawdown: " + fmt.Sprintf("%.2f%%", m.MaxDrawdown),
	}
}
