// Package report renders simulation state as terminal text: ASCII charts
// of portfolio value and instrument prices, position status and metrics.
package report

import (
	"fmt"
	"strings"
	"time"

	"gpwsim/internal/market"
	"gpwsim/internal/models"
	"gpwsim/pkg/utils"
)

// Chart renders points as an ASCII chart. Points are sampled to fit width.
func Chart(title string, points []models.HistoryPoint, width, height int) string {
	if len(points) == 0 {
		return "No data to display"
	}
	if width < 1 {
		width = 1
	}
	if height < 2 {
		height = 2
	}

	minValue := points[0].Value
	maxValue := points[0].Value
	for _, point := range points {
		if point.Value < minValue {
			minValue = point.Value
		}
		if point.Value > maxValue {
			maxValue = point.Value
		}
	}

	// Add padding
	valueRange := maxValue - minValue
	if valueRange == 0 {
		valueRange = 1
	}
	minValue -= valueRange * 0.05
	maxValue += valueRange * 0.05
	valueRange = maxValue - minValue

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	step := (len(points) + width - 1) / width
	if step == 0 {
		step = 1
	}

	for x := 0; x < width && x*step < len(points); x++ {
		point := points[x*step]
		y := int((point.Value - minValue) / valueRange * float64(height-1))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%.2f - %.2f)\n", title, minValue, maxValue))
	sb.WriteString(strings.Repeat("─", width+2) + "\n")

	for _, row := range grid {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteRune('│')
		sb.WriteRune('\n')
	}

	sb.WriteString(strings.Repeat("─", width+2) + "\n")

	first := points[0].Date.Format(utils.DateFormat)
	last := points[len(points)-1].Date.Format(utils.DateFormat)
	gap := width + 2 - len(first) - len(last)
	if gap < 1 {
		gap = 1
	}
	sb.WriteString(first + strings.Repeat(" ", gap) + last + "\n")

	return sb.String()
}

// EquityChart charts portfolio value up to and including asOf.
func EquityChart(history []models.HistoryPoint, asOf time.Time, width, height int) string {
	points := make([]models.HistoryPoint, 0, len(history))
	for _, p := range history {
		if asOf.IsZero() || !p.Date.After(asOf) {
			points = append(points, p)
		}
	}
	return Chart("Portfolio value", points, width, height)
}

// InstrumentChart charts an instrument's closes between from and to,
// typically the first purchase and the current simulated day.
func InstrumentChart(series *market.Series, from, to time.Time, width, height int) string {
	quotes := series.Between(from, to)
	points := make([]models.HistoryPoint, len(quotes))
	for i, q := range quotes {
		points[i] = models.HistoryPoint{Date: q.Date, Value: q.Close}
	}
	return Chart(series.Name(), points, width, height)
}
