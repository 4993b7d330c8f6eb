package trading

import (
	"testing"
	"time"

	"gpwsim/internal/market"
	"gpwsim/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// mustSeries builds a series from date/close pairs.
func mustSeries(t testing.TB, name string, pairs ...interface{}) *market.Series {
	t.Helper()
	if len(pairs)%2 != 0 {
		t.Fatalf("mustSeries: odd number of arguments")
	}
	quotes := make([]models.Quote, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		quotes = append(quotes, models.Quote{
			Date:  pairs[i].(time.Time),
			Close: pairs[i+1].(float64),
		})
	}
	s, err := market.NewSeries(name, quotes)
	if err != nil {
		t.Fatalf("NewSeries(%s): %v", name, err)
	}
	return s
}

// weekdaySeries quotes every weekday from start for n sessions.
func weekdaySeries(t testing.TB, name string, start time.Time, n int, price func(i int) float64) *market.Series {
	t.Helper()
	quotes := make([]models.Quote, 0, n)
	d := start
	for len(quotes) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			quotes = append(quotes, models.Quote{Date: d, Close: price(len(quotes))})
		}
		d = d.AddDate(0, 0, 1)
	}
	s, err := market.NewSeries(name, quotes)
	if err != nil {
		t.Fatalf("NewSeries(%s): %v", name, err)
	}
	return s
}

func flat(v float64) func(int) float64 {
	return func(int) float64 { return v }
}
