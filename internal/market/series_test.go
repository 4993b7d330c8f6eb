package market

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"gpwsim/internal/errors"
	"gpwsim/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testSeries(t *testing.T) *Series {
	t.Helper()
	// Deliberately unsorted; Friday 5th then Monday 8th.
	s, err := NewSeries("CDR", []models.Quote{
		{Date: day(2024, 1, 8), Close: 110},
		{Date: day(2024, 1, 2), Close: 100},
		{Date: day(2024, 1, 5), Close: 104},
		{Date: day(2024, 1, 3), Close: 102},
	})
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	return s
}

func TestNewSeriesSortsAndBounds(t *testing.T) {
	s := testSeries(t)

	if !s.FirstDate().Equal(day(2024, 1, 2)) {
		t.Errorf("FirstDate = %v", s.FirstDate())
	}
	if !s.LastDate().Equal(day(2024, 1, 8)) {
		t.Errorf("LastDate = %v", s.LastDate())
	}
	if s.LatestPrice() != 110 {
		t.Errorf("LatestPrice = %v, want 110", s.LatestPrice())
	}
	if s.Len() != 4 {
		t.Errorf("Len = %d, want 4", s.Len())
	}
	quotes := s.Quotes()
	for i := 1; i < len(quotes); i++ {
		if !quotes[i-1].Date.Before(quotes[i].Date) {
			t.Fatalf("quotes not ascending at %d", i)
		}
	}
}

func TestNewSeriesRejectsEmpty(t *testing.T) {
	_, err := NewSeries("CDR", nil)
	if !errors.Is(err, errors.ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
	if _, err := NewSeries("", []models.Quote{{Date: day(2024, 1, 2), Close: 1}}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestHasQuoteOnIgnoresTimeOfDay(t *testing.T) {
	s := testSeries(t)

	if !s.HasQuoteOn(time.Date(2024, 1, 3, 15, 45, 0, 0, time.UTC)) {
		t.Error("expected a session on 2024-01-03")
	}
	if s.HasQuoteOn(day(2024, 1, 4)) {
		t.Error("no session expected on 2024-01-04")
	}
	if s.HasQuoteOn(day(2024, 1, 6)) {
		t.Error("no session expected on a Saturday")
	}
	if s.HasQuoteOn(day(2023, 12, 29)) {
		t.Error("no session expected before the data")
	}
}

func TestPriceAsOf(t *testing.T) {
	s := testSeries(t)

	tests := []struct {
		name string
		date time.Time
		want float64
	}{
		{"exact first", day(2024, 1, 2), 100},
		{"exact", day(2024, 1, 5), 104},
		{"forward fill holiday", day(2024, 1, 4), 102},
		{"forward fill weekend", day(2024, 1, 7), 104},
		{"after last", day(2024, 2, 1), 110},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.PriceAsOf(tt.date)
			if err != nil {
				t.Fatalf("PriceAsOf: %v", err)
			}
			if got != tt.want {
				t.Errorf("PriceAsOf(%s) = %v, want %v", tt.date.Format("2006-01-02"), got, tt.want)
			}
		})
	}

	_, err := s.PriceAsOf(day(2024, 1, 1))
	if !errors.Is(err, errors.ErrNoPriorQuote) {
		t.Fatalf("expected ErrNoPriorQuote before data, got %v", err)
	}
}

func TestBetween(t *testing.T) {
	s := testSeries(t)

	got := s.Between(day(2024, 1, 3), day(2024, 1, 7))
	if len(got) != 2 || got[0].Close != 102 || got[1].Close != 104 {
		t.Fatalf("Between = %+v", got)
	}
	if len(s.Between(day(2024, 1, 9), day(2024, 1, 20))) != 0 {
		t.Error("expected no quotes after the data")
	}
	if s.Between(day(2024, 1, 8), day(2024, 1, 2)) != nil {
		t.Error("expected nil for an inverted range")
	}
}

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	s := testSeries(t)
	other, _ := NewSeries("ALR", []models.Quote{{Date: day(2024, 1, 2), Close: 40}})
	p := NewMemoryProvider(s, other)

	names, err := p.Instruments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "ALR" || names[1] != "CDR" {
		t.Errorf("Instruments = %v", names)
	}
	if _, err := p.Series(ctx, "XYZ"); !errors.Is(err, errors.ErrInstrumentNotFound) {
		t.Errorf("expected ErrInstrumentNotFound, got %v", err)
	}

	all, err := LoadAll(ctx, p)
	if err != nil || len(all) != 2 {
		t.Fatalf("LoadAll = %v, %v", all, err)
	}
}

// Property: on a day without a session, PriceAsOf returns the close of the
// most recent earlier session.
func TestProperty_ForwardFill(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("gap days carry the last settled close", prop.ForAll(
		func(gaps []int, offset int) bool {
			start := day(2023, 1, 2)
			quotes := make([]models.Quote, 0, len(gaps))
			date := start
			for i, g := range gaps {
				date = date.AddDate(0, 0, g)
				quotes = append(quotes, models.Quote{Date: date, Close: float64(100 + i)})
			}
			s, err := NewSeries("GEN", quotes)
			if err != nil {
				return false
			}

			query := start.AddDate(0, 0, gaps[0]+offset)
			price, err := s.PriceAsOf(query)
			if err != nil {
				return false
			}

			var want float64
			for _, q := range quotes {
				if !q.Date.After(query) {
					want = q.Close
				}
			}
			return price == want && s.HasQuoteOn(query) == containsDay(quotes, query)
		},
		gen.SliceOfN(20, gen.IntRange(1, 5)).SuchThat(func(v []int) bool { return len(v) > 0 }),
		gen.IntRange(0, 120),
	))

	properties.TestingRun(t)
}

func containsDay(quotes []models.Quote, d time.Time) bool {
	for _, q := range quotes {
		if q.Date.Equal(d) {
			return true
		}
	}
	return false
}

func TestChainProvider(t *testing.T) {
	ctx := context.Background()
	a, _ := NewSeries("A", []models.Quote{{Date: day(2024, 1, 1), Close: 1}})
	b1, _ := NewSeries("B", []models.Quote{{Date: day(2024, 1, 1), Close: 2}})
	b2, _ := NewSeries("B", []models.Quote{{Date: day(2024, 1, 1), Close: 3}})

	chain := NewChainProvider(NewMemoryProvider(b1), NewMemoryProvider(a, b2))

	s, err := chain.Series(ctx, "B")
	if err != nil || s.LatestPrice() != 2 {
		t.Fatalf("first provider should win: %v, %v", s, err)
	}
	if s, err := chain.Series(ctx, "A"); err != nil || s.Name() != "A" {
		t.Fatalf("fallback failed: %v", err)
	}
	if _, err := chain.Series(ctx, "Z"); !errors.Is(err, errors.ErrInstrumentNotFound) {
		t.Errorf("expected ErrInstrumentNotFound, got %v", err)
	}

	names, err := chain.Instruments(ctx)
	if err != nil || len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Errorf("Instruments = %v, %v", names, err)
	}
}
