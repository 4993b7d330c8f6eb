// Package market holds read-only daily close price series for instruments.
package market

import (
	"sort"
	"time"

	"gpwsim/internal/errors"
	"gpwsim/internal/models"
	"gpwsim/pkg/utils"
)

// Series is one instrument's chronological close-price history.
// It is immutable after construction and safe to share between positions.
type Series struct {
	name   string
	quotes []models.Quote
}

// NewSeries builds a series from quotes in any order. Dates are truncated to
// the calendar day and the quotes are sorted ascending. Duplicate dates are
// not checked; the provider is trusted to supply unique days.
func NewSeries(name string, quotes []models.Quote) (*Series, error) {
	if name == "" {
		return nil, errors.NewValidationError("name", name, "instrument name is required", nil)
	}
	if len(quotes) == 0 {
		return nil, errors.NewDataError("series", name, "no quotes", errors.ErrEmptySeries)
	}

	sorted := make([]models.Quote, len(quotes))
	for i, q := range quotes {
		sorted[i] = models.Quote{Date: utils.DateOnly(q.Date), Close: q.Close}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	return &Series{name: name, quotes: sorted}, nil
}

// Name returns the instrument identifier.
func (s *Series) Name() string { return s.name }

// Len returns the number of quotes.
func (s *Series) Len() int { return len(s.quotes) }

// Quotes returns a copy of all quotes.
func (s *Series) Quotes() []models.Quote {
	out := make([]models.Quote, len(s.quotes))
	copy(out, s.quotes)
	return out
}

// FirstDate returns the earliest quoted day.
func (s *Series) FirstDate() time.Time { return s.quotes[0].Date }

// LastDate returns the latest quoted day.
func (s *Series) LastDate() time.Time { return s.quotes[len(s.quotes)-1].Date }

// LatestPrice returns the close of the last quote.
func (s *Series) LatestPrice() float64 { return s.quotes[len(s.quotes)-1].Close }

// upperBound returns the number of quotes dated on or before day.
func (s *Series) upperBound(day time.Time) int {
	return sort.Search(len(s.quotes), func(i int) bool {
		return s.quotes[i].Date.After(day)
	})
}

// HasQuoteOn reports whether a session was recorded on date's calendar day.
func (s *Series) HasQuoteOn(date time.Time) bool {
	day := utils.DateOnly(date)
	i := s.upperBound(day)
	return i > 0 && s.quotes[i-1].Date.Equal(day)
}

// PriceAsOf returns the close of the latest quote on or before date.
func (s *Series) PriceAsOf(date time.Time) (float64, error) {
	i := s.upperBound(utils.DateOnly(date))
	if i == 0 {
		return 0, errors.NewDataError("price", s.name, "requested "+date.Format(utils.DateFormat), errors.ErrNoPriorQuote)
	}
	return s.quotes[i-1].Close, nil
}

// Between returns the quotes dated within [from, to], inclusive.
func (s *Series) Between(from, to time.Time) []models.Quote {
	from, to = utils.DateOnly(from), utils.DateOnly(to)
	if to.Before(from) {
		return nil
	}
	lo := sort.Search(len(s.quotes), func(i int) bool {
		return !s.quotes[i].Date.Before(from)
	})
	hi := s.upperBound(to)
	if lo >= hi {
		return nil
	}
	out := make([]models.Quote, hi-lo)
	copy(out, s.quotes[lo:hi])
	return out
}
