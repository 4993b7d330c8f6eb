package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"gpwsim/internal/market"
	"gpwsim/internal/models"
)

// Property: For any valid series, saving it to the database and loading it
// back by name yields the same dates and closes in the same order.
func TestProperty_SeriesRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "quotes.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	names := []string{"CD PROJEKT", "PKO BP", "KGHM", "ORLEN", "ALLEGRO", "PZU", "LPP", "DINO"}
	seq := 0

	properties.Property("Series round-trip: save then load produces equivalent quotes", prop.ForAll(
		func(nameIdx int, count int, basePrice float64, startOffset int) bool {
			ctx := context.Background()
			seq++
			name := fmt.Sprintf("%s %d", names[nameIdx%len(names)], seq)

			start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, startOffset)
			quotes := make([]models.Quote, count)
			for i := range quotes {
				quotes[i] = models.Quote{
					Date:  start.AddDate(0, 0, i),
					Close: basePrice + float64(i)*0.37,
				}
			}
			series, err := market.NewSeries(name, quotes)
			if err != nil {
				t.Logf("Failed to build series: %v", err)
				return false
			}

			if err := store.SaveSeries(ctx, series); err != nil {
				t.Logf("Failed to save series: %v", err)
				return false
			}

			loaded, err := store.Series(ctx, name)
			if err != nil {
				t.Logf("Failed to load series: %v", err)
				return false
			}

			got := loaded.Quotes()
			if len(got) != len(quotes) {
				t.Logf("Count mismatch: expected %d, got %d", len(quotes), len(got))
				return false
			}
			for i, q := range quotes {
				if !got[i].Date.Equal(q.Date) || math.Abs(got[i].Close-q.Close) > 1e-9 {
					t.Logf("Quote mismatch at %d: original=%+v, loaded=%+v", i, q, got[i])
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 100),
		gen.IntRange(1, 30),
		gen.Float64Range(1.0, 5000.0),
		gen.IntRange(0, 1500),
	))

	properties.TestingRun(t)
}
