package runner

import (
	"context"
	"testing"
	"time"

	"gpwsim/internal/errors"
	"gpwsim/internal/market"
	"gpwsim/internal/models"
	"gpwsim/internal/stream"
	"gpwsim/internal/trading"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// weekdays builds a series with one close per weekday starting Monday 2024-01-01.
func weekdays(t *testing.T, name string, closes ...float64) *market.Series {
	t.Helper()
	var quotes []models.Quote
	date := day(1)
	for _, c := range closes {
		quotes = append(quotes, models.Quote{Date: date, Close: c})
		date = date.AddDate(0, 0, 1)
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}
	}
	s, err := market.NewSeries(name, quotes)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func startedSim(t *testing.T, s *market.Series, shares int) *trading.Simulator {
	t.Helper()
	sim := trading.NewSimulator(trading.NewPortfolio())
	if err := sim.StartWithBuy(day(1), s, shares); err != nil {
		t.Fatalf("StartWithBuy: %v", err)
	}
	return sim
}

func TestRunUntilExhausted(t *testing.T) {
	sim := startedSim(t, weekdays(t, "X", 100, 101, 102, 103, 104, 105, 106), 10)
	r := New(sim)

	steps, err := r.Run(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if steps != 6 {
		t.Errorf("steps = %d, want 6", steps)
	}
	if sim.State() != trading.StateExhausted {
		t.Errorf("state = %v", sim.State())
	}
	if snap := r.Snapshot(); snap.Value != 1060 || snap.Step != 6 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRunStepLimit(t *testing.T) {
	sim := startedSim(t, weekdays(t, "X", 100, 101, 102, 103, 104), 1)
	r := New(sim)

	steps, err := r.Run(context.Background(), 2)
	if err != nil || steps != 2 {
		t.Fatalf("Run = %d, %v", steps, err)
	}
	if cur, _ := sim.CurrentDate(); !cur.Equal(day(3)) {
		t.Errorf("current = %v, want 2024-01-03", cur)
	}
}

func TestRunRequiresStart(t *testing.T) {
	r := New(trading.NewSimulator(trading.NewPortfolio()))
	if _, err := r.Run(context.Background(), 0); !errors.Is(err, errors.ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	sim := startedSim(t, weekdays(t, "X", 100, 101, 102), 1)
	r := New(sim, WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	steps, err := r.Run(ctx, 0)
	if steps != 0 || err != context.Canceled {
		t.Errorf("Run = %d, %v", steps, err)
	}
}

func TestPauseResume(t *testing.T) {
	sim := startedSim(t, weekdays(t, "X", 100, 101, 102, 103), 1)
	r := New(sim, WithInterval(time.Millisecond))
	r.Pause()
	if !r.Paused() {
		t.Fatal("expected paused")
	}

	done := make(chan int)
	go func() {
		steps, _ := r.Run(context.Background(), 0)
		done <- steps
	}()

	time.Sleep(20 * time.Millisecond)
	if snap := r.Snapshot(); snap.Step != 0 {
		t.Fatalf("stepped while paused: %+v", snap)
	}

	r.Resume()
	select {
	case steps := <-done:
		if steps != 3 {
			t.Errorf("steps = %d, want 3", steps)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish after Resume")
	}
}

func TestPauseDuringIntervalHoldsStep(t *testing.T) {
	sim := startedSim(t, weekdays(t, "X", 100, 101, 102, 103), 1)
	r := New(sim, WithInterval(100*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int)
	go func() {
		steps, _ := r.Run(ctx, 0)
		done <- steps
	}()

	time.Sleep(30 * time.Millisecond)
	r.Pause()
	time.Sleep(300 * time.Millisecond)
	var n int
	r.Do(func(sim *trading.Simulator) error {
		n = len(sim.Portfolio().History())
		return nil
	})
	if n != 0 {
		t.Fatalf("history entries after a pause mid-interval = %d, want 0", n)
	}

	r.Resume()
	select {
	case steps := <-done:
		if steps != 3 {
			t.Errorf("steps = %d, want 3", steps)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish after Resume")
	}
}

func TestSnapshotsPublishedWithClosures(t *testing.T) {
	s := weekdays(t, "X", 100, 105, 112, 90)
	sim := startedSim(t, s, 10)
	if err := sim.SetOrders("X", nil, trading.Price(110)); err != nil {
		t.Fatal(err)
	}

	hub := stream.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	_, ch := hub.Subscribe()

	r := New(sim, WithHub(hub))
	steps, err := r.Run(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	hub.Stop()

	// The position closes on day 3. A closure leaves the horizon alone, so
	// the run keeps recording an empty portfolio until day 4.
	if steps != 3 {
		t.Fatalf("steps = %d, want 3", steps)
	}

	var snaps []models.Snapshot
	for snap := range ch {
		snaps = append(snaps, snap)
	}
	if len(snaps) != 3 {
		t.Fatalf("received %d snapshots, want 3", len(snaps))
	}
	if snaps[0].Value != 1050 || len(snaps[0].Closures) != 0 {
		t.Errorf("first snapshot = %+v", snaps[0])
	}
	closing := snaps[1]
	if closing.Value != 0 || len(closing.Positions) != 0 || len(closing.Closures) != 1 {
		t.Fatalf("second snapshot = %+v", closing)
	}
	if closing.Closures[0].Reason != models.CloseTakeProfit || closing.Closures[0].RealizedPnL() != 120 {
		t.Errorf("closure = %+v", closing.Closures[0])
	}
	if snaps[2].Value != 0 || len(snaps[2].Closures) != 0 || snaps[2].State != "exhausted" {
		t.Errorf("third snapshot = %+v", snaps[2])
	}
	if got := r.Closures(); len(got) != 1 {
		t.Errorf("Closures = %+v", got)
	}
}

func TestDoSerializesManualTrades(t *testing.T) {
	x := weekdays(t, "X", 100, 101, 102)
	y := weekdays(t, "Y", 50, 51)
	sim := startedSim(t, x, 1)
	r := New(sim)

	err := r.Do(func(sim *trading.Simulator) error {
		return sim.Buy(y, 2)
	})
	if err != nil {
		t.Fatal(err)
	}

	// Y ends first, so the horizon shrinks to its last date.
	steps, _ := r.Run(context.Background(), 0)
	if steps != 1 {
		t.Errorf("steps = %d, want 1", steps)
	}
	if snap := r.Snapshot(); len(snap.Positions) != 2 || snap.Value != 101+2*51 {
		t.Errorf("snapshot = %+v", snap)
	}
}
