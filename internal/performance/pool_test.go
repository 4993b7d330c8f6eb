package performance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: For any input and worker count, Map returns fn applied to every
// item, in input order.
func TestProperty_MapPreservesOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("results follow input order", prop.ForAll(
		func(items []int, workers int) bool {
			got, err := Map(context.Background(), workers, items, func(_ context.Context, v int) (int, error) {
				return v * 2, nil
			})
			if err != nil || len(got) != len(items) {
				return false
			}
			for i, v := range items {
				if got[i] != v*2 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-1000, 1000)),
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}

func TestMapStopsOnFirstError(t *testing.T) {
	items := make([]int, 200)
	for i := range items {
		items[i] = i
	}
	boom := errors.New("boom")
	var calls atomic.Int64

	_, err := Map(context.Background(), 2, items, func(_ context.Context, v int) (string, error) {
		calls.Add(1)
		if v == 3 {
			return "", boom
		}
		return fmt.Sprint(v), nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls.Load() == int64(len(items)) {
		t.Error("remaining items should be skipped after an error")
	}
}

func TestMapHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Map(ctx, 1, []int{1, 2, 3}, func(_ context.Context, v int) (int, error) {
		return v, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestPoolLifecycle(t *testing.T) {
	pool := NewPool(3)
	if pool.Submit(context.Background(), func() {}) {
		t.Error("Submit before Start should fail")
	}

	pool.Start()
	var n atomic.Int64
	for i := 0; i < 20; i++ {
		if !pool.Submit(context.Background(), func() { n.Add(1) }) {
			t.Fatalf("Submit %d failed", i)
		}
	}
	pool.Stop()
	pool.Stop()

	if n.Load() != 20 {
		t.Errorf("ran %d tasks, want 20", n.Load())
	}
	stats := pool.Stats()
	if stats.Workers != 3 || stats.Running || stats.Submitted != 20 || stats.Completed != 20 {
		t.Errorf("stats = %+v", stats)
	}
	if pool.Submit(context.Background(), func() {}) {
		t.Error("Submit after Stop should fail")
	}
}
