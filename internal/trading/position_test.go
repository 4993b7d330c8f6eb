package trading

import (
	"math"
	"testing"

	"gpwsim/internal/errors"
	"gpwsim/internal/models"
)

func TestPositionWeightedAverage(t *testing.T) {
	s := mustSeries(t, "PKN", day(2024, 1, 2), 60.0)
	p := NewPosition(s)

	if err := p.Buy(10, 100, day(2024, 1, 2)); err != nil {
		t.Fatal(err)
	}
	if err := p.Buy(30, 60, day(2024, 1, 9)); err != nil {
		t.Fatal(err)
	}

	if p.Shares() != 40 {
		t.Errorf("Shares = %d, want 40", p.Shares())
	}
	if want := (10*100.0 + 30*60.0) / 40; math.Abs(p.AverageCost()-want) > 1e-9 {
		t.Errorf("AverageCost = %v, want %v", p.AverageCost(), want)
	}
	first, ok := p.FirstBuyDate()
	if !ok || !first.Equal(day(2024, 1, 2)) {
		t.Errorf("FirstBuyDate = %v, %v; want first purchase date", first, ok)
	}
}

func TestPositionBuyRejectsInvalidInput(t *testing.T) {
	p := NewPosition(mustSeries(t, "PKN", day(2024, 1, 2), 60.0))

	if err := p.Buy(0, 10, day(2024, 1, 2)); !errors.Is(err, errors.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
	if err := p.Buy(5, 0, day(2024, 1, 2)); !errors.Is(err, errors.ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
	if _, ok := p.FirstBuyDate(); ok {
		t.Error("failed buys must not set the first buy date")
	}
	if p.Shares() != 0 || p.AverageCost() != 0 {
		t.Error("failed buys must not change holdings")
	}
}

func TestPositionSell(t *testing.T) {
	p := NewPosition(mustSeries(t, "PKN", day(2024, 1, 2), 60.0))
	_ = p.Buy(10, 50, day(2024, 1, 2))

	err := p.Sell(11)
	if !errors.Is(err, errors.ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if p.Shares() != 10 {
		t.Errorf("failed sell changed shares to %d", p.Shares())
	}

	if err := p.Sell(4); err != nil {
		t.Fatal(err)
	}
	if p.Shares() != 6 || p.AverageCost() != 50 {
		t.Errorf("after sell: shares=%d avg=%v, want 6 and unchanged 50", p.Shares(), p.AverageCost())
	}
	if err := p.Sell(-1); !errors.Is(err, errors.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestPositionOrdersAndTriggers(t *testing.T) {
	p := NewPosition(mustSeries(t, "PKN", day(2024, 1, 2), 60.0))
	_ = p.Buy(1, 100, day(2024, 1, 2))

	if _, hit := p.triggered(1); hit {
		t.Error("a position without thresholds never triggers")
	}

	sl := 90.0
	p.SetOrders(&sl, Price(110))
	sl = 0 // caller's variable must not alias the stored threshold
	if got := p.StopLoss(); got == nil || *got != 90 {
		t.Fatalf("StopLoss = %v, want 90", got)
	}

	tests := []struct {
		price  float64
		reason models.CloseReason
		hit    bool
	}{
		{89.5, models.CloseStopLoss, true},
		{90, models.CloseStopLoss, true},
		{100, "", false},
		{110, models.CloseTakeProfit, true},
	}
	for _, tt := range tests {
		reason, hit := p.triggered(tt.price)
		if reason != tt.reason || hit != tt.hit {
			t.Errorf("triggered(%v) = %q,%v; want %q,%v", tt.price, reason, hit, tt.reason, tt.hit)
		}
	}

	// Inverted thresholds: stop-loss is evaluated first.
	p.SetOrders(Price(100), Price(90))
	if reason, _ := p.triggered(95); reason != models.CloseStopLoss {
		t.Errorf("tie-break reason = %q, want stop_loss", reason)
	}

	p.SetOrders(nil, nil)
	if p.StopLoss() != nil || p.TakeProfit() != nil {
		t.Error("SetOrders(nil, nil) should clear both thresholds")
	}
}

func TestPositionValuation(t *testing.T) {
	s := mustSeries(t, "PKN", day(2024, 1, 2), 60.0, day(2024, 1, 3), 66.0)
	p := NewPosition(s)
	_ = p.Buy(10, 60, day(2024, 1, 2))

	v, err := p.Value(day(2024, 1, 4))
	if err != nil || v != 660 {
		t.Errorf("Value = %v, %v; want 660", v, err)
	}
	pnl, err := p.UnrealizedPnL(day(2024, 1, 3))
	if err != nil || math.Abs(pnl-60) > 1e-9 {
		t.Errorf("UnrealizedPnL = %v, %v; want 60", pnl, err)
	}
	if _, err := p.Value(day(2023, 12, 1)); !errors.Is(err, errors.ErrNoPriorQuote) {
		t.Errorf("expected ErrNoPriorQuote, got %v", err)
	}
}
