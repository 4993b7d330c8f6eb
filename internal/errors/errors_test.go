package errors

import (
	"testing"
)

func TestPositionErrorUnwrap(t *testing.T) {
	err := NewPositionError("PKO BP", "sell", ErrInsufficientShares)

	if !Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares in chain, got %v", err)
	}
	if got := err.Error(); got != "position error [PKO BP] sell: insufficient shares" {
		t.Errorf("unexpected message: %q", got)
	}

	var pe *PositionError
	if !As(Wrap(err, "portfolio"), &pe) {
		t.Fatal("expected As to find PositionError through Wrap")
	}
	if pe.Instrument != "PKO BP" {
		t.Errorf("Instrument = %q, want PKO BP", pe.Instrument)
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	err := NewValidationError("shares", 0, "must be positive", ErrInvalidQuantity)
	if !Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity in chain, got %v", err)
	}

	bare := NewValidationError("name", "", "required", nil)
	if Is(bare, ErrInvalidQuantity) {
		t.Error("bare validation error should not match a sentinel")
	}
}

func TestDataErrorMessage(t *testing.T) {
	withCause := NewDataError("series", "CDR", "load failed", ErrEmptySeries)
	if got := withCause.Error(); got != "data error [series] CDR: load failed: empty price series" {
		t.Errorf("unexpected message: %q", got)
	}

	noCause := NewDataError("csv", "CDR", "missing close column", nil)
	if got := noCause.Error(); got != "data error [csv] CDR: missing close column" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
	if got := Wrapf(ErrNoPriorQuote, "pricing %s", "CDR").Error(); got != "pricing CDR: no quote on or before date" {
		t.Errorf("unexpected message: %q", got)
	}
}
