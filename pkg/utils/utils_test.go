package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00 zł"},
		{999.5, "999.50 zł"},
		{1050, "1 050.00 zł"},
		{1234567.891, "1 234 567.89 zł"},
		{-25000, "-25 000.00 zł"},
	}
	for _, tt := range tests {
		if got := FormatCurrency(tt.in); got != tt.want {
			t.Errorf("FormatCurrency(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatPnLAndPercent(t *testing.T) {
	if got := FormatPnL(50); got != "+50.00 zł" {
		t.Errorf("FormatPnL(50) = %q", got)
	}
	if got := FormatPnL(-50); got != "-50.00 zł" {
		t.Errorf("FormatPnL(-50) = %q", got)
	}
	if got := FormatPercent(5); got != "+5.00%" {
		t.Errorf("FormatPercent(5) = %q", got)
	}
	if got := FormatOptional(nil); got != "-" {
		t.Errorf("FormatOptional(nil) = %q", got)
	}
	v := 96.0
	if got := FormatOptional(&v); got != "96.00" {
		t.Errorf("FormatOptional(96) = %q", got)
	}
}

func TestNextWeekday(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"2024-01-01", "2024-01-02"}, // Monday -> Tuesday
		{"2024-01-05", "2024-01-08"}, // Friday -> Monday
		{"2024-01-06", "2024-01-08"}, // Saturday -> Monday
		{"2024-01-07", "2024-01-08"}, // Sunday -> Monday
	}
	for _, tt := range tests {
		from, _ := ParseDate(tt.from)
		want, _ := ParseDate(tt.want)
		if got := NextWeekday(from); !got.Equal(want) {
			t.Errorf("NextWeekday(%s) = %s, want %s", tt.from, got.Format(DateFormat), tt.want)
		}
	}
}

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	in := time.Date(2024, 3, 15, 17, 30, 0, 0, loc)
	got := DateOnly(in)
	if got != time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) {
		t.Errorf("DateOnly = %v", got)
	}
	if _, err := ParseDate("15.03.2024"); err == nil {
		t.Error("expected parse error for non-ISO date")
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, BackoffFactor: 2}
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Retry = %v after %d calls", err, calls)
	}
}

func TestRetrySkipsNonRetryable(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return err == errBusy },
	}
	calls := 0
	other := errors.New("permission denied")
	_, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, other
	})
	if err != other || calls != 1 {
		t.Errorf("RetryWithResult = %v after %d calls", err, calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour}
	err := Retry(ctx, cfg, func() error { return errBusy })
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	if got := CalculateBackoff(0, 50*time.Millisecond, time.Second, 2); got != 50*time.Millisecond {
		t.Errorf("attempt 0 = %v", got)
	}
	if got := CalculateBackoff(2, 50*time.Millisecond, time.Second, 2); got != 200*time.Millisecond {
		t.Errorf("attempt 2 = %v", got)
	}
	if got := CalculateBackoff(10, 50*time.Millisecond, time.Second, 2); got != time.Second {
		t.Errorf("capped = %v", got)
	}
}

var errBusy = errors.New("database is locked")
