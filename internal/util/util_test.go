package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryCancelledContextSkipsFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, 3, time.Millisecond, func() error {
		attempts++
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry error = %v, want context.Canceled", err)
	}
	if attempts != 0 {
		t.Errorf("Retry invoked fn %d times on a dead context, want 0", attempts)
	}
}

func TestRetryWrapsLastError(t *testing.T) {
	sentinel := errors.New("broker unavailable")
	err := Retry(context.Background(), 2, 0, func() error { return sentinel })

	if !errors.Is(err, sentinel) {
		t.Fatalf("Retry error %v does not wrap the last failure", err)
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait should pass immediately: %v", err)
	}
}

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"mid-session weekday", time.Date(2025, 7, 10, 11, 0, 0, 0, time.UTC), true},
		{"before open", time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC), false},
		{"at open", time.Date(2025, 7, 10, 9, 15, 0, 0, time.UTC), true},
		{"at close", time.Date(2025, 7, 10, 15, 30, 0, 0, time.UTC), true},
		{"after close", time.Date(2025, 7, 10, 15, 31, 0, 0, time.UTC), false},
		{"saturday", time.Date(2025, 7, 12, 11, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		if got := IsMarketOpen(tc.t); got != tc.want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", tc.name, got, tc.want)
		}
	}
}
