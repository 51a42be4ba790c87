package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterTransientFailures(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always fails"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientStopsImmediately(t *testing.T) {
	var calls int
	wantErr := errors.New("bad input")
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, fastRetry(5), func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("temporary"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
	if got := Backoff(0, cfg); got != 100*time.Millisecond {
		t.Errorf("attempt 0: got %v", got)
	}
	if got := Backoff(1, cfg); got != 200*time.Millisecond {
		t.Errorf("attempt 1: got %v", got)
	}
	if got := Backoff(3, cfg); got != 300*time.Millisecond {
		t.Errorf("attempt 3 should cap at max: got %v", got)
	}
}

func TestBackoff_JitterStaysInRange(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
	for i := 0; i < 50; i++ {
		d := Backoff(0, cfg)
		if d < 75*time.Millisecond || d > 125*time.Millisecond {
			t.Fatalf("jittered backoff out of range: %v", d)
		}
	}
}

func TestFromConfig_Defaults(t *testing.T) {
	cfg := FromConfig(0, 0, 0)
	if cfg.MaxAttempts != 3 {
		t.Errorf("expected default 3 attempts, got %d", cfg.MaxAttempts)
	}
	cfg = FromConfig(5, 10, 100)
	if cfg.MaxAttempts != 5 || cfg.InitialBackoff != 10*time.Millisecond || cfg.MaxBackoff != 100*time.Millisecond {
		t.Errorf("unexpected config: %+v", cfg)
	}
}
