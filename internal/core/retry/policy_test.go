package retry

import (
	"testing"
	"time"
)

// =============================================================================
// Backoff Progression
// =============================================================================

func TestExponentialBackoff_Progression(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
	})

	// Attempt 1 failed: 1*2^0 = 1s
	if d, ok := policy.NextDelay(1); !ok || d != 1*time.Second {
		t.Errorf("expected 1s, got %v (ok=%v)", d, ok)
	}

	// Attempt 2 failed: 1*2^1 = 2s
	if d, ok := policy.NextDelay(2); !ok || d != 2*time.Second {
		t.Errorf("expected 2s, got %v (ok=%v)", d, ok)
	}

	// Attempt 3 failed: 1*2^2 = 4s
	if d, ok := policy.NextDelay(3); !ok || d != 4*time.Second {
		t.Errorf("expected 4s, got %v (ok=%v)", d, ok)
	}

	// Attempt 4 failed: 1*2^3 = 8s
	if d, ok := policy.NextDelay(4); !ok || d != 8*time.Second {
		t.Errorf("expected 8s, got %v (ok=%v)", d, ok)
	}
}

func TestExponentialBackoff_Cap(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		MaxAttempts:  20,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
	})

	// 1*2^9 = 512s, capped at 10s
	if d, ok := policy.NextDelay(10); !ok || d != 10*time.Second {
		t.Errorf("expected cap 10s, got %v (ok=%v)", d, ok)
	}
}

func TestExponentialBackoff_Uncapped(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		MaxAttempts:  10,
		InitialDelay: 1 * time.Second,
		Multiplier:   3.0,
	})

	// 1*3^2 = 9s, no cap configured
	if d, ok := policy.NextDelay(3); !ok || d != 9*time.Second {
		t.Errorf("expected 9s, got %v (ok=%v)", d, ok)
	}
}

// =============================================================================
// Exhaustion
// =============================================================================

func TestExponentialBackoff_Exhaustion(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
	})

	if _, ok := policy.NextDelay(2); !ok {
		t.Error("attempt 2 of 3 should allow a retry")
	}
	if _, ok := policy.NextDelay(3); ok {
		t.Error("attempt 3 of 3 should be exhausted")
	}
	if _, ok := policy.NextDelay(7); ok {
		t.Error("past-max attempt should be exhausted")
	}
}

func TestExponentialBackoff_SingleAttempt(t *testing.T) {
	policy := NewExponentialBackoff(Config{MaxAttempts: 1, InitialDelay: 1 * time.Second, Multiplier: 2.0})

	if _, ok := policy.NextDelay(1); ok {
		t.Error("single-attempt policy should never retry")
	}
}

// =============================================================================
// Guard Rails
// =============================================================================

func TestExponentialBackoff_DefaultsAndClamps(t *testing.T) {
	// Zero-value config falls back to sane defaults.
	policy := NewExponentialBackoff(Config{})

	if policy.MaxAttempts() != 3 {
		t.Errorf("expected default max attempts 3, got %d", policy.MaxAttempts())
	}
	d, ok := policy.NextDelay(1)
	if !ok {
		t.Fatal("default policy should retry after attempt 1")
	}
	if d <= 0 {
		t.Errorf("delay must be positive, got %v", d)
	}
}

func TestExponentialBackoff_AttemptUnderflow(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
	})

	// Attempt numbers are 1-based; anything lower behaves as 1.
	for _, attempt := range []int{-5, 0, 1} {
		d, ok := policy.NextDelay(attempt)
		if !ok {
			t.Fatalf("attempt %d should allow a retry", attempt)
		}
		if d != 1*time.Second {
			t.Errorf("attempt %d: expected 1s, got %v", attempt, d)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 2*time.Second || cfg.Multiplier != 2.0 || cfg.MaxDelay != 60*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
