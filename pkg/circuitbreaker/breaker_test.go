package circuitbreaker

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	if cfg.Threshold != 5 {
		t.Errorf("Expected Threshold 5, got %d", cfg.Threshold)
	}
	if cfg.Cooldown != 30*time.Second {
		t.Errorf("Expected Cooldown 30s, got %v", cfg.Cooldown)
	}
}

func TestNew_WithZeroValues(t *testing.T) {
	t.Parallel()
	// Zero values should use defaults
	b := New(Config{Threshold: 0, Cooldown: 0})

	// With default threshold of 5, should need 5 failures to open
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if !b.Allow() {
		t.Error("Expected requests allowed after 4 failures (default threshold is 5)")
	}

	b.RecordFailure()
	if b.Allow() {
		t.Error("Expected requests blocked after 5 failures")
	}
}

func TestNew_WithNegativeValues(t *testing.T) {
	t.Parallel()
	// Negative values should use defaults
	b := New(Config{Threshold: -1, Cooldown: -1})

	// Should use default threshold of 5
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if b.Allow() {
		t.Error("Expected requests blocked after threshold failures")
	}
}

func TestBreaker_ClosedState(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3, Cooldown: time.Second})

	// Should allow requests in closed state
	if !b.Allow() {
		t.Error("expected Allow() to return true in closed state")
	}

	// Recording success should keep it closed
	b.RecordSuccess()
	if !b.Allow() {
		t.Error("expected Allow() to return true after success")
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3, Cooldown: time.Second})

	// Record failures up to threshold
	b.RecordFailure()
	b.RecordFailure()
	if !b.Allow() {
		t.Error("expected requests allowed before threshold")
	}

	// Third failure should open the circuit
	b.RecordFailure()
	if b.Allow() {
		t.Error("expected Allow() to return false when open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 3, Cooldown: time.Second})

	// Failures below the threshold, then a success
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	// The count restarts: two more failures must not open the circuit
	b.RecordFailure()
	b.RecordFailure()
	if !b.Allow() {
		t.Error("expected requests allowed, success should reset the failure count")
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 2, Cooldown: 50 * time.Millisecond})

	// Open the circuit
	b.RecordFailure()
	b.RecordFailure()

	// Should not allow before cooldown
	if b.Allow() {
		t.Error("expected Allow() to return false before cooldown")
	}

	// Wait for cooldown
	time.Sleep(60 * time.Millisecond)

	// Should allow a test request (half-open)
	if !b.Allow() {
		t.Error("expected Allow() to return true after cooldown (half-open)")
	}
}

func TestBreaker_ClosesOnSuccessInHalfOpen(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 2, Cooldown: 10 * time.Millisecond})

	// Open the circuit
	b.RecordFailure()
	b.RecordFailure()

	// Wait for cooldown
	time.Sleep(15 * time.Millisecond)
	b.Allow() // Transition to half-open

	// Success should close the circuit: a single new failure stays
	// below the threshold and requests keep flowing
	b.RecordSuccess()
	b.RecordFailure()
	if !b.Allow() {
		t.Error("expected closed circuit after success in half-open")
	}
}

func TestBreaker_ReopensOnFailureInHalfOpen(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 2, Cooldown: time.Second})

	// Open the circuit, relying on a stale lastFailure to reach half-open
	// without sleeping through the full cooldown
	b.RecordFailure()
	b.RecordFailure()
	b.lastFailure = time.Now().Add(-2 * time.Second)
	if !b.Allow() {
		t.Fatal("expected half-open test request to be allowed")
	}

	// Failure should reopen immediately
	b.RecordFailure()
	if b.Allow() {
		t.Error("expected Allow() to return false after failure in half-open")
	}
}
