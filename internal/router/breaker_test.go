package router

import (
	"testing"
	"time"
)

func TestCircuitBreaker_NormalOperation(t *testing.T) {
	cb := NewCircuitBreaker(DefaultFailureLimit, DefaultCooldown)

	for i := 0; i < 10; i++ {
		if err := cb.Allow("fast"); err != nil {
			t.Errorf("Allow(%d) error = %v", i, err)
		}
		cb.RecordSuccess("fast")
	}

	if cb.GetState("fast") != StateClosed {
		t.Errorf("State = %s, want %s", cb.GetState("fast"), StateClosed)
	}
}

func TestCircuitBreaker_FailureLimit(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		cb.RecordFailure("slow")
		if cb.GetState("slow") != StateClosed {
			t.Errorf("State after %d failures = %s, want %s", i+1, cb.GetState("slow"), StateClosed)
		}
	}

	cb.RecordFailure("slow")
	if cb.GetState("slow") != StateOpen {
		t.Fatalf("State = %s, want %s", cb.GetState("slow"), StateOpen)
	}

	if err := cb.Allow("slow"); err != ErrCircuitBreakerOpen {
		t.Errorf("Allow() error = %v, want %v", err, ErrCircuitBreakerOpen)
	}

	if err := cb.Allow("other"); err != nil {
		t.Errorf("Allow(other) error = %v, want nil", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordFailure("fast")
	cb.RecordFailure("fast")
	cb.RecordSuccess("fast")
	cb.RecordFailure("fast")
	cb.RecordFailure("fast")

	if cb.GetState("fast") != StateClosed {
		t.Errorf("State = %s, want %s", cb.GetState("fast"), StateClosed)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 30*time.Second)
	now := time.Unix(1_700_000_000, 0)
	cb.now = func() time.Time { return now }

	cb.RecordFailure("fast")
	if err := cb.Allow("fast"); err != ErrCircuitBreakerOpen {
		t.Fatalf("Allow() during cooldown error = %v", err)
	}

	now = now.Add(31 * time.Second)

	if err := cb.Allow("fast"); err != nil {
		t.Fatalf("Allow() after cooldown error = %v", err)
	}
	if cb.GetState("fast") != StateHalfOpen {
		t.Errorf("State = %s, want %s", cb.GetState("fast"), StateHalfOpen)
	}

	if err := cb.Allow("fast"); err != ErrCircuitBreakerOpen {
		t.Errorf("second probe error = %v, want %v", err, ErrCircuitBreakerOpen)
	}

	cb.RecordSuccess("fast")
	if cb.GetState("fast") != StateClosed {
		t.Errorf("State = %s, want %s", cb.GetState("fast"), StateClosed)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(5, 30*time.Second)
	now := time.Unix(1_700_000_000, 0)
	cb.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		cb.RecordFailure("fast")
	}
	now = now.Add(time.Minute)
	if err := cb.Allow("fast"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	cb.RecordFailure("fast")
	if cb.GetState("fast") != StateOpen {
		t.Errorf("State = %s, want %s", cb.GetState("fast"), StateOpen)
	}
}

func TestCircuitBreaker_ReleaseFreesProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Second)
	now := time.Unix(1_700_000_000, 0)
	cb.now = func() time.Time { return now }

	cb.RecordFailure("fast")
	now = now.Add(2 * time.Second)

	if err := cb.Allow("fast"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	cb.Release("fast")
	if err := cb.Allow("fast"); err != nil {
		t.Errorf("Allow() after release error = %v", err)
	}
}
