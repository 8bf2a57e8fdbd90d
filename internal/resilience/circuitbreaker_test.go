package resilience

import (
	"errors"
	"testing"
	"time"
)

var errVendor = errors.New("vendor unavailable")

func failN(t *testing.T, cb *CircuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errVendor })
	}
}

func TestBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "xfyun"})
	if cb.maxFailures != 3 || cb.resetTimeout != 30*time.Second || cb.halfOpenMax != 2 {
		t.Fatalf("defaults = %d / %v / %d, want 3 / 30s / 2",
			cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Fatalf("initial state = %v", cb.State())
	}
}

func TestBreakerClosedForwardsCalls(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "xfyun"})
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestBreakerTripsOnFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "xfyun", MaxFailures: 3, ResetTimeout: time.Hour,
	})
	failN(t, cb, 3)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v after 3 failures, want open", cb.State())
	}

	err := cb.Execute(func() error {
		t.Fatal("open breaker must not forward calls")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessClearsStreak(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "xfyun", MaxFailures: 3})

	failN(t, cb, 2)
	_ = cb.Execute(func() error { return nil })
	failN(t, cb, 2)

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed (success resets the streak)", cb.State())
	}
}

func TestBreakerProbesAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "xfyun", MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2,
	})
	failN(t, cb, 2)
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	time.Sleep(15 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v after reset timeout, want half-open", cb.State())
	}
}

func TestBreakerClosesAfterSuccessfulProbes(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "xfyun", MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2,
	})
	failN(t, cb, 2)
	time.Sleep(15 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v after successful probes, want closed", cb.State())
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "xfyun", MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 3,
	})
	failN(t, cb, 2)
	time.Sleep(15 * time.Millisecond)

	if err := cb.Execute(func() error { return errVendor }); err == nil {
		t.Fatal("failing probe should surface its error")
	}

	cb.mu.Lock()
	s := cb.state
	cb.mu.Unlock()
	if s != StateOpen {
		t.Fatalf("state = %v after failed probe, want open", s)
	}
}

func TestBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "xfyun", MaxFailures: 2, ResetTimeout: time.Hour,
	})
	failN(t, cb, 2)
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v after Reset, want closed", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after Reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
