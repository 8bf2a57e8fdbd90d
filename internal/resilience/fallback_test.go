package resilience

import (
	"errors"
	"testing"
	"time"
)

func newStringGroup(cfg CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{CircuitBreaker: cfg})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestGroupStopsAtPrimary(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	var called []string
	err := fg.Execute(func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(called) != 1 || called[0] != "primary" {
		t.Fatalf("called = %v, want just the primary", called)
	}
}

func TestGroupFallsBackWhenPrimaryFails(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	var served string
	err := fg.Execute(func(v string) error {
		if v == "primary" {
			return errVendor
		}
		served = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "secondary" {
		t.Fatalf("served by %q, want secondary", served)
	}
}

func TestGroupAllFail(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 3})

	err := fg.Execute(func(string) error { return errVendor })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestGroupSkipsOpenBreaker(t *testing.T) {
	fg := newStringGroup(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "primary" {
				return errVendor
			}
			return nil
		})
	}

	var called []string
	err := fg.Execute(func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(called) != 1 || called[0] != "secondary" {
		t.Fatalf("called = %v, want only the secondary while the primary is open", called)
	}
}

func TestExecuteWithResultReturnsFirstSuccess(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	got, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 10 {
			return "from-ten", nil
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "from-ten" {
		t.Fatalf("result = %q, want from-ten", got)
	}
}

func TestExecuteWithResultFailsOver(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	got, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 10 {
			return "", errVendor
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", got)
	}
}

func TestExecuteWithResultAllFail(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	if _, err := ExecuteWithResult(fg, func(int) (string, error) {
		return "", errVendor
	}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestVendorBreakerProfiles(t *testing.T) {
	// A zero config installs the per-kind breaker profile; an explicit
	// config wins.
	llm := NewLLMFallback(nil, "openai", FallbackConfig{})
	if cb := llm.group.members[0].breaker; cb.maxFailures != 5 || cb.resetTimeout != time.Minute {
		t.Fatalf("llm breaker = %d / %v, want profile 5 / 1m", cb.maxFailures, cb.resetTimeout)
	}

	asr := NewASRFallback(nil, "xfyun", FallbackConfig{})
	if cb := asr.group.members[0].breaker; cb.maxFailures != 3 || cb.halfOpenMax != 1 {
		t.Fatalf("asr breaker = %d / %d, want profile 3 / 1", cb.maxFailures, cb.halfOpenMax)
	}

	custom := NewASRFallback(nil, "xfyun", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 9},
	})
	if cb := custom.group.members[0].breaker; cb.maxFailures != 9 {
		t.Fatalf("explicit config overridden: maxFailures = %d", cb.maxFailures)
	}
}
