package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	asrmock "github.com/mianlab/koushi/pkg/asr/mock"
)

func TestASRFallback_Connect_PrimarySuccess(t *testing.T) {
	primary := &asrmock.Client{}
	secondary := &asrmock.Client{}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	stream, err := fb.Connect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	if primary.ConnectCalls != 1 {
		t.Fatalf("primary connected %d times, want 1", primary.ConnectCalls)
	}
	if secondary.ConnectCalls != 0 {
		t.Fatalf("secondary connected %d times, want 0", secondary.ConnectCalls)
	}
}

func TestASRFallback_Connect_Failover(t *testing.T) {
	primary := &asrmock.Client{ConnectErr: errors.New("vendor down")}
	secondary := &asrmock.Client{}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	stream, err := fb.Connect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	if secondary.ConnectCalls != 1 {
		t.Fatalf("secondary connected %d times, want 1", secondary.ConnectCalls)
	}
}

func TestASRFallback_Connect_AllFail(t *testing.T) {
	primary := &asrmock.Client{ConnectErr: errors.New("primary down")}
	secondary := &asrmock.Client{ConnectErr: errors.New("secondary down")}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	if _, err := fb.Connect(context.Background()); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestASRFallback_BreakerSkipsFailingPrimary(t *testing.T) {
	primary := &asrmock.Client{ConnectErr: errors.New("primary down")}
	secondary := &asrmock.Client{}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fb.AddFallback("secondary", secondary)

	// Two failing connects trip the primary's breaker.
	for i := 0; i < 3; i++ {
		stream, err := fb.Connect(context.Background())
		if err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
		stream.Close()
	}

	// The third call must skip the open breaker without touching the vendor.
	if primary.ConnectCalls != 2 {
		t.Fatalf("primary connected %d times, want 2 (breaker open afterwards)", primary.ConnectCalls)
	}
	if secondary.ConnectCalls != 3 {
		t.Fatalf("secondary connected %d times, want 3", secondary.ConnectCalls)
	}
}
