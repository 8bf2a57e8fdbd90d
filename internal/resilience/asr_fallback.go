package resilience

import (
	"context"
	"time"

	"github.com/mianlab/koushi/pkg/asr"
)

// ASRFallback implements [asr.Client] with automatic failover across multiple
// transcription vendors. Each vendor has its own circuit breaker; only the
// connect attempt participates in failover — once a stream is established,
// the session's connector goroutine owns reconnect policy.
type ASRFallback struct {
	group *FallbackGroup[asr.Client]
}

// Compile-time interface assertion.
var _ asr.Client = (*ASRFallback)(nil)

// asrBreakerProfile shapes the breakers guarding the vendor dial. Each
// session already retries its own connect a few times, so a streak of three
// breaker-level failures spans several sessions; tripping then lets new
// sessions degrade to manual answering immediately instead of burning their
// retry budget against a dead vendor.
var asrBreakerProfile = CircuitBreakerConfig{
	MaxFailures:  3,
	ResetTimeout: 30 * time.Second,
	HalfOpenMax:  1,
}

// NewASRFallback creates an [ASRFallback] with primary as the preferred
// vendor. A zero cfg uses the dial breaker profile.
func NewASRFallback(primary asr.Client, primaryName string, cfg FallbackConfig) *ASRFallback {
	if cfg.CircuitBreaker == (CircuitBreakerConfig{}) {
		cfg.CircuitBreaker = asrBreakerProfile
	}
	return &ASRFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcription vendor as a fallback.
func (f *ASRFallback) AddFallback(name string, client asr.Client) {
	f.group.AddFallback(name, client)
}

// Connect opens a transcription stream against the first healthy vendor. If
// the primary fails to connect, subsequent fallbacks are tried.
func (f *ASRFallback) Connect(ctx context.Context) (asr.Stream, error) {
	return ExecuteWithResult(f.group, func(c asr.Client) (asr.Stream, error) {
		return c.Connect(ctx)
	})
}
