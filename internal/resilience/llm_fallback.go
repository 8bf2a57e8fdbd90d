package resilience

import (
	"context"
	"time"

	"github.com/mianlab/koushi/pkg/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried. The planner, the
// scorer, and the evaluator all accept this in place of a single provider.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// llmBreakerProfile shapes the breakers guarding completion calls. Plans,
// scores and report prose all have deterministic fallbacks, so the breaker
// can afford a longer open window than the generic default: flapping between
// a rate-limited vendor and the template output is worse than settling on
// the template for a minute.
var llmBreakerProfile = CircuitBreakerConfig{
	MaxFailures:  5,
	ResetTimeout: time.Minute,
	HalfOpenMax:  2,
}

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend. A zero cfg uses the completion-call breaker profile.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.CircuitBreaker == (CircuitBreakerConfig{}) {
		cfg.CircuitBreaker = llmBreakerProfile
	}
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion sends the request to the first healthy provider and returns a
// streaming chunk channel. Note: only the initial connection attempt is covered
// by failover; once a stream is established, mid-stream errors are the caller's
// responsibility.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Capabilities returns the capabilities of the first entry (the primary).
// This does not participate in failover because capabilities are static metadata.
func (f *LLMFallback) Capabilities() llm.Capabilities {
	if len(f.group.members) > 0 {
		return f.group.members[0].value.Capabilities()
	}
	return llm.Capabilities{}
}
