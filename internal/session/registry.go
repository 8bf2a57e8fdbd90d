// Package session provides the thread-safe registry of live interview
// sessions.
//
// The registry maps session IDs to orchestrator handles. Scoring workers use
// it to push completion notices back into a live session; admin introspection
// lists what is currently running. Lookups are best-effort: a session that
// disconnected between enqueue and callback is simply gone, the persisted
// answer is unaffected.
package session

import (
	"errors"
	"sync"

	"github.com/mianlab/koushi/internal/interview"
)

// ErrDuplicate is returned by Register when the session ID is already live.
// At most one orchestrator task may own a session ID.
var ErrDuplicate = errors.New("session: id already registered")

// Handle is the registry's view of a live session. The orchestrator's
// Session type implements it.
type Handle interface {
	// ID is the session identifier.
	ID() string

	// InterviewID is the interview the session runs against.
	InterviewID() int64

	// Phase is the session's current phase at call time.
	Phase() interview.Phase

	// Deliver pushes an event into the session's inbox without blocking.
	// It reports whether the event was accepted (false when the session is
	// shutting down or its inbox is full).
	Deliver(ev any) bool
}

// Registry is the concurrent session map. The zero value is not usable; use
// [NewRegistry].
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Handle)}
}

// Register adds a live session. Returns [ErrDuplicate] when the ID is taken.
func (r *Registry) Register(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[h.ID()]; ok {
		return ErrDuplicate
	}
	r.sessions[h.ID()] = h
	return nil
}

// Lookup returns the handle for id, or (nil, false) when no such session is
// live.
func (r *Registry) Lookup(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[id]
	return h, ok
}

// Remove drops the session. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a snapshot of the live handles. Order is unspecified.
func (r *Registry) All() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handle, 0, len(r.sessions))
	for _, h := range r.sessions {
		out = append(out, h)
	}
	return out
}
