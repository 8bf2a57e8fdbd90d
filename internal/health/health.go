// Package health exposes the interview server's liveness and readiness
// probes.
//
// Liveness (/healthz) answers 200 whenever the process can serve HTTP.
// Readiness (/readyz) runs every registered [Checker] — in production these
// probe the postgres store and the redis scoring queue — and answers 503
// until all of them pass, so traffic is not routed to an instance whose
// backends are still coming up.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// probeTimeout bounds one checker. A hung backend must fail the probe, not
// hold /readyz open past the orchestration platform's own deadline.
const probeTimeout = 5 * time.Second

// Checker probes one backing dependency.
type Checker struct {
	// Name keys the check's entry in the JSON report ("postgres", "redis").
	Name string

	// Check returns nil when the dependency is usable. It must honour ctx.
	Check func(ctx context.Context) error
}

// report is the JSON body of both probes.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the two probe endpoints. The checker set is fixed at
// construction; Handler itself holds no mutable state and is safe for
// concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a Handler over the given checkers.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz reports liveness. It never consults the checkers: a process that
// reaches this handler is alive, whatever its backends are doing.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker, each under its own [probeTimeout], and reports
// 503 when any fails. Checkers run concurrently so a slow store does not
// serialise behind a slow queue.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make([]string, len(h.checkers))

	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			if err := c.Check(ctx); err != nil {
				results[i] = "fail: " + err.Error()
			} else {
				results[i] = "ok"
			}
		}()
	}
	wg.Wait()

	res := report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		res.Checks[c.Name] = results[i]
		if results[i] != "ok" {
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, res)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// The body is a small flat struct; an encode failure here means the
	// connection is gone and there is nobody left to tell.
	_ = json.NewEncoder(w).Encode(v)
}
