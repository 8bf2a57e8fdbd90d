// Package mock provides a test double for the proctor.Detector interface.
package mock

import (
	"context"
	"sync"

	"github.com/mianlab/koushi/internal/proctor"
)

// Detector is a mock implementation of proctor.Detector.
type Detector struct {
	mu sync.Mutex

	// Boxes is returned by every Detect call.
	Boxes []proctor.Box

	// Err, if non-nil, is returned instead of Boxes.
	Err error

	// Calls counts Detect invocations.
	Calls int
}

// Detect records the call and returns the configured boxes or error.
func (d *Detector) Detect(ctx context.Context, frame []byte) ([]proctor.Box, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Boxes, nil
}

var _ proctor.Detector = (*Detector)(nil)
