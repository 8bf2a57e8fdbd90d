// Package proctor supervises the camera feed for proctoring violations.
//
// Each keyframe is decoded, run through the object [Detector], and judged by
// the number of detected persons: more than one is a violation, one or zero
// is fine (an empty frame is tolerated — the candidate may be off-camera for
// a moment). Detector loading is lazy and happens once; a load failure
// disables inspection for the rest of the process.
package proctor

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"sync"
)

// ClassPerson is the detector class counted for the multi-person check.
const ClassPerson = "person"

// Verdict is the outcome of inspecting one frame.
type Verdict int

const (
	// VerdictOK means the frame raised no violation.
	VerdictOK Verdict = iota

	// VerdictMultiPerson means more than one person was detected.
	VerdictMultiPerson

	// VerdictDecodeError means the frame bytes are not a decodable JPEG.
	VerdictDecodeError
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictMultiPerson:
		return "cheat_multi_person"
	case VerdictDecodeError:
		return "decode_error"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Box is one detection returned by the object detector.
type Box struct {
	// Class is the detected object class (e.g. "person").
	Class string

	// Confidence is the detector's confidence in [0, 1].
	Confidence float64
}

// Detector runs object detection over one JPEG frame.
type Detector interface {
	Detect(ctx context.Context, frame []byte) ([]Box, error)
}

// LoadFunc constructs the detector on first use.
type LoadFunc func() (Detector, error)

// Proctor inspects keyframes. Safe for concurrent use; the detector is
// loaded at most once across all sessions.
type Proctor struct {
	load          LoadFunc
	minConfidence float64
	log           *slog.Logger

	once     sync.Once
	detector Detector
	disabled bool
}

// New returns a Proctor that lazily constructs its detector via load.
// Boxes below minConfidence are ignored.
func New(load LoadFunc, minConfidence float64) *Proctor {
	return &Proctor{load: load, minConfidence: minConfidence, log: slog.Default()}
}

// Disabled reports whether detector loading failed and inspection is off.
func (p *Proctor) Disabled() bool {
	p.once.Do(p.init)
	return p.disabled
}

func (p *Proctor) init() {
	d, err := p.load()
	if err != nil {
		p.log.Warn("proctor detector load failed, disabling frame inspection", "error", err)
		p.disabled = true
		return
	}
	p.detector = d
}

// Inspect judges one frame. With the detector disabled every decodable frame
// passes. Detector call failures are treated as OK: a flaky detector must
// not interrupt the interview.
func (p *Proctor) Inspect(ctx context.Context, frame []byte) Verdict {
	if _, err := jpeg.DecodeConfig(bytes.NewReader(frame)); err != nil {
		return VerdictDecodeError
	}

	p.once.Do(p.init)
	if p.disabled {
		return VerdictOK
	}

	boxes, err := p.detector.Detect(ctx, frame)
	if err != nil {
		p.log.Warn("proctor detection failed, passing frame", "error", err)
		return VerdictOK
	}

	persons := 0
	for _, b := range boxes {
		if b.Class == ClassPerson && b.Confidence >= p.minConfidence {
			persons++
		}
	}
	if persons > 1 {
		return VerdictMultiPerson
	}
	return VerdictOK
}
