package proctor_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"testing"

	"github.com/mianlab/koushi/internal/proctor"
	"github.com/mianlab/koushi/internal/proctor/mock"
)

// testJPEG returns a minimal valid JPEG frame.
func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test JPEG: %v", err)
	}
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	frame := testJPEG(t)

	tests := []struct {
		name  string
		boxes []proctor.Box
		want  proctor.Verdict
	}{
		{"no persons", nil, proctor.VerdictOK},
		{"one person", []proctor.Box{{Class: "person", Confidence: 0.9}}, proctor.VerdictOK},
		{"two persons", []proctor.Box{
			{Class: "person", Confidence: 0.9},
			{Class: "person", Confidence: 0.8},
		}, proctor.VerdictMultiPerson},
		{"second person below confidence", []proctor.Box{
			{Class: "person", Confidence: 0.9},
			{Class: "person", Confidence: 0.2},
		}, proctor.VerdictOK},
		{"non-person classes ignored", []proctor.Box{
			{Class: "person", Confidence: 0.9},
			{Class: "chair", Confidence: 0.95},
			{Class: "laptop", Confidence: 0.95},
		}, proctor.VerdictOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &mock.Detector{Boxes: tt.boxes}
			p := proctor.New(func() (proctor.Detector, error) { return det, nil }, 0.5)
			if got := p.Inspect(context.Background(), frame); got != tt.want {
				t.Fatalf("Inspect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInspectDecodeError(t *testing.T) {
	det := &mock.Detector{}
	p := proctor.New(func() (proctor.Detector, error) { return det, nil }, 0.5)
	if got := p.Inspect(context.Background(), []byte("not a jpeg")); got != proctor.VerdictDecodeError {
		t.Fatalf("Inspect = %v, want VerdictDecodeError", got)
	}
	if det.Calls != 0 {
		t.Fatal("detector must not run on undecodable frames")
	}
}

func TestLoadFailureDisables(t *testing.T) {
	loads := 0
	p := proctor.New(func() (proctor.Detector, error) {
		loads++
		return nil, errors.New("model missing")
	}, 0.5)

	frame := testJPEG(t)
	for range 3 {
		if got := p.Inspect(context.Background(), frame); got != proctor.VerdictOK {
			t.Fatalf("disabled proctor must pass frames, got %v", got)
		}
	}
	if loads != 1 {
		t.Fatalf("load attempted %d times, want once", loads)
	}
	if !p.Disabled() {
		t.Fatal("Disabled() = false after load failure")
	}
}

func TestDetectorErrorPassesFrame(t *testing.T) {
	det := &mock.Detector{Err: errors.New("sidecar down")}
	p := proctor.New(func() (proctor.Detector, error) { return det, nil }, 0.5)
	if got := p.Inspect(context.Background(), testJPEG(t)); got != proctor.VerdictOK {
		t.Fatalf("Inspect = %v, want VerdictOK on detector failure", got)
	}
}
