// Package httpdetect provides the HTTP-served object detector used by the
// proctor. The detection model runs as a sidecar service that accepts a JPEG
// body and returns its bounding boxes as JSON.
package httpdetect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mianlab/koushi/internal/proctor"
)

// Detector calls a detection sidecar over HTTP. It implements
// [proctor.Detector].
type Detector struct {
	url   string
	httpc *http.Client
}

var _ proctor.Detector = (*Detector)(nil)

// Option is a functional option for configuring the Detector.
type Option func(*Detector)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *Detector) {
		d.httpc = hc
	}
}

// New creates a Detector posting frames to url.
func New(url string, opts ...Option) (*Detector, error) {
	if url == "" {
		return nil, errors.New("httpdetect: url must not be empty")
	}
	d := &Detector{url: url, httpc: http.DefaultClient}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// response is the sidecar's detection payload.
type response struct {
	Detections []struct {
		Class      string  `json:"class"`
		Confidence float64 `json:"confidence"`
	} `json:"detections"`
}

// Detect posts the JPEG frame and returns the reported boxes.
func (d *Detector) Detect(ctx context.Context, frame []byte) ([]proctor.Box, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("httpdetect: build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpdetect: detect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpdetect: unexpected status %s", resp.Status)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("httpdetect: decode response: %w", err)
	}

	boxes := make([]proctor.Box, 0, len(r.Detections))
	for _, det := range r.Detections {
		boxes = append(boxes, proctor.Box{Class: det.Class, Confidence: det.Confidence})
	}
	return boxes, nil
}
