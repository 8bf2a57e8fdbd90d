// Package mock provides test doubles for the asr.Client and asr.Stream
// interfaces.
//
// The Client either fails Connect (ConnectErr) or hands out a Stream whose
// Events channel the test feeds via Emit. Sent audio chunks are recorded in
// order so ordering properties can be asserted.
package mock

import (
	"context"
	"sync"

	"github.com/mianlab/koushi/pkg/asr"
)

// Client is a mock implementation of asr.Client.
type Client struct {
	mu sync.Mutex

	// ConnectErr, if non-nil, is returned by every Connect call.
	ConnectErr error

	// Stream is handed out by Connect. When nil, Connect allocates a fresh
	// Stream per call.
	Stream *Stream

	// ConnectCalls counts Connect invocations (retry policies are asserted
	// against it).
	ConnectCalls int

	// Streams records every stream handed out, in order.
	Streams []*Stream
}

// Connect records the call and returns the configured stream or error.
func (c *Client) Connect(ctx context.Context) (asr.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ConnectCalls++
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	s := c.Stream
	if s == nil {
		s = NewStream()
	}
	c.Streams = append(c.Streams, s)
	return s, nil
}

// Stream is a mock implementation of asr.Stream.
type Stream struct {
	mu sync.Mutex

	// SendErr, if non-nil, is returned by SendAudio and SendEnd.
	SendErr error

	// Sent records every audio chunk queued via SendAudio, in order.
	Sent [][]byte

	// EndCalls counts SendEnd invocations.
	EndCalls int

	events chan asr.Event
	closed bool
	once   sync.Once
}

// NewStream returns a Stream with an open events channel.
func NewStream() *Stream {
	return &Stream{events: make(chan asr.Event, 64)}
}

// Emit pushes an event to the stream's consumers. No-op after Close.
func (s *Stream) Emit(ev asr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// SendAudio records the chunk.
func (s *Stream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.Sent = append(s.Sent, chunk)
	return nil
}

// SendEnd records the terminator.
func (s *Stream) SendEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.EndCalls++
	return nil
}

// Events returns the event channel.
func (s *Stream) Events() <-chan asr.Event { return s.events }

// Close closes the event channel. Safe to call more than once.
func (s *Stream) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var (
	_ asr.Client = (*Client)(nil)
	_ asr.Stream = (*Stream)(nil)
)
