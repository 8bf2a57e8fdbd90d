// Package media buffers per-question audio and video artefacts and writes
// them to disk as WAV, JPEG sequences, and muxed MP4 clips.
//
// Buffers accumulate during one question and are flushed atomically on the
// question transition; the [Muxer] turns a flush into filesystem artefacts,
// delegating MP4 encoding to an external [Encoder].
package media

import "sync"

// Audio format carried by client audio frames and written to WAV.
const (
	// SampleRate is the PCM sample rate in Hz.
	SampleRate = 16000

	// Channels is the channel count (mono).
	Channels = 1

	// BitsPerSample is the sample width.
	BitsPerSample = 16

	bytesPerSample = BitsPerSample / 8
)

// Buffers holds the two append-only in-memory sequences of one session:
// decoded PCM audio chunks and decoded JPEG frames. Contents cover exactly
// one question; the session flushes both atomically on the question
// transition, so fragments arriving after a flush belong to the next
// question.
//
// Safe for concurrent use.
type Buffers struct {
	mu     sync.Mutex
	audio  [][]byte
	frames [][]byte
}

// NewBuffers returns empty buffers.
func NewBuffers() *Buffers {
	return &Buffers{}
}

// AppendAudio appends one decoded PCM chunk. The buffer takes ownership of
// the slice.
func (b *Buffers) AppendAudio(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	b.audio = append(b.audio, chunk)
	b.mu.Unlock()
}

// AppendFrame appends one decoded JPEG frame. The buffer takes ownership of
// the slice.
func (b *Buffers) AppendFrame(frame []byte) {
	if len(frame) == 0 {
		return
	}
	b.mu.Lock()
	b.frames = append(b.frames, frame)
	b.mu.Unlock()
}

// Flush returns the accumulated audio chunks and frames and clears both
// sequences in the same critical section.
func (b *Buffers) Flush() (audio [][]byte, frames [][]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	audio, frames = b.audio, b.frames
	b.audio, b.frames = nil, nil
	return audio, frames
}

// Counts reports the number of buffered audio chunks and frames.
func (b *Buffers) Counts() (audioChunks, frames int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.audio), len(b.frames)
}
