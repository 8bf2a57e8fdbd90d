// Package asr defines the contract for streaming speech recognition vendors
// and the text utilities shared by every consumer of transcription output.
//
// A [Client] opens one [Stream] per interview session. The stream accepts raw
// PCM audio and delivers [Event] values carrying the Chinese text fragments
// extracted from the vendor's candidate transcriptions. Vendor specifics live
// in the subpackages (xfyun for the real-time socket, offline for the
// upload-then-poll service); mock holds the test double.
package asr

import (
	"context"
	"strings"
)

// Completion phrases. A fragment containing either one signals that the
// candidate considers the current answer finished.
var completionPhrases = []string{"说完了", "完毕"}

// Event is one message delivered by a [Stream].
//
// Exactly one of Text and Err is meaningful: a fragment event carries the
// extracted Chinese text, an error event carries the vendor failure that is
// about to close the stream.
type Event struct {
	// Text is the extracted Chinese fragment, in arrival order.
	Text string

	// Err is set on the terminal error event.
	Err error
}

// Client opens transcription streams against a vendor.
type Client interface {
	// Connect dials the vendor and returns a live stream. The context bounds
	// the dial only; stream lifetime is governed by [Stream.Close].
	Connect(ctx context.Context) (Stream, error)
}

// Stream is one live transcription session.
//
// SendAudio must not block the caller beyond a bounded buffer: audio
// forwarding happens on the orchestrator's hot path.
type Stream interface {
	// SendAudio queues one PCM chunk for delivery. Chunks are forwarded in
	// the order queued. Returns an error once the stream is closed.
	SendAudio(chunk []byte) error

	// SendEnd tells the vendor no more audio follows, flushing any pending
	// recognition.
	SendEnd() error

	// Events returns the channel of transcription events. It is closed when
	// the stream ends, after any terminal error event.
	Events() <-chan Event

	// Close tears the stream down. Safe to call more than once.
	Close() error
}

// ExtractChinese returns the characters of s that fall in the CJK Unified
// Ideographs block plus common Chinese punctuation, concatenated in order.
// Vendor transcriptions interleave segmentation metadata and Latin filler;
// only the Chinese content is interview text.
func ExtractChinese(s string) string {
	var b strings.Builder
	for _, r := range s {
		if isChinese(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isChinese(r rune) bool {
	if r >= 0x4E00 && r <= 0x9FFF {
		return true
	}
	switch r {
	case '，', '。', '！', '？', '、', '；', '：', '“', '”', '‘', '’', '（', '）', '…', '—', '《', '》':
		return true
	}
	return false
}

// DetectCompletion reports whether the fragment contains a completion phrase
// ("说完了" or "完毕").
func DetectCompletion(fragment string) bool {
	for _, p := range completionPhrases {
		if strings.Contains(fragment, p) {
			return true
		}
	}
	return false
}
