package llm_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mianlab/koushi/pkg/llm"
)

func chunkChan(chunks ...llm.Chunk) <-chan llm.Chunk {
	ch := make(chan llm.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// TestCollect_JoinsChunks checks that streamed text fragments are concatenated.
func TestCollect_JoinsChunks(t *testing.T) {
	ch := chunkChan(
		llm.Chunk{Text: "你好，"},
		llm.Chunk{Text: "请开始"},
		llm.Chunk{Text: "自我介绍。", FinishReason: "stop"},
	)
	got, err := llm.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "你好，请开始自我介绍。" {
		t.Errorf("unexpected collected text: %q", got)
	}
}

// TestCollect_ErrorChunk checks that an error chunk aborts collection and its
// text is reported as the error, not appended to the output.
func TestCollect_ErrorChunk(t *testing.T) {
	ch := chunkChan(
		llm.Chunk{Text: "partial"},
		llm.Chunk{FinishReason: llm.FinishReasonError, Text: "rate limited"},
	)
	_, err := llm.Collect(context.Background(), ch)
	if err == nil {
		t.Fatal("expected error from error chunk")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected error to carry chunk text, got %v", err)
	}
}

// TestCollect_ContextCancelled checks that cancellation stops collection.
func TestCollect_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan llm.Chunk) // never written, never closed

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = llm.Collect(ctx, ch)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Collect did not return after cancellation")
	}
	if err == nil {
		t.Fatal("expected context error")
	}
}
