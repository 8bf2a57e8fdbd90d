package scorer_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mianlab/koushi/internal/scorer"
)

func newRedisQueue(t *testing.T) *scorer.RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return scorer.NewRedisQueue(rdb)
}

func TestRedisQueueRoundTrip(t *testing.T) {
	q := newRedisQueue(t)
	ctx := context.Background()

	want := scorer.Job{
		AnswerID:  uuid.New(),
		ClipPath:  "/clips/s1_q0_av.mp4",
		SessionID: "s1",
	}
	if err := q.Enqueue(ctx, want); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got != want {
		t.Fatalf("job = %+v, want %+v", got, want)
	}
}

func TestRedisQueueFIFO(t *testing.T) {
	q := newRedisQueue(t)
	ctx := context.Background()

	first := scorer.Job{AnswerID: uuid.New()}
	second := scorer.Job{AnswerID: uuid.New()}
	for _, j := range []scorer.Job{first, second} {
		if err := q.Enqueue(ctx, j); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.AnswerID != first.AnswerID {
		t.Fatalf("dequeued %s first, want %s", got.AnswerID, first.AnswerID)
	}
}

func TestMemQueueBlocksUntilEnqueue(t *testing.T) {
	q := scorer.NewMemQueue()
	want := scorer.Job{AnswerID: uuid.New()}

	done := make(chan scorer.Job, 1)
	go func() {
		job, err := q.Dequeue(context.Background())
		if err != nil {
			t.Errorf("Dequeue: %v", err)
			return
		}
		done <- job
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Enqueue(context.Background(), want); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case got := <-done:
		if got.AnswerID != want.AnswerID {
			t.Fatalf("job = %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after Enqueue")
	}
}

func TestMemQueueDequeueCancellation(t *testing.T) {
	q := scorer.NewMemQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatal("Dequeue on empty queue must fail once ctx is cancelled")
	}
}
