// Package scorer implements asynchronous rubric scoring of interview answers.
//
// Answers are enqueued onto a durable job queue the moment they are
// persisted; a pool of workers consumes the queue, optionally re-transcribes
// the recorded clip through the offline speech service, asks an LLM to grade
// the answer against seven rubric dimensions, parses the per-dimension
// scores, and writes them back to the store. Scoring never blocks the
// interview — a live session only hears about completion through a
// best-effort registry notification.
package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job is one unit of scoring work. It carries identifiers only; workers
// re-read the answer from the store so they always grade the latest text.
type Job struct {
	// AnswerID identifies the answer to score.
	AnswerID uuid.UUID `json:"answer_id"`

	// ClipPath is the finalised media clip for this answer. Empty when no
	// media was captured.
	ClipPath string `json:"clip_path,omitempty"`

	// SessionID names the live session that produced the answer, used to
	// route the completion notice. The session may be gone by the time the
	// job runs; that is fine.
	SessionID string `json:"session_id,omitempty"`
}

// Queue is the scoring job transport. Implementations must be safe for
// concurrent producers and consumers.
type Queue interface {
	// Enqueue appends a job to the queue.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available or ctx is cancelled.
	Dequeue(ctx context.Context) (Job, error)
}

// Compile-time interface assertions.
var (
	_ Queue = (*RedisQueue)(nil)
	_ Queue = (*MemQueue)(nil)
)

// defaultQueueKey is the Redis list backing the queue.
const defaultQueueKey = "koushi:scoring:jobs"

// blockTimeout bounds each BRPOP so cancellation is observed even against
// servers that do not propagate context into blocking reads.
const blockTimeout = 5 * time.Second

// RedisQueue is a durable [Queue] backed by a Redis list. Producers LPUSH,
// consumers BRPOP, so jobs survive process restarts and are delivered to
// exactly one worker.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue returns a queue over rdb using the default list key.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return NewRedisQueueWithKey(rdb, defaultQueueKey)
}

// NewRedisQueueWithKey returns a queue over rdb using key as the backing
// list. Empty key falls back to the default.
func NewRedisQueueWithKey(rdb *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisQueue{rdb: rdb, key: key}
}

// Enqueue implements [Queue].
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("scorer: marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("scorer: enqueue: %w", err)
	}
	return nil
}

// Dequeue implements [Queue]. It loops over bounded BRPOP calls until a job
// arrives or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		vals, err := q.rdb.BRPop(ctx, blockTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue // timed out empty, poll again
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("scorer: dequeue: %w", err)
		}
		// BRPOP returns [key, value].
		if len(vals) != 2 {
			return Job{}, fmt.Errorf("scorer: dequeue: unexpected reply length %d", len(vals))
		}
		var job Job
		if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
			return Job{}, fmt.Errorf("scorer: decode job: %w", err)
		}
		return job, nil
	}
}

// MemQueue is an unbounded in-process [Queue] for tests and runs without
// Redis.
type MemQueue struct {
	mu       sync.Mutex
	jobs     []Job
	nonEmpty chan struct{}
}

// NewMemQueue returns an empty in-memory queue.
func NewMemQueue() *MemQueue {
	return &MemQueue{nonEmpty: make(chan struct{}, 1)}
}

// Enqueue implements [Queue].
func (q *MemQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	select {
	case q.nonEmpty <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue implements [Queue].
func (q *MemQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			if len(q.jobs) > 0 {
				select {
				case q.nonEmpty <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-q.nonEmpty:
		}
	}
}

// Len reports the number of queued jobs. Test helper.
func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
