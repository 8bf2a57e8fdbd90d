package scorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/observe"
	"github.com/mianlab/koushi/internal/session"
	"github.com/mianlab/koushi/internal/store"
	"github.com/mianlab/koushi/pkg/llm"
)

// Completed is delivered into a live session's inbox when one of its answers
// finished scoring. Informational only — sessions never wait for it.
type Completed struct {
	AnswerID uuid.UUID
	Scores   interview.RubricScores
	Err      error
}

// Transcriber re-transcribes a recorded clip offline. Implemented by
// [github.com/mianlab/koushi/pkg/asr/offline.Client].
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

const (
	defaultWorkers = 2

	// maxVisionFrames caps how many clip stills are attached to a
	// multimodal scoring request.
	maxVisionFrames = 4

	scoringTemperature = 0.2
)

// Option configures a [Pool].
type Option func(*Pool)

// WithWorkers sets the number of concurrent scoring workers.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithTranscriber enables offline re-transcription of clips before scoring.
func WithTranscriber(t Transcriber) Option {
	return func(p *Pool) { p.transcriber = t }
}

// WithMetrics attaches metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithLogger sets the pool's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// Pool consumes the scoring queue with a fixed set of workers.
type Pool struct {
	store       store.AnswerStore
	provider    llm.Provider
	queue       Queue
	registry    *session.Registry
	transcriber Transcriber
	metrics     *observe.Metrics
	log         *slog.Logger
	workers     int
}

// NewPool assembles a scoring worker pool. registry may be nil when no live
// sessions need completion notices (e.g. offline batch scoring).
func NewPool(st store.AnswerStore, provider llm.Provider, queue Queue, registry *session.Registry, opts ...Option) *Pool {
	p := &Pool{
		store:    st,
		provider: provider,
		queue:    queue,
		registry: registry,
		log:      slog.Default(),
		workers:  defaultWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks consuming the queue until ctx is cancelled. It always returns
// ctx's error; individual job failures are absorbed (neutral scores are
// persisted) and never stop the pool.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				job, err := p.queue.Dequeue(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					p.log.Error("scoring dequeue failed", "error", err)
					continue
				}
				p.process(ctx, job)
			}
		})
	}
	return g.Wait()
}

// process scores one job end to end. Failures downgrade to neutral scores
// with the error recorded in the analysis field.
func (p *Pool) process(ctx context.Context, job Job) {
	start := time.Now()
	scores, analysis, err := p.score(ctx, job)

	status := "ok"
	if err != nil {
		status = "failed"
		scores = interview.NeutralRubric()
		analysis = "自动评分失败：" + err.Error()
		p.log.Warn("scoring failed, keeping neutral defaults",
			"answer_id", job.AnswerID, "error", err)
	}

	if serr := p.store.SetScores(ctx, job.AnswerID, scores, analysis); serr != nil {
		status = "failed"
		if err == nil {
			err = serr
		}
		p.log.Error("persisting scores failed", "answer_id", job.AnswerID, "error", serr)
	}

	if p.metrics != nil {
		p.metrics.RecordScoringJob(ctx, status, time.Since(start).Seconds())
	}
	p.notify(job, scores, err)
}

// score runs re-transcription, prompting, and parsing for one answer.
func (p *Pool) score(ctx context.Context, job Job) (interview.RubricScores, string, error) {
	a, err := p.store.GetAnswer(ctx, job.AnswerID)
	if err != nil {
		return interview.RubricScores{}, "", fmt.Errorf("scorer: load answer: %w", err)
	}

	if p.transcriber != nil && job.ClipPath != "" {
		if text, terr := p.transcriber.Transcribe(ctx, job.ClipPath); terr != nil {
			p.log.Warn("offline re-transcription failed, scoring live transcript",
				"answer_id", job.AnswerID, "error", terr)
		} else if strings.TrimSpace(text) != "" {
			if serr := p.store.SetText(ctx, a.ID, text); serr != nil {
				p.log.Warn("persisting re-transcription failed",
					"answer_id", job.AnswerID, "error", serr)
			} else {
				a.Text = text
			}
		}
	}

	req := llm.CompletionRequest{
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: BuildScoringPrompt(a)}},
		SystemPrompt: scoringSystemPrompt,
		Temperature:  scoringTemperature,
	}
	if job.ClipPath != "" && p.provider.Capabilities().SupportsVision {
		req.Images = loadClipFrames(job.ClipPath, maxVisionFrames)
	}

	ch, err := p.provider.StreamCompletion(ctx, req)
	if err != nil {
		return interview.RubricScores{}, "", fmt.Errorf("scorer: start completion: %w", err)
	}
	response, err := llm.Collect(ctx, ch)
	if err != nil {
		return interview.RubricScores{}, "", fmt.Errorf("scorer: collect completion: %w", err)
	}
	if strings.TrimSpace(response) == "" {
		return interview.RubricScores{}, "", errors.New("scorer: empty completion")
	}

	scores, parsed := ParseScores(response)
	if parsed == 0 {
		return interview.RubricScores{}, "", errors.New("scorer: no dimensions parsed")
	}
	return scores, response, nil
}

// notify pushes a best-effort completion notice into the owning session's
// inbox, if it is still live.
func (p *Pool) notify(job Job, scores interview.RubricScores, err error) {
	if p.registry == nil || job.SessionID == "" {
		return
	}
	h, ok := p.registry.Lookup(job.SessionID)
	if !ok {
		return
	}
	h.Deliver(Completed{AnswerID: job.AnswerID, Scores: scores, Err: err})
}

// loadClipFrames reads up to limit JPEG stills captured alongside the clip.
// The muxer writes frames into a sibling directory named after the clip.
func loadClipFrames(clipPath string, limit int) [][]byte {
	base := strings.TrimSuffix(clipPath, filepath.Ext(clipPath))
	base = strings.TrimSuffix(base, "_av")
	framesDir := base + "_frames"

	names, err := filepath.Glob(filepath.Join(framesDir, "*.jpg"))
	if err != nil || len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	// Sample evenly across the clip rather than taking the first seconds.
	step := 1
	if len(names) > limit {
		step = len(names) / limit
	}
	frames := make([][]byte, 0, limit)
	for i := 0; i < len(names) && len(frames) < limit; i += step {
		data, err := os.ReadFile(names[i])
		if err != nil {
			continue
		}
		frames = append(frames, data)
	}
	return frames
}
