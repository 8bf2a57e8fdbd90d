// Package app wires all koushi subsystems into a running interview server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject in-memory implementations via functional options
// (WithStore, WithQueue, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/mianlab/koushi/internal/config"
	"github.com/mianlab/koushi/internal/evaluator"
	"github.com/mianlab/koushi/internal/health"
	"github.com/mianlab/koushi/internal/httpapi"
	"github.com/mianlab/koushi/internal/media"
	"github.com/mianlab/koushi/internal/observe"
	"github.com/mianlab/koushi/internal/orchestrator"
	"github.com/mianlab/koushi/internal/planner"
	"github.com/mianlab/koushi/internal/problems"
	"github.com/mianlab/koushi/internal/proctor"
	"github.com/mianlab/koushi/internal/proctor/httpdetect"
	"github.com/mianlab/koushi/internal/resilience"
	"github.com/mianlab/koushi/internal/scorer"
	"github.com/mianlab/koushi/internal/server"
	"github.com/mianlab/koushi/internal/session"
	"github.com/mianlab/koushi/internal/store"
	"github.com/mianlab/koushi/internal/store/postgres"
	"github.com/mianlab/koushi/pkg/asr"
	asroffline "github.com/mianlab/koushi/pkg/asr/offline"
	"github.com/mianlab/koushi/pkg/asr/xfyun"
	"github.com/mianlab/koushi/pkg/llm"
)

// httpShutdownTimeout bounds the graceful drain of in-flight HTTP requests
// when Run's context is cancelled.
const httpShutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes and serves the interview platform.
type App struct {
	cfg      *config.Config
	provider llm.Provider
	log      *slog.Logger

	// Subsystems — initialised in New, torn down in Shutdown.
	store       store.Store
	queue       scorer.Queue
	rdb         *redis.Client
	asrClient   asr.Client
	transcriber scorer.Transcriber
	inspector   orchestrator.FrameInspector
	registry    *session.Registry
	metrics     *observe.Metrics
	pool        *scorer.Pool
	ws          *server.Server
	httpSrv     *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of connecting to PostgreSQL.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithQueue injects a scoring queue instead of connecting to Redis.
func WithQueue(q scorer.Queue) Option {
	return func(a *App) { a.queue = q }
}

// WithASRClient injects a transcription client instead of the configured vendor.
func WithASRClient(c asr.Client) Option {
	return func(a *App) { a.asrClient = c }
}

// WithFrameInspector injects a proctoring inspector instead of the HTTP detector.
func WithFrameInspector(fi orchestrator.FrameInspector) Option {
	return func(a *App) { a.inspector = fi }
}

// WithLogger sets the application logger. Default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together: telemetry, the
// relational store, the scoring queue and worker pool, transcription,
// proctoring, the websocket session server, and the REST surface. The LLM
// provider comes from main.go (populated via the config registry) and may be
// nil; planning, scoring and report comments then use their deterministic
// fallbacks.
func New(ctx context.Context, cfg *config.Config, provider llm.Provider, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		provider: provider,
		registry: session.NewRegistry(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initObservability(ctx); err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}

	// ── 2. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 3. Scoring queue ─────────────────────────────────────────────────
	if err := a.initQueue(ctx); err != nil {
		return nil, fmt.Errorf("app: init queue: %w", err)
	}

	// ── 4. Transcription ─────────────────────────────────────────────────
	if err := a.initASR(); err != nil {
		return nil, fmt.Errorf("app: init asr: %w", err)
	}

	// ── 5. Proctoring ────────────────────────────────────────────────────
	a.initProctor()

	// ── 6. Problem bank ──────────────────────────────────────────────────
	if err := a.seedProblems(ctx); err != nil {
		return nil, fmt.Errorf("app: seed problems: %w", err)
	}

	// ── 7. Sessions, scoring pool, HTTP surface ──────────────────────────
	a.initServers()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initObservability sets up the OTel providers and metric instruments.
func (a *App) initObservability(ctx context.Context) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "koushi",
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initStore connects the PostgreSQL store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	st, err := postgres.NewStore(ctx, a.cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, func(context.Context) error {
		st.Close()
		return nil
	})
	a.log.Info("connected to postgres")
	return nil
}

// initQueue connects the Redis scoring queue, falling back to an in-process
// queue when no Redis address is configured.
func (a *App) initQueue(ctx context.Context) error {
	if a.queue != nil {
		return nil
	}
	if a.cfg.Redis.Addr == "" {
		a.log.Warn("redis.addr is empty; scoring jobs will not survive restarts")
		a.queue = scorer.NewMemQueue()
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("ping redis %q: %w", a.cfg.Redis.Addr, err)
	}
	a.rdb = rdb
	a.queue = scorer.NewRedisQueueWithKey(rdb, a.cfg.Redis.QueueKey)
	a.closers = append(a.closers, func(context.Context) error {
		return rdb.Close()
	})
	a.log.Info("connected to redis", "addr", a.cfg.Redis.Addr)
	return nil
}

// initASR builds the live transcription client and the offline transcriber.
// An empty app_id leaves both nil: sessions then run in degraded mode and the
// scorer grades the buffered transcript as-is.
func (a *App) initASR() error {
	if a.asrClient == nil && a.cfg.ASR.AppID != "" {
		var opts []xfyun.Option
		if a.cfg.ASR.BaseURL != "" {
			opts = append(opts, xfyun.WithEndpoint(a.cfg.ASR.BaseURL))
		}
		client, err := xfyun.New(a.cfg.ASR.AppID, a.cfg.ASR.APIKey, opts...)
		if err != nil {
			return err
		}
		// A single vendor still benefits from the circuit breaker: after
		// repeated connect failures new sessions degrade immediately instead
		// of burning their full retry budget against a dead endpoint.
		a.asrClient = resilience.NewASRFallback(client, "xfyun", resilience.FallbackConfig{})
	}

	if off := a.cfg.ASR.Offline; off.AppID != "" {
		t, err := asroffline.New(off.AppID, off.Secret, off.BaseURL)
		if err != nil {
			return err
		}
		a.transcriber = t
	}
	return nil
}

// initProctor builds the keyframe inspector when proctoring is enabled.
func (a *App) initProctor() {
	if a.inspector != nil || !a.cfg.Proctor.Enabled || a.cfg.Proctor.DetectorURL == "" {
		return
	}
	url := a.cfg.Proctor.DetectorURL
	a.inspector = proctor.New(func() (proctor.Detector, error) {
		return httpdetect.New(url)
	}, a.cfg.Proctor.MinConfidence)
}

// seedProblems loads the YAML problem bank into the store.
func (a *App) seedProblems(ctx context.Context) error {
	if a.cfg.Interview.ProblemBank == "" {
		return nil
	}
	n, err := problems.Seed(ctx, a.store, a.cfg.Interview.ProblemBank)
	if err != nil {
		return err
	}
	a.log.Info("seeded coding problems", "path", a.cfg.Interview.ProblemBank, "count", n)
	return nil
}

// initServers assembles the scoring pool, the websocket session server and
// the HTTP surface. Everything here is pure construction; listening starts
// in Run.
func (a *App) initServers() {
	questions := planner.NewQuestionPlanner(a.provider,
		planner.WithDeadline(a.cfg.Interview.PlannerDeadline.Std()),
		planner.WithMetrics(a.metrics))
	coding := planner.NewCodingPlanner(a.store)

	muxer := media.NewMuxer(a.cfg.Media.Root, &media.FFmpegEncoder{
		Path:    a.cfg.Media.FFmpegPath,
		Timeout: a.cfg.Media.MuxTimeout.Std(),
	})

	poolOpts := []scorer.Option{
		scorer.WithWorkers(a.cfg.Redis.Workers),
		scorer.WithMetrics(a.metrics),
		scorer.WithLogger(a.log),
	}
	if a.transcriber != nil {
		poolOpts = append(poolOpts, scorer.WithTranscriber(a.transcriber))
	}
	a.pool = scorer.NewPool(a.store, a.provider, a.queue, a.registry, poolOpts...)

	a.ws = server.New(orchestrator.Deps{
		Store:     a.store,
		Questions: questions,
		Coding:    coding,
		Queue:     a.queue,
		Muxer:     muxer,
		Proctor:   a.inspector,
		ASR:       a.asrClient,
		Registry:  a.registry,
		Metrics:   a.metrics,
		Log:       a.log,
	}, orchestrator.Config{
		SilencePolicy:     a.cfg.Interview.Silence.Policy,
		SilenceTimeout:    a.cfg.Interview.Silence.Timeout.Std(),
		CodingProblems:    a.cfg.Interview.CodingProblems,
		ASRConnectRetries: a.cfg.ASR.ConnectRetries,
		ASRRetryInterval:  a.cfg.ASR.RetryInterval.Std(),
	})

	ev := evaluator.New(a.store, a.provider, a.log)
	api := httpapi.New(a.store, ev, a.log)
	h := health.New(a.healthCheckers()...)

	router := api.Router(a.ws, a.cfg.Auth.Tokens, a.metrics, map[string]http.Handler{
		"GET /healthz": http.HandlerFunc(h.Healthz),
		"GET /readyz":  http.HandlerFunc(h.Readyz),
		"GET /metrics": promhttp.Handler(),
	})

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// healthCheckers lists the readiness probes for the wired backends.
func (a *App) healthCheckers() []health.Checker {
	var checkers []health.Checker
	if pinger, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{Name: "postgres", Check: pinger.Ping})
	}
	if a.rdb != nil {
		checkers = append(checkers, health.Checker{
			Name:  "redis",
			Check: func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() },
		})
	}
	return checkers
}

// Handler exposes the assembled HTTP surface. Test helper.
func (a *App) Handler() http.Handler { return a.httpSrv.Handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and consumes the scoring queue until ctx is cancelled.
// On a clean shutdown it returns ctx's error (context.Canceled).
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.pool.Run(ctx)
	})

	g.Go(func() error {
		a.log.Info("listening", "addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.httpSrv.Shutdown(drainCtx); err != nil {
			a.log.Warn("http drain error", "error", err)
		}
		return ctx.Err()
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](ctx); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
