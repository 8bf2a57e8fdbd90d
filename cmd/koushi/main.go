// Command koushi is the main entry point for the koushi interview server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/mianlab/koushi/internal/app"
	"github.com/mianlab/koushi/internal/config"
	"github.com/mianlab/koushi/internal/resilience"
	"github.com/mianlab/koushi/pkg/llm"
	"github.com/mianlab/koushi/pkg/llm/anyllm"
	"github.com/mianlab/koushi/pkg/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "koushi: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "koushi: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("koushi starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── LLM provider ──────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := buildProvider(cfg, reg)
	if err != nil {
		slog.Error("failed to build LLM provider", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, provider, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := serve(ctx, application); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// shutdownTimeout bounds the closer chain after Run returns.
const shutdownTimeout = 15 * time.Second

// service is the part of [app.App] that serve drives.
type service interface {
	Run(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// serve runs the application and always releases its resources afterwards,
// whether the run ended by signal or by error. A cancellation is a clean
// exit; any other run error is reported alongside whatever shutdown said.
func serve(ctx context.Context, svc service) error {
	runErr := svc.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	slog.Info("stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		if runErr != nil {
			return fmt.Errorf("%w (shutdown: %v)", runErr, err)
		}
		return err
	}
	return runErr
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in LLM factories into reg. The
// openai backend uses the official SDK; every other name goes through the
// any-llm bridge with the same APIKey/BaseURL pattern.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// buildProvider instantiates the configured primary provider, wrapped with the
// fallback backend when one is configured. Returns nil when llm.primary is
// unset — the planner, scorer and evaluator then use deterministic fallbacks.
func buildProvider(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	if cfg.LLM.Primary.Name == "" {
		return nil, nil
	}
	primary, err := reg.CreateLLM(cfg.LLM.Primary)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.LLM.Primary.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.LLM.Primary.Name, "model", cfg.LLM.Primary.Model)

	if cfg.LLM.Fallback.Name == "" {
		return primary, nil
	}
	fb, err := reg.CreateLLM(cfg.LLM.Fallback)
	if err != nil {
		return nil, fmt.Errorf("create llm fallback %q: %w", cfg.LLM.Fallback.Name, err)
	}
	group := resilience.NewLLMFallback(primary, cfg.LLM.Primary.Name, resilience.FallbackConfig{})
	group.AddFallback(cfg.LLM.Fallback.Name, fb)
	slog.Info("provider created", "kind", "llm-fallback", "name", cfg.LLM.Fallback.Name, "model", cfg.LLM.Fallback.Model)
	return group, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          koushi — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("LLM", providerLabel(cfg.LLM.Primary))
	printEntry("LLM fallback", providerLabel(cfg.LLM.Fallback))
	printEntry("ASR", enabledLabel(cfg.ASR.AppID != ""))
	printEntry("Offline ASR", enabledLabel(cfg.ASR.Offline.AppID != ""))
	printEntry("Redis", enabledLabel(cfg.Redis.Addr != ""))
	printEntry("Proctor", enabledLabel(cfg.Proctor.Enabled && cfg.Proctor.DetectorURL != ""))
	printEntry("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(entry config.ProviderEntry) string {
	if entry.Name == "" {
		return "(not configured)"
	}
	if entry.Model == "" {
		return entry.Name
	}
	return entry.Name + " / " + entry.Model
}

func enabledLabel(on bool) string {
	if on {
		return "enabled"
	}
	return "(disabled)"
}

func printEntry(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
