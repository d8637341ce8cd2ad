// Package app wires the engine's subsystems together and owns their
// lifecycle: backend registry, guarded LLM provider, summarization pipeline,
// session registry, and the HTTP server. main() stays a thin shell around
// [New], [App.Run], and [App.Shutdown].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/auricle-audio/auricle/internal/api"
	"github.com/auricle-audio/auricle/internal/config"
	"github.com/auricle-audio/auricle/internal/observe"
	"github.com/auricle-audio/auricle/internal/output"
	"github.com/auricle-audio/auricle/internal/resilience"
	"github.com/auricle-audio/auricle/internal/session"
	"github.com/auricle-audio/auricle/internal/summarize"
	"github.com/auricle-audio/auricle/pkg/provider/llm"
	"github.com/auricle-audio/auricle/pkg/provider/llm/anyllm"
	"github.com/auricle-audio/auricle/pkg/provider/llm/ollama"
	"github.com/auricle-audio/auricle/pkg/provider/stt"
	"github.com/auricle-audio/auricle/pkg/provider/stt/mock"
	"github.com/auricle-audio/auricle/pkg/provider/stt/parakeet"
	"github.com/auricle-audio/auricle/pkg/provider/stt/whisper"
)

// shutdownGrace bounds how long Shutdown waits for in-flight HTTP handlers
// and session aborts before giving up.
const shutdownGrace = 10 * time.Second

// Option customises App construction. Used mainly by tests to inject doubles
// for subsystems that otherwise talk to local sidecar processes.
type Option func(*App)

// WithLogger overrides the process-default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithMetrics overrides the default metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLLM injects the default LLM provider, bypassing the Ollama client and
// its circuit breaker. Per-session model overrides then reuse this provider.
func WithLLM(p llm.Provider) Option {
	return func(a *App) { a.llm = p }
}

// WithBackends injects a pre-populated STT backend registry.
func WithBackends(r *config.Registry) Option {
	return func(a *App) { a.backends = r }
}

// App is the assembled engine. Construct with [New], serve with [Run], and
// tear down with [Shutdown].
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *observe.Metrics
	backends *config.Registry
	registry *session.Registry
	llm      llm.Provider
	server   *http.Server

	closers  []func() error
	stopOnce sync.Once
	stopErr  error
}

// New assembles the engine from cfg. The context bounds startup work such as
// the background default-model check; it does not control the server's
// lifetime.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. STT backend registry ──
	if a.backends == nil {
		a.backends = defaultBackends(cfg)
	}

	// ── 2. LLM provider behind a circuit breaker ──
	var llmForModel func(model string) (llm.Provider, error)
	if a.llm == nil {
		breaker := resilience.NewBreaker(resilience.BreakerConfig{
			Name:   "llm",
			Logger: a.logger,
		})
		a.backends.RegisterLLM("ollama", func(model string) (llm.Provider, error) {
			p, err := ollama.New(cfg.OllamaBaseURL, model)
			if err != nil {
				return nil, err
			}
			return resilience.GuardLLM(p, breaker), nil
		})
		// OpenAI-compatible local servers, for users running llama.cpp or a
		// llamafile instead of Ollama. These lack schema-constrained decoding;
		// extraction falls back to prompt-level JSON instructions.
		for _, name := range []string{"llamacpp", "llamafile"} {
			a.backends.RegisterLLM(name, func(model string) (llm.Provider, error) {
				p, err := anyllm.New(name, model)
				if err != nil {
					return nil, err
				}
				return resilience.GuardLLM(p, breaker), nil
			})
		}
		def, err := a.backends.CreateLLM(cfg.LLMBackend, cfg.Defaults.LLMModelName)
		if err != nil {
			return nil, fmt.Errorf("app: default llm provider: %w", err)
		}
		a.llm = def
		llmForModel = func(model string) (llm.Provider, error) {
			return a.backends.CreateLLM(cfg.LLMBackend, model)
		}
		if cfg.Mode == config.ModeProd && cfg.LLMBackend == "ollama" {
			raw, err := ollama.New(cfg.OllamaBaseURL, cfg.Defaults.LLMModelName)
			if err != nil {
				return nil, fmt.Errorf("app: ollama client: %w", err)
			}
			go a.checkDefaultModel(ctx, raw)
		}
	}

	// ── 3. Summarization pipeline ──
	summarizer := summarize.NewMapReduce(a.llm,
		summarize.WithMaxConcurrentCalls(cfg.MaxConcurrentLLMCalls),
		summarize.WithLogger(a.logger),
	)

	// ── 4. Artifact writer and session registry ──
	writer := output.NewWriter(a.logger)
	a.registry = session.NewRegistry(
		session.WithMaxActive(cfg.MaxActiveSessions),
		session.WithRegistryLogger(a.logger),
	)

	// ── 5. HTTP server ──
	srv := api.NewServer(api.Deps{
		Config:      cfg,
		Registry:    a.registry,
		Backends:    a.backends,
		LLM:         a.llm,
		LLMForModel: llmForModel,
		Summarizer:  summarizer,
		Writer:      writer,
		Logger:      a.logger,
		Metrics:     a.metrics,
	})
	a.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// defaultBackends registers the STT factories for the configured endpoints.
// The deterministic mock backend is registered in dev mode only; production
// requests for "mock" fail with provider-not-registered.
func defaultBackends(cfg config.Config) *config.Registry {
	r := config.NewRegistry()
	r.RegisterSTT("whisper", func() (stt.Provider, error) {
		return whisper.New(cfg.WhisperServerURL)
	})
	r.RegisterSTT("parakeet", func() (stt.Provider, error) {
		return parakeet.New(cfg.ParakeetServerURL)
	})
	if cfg.WhisperModelPath != "" {
		r.RegisterSTT("whisper-native", func() (stt.Provider, error) {
			return whisper.NewNative(cfg.WhisperModelPath)
		})
	}
	if cfg.Mode == config.ModeDev {
		r.RegisterSTT("mock", func() (stt.Provider, error) {
			return mock.NewEcho(), nil
		})
	}
	return r
}

// checkDefaultModel pulls the default model if the local runtime is missing
// it. Failure is logged, not fatal; /start_session re-checks per session and
// answers LLM_UNAVAILABLE with a pull hint.
func (a *App) checkDefaultModel(ctx context.Context, client *ollama.Provider) {
	if err := client.EnsureModel(ctx); err != nil {
		a.logger.Warn("default model not available",
			"model", a.cfg.Defaults.LLMModelName, "error", err)
		return
	}
	a.logger.Info("default model ready", "model", a.cfg.Defaults.LLMModelName)
}

// Handler exposes the assembled HTTP handler, primarily for tests that serve
// it from httptest instead of a real listener.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Addr is the configured listen address.
func (a *App) Addr() string { return a.server.Addr }

// OnClose registers fn to run during Shutdown, after the HTTP server and
// session registry have stopped. Closers run in reverse registration order.
func (a *App) OnClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Run serves HTTP until the listener fails or ctx is cancelled, then shuts
// down gracefully. It blocks for the lifetime of the engine.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.ListenAndServe() }()
	a.logger.Info("engine listening",
		"addr", a.server.Addr, "mode", string(a.cfg.Mode))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return a.Shutdown(context.Background())
	case <-ctx.Done():
		return a.Shutdown(context.Background())
	}
}

// Shutdown stops the engine: the HTTP server drains in-flight handlers,
// remaining live sessions are aborted so their partial artifacts are written,
// and registered closers run in reverse order. Safe to call more than once;
// later calls return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
		defer cancel()

		var errs []error
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		a.registry.Abort(ctx)
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		a.stopErr = errors.Join(errs...)
		a.logger.Info("engine stopped")
	})
	return a.stopErr
}
