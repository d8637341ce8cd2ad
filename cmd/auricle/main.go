// Command auricle runs the localhost meeting-audio engine: it accepts PCM
// pushed by a capture client over a loopback HTTP API, transcribes it through
// a local STT backend, and writes the summary, extracted data, and CSV row
// when the session stops.
//
// Exit codes: 0 on clean shutdown, 2 on configuration errors, 1 on anything
// unexpected.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auricle-audio/auricle/internal/api"
	"github.com/auricle-audio/auricle/internal/app"
	"github.com/auricle-audio/auricle/internal/config"
	"github.com/auricle-audio/auricle/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "auricle: %v\n", err)
		return 2
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel.Slog(),
	}))
	slog.SetDefault(logger)

	slog.Info("auricle starting",
		"version", api.EngineVersion,
		"addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		"mode", string(cfg.Mode),
		"log_level", string(cfg.LogLevel),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "auricle",
		ServiceVersion: api.EngineVersion,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	engine, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise engine", "err", err)
		return 1
	}
	engine.OnClose(func() error {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownOTel(flushCtx)
	})

	slog.Info("engine ready — press Ctrl+C to shut down")

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
