package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/auricle-audio/auricle/internal/config"
	llmmock "github.com/auricle-audio/auricle/pkg/provider/llm/mock"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Mode = config.ModeDev
	cfg.Defaults.OutputDir = t.TempDir()
	cfg.Defaults.CSVExportPath = cfg.Defaults.OutputDir + "/meetings.csv"
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg,
		WithLLM(&llmmock.Provider{ModelList: []string{cfg.Defaults.LLMModelName}}),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNew_DevModeRegistersMockBackend(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var health struct {
		Status      string   `json:"status"`
		STTBackends []string `json:"stt_backends"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q", health.Status)
	}
	for _, want := range []string{"mock", "parakeet", "whisper"} {
		if !slices.Contains(health.STTBackends, want) {
			t.Errorf("stt_backends = %v, missing %q", health.STTBackends, want)
		}
	}
}

func TestNew_ProdModeExcludesMockBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = config.ModeProd
	a := newTestApp(t, cfg)

	names := a.backends.STTNames()
	if slices.Contains(names, "mock") {
		t.Errorf("stt backends = %v, mock must not be registered in prod", names)
	}
	if !slices.Contains(names, "whisper") || !slices.Contains(names, "parakeet") {
		t.Errorf("stt backends = %v, want whisper and parakeet", names)
	}
}

func TestNew_WhisperNativeRequiresModelPath(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)
	if slices.Contains(a.backends.STTNames(), "whisper-native") {
		t.Error("whisper-native registered without a model path")
	}

	cfg.WhisperModelPath = "/models/ggml-base.en.bin"
	a = newTestApp(t, cfg)
	if !slices.Contains(a.backends.STTNames(), "whisper-native") {
		t.Error("whisper-native not registered despite model path")
	}
}

func TestNew_ListenAddr(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = 9123
	a := newTestApp(t, cfg)
	if a.Addr() != "127.0.0.1:9123" {
		t.Errorf("addr = %q", a.Addr())
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = 0 // let the OS pick a free port
	a := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	closed := 0
	a.OnClose(func() error {
		closed++
		return nil
	})

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if closed != 1 {
		t.Errorf("closer ran %d times, want 1", closed)
	}
}
