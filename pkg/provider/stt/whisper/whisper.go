// Package whisper provides STT backends built on whisper.cpp.
//
// Two variants are available:
//
//   - [Provider] talks to a running whisper-server binary over its REST API
//     (POST /inference). Audio is buffered per session and submitted as batch
//     WAV uploads.
//   - [NativeProvider] uses the whisper.cpp CGO bindings directly, loading
//     the model once at startup and sharing it across sessions. The
//     whisper.cpp static library and headers must be available at link time.
//
// Both simulate streaming over a batch engine: incoming capture-rate audio
// accumulates in a rolling buffer and an inference pass runs once at least
// MinBufferSeconds have arrived (forced at MaxBufferSeconds), emitting one
// segment per pass. Flush transcribes the remainder on session stop.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8090", whisper.WithLanguage("en"))
//	tr, err := p.OpenSession(ctx, stt.SessionConfig{CaptureSampleRate: 48000})
//	segs, err := tr.Push(samples)
//	rest, err := tr.Flush()
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/auricle-audio/auricle/pkg/audio"
	"github.com/auricle-audio/auricle/pkg/provider/stt"
)

const (
	// modelSampleRate is the native input rate of whisper models.
	modelSampleRate = 16000

	defaultLanguage         = "en"
	defaultMinBufferSeconds = 2.0
	defaultMaxBufferSeconds = 10.0
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// ErrSessionClosed is returned by Push and Flush after Close.
var ErrSessionClosed = errors.New("whisper: session is closed")

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base.en", "turbo"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code sent with each inference
// request. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithHTTPClient overrides the HTTP client used for inference requests.
// Useful for tests and for tuning timeouts.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a whisper-server HTTP endpoint.
// Multiple sessions may be open simultaneously; each maintains its own
// audio buffer.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8090"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "whisper" }

// OpenSession implements stt.Provider. No network connection is established
// until the first inference pass, so the only startup failure is a cancelled
// context.
func (p *Provider) OpenSession(ctx context.Context, cfg stt.SessionConfig) (stt.Transcriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = p.model
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	return &session{
		infer:   p.inferFunc(model, lang),
		adapter: newBatchAdapter(cfg),
	}, nil
}

// inferFunc binds a session's model and language into a single inference
// callback over the shared HTTP client.
func (p *Provider) inferFunc(model, language string) inferFn {
	return func(samples []float32) (string, error) {
		wav := audio.EncodeWAV16(samples, modelSampleRate)

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)

		fw, err := mw.CreateFormFile("file", "audio.wav")
		if err != nil {
			return "", fmt.Errorf("whisper: create form file: %w", err)
		}
		if _, err := fw.Write(wav); err != nil {
			return "", fmt.Errorf("whisper: write wav data: %w", err)
		}
		if language != "" {
			if err := mw.WriteField("language", language); err != nil {
				return "", fmt.Errorf("whisper: write language field: %w", err)
			}
		}
		if model != "" {
			if err := mw.WriteField("model", model); err != nil {
				return "", fmt.Errorf("whisper: write model field: %w", err)
			}
		}
		if err := mw.Close(); err != nil {
			return "", fmt.Errorf("whisper: close multipart writer: %w", err)
		}

		req, err := http.NewRequest(http.MethodPost, p.serverURL+"/inference", &body)
		if err != nil {
			return "", fmt.Errorf("whisper: create request: %w", err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("whisper: http request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("whisper: read response body: %w", err)
		}

		var result struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return "", fmt.Errorf("whisper: parse JSON response: %w", err)
		}
		return strings.TrimSpace(result.Text), nil
	}
}

// ---- session ----------------------------------------------------------------

// inferFn runs one batch inference over model-rate mono samples.
type inferFn func(samples []float32) (string, error)

// session implements stt.Transcriber over a batch inference callback. All
// state is confined to the owning goroutine; the engine serializes calls.
type session struct {
	infer   inferFn
	adapter *batchAdapter
	closed  bool
}

// Push implements stt.Transcriber.
func (s *session) Push(samples []float32) ([]stt.Segment, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.adapter.push(samples, s.infer)
}

// Flush implements stt.Transcriber.
func (s *session) Flush() ([]stt.Segment, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.adapter.flush(s.infer)
}

// BufferedSeconds implements stt.Transcriber.
func (s *session) BufferedSeconds() float64 {
	return s.adapter.bufferedSeconds()
}

// Close implements stt.Transcriber. Buffered audio is discarded; callers
// that need it must Flush first.
func (s *session) Close() error {
	s.closed = true
	s.adapter.reset()
	return nil
}
