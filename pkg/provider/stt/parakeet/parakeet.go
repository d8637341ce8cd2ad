// Package parakeet provides an STT backend for a local parakeet-mlx server.
//
// Parakeet TDT models transcribe faster than whisper on Apple Silicon and
// ship with built-in punctuation and capitalization. The model runs in a
// sidecar process exposing a small REST API; this provider submits buffered
// audio as batch WAV uploads to POST /transcribe.
//
// Buffering follows the same discipline as the whisper backends: audio
// accumulates per session until at least MinBufferSeconds are available, a
// window of at most MaxBufferSeconds is transcribed per pass, and Flush
// drains the remainder at session stop.
package parakeet

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
	// modelSampleRate is the input rate parakeet models expect.
	modelSampleRate = 16000

	// DefaultModel is the parakeet model identifier requested when the
	// session config does not name one.
	DefaultModel = "mlx-community/parakeet-tdt-0.6b-v3"

	defaultMinBufferSeconds = 2.0
	defaultMaxBufferSeconds = 10.0
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// ErrSessionClosed is returned by Push and Flush after Close.
var ErrSessionClosed = errors.New("parakeet: session is closed")

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the default model identifier sent with each request.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithHTTPClient overrides the HTTP client used for transcription requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a parakeet-mlx sidecar server.
type Provider struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// New creates a Provider that connects to the parakeet server at serverURL
// (e.g., "http://localhost:8091").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("parakeet: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "parakeet" }

// OpenSession implements stt.Provider.
func (p *Provider) OpenSession(ctx context.Context, cfg stt.SessionConfig) (stt.Transcriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parakeet: context already cancelled: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = p.model
	}
	rate := cfg.CaptureSampleRate
	if rate <= 0 {
		rate = modelSampleRate
	}
	minSec := cfg.MinBufferSeconds
	if minSec <= 0 {
		minSec = defaultMinBufferSeconds
	}
	maxSec := cfg.MaxBufferSeconds
	if maxSec <= 0 {
		maxSec = defaultMaxBufferSeconds
	}
	if maxSec < minSec {
		maxSec = minSec
	}
	return &session{
		provider:    p,
		model:       model,
		captureRate: rate,
		minSamples:  int(minSec * float64(rate)),
		maxSamples:  int(maxSec * float64(rate)),
	}, nil
}

// transcribe uploads one model-rate window as WAV and returns its text.
func (p *Provider) transcribe(model string, samples []float32) (string, error) {
	wav := audio.EncodeWAV16(samples, modelSampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("parakeet: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("parakeet: write wav data: %w", err)
	}
	if err := mw.WriteField("model", model); err != nil {
		return "", fmt.Errorf("parakeet: write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("parakeet: close multipart writer: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, p.serverURL+"/transcribe", &body)
	if err != nil {
		return "", fmt.Errorf("parakeet: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("parakeet: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("parakeet: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parakeet: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parakeet: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// ---- session ----------------------------------------------------------------

// session implements stt.Transcriber. The engine serializes all calls, so no
// internal locking is needed.
type session struct {
	provider    *Provider
	model       string
	captureRate int
	minSamples  int
	maxSamples  int

	buf    []float32
	clockS float64
	closed bool
}

// Push implements stt.Transcriber.
func (s *session) Push(samples []float32) ([]stt.Segment, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.buf = append(s.buf, samples...)

	var segs []stt.Segment
	for len(s.buf) >= s.minSamples {
		window := len(s.buf)
		if window > s.maxSamples {
			window = s.maxSamples
		}
		seg, err := s.transcribeWindow(s.buf[:window])
		s.buf = s.buf[window:]
		s.clockS += float64(window) / float64(s.captureRate)
		if err != nil {
			s.buf = nil
			return segs, err
		}
		if seg != nil {
			segs = append(segs, *seg)
		}
	}
	return segs, nil
}

// Flush implements stt.Transcriber.
func (s *session) Flush() ([]stt.Segment, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if len(s.buf) == 0 {
		return nil, nil
	}
	window := s.buf
	s.buf = nil
	seg, err := s.transcribeWindow(window)
	s.clockS += float64(len(window)) / float64(s.captureRate)
	if err != nil {
		return nil, err
	}
	if seg == nil {
		return nil, nil
	}
	return []stt.Segment{*seg}, nil
}

// BufferedSeconds implements stt.Transcriber.
func (s *session) BufferedSeconds() float64 {
	return float64(len(s.buf)) / float64(s.captureRate)
}

// Close implements stt.Transcriber.
func (s *session) Close() error {
	s.closed = true
	s.buf = nil
	return nil
}

func (s *session) transcribeWindow(window []float32) (*stt.Segment, error) {
	modelSamples := audio.Resample(window, s.captureRate, modelSampleRate)
	text, err := s.provider.transcribe(s.model, modelSamples)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return &stt.Segment{
		Text:   text,
		StartS: s.clockS,
		EndS:   s.clockS + float64(len(window))/float64(s.captureRate),
	}, nil
}
