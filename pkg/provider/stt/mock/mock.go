// Package mock provides test doubles and a deterministic dev backend for the
// stt package interfaces.
//
// [Provider] and [Transcriber] are scripted doubles for unit tests: queue the
// segments each call should return, then inspect the recorded calls. [Echo]
// is the development-mode backend: it behaves like a real buffering
// transcriber but "recognizes" audio by cycling through canned sentences, so
// the whole pipeline can run without any model installed. Production mode
// must never construct either.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/auricle-audio/auricle/pkg/provider/stt"
)

// ---- scripted test double ---------------------------------------------------

// OpenSessionCall records a single invocation of Provider.OpenSession.
type OpenSessionCall struct {
	// Ctx is the context passed to OpenSession.
	Ctx context.Context
	// Cfg is the SessionConfig passed to OpenSession.
	Cfg stt.SessionConfig
}

// Provider is a scripted implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Transcriber is returned by OpenSession. If nil, a new empty
	// [Transcriber] is returned.
	Transcriber stt.Transcriber

	// OpenSessionErr, if non-nil, is returned as the error from OpenSession.
	OpenSessionErr error

	// OpenSessionCalls records every call to OpenSession.
	OpenSessionCalls []OpenSessionCall
}

// Name implements stt.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// OpenSession records the call and returns Transcriber, OpenSessionErr.
func (p *Provider) OpenSession(ctx context.Context, cfg stt.SessionConfig) (stt.Transcriber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenSessionCalls = append(p.OpenSessionCalls, OpenSessionCall{Ctx: ctx, Cfg: cfg})
	if p.OpenSessionErr != nil {
		return nil, p.OpenSessionErr
	}
	if p.Transcriber != nil {
		return p.Transcriber, nil
	}
	return &Transcriber{}, nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// PushCall records a single invocation of Transcriber.Push.
type PushCall struct {
	// Samples is a copy of the audio passed to Push.
	Samples []float32
}

// Transcriber is a scripted implementation of stt.Transcriber. Queue results
// in PushResults/FlushResult before exercising the code under test.
type Transcriber struct {
	mu sync.Mutex

	// PushResults holds the segment batches returned by successive Push
	// calls, consumed front to back. Once exhausted, Push returns nil.
	PushResults [][]stt.Segment

	// PushErr, if non-nil, is returned by every Push call.
	PushErr error

	// FlushResult is returned by Flush.
	FlushResult []stt.Segment

	// FlushErr, if non-nil, is returned by Flush.
	FlushErr error

	// Buffered is returned by BufferedSeconds.
	Buffered float64

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// PushCalls records every Push call in order.
	PushCalls []PushCall

	// FlushCallCount is the number of Flush calls.
	FlushCallCount int

	// CloseCallCount is the number of Close calls.
	CloseCallCount int
}

// Push records the call and returns the next queued result.
func (tr *Transcriber) Push(samples []float32) ([]stt.Segment, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	tr.PushCalls = append(tr.PushCalls, PushCall{Samples: cp})
	if tr.PushErr != nil {
		return nil, tr.PushErr
	}
	if len(tr.PushResults) == 0 {
		return nil, nil
	}
	segs := tr.PushResults[0]
	tr.PushResults = tr.PushResults[1:]
	return segs, nil
}

// Flush records the call and returns FlushResult, FlushErr.
func (tr *Transcriber) Flush() ([]stt.Segment, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.FlushCallCount++
	if tr.FlushErr != nil {
		return nil, tr.FlushErr
	}
	return tr.FlushResult, nil
}

// BufferedSeconds returns Buffered.
func (tr *Transcriber) BufferedSeconds() float64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.Buffered
}

// Close records the call and returns CloseErr.
func (tr *Transcriber) Close() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.CloseCallCount++
	return tr.CloseErr
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)

// ---- deterministic dev backend ----------------------------------------------

// cannedSentences is the rotation the Echo backend emits, one per inference
// window. The content is arbitrary meeting chatter; determinism is the point.
var cannedSentences = []string{
	"Thanks everyone for joining today's call.",
	"Let me share a quick update on the pipeline.",
	"Our assets under management grew last quarter.",
	"The client asked about the managed futures strategy.",
	"We discussed ticket sizes in the two to five million range.",
	"I will follow up with the decision maker next week.",
	"They are currently evaluating a competitor's product.",
	"The carry strategy seemed to resonate most.",
	"Let's schedule a deeper technical session.",
	"Any other questions before we wrap up?",
}

// Echo is the development-mode STT backend. It buffers audio with the same
// min/max discipline as the real backends but produces canned text instead
// of running a model.
type Echo struct{}

// NewEcho returns the dev echo backend.
func NewEcho() *Echo { return &Echo{} }

// Name implements stt.Provider.
func (e *Echo) Name() string { return "mock" }

// OpenSession implements stt.Provider.
func (e *Echo) OpenSession(ctx context.Context, cfg stt.SessionConfig) (stt.Transcriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("mock: context already cancelled: %w", err)
	}
	rate := cfg.CaptureSampleRate
	if rate <= 0 {
		rate = 16000
	}
	minSec := cfg.MinBufferSeconds
	if minSec <= 0 {
		minSec = 2.0
	}
	maxSec := cfg.MaxBufferSeconds
	if maxSec <= 0 {
		maxSec = 10.0
	}
	if maxSec < minSec {
		maxSec = minSec
	}
	return &echoSession{
		captureRate: rate,
		minSamples:  int(minSec * float64(rate)),
		maxSamples:  int(maxSec * float64(rate)),
	}, nil
}

// Ensure Echo implements stt.Provider at compile time.
var _ stt.Provider = (*Echo)(nil)

type echoSession struct {
	captureRate int
	minSamples  int
	maxSamples  int

	buffered int
	clockS   float64
	next     int
	closed   bool
}

func (s *echoSession) Push(samples []float32) ([]stt.Segment, error) {
	if s.closed {
		return nil, fmt.Errorf("mock: session is closed")
	}
	s.buffered += len(samples)

	var segs []stt.Segment
	for s.buffered >= s.minSamples {
		window := s.buffered
		if window > s.maxSamples {
			window = s.maxSamples
		}
		segs = append(segs, s.emit(window))
	}
	return segs, nil
}

func (s *echoSession) Flush() ([]stt.Segment, error) {
	if s.closed {
		return nil, fmt.Errorf("mock: session is closed")
	}
	if s.buffered == 0 {
		return nil, nil
	}
	return []stt.Segment{s.emit(s.buffered)}, nil
}

func (s *echoSession) BufferedSeconds() float64 {
	return float64(s.buffered) / float64(s.captureRate)
}

func (s *echoSession) Close() error {
	s.closed = true
	s.buffered = 0
	return nil
}

// emit consumes window samples and produces the next canned segment.
func (s *echoSession) emit(window int) stt.Segment {
	text := cannedSentences[s.next%len(cannedSentences)]
	s.next++
	start := s.clockS
	s.clockS += float64(window) / float64(s.captureRate)
	s.buffered -= window
	return stt.Segment{Text: text, StartS: start, EndS: s.clockS}
}
