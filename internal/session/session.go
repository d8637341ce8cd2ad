// Package session owns one recording lifecycle end to end: audio decode, STT
// push, transcript buffering, background MAP summarization, and the stop
// sequence that produces the final summary, structured data, and persisted
// artifacts.
//
// A [Session] moves through starting → active → stopping → one of the
// terminal states (completed, insufficient_content, failed). The [Registry]
// maps session ids to live sessions, enforces the single-active policy, and
// remembers recently stopped sessions so a repeated stop stays idempotent.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/auricle-audio/auricle/internal/fault"
	"github.com/auricle-audio/auricle/internal/observe"
	"github.com/auricle-audio/auricle/internal/output"
	"github.com/auricle-audio/auricle/internal/summarize"
	"github.com/auricle-audio/auricle/internal/transcript"
	"github.com/auricle-audio/auricle/pkg/audio"
	"github.com/auricle-audio/auricle/pkg/provider/stt"
)

// Status is a session lifecycle state.
type Status string

const (
	StatusStarting            Status = "starting"
	StatusActive              Status = "active"
	StatusStopping            Status = "stopping"
	StatusCompleted           Status = "completed"
	StatusInsufficientContent Status = "insufficient_content"
	StatusFailed              Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusInsufficientContent, StatusFailed:
		return true
	}
	return false
}

const (
	// DefaultMaxQueueDepth is the backpressure threshold: pending segments
	// plus unmapped chunks beyond this count turn pushes into 429s.
	DefaultMaxQueueDepth = 64

	// DefaultPushSoftDeadline bounds decode plus STT work per push. The
	// push keeps running past the deadline; only the HTTP response gives up.
	DefaultPushSoftDeadline = 5 * time.Second

	// DefaultStopDrainTimeout bounds how long a stop waits for the MAP
	// worker to finish the queued chunks.
	DefaultStopDrainTimeout = 120 * time.Second
)

// Config is the immutable per-session configuration fixed at start time.
type Config struct {
	SessionID string

	// STTBackend and STTModel identify the transcription backend, for logs
	// and metrics; the Transcriber itself is injected via Activate.
	STTBackend string
	STTModel   string

	// CaptureSampleRate is the sample rate every audio chunk must carry.
	CaptureSampleRate int

	// LLMModel is the summarization model identifier, for logs.
	LLMModel string

	ChunkDurationSeconds float64
	MaxQueueDepth        int
	PushSoftDeadline     time.Duration
	StopDrainTimeout     time.Duration

	// Vocabulary seeds the phonetic corrector applied to STT output.
	Vocabulary []string

	// FillerPhrases overrides the low-content guard's filler set. Empty means
	// the built-in whisper hallucination phrases.
	FillerPhrases []string

	// Artifact destinations.
	OutputDir    string
	CSVPath      string
	AppendCSV    bool
	FolderNaming bool
}

func (c *Config) applyDefaults() {
	if c.ChunkDurationSeconds <= 0 {
		c.ChunkDurationSeconds = transcript.DefaultChunkDurationSeconds
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.PushSoftDeadline <= 0 {
		c.PushSoftDeadline = DefaultPushSoftDeadline
	}
	if c.StopDrainTimeout <= 0 {
		c.StopDrainTimeout = DefaultStopDrainTimeout
	}
}

// Deps are the shared collaborators injected into every session.
type Deps struct {
	Summarizer *summarize.MapReduce
	Writer     *output.Writer
	Logger     *slog.Logger
	Metrics    *observe.Metrics
}

// PushResult reports ingest progress back to the capture client.
type PushResult struct {
	// BufferedSeconds is unprocessed audio inside the STT backend.
	BufferedSeconds float64

	// QueueDepth is pending transcript segments plus chunks awaiting MAP.
	QueueDepth int
}

// StopResult is the terminal outcome of a session. Cached after the first
// stop so repeated stops return identical paths.
type StopResult struct {
	AlreadyStopped bool
	SummaryPath    string
	DataPath       string
	CSVPath        string
	Status         Status
}

// Session owns one recording. All exported methods are safe for concurrent
// use; STT access is serialized by an internal mutex.
type Session struct {
	cfg  Config
	deps Deps

	// ctx is cancelled on abort or drain timeout to unblock LLM calls.
	ctx    context.Context
	cancel context.CancelFunc

	buffer *transcript.Buffer
	vocab  *transcript.Vocab
	guard  *transcript.Guard

	sttMu       sync.Mutex
	transcriber stt.Transcriber

	chunkCh    chan *transcript.Chunk
	closeOnce  sync.Once
	workerDone chan struct{}

	// lifecycle lets the stop path wait for in-flight pushes before it
	// closes chunkCh. Pushes hold the read side for their full duration.
	lifecycle sync.RWMutex

	mu                sync.Mutex
	status            Status
	totalAudioSeconds float64
	pushesAccepted    int
	summaries         []string
	mapped            int
	result            *StopResult

	stopMu sync.Mutex
}

// New creates a session in the starting state. Audio is rejected with
// SESSION_NOT_READY until Activate attaches the transcriber.
func New(cfg Config, deps Deps) *Session {
	cfg.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	deps.Logger = deps.Logger.With(
		"session_id", cfg.SessionID,
		"stt_backend", cfg.STTBackend,
		"llm_model", cfg.LLMModel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:        cfg,
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		buffer:     transcript.NewBuffer(cfg.ChunkDurationSeconds),
		vocab:      transcript.NewVocab(cfg.Vocabulary),
		guard:      transcript.NewGuard(cfg.FillerPhrases),
		chunkCh:    make(chan *transcript.Chunk, 2*cfg.MaxQueueDepth),
		workerDone: make(chan struct{}),
		status:     StatusStarting,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.cfg.SessionID }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// TotalAudioSeconds returns the capture-rate duration of all accepted audio.
func (s *Session) TotalAudioSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalAudioSeconds
}

// Activate attaches the opened transcriber, starts the MAP worker, and moves
// the session to active.
func (s *Session) Activate(tr stt.Transcriber) {
	s.sttMu.Lock()
	s.transcriber = tr
	s.sttMu.Unlock()

	s.mu.Lock()
	s.status = StatusActive
	s.mu.Unlock()

	s.deps.Metrics.ActiveSessions.Add(s.ctx, 1)
	go s.mapWorker()
	s.deps.Logger.Info("session active", "stt_model", s.cfg.STTModel)
}

// PushChunk decodes one base64 PCM payload, feeds it to the STT backend, and
// folds emitted segments into the transcript buffer, scheduling MAP work for
// any chunk that seals. The session stays active even when the push fails.
func (s *Session) PushChunk(ctx context.Context, pcmB64 string, sampleRate int) (PushResult, error) {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()

	s.mu.Lock()
	status := s.status
	s.mu.Unlock()
	switch status {
	case StatusActive:
	case StatusStarting:
		return PushResult{}, fault.New(fault.CodeSessionNotReady, "session is still starting").
			WithHint("wait for /start_session to return before sending audio")
	default:
		return PushResult{}, fault.Newf(fault.CodeSessionNotReady, "session is %s", status)
	}

	if sampleRate != s.cfg.CaptureSampleRate {
		return PushResult{}, fault.Newf(fault.CodeInvalidAudioFormat,
			"sample rate %d does not match session rate %d", sampleRate, s.cfg.CaptureSampleRate)
	}
	samples, duration, err := audio.DecodeBase64PCM(pcmB64, sampleRate)
	if err != nil {
		s.deps.Metrics.RecordEngineError(ctx, string(fault.CodeInvalidAudioFormat))
		return PushResult{}, fault.Wrap(fault.CodeInvalidAudioFormat, "decode audio chunk", err)
	}

	pushCtx, cancel := context.WithTimeout(ctx, s.cfg.PushSoftDeadline)
	defer cancel()
	segs, buffered, err := s.pushSTT(pushCtx, samples)
	if err != nil {
		s.deps.Metrics.RecordEngineError(ctx, string(fault.CodeSTTFailure))
		return PushResult{}, fault.Wrap(fault.CodeSTTFailure, "speech-to-text push failed", err).
			WithHint("the session remains active; retry with the next chunk")
	}

	s.mu.Lock()
	s.totalAudioSeconds += duration
	s.pushesAccepted++
	s.mu.Unlock()
	s.deps.Metrics.AudioSeconds.Add(ctx, duration)

	segs, _ = s.vocab.CorrectSegments(segs)
	s.deps.Metrics.RecordSegments(ctx, s.cfg.STTBackend, len(segs))
	for _, seg := range segs {
		if chunk := s.buffer.Add(seg); chunk != nil {
			s.enqueue(ctx, chunk)
		}
	}

	depth := s.queueDepth()
	if depth > s.cfg.MaxQueueDepth {
		s.deps.Metrics.RecordEngineError(ctx, string(fault.CodeEngineOverloaded))
		return PushResult{}, fault.Newf(fault.CodeEngineOverloaded,
			"summarization backlog is %d deep (limit %d)", depth, s.cfg.MaxQueueDepth).
			WithHint("slow the capture client down; no audio was dropped")
	}
	return PushResult{BufferedSeconds: buffered, QueueDepth: depth}, nil
}

// pushSTT runs Push under the STT mutex with a soft deadline. On timeout the
// push keeps running in its goroutine; the mutex keeps later pushes ordered
// behind it.
func (s *Session) pushSTT(ctx context.Context, samples []float32) ([]stt.Segment, float64, error) {
	type pushed struct {
		segs     []stt.Segment
		buffered float64
		err      error
	}
	done := make(chan pushed, 1)
	start := time.Now()
	go func() {
		s.sttMu.Lock()
		defer s.sttMu.Unlock()
		segs, err := s.transcriber.Push(samples)
		done <- pushed{segs: segs, buffered: s.transcriber.BufferedSeconds(), err: err}
	}()

	select {
	case r := <-done:
		s.deps.Metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
		return r.segs, r.buffered, r.err
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// enqueue hands a sealed chunk to the MAP worker.
func (s *Session) enqueue(ctx context.Context, chunk *transcript.Chunk) {
	s.deps.Metrics.Chunks.Add(ctx, 1)
	s.deps.Metrics.MapQueueDepth.Add(ctx, 1)
	s.chunkCh <- chunk
}

// queueDepth is pending segments plus sealed-but-unmapped chunks.
func (s *Session) queueDepth() int {
	s.mu.Lock()
	mapped := s.mapped
	s.mu.Unlock()
	return s.buffer.PendingSegments() + s.buffer.ChunkCount() - mapped
}

// mapWorker consumes sealed chunks in order and records their summaries.
// Map never fails; a chunk whose summarization ultimately errors yields a
// placeholder so REDUCE still sees one summary per chunk.
func (s *Session) mapWorker() {
	defer close(s.workerDone)
	for chunk := range s.chunkCh {
		start := time.Now()
		summary := s.deps.Summarizer.Map(s.ctx, chunk.Text)
		s.deps.Metrics.RecordLLMCall(s.ctx, "map", time.Since(start).Seconds())

		s.mu.Lock()
		s.summaries = append(s.summaries, summary)
		s.mapped++
		s.mu.Unlock()
		s.deps.Metrics.MapQueueDepth.Add(s.ctx, -1)

		s.deps.Logger.Debug("chunk mapped",
			"chunk_index", chunk.Index,
			"segments", chunk.SegmentCount,
		)
	}
}

// Stop flushes the STT backend, drains the MAP worker, runs REDUCE and
// extraction, persists artifacts, and purges all transcript text. Terminal
// sessions return their cached result with AlreadyStopped set.
func (s *Session) Stop(ctx context.Context) (StopResult, error) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.mu.Lock()
	if s.result != nil {
		res := *s.result
		res.AlreadyStopped = true
		s.mu.Unlock()
		return res, nil
	}
	s.status = StatusStopping
	s.mu.Unlock()

	s.deps.Logger.Info("stopping session")
	s.flushSTT(ctx)

	if final := s.buffer.ForceFinalize(); final != nil {
		s.enqueue(ctx, final)
	}
	s.closeChunkChannel()

	select {
	case <-s.workerDone:
	case <-time.After(s.cfg.StopDrainTimeout):
		s.cancel()
		s.deps.Metrics.RecordEngineError(ctx, string(fault.CodeMapStall))
		res := s.finish(ctx, StatusFailed, "", summarize.EmptyMeetingData(), false)
		return res, fault.New(fault.CodeMapStall, "summarization did not drain before the stop timeout").
			WithHint("the LLM backend may be overloaded or unreachable")
	}

	s.mu.Lock()
	summaries := make([]string, len(s.summaries))
	copy(summaries, s.summaries)
	s.mu.Unlock()

	fullText := s.buffer.FullText()
	if s.guard.LowContent(fullText, len(summaries)) {
		res := s.finish(ctx, StatusInsufficientContent, transcript.InsufficientContentSummary, summarize.EmptyMeetingData(), true)
		return res, nil
	}

	start := time.Now()
	finalSummary, err := s.deps.Summarizer.Reduce(s.ctx, summaries)
	s.deps.Metrics.RecordLLMCall(ctx, "reduce", time.Since(start).Seconds())
	if err != nil {
		s.deps.Logger.Error("final summary generation failed", "error", err)
		s.deps.Metrics.RecordEngineError(ctx, string(fault.CodeLLMUnavailable))
		res := s.finish(ctx, StatusFailed, strings.Join(summaries, "\n\n"), summarize.EmptyMeetingData(), true)
		return res, nil
	}

	start = time.Now()
	data, ok := s.deps.Summarizer.Extract(s.ctx, summaries)
	s.deps.Metrics.RecordLLMCall(ctx, "extract", time.Since(start).Seconds())
	if !ok {
		s.deps.Metrics.RecordEngineError(ctx, string(fault.CodeExtractionFallback))
	}

	res := s.finish(ctx, StatusCompleted, finalSummary, data, true)
	if res.Status == StatusFailed {
		return res, fault.New(fault.CodeOutputWriteFailure, "failed to persist session artifacts")
	}
	return res, nil
}

// closeChunkChannel waits out in-flight pushes and closes the MAP queue so
// the worker can drain and exit. Safe to call more than once.
func (s *Session) closeChunkChannel() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.closeOnce.Do(func() { close(s.chunkCh) })
}

// flushSTT drains the transcriber's remaining audio into the buffer and
// closes it. Flush failures are logged and absorbed; stop must proceed.
func (s *Session) flushSTT(ctx context.Context) {
	s.sttMu.Lock()
	defer s.sttMu.Unlock()
	if s.transcriber == nil {
		return
	}
	segs, err := s.transcriber.Flush()
	if err != nil {
		s.deps.Logger.Warn("final flush failed", "error", err)
	}
	if cerr := s.transcriber.Close(); cerr != nil {
		s.deps.Logger.Warn("transcriber close failed", "error", cerr)
	}

	segs, _ = s.vocab.CorrectSegments(segs)
	s.deps.Metrics.RecordSegments(ctx, s.cfg.STTBackend, len(segs))
	for _, seg := range segs {
		if chunk := s.buffer.Add(seg); chunk != nil {
			s.enqueue(ctx, chunk)
		}
	}
}

// finish writes artifacts, caches the terminal result, and purges transcript
// state. A failed artifact write downgrades the status to failed but still
// reports the paths that were written.
func (s *Session) finish(ctx context.Context, status Status, summary string, data summarize.MeetingData, write bool) StopResult {
	res := StopResult{Status: status}

	if write {
		arts, err := s.deps.Writer.WriteArtifacts(output.WriteRequest{
			OutputDir:    s.cfg.OutputDir,
			CSVPath:      s.cfg.CSVPath,
			AppendCSV:    s.cfg.AppendCSV,
			FolderNaming: s.cfg.FolderNaming,
			Summary:      summary,
			Data:         data,
			StoppedAt:    time.Now(),
			SessionID:    s.cfg.SessionID,
		})
		res.SummaryPath = arts.SummaryPath
		res.DataPath = arts.DataPath
		res.CSVPath = arts.CSVPath
		if err != nil {
			s.deps.Logger.Error("artifact write failed", "error", err)
			s.deps.Metrics.RecordEngineError(ctx, string(fault.CodeOutputWriteFailure))
			res.Status = StatusFailed
		}
	}

	s.mu.Lock()
	s.status = res.Status
	s.result = &res
	totalAudio := s.totalAudioSeconds
	s.mu.Unlock()

	segments := s.buffer.TotalSegments()
	chunks := s.buffer.ChunkCount()
	s.buffer.Purge()
	s.cancel()

	s.deps.Metrics.ActiveSessions.Add(ctx, -1)
	s.deps.Metrics.RecordSessionEnd(ctx, string(res.Status))
	s.deps.Logger.Info("session finished",
		"status", res.Status,
		"audio_seconds", totalAudio,
		"segments", segments,
		"chunks", chunks,
	)
	return res
}

// Abort marks an in-flight session failed during shutdown, cancelling any
// LLM work and writing a best-effort artifact from the MAP summaries already
// completed. Terminal sessions are left untouched.
func (s *Session) Abort(ctx context.Context) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.mu.Lock()
	if s.result != nil {
		s.mu.Unlock()
		return
	}
	s.status = StatusStopping
	summaries := make([]string, len(s.summaries))
	copy(summaries, s.summaries)
	s.mu.Unlock()

	s.cancel()
	s.closeChunkChannel()

	s.sttMu.Lock()
	if s.transcriber != nil {
		if err := s.transcriber.Close(); err != nil {
			s.deps.Logger.Warn("transcriber close failed", "error", err)
		}
	}
	s.sttMu.Unlock()

	s.deps.Logger.Warn("aborting session", "map_summaries", len(summaries))
	s.finish(ctx, StatusFailed, strings.Join(summaries, "\n\n"), summarize.EmptyMeetingData(), len(summaries) > 0)
}
