// Package stt defines the speech-to-text backend abstraction.
//
// A [Provider] wraps one STT engine (a local whisper-server, in-process
// whisper.cpp, a parakeet-mlx server) and opens per-session [Transcriber]
// instances. A Transcriber is a stateful streaming recognizer: the engine
// pushes capture-rate float32 mono audio into it and receives zero or more
// finished [Segment] values back whenever the backend has accumulated enough
// audio to transcribe.
//
// Transcriber methods are serialized per instance by the caller; instances
// must never be shared across sessions. Providers themselves must be safe
// for concurrent use, since multiple sessions may open streams at once.
package stt

import "context"

// SessionConfig carries the per-session parameters a backend needs to open a
// transcription stream.
type SessionConfig struct {
	// CaptureSampleRate is the sample rate (Hz) of audio delivered to Push.
	// Backends resample internally to their model's native rate.
	CaptureSampleRate int

	// Model is a backend-specific model identifier ("turbo", a GGML file
	// path, "mlx-community/parakeet-tdt-0.6b-v3"). Empty selects the
	// backend's default.
	Model string

	// Language is a BCP-47 language hint. Empty lets the backend decide.
	Language string

	// MinBufferSeconds is the amount of audio to accumulate before running
	// inference. Longer buffers give better accuracy and fewer mid-word
	// cuts. Zero selects the backend default (2 s).
	MinBufferSeconds float64

	// MaxBufferSeconds forces inference once this much audio has
	// accumulated, bounding latency and memory. Zero selects the backend
	// default (10 s).
	MaxBufferSeconds float64
}

// Provider opens transcription sessions against one STT engine.
type Provider interface {
	// Name reports the registered backend identifier ("whisper",
	// "whisper-native", "parakeet").
	Name() string

	// OpenSession creates a fresh [Transcriber] for one recording. Model
	// loading may happen here or lazily on the first Push; a load failure
	// here means the backend is unavailable.
	OpenSession(ctx context.Context, cfg SessionConfig) (Transcriber, error)
}

// Transcriber is a stateful per-session recognizer. Implementations maintain
// a rolling audio buffer and emit segments when enough audio has accumulated.
// Not safe for concurrent use; the owning session serializes all calls.
type Transcriber interface {
	// Push appends capture-rate float32 mono audio and returns any segments
	// completed by this push. An empty slice is a normal result.
	Push(samples []float32) ([]Segment, error)

	// Flush transcribes whatever audio remains buffered and returns the
	// resulting segments, leaving the buffer empty.
	Flush() ([]Segment, error)

	// BufferedSeconds reports undrained audio in capture-rate seconds.
	BufferedSeconds() float64

	// Close releases the session's resources. Pushing after Close is an
	// error. Close is idempotent.
	Close() error
}
