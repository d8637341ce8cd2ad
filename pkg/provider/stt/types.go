package stt

// Segment is a contiguous transcribed utterance. Segments are created by the
// backend and never mutated afterwards.
type Segment struct {
	// Text is the transcribed text, already punctuated where the backend
	// supports it. Never empty.
	Text string

	// StartS and EndS are the segment's bounds on the session's audio clock,
	// in capture-rate seconds since the session started.
	StartS float64
	EndS   float64
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.EndS - s.StartS
}
