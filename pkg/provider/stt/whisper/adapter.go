package whisper

import (
	"fmt"

	"github.com/auricle-audio/auricle/pkg/audio"
	"github.com/auricle-audio/auricle/pkg/provider/stt"
)

// batchAdapter turns a batch inference callback into the streaming push/flush
// contract. It accumulates capture-rate audio and runs one inference pass per
// MinBufferSeconds of input, tracking the session audio clock so emitted
// segments carry capture-rate timestamps.
//
// On inference error the buffered audio is discarded, matching the rolling
// nature of live capture: replaying a failed window would stall the stream.
type batchAdapter struct {
	captureRate int
	minSamples  int
	maxSamples  int

	buf []float32

	// clockS is the capture-rate position of the first buffered sample.
	clockS float64
}

func newBatchAdapter(cfg stt.SessionConfig) *batchAdapter {
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
	rate := cfg.CaptureSampleRate
	if rate <= 0 {
		rate = modelSampleRate
	}
	return &batchAdapter{
		captureRate: rate,
		minSamples:  int(minSec * float64(rate)),
		maxSamples:  int(maxSec * float64(rate)),
	}
}

// push appends samples and transcribes full windows. Multiple segments can
// be emitted from a single large push.
func (a *batchAdapter) push(samples []float32, infer inferFn) ([]stt.Segment, error) {
	a.buf = append(a.buf, samples...)

	var segs []stt.Segment
	for len(a.buf) >= a.minSamples {
		window := len(a.buf)
		if window > a.maxSamples {
			window = a.maxSamples
		}
		seg, err := a.transcribe(a.buf[:window], infer)
		// The window is consumed regardless of outcome.
		a.buf = a.buf[window:]
		a.clockS += float64(window) / float64(a.captureRate)
		if err != nil {
			a.buf = nil
			return segs, err
		}
		if seg != nil {
			segs = append(segs, *seg)
		}
	}
	return segs, nil
}

// flush transcribes whatever remains, leaving the buffer empty.
func (a *batchAdapter) flush(infer inferFn) ([]stt.Segment, error) {
	if len(a.buf) == 0 {
		return nil, nil
	}
	window := a.buf
	a.buf = nil
	start := a.clockS
	a.clockS += float64(len(window)) / float64(a.captureRate)

	seg, err := a.transcribeAt(window, start, infer)
	if err != nil {
		return nil, err
	}
	if seg == nil {
		return nil, nil
	}
	return []stt.Segment{*seg}, nil
}

func (a *batchAdapter) bufferedSeconds() float64 {
	return float64(len(a.buf)) / float64(a.captureRate)
}

func (a *batchAdapter) reset() {
	a.buf = nil
}

func (a *batchAdapter) transcribe(window []float32, infer inferFn) (*stt.Segment, error) {
	return a.transcribeAt(window, a.clockS, infer)
}

// transcribeAt resamples a capture-rate window to the model rate, runs
// inference, and wraps a non-empty result in a segment spanning the window.
func (a *batchAdapter) transcribeAt(window []float32, startS float64, infer inferFn) (*stt.Segment, error) {
	modelSamples := audio.Resample(window, a.captureRate, modelSampleRate)
	text, err := infer(modelSamples)
	if err != nil {
		return nil, fmt.Errorf("transcribe %.2fs window: %w", float64(len(window))/float64(a.captureRate), err)
	}
	if text == "" {
		return nil, nil
	}
	return &stt.Segment{
		Text:   text,
		StartS: startS,
		EndS:   startS + float64(len(window))/float64(a.captureRate),
	}, nil
}
