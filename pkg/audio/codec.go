// Package audio provides the PCM codec used on the capture ingest path:
// base64 decode and validation of little-endian float32 mono PCM, channel
// downmix, linear-interpolation resampling, and WAV encoding for HTTP
// transcription backends.
//
// All functions are pure and deterministic; the package holds no state.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// MinSampleRate and MaxSampleRate bound the capture sample rates the
	// engine accepts.
	MinSampleRate = 8000
	MaxSampleRate = 96000

	// rangeEpsilon is the tolerance applied when validating that samples sit
	// inside [-1.0, 1.0]. Capture clients occasionally produce values a few
	// ULPs outside the nominal range after float conversion.
	rangeEpsilon = 1e-6
)

// ErrInvalidFormat is the sentinel wrapped by every decode/validation error
// so callers can map any codec failure to a single wire error code.
var ErrInvalidFormat = errors.New("audio: invalid format")

// DecodeBase64PCM decodes base64-encoded little-endian float32 mono PCM and
// validates it. sampleRate is the capture rate and is used only to compute
// the returned duration; the samples themselves are not resampled.
//
// Fails (wrapping [ErrInvalidFormat]) when the base64 is malformed, the byte
// length is not a multiple of 4, the payload is empty, sampleRate is outside
// [MinSampleRate, MaxSampleRate], or any sample falls outside [-1, 1] beyond
// a small epsilon.
func DecodeBase64PCM(pcmB64 string, sampleRate int) ([]float32, float64, error) {
	if err := ValidateSampleRate(sampleRate); err != nil {
		return nil, 0, err
	}

	raw, err := base64.StdEncoding.DecodeString(pcmB64)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: decode base64: %v", ErrInvalidFormat, err)
	}
	if len(raw)%4 != 0 {
		return nil, 0, fmt.Errorf("%w: %d bytes is not a whole number of float32 samples", ErrInvalidFormat, len(raw))
	}
	n := len(raw) / 4
	if n == 0 {
		return nil, 0, fmt.Errorf("%w: empty PCM payload", ErrInvalidFormat)
	}

	samples := make([]float32, n)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		samples[i] = math.Float32frombits(bits)
	}

	if err := ValidateRange(samples); err != nil {
		return nil, 0, err
	}

	// Duration is always derived from the capture rate, never the model rate.
	duration := float64(n) / float64(sampleRate)
	return samples, duration, nil
}

// ValidateSampleRate checks that rate lies in the accepted capture range.
func ValidateSampleRate(rate int) error {
	if rate < MinSampleRate || rate > MaxSampleRate {
		return fmt.Errorf("%w: sample rate %d Hz outside [%d, %d]", ErrInvalidFormat, rate, MinSampleRate, MaxSampleRate)
	}
	return nil
}

// ValidateRange checks that every sample sits inside [-1, 1] within epsilon.
// NaN samples are rejected. Empty input is valid.
func ValidateRange(samples []float32) error {
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) || v < -1.0-rangeEpsilon || v > 1.0+rangeEpsilon {
			return fmt.Errorf("%w: sample %d value %v outside [-1.0, 1.0]", ErrInvalidFormat, i, v)
		}
	}
	return nil
}

// ToMono averages interleaved channels down to mono. channels <= 1 returns
// the input unchanged. Trailing samples of an incomplete frame are dropped.
func ToMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono float32 PCM from srcRate to dstRate using linear
// interpolation. When the rates match (or either is non-positive) the input
// is returned unchanged. Interpolated values stay within the amplitude
// envelope of their neighbours, so valid input stays within [-1, 1].
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// EncodeWAV16 converts float32 mono samples to 16-bit signed little-endian
// PCM and wraps them in a standard RIFF/WAV container. Samples are clamped to
// [-1, 1] before conversion.
func EncodeWAV16(samples []float32, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(samples) * 2

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		v := float64(s)
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		binary.LittleEndian.PutUint16(buf[44+i*2:46+i*2], uint16(int16(v*32767)))
	}
	return buf
}

// EncodeBase64PCM converts float32 mono samples back to the wire encoding.
// Used by capture-side tooling and tests.
func EncodeBase64PCM(samples []float32) string {
	raw := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(raw)
}
