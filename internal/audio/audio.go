// Package audio holds the PCM representation shared by the mixer and the
// encoders, plus decoding of keysound resources into it.
package audio

import (
	"fmt"

	"github.com/dh1tw/gosamplerate"
	"golang.org/x/exp/constraints"
)

const (
	SampleRate = 44100
	Channels   = 2
	BitDepth   = 16

	OpusSampleRate   = 48000
	OpusFrameSize    = 960                      // samples per channel per 20ms frame
	OpusFrameSamples = OpusFrameSize * Channels // total interleaved samples per frame
)

// Clip is interleaved stereo float32 PCM at SampleRate, nominally in [-1, 1].
type Clip []float32

// Frames returns the number of stereo frames in c.
func (c Clip) Frames() int { return len(c) / Channels }

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ToPCM16 clips v to [-1, 1] and scales it by 32767, truncating toward
// zero. Every 16-bit output path converts through it.
func ToPCM16[T constraints.Float](v T) int16 {
	return int16(Clamp(v, -1, 1) * 32767)
}

// ToInt16 converts a float clip to 16-bit samples with ToPCM16.
func ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		out[i] = ToPCM16(v)
	}
	return out
}

// ToStereo turns interleaved samples with the given channel count into
// interleaved stereo. Mono is duplicated; extra channels are dropped.
func ToStereo(samples []float32, channels int) ([]float32, error) {
	switch {
	case channels <= 0:
		return nil, fmt.Errorf("invalid channel count %d", channels)
	case channels == Channels:
		return samples, nil
	}
	frames := len(samples) / channels
	out := make([]float32, frames*Channels)
	for f := 0; f < frames; f++ {
		l := samples[f*channels]
		r := l
		if channels > 1 {
			r = samples[f*channels+1]
		}
		out[f*2] = l
		out[f*2+1] = r
	}
	return out, nil
}

// Resample converts interleaved samples from one rate to another with
// libsamplerate's best sinc converter. Samples at the target rate are
// returned unchanged.
func Resample(samples []float32, channels, from, to int) ([]float32, error) {
	if from == to || len(samples) == 0 {
		return samples, nil
	}
	if from <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", from)
	}
	out, err := gosamplerate.Simple(samples, float64(to)/float64(from), channels, gosamplerate.SRC_SINC_BEST_QUALITY)
	if err != nil {
		return nil, fmt.Errorf("resample %d -> %d Hz: %w", from, to, err)
	}
	return out, nil
}
