package mixdown

import (
	"time"

	"github.com/hannahherbig/2dxrender/internal/audio"
)

// Track is the rendered master: interleaved stereo at audio.SampleRate,
// held in fixed point until it is written out.
type Track struct {
	fixed []int64
}

// Frames returns the number of stereo frames.
func (t *Track) Frames() int { return len(t.fixed) / audio.Channels }

// Duration returns the playing time of the track.
func (t *Track) Duration() time.Duration {
	return time.Duration(t.Frames()) * time.Second / audio.SampleRate
}

// Sample returns interleaved sample i as a float, unclipped.
func (t *Track) Sample(i int) float64 {
	return float64(t.fixed[i]) / fixedScale
}

// Float32 returns the track clipped to [-1, 1].
func (t *Track) Float32() []float32 {
	out := make([]float32, len(t.fixed))
	for i := range t.fixed {
		out[i] = float32(audio.Clamp(t.Sample(i), -1, 1))
	}
	return out
}

// Int16 returns the track as 16-bit PCM, converted with audio.ToPCM16.
func (t *Track) Int16() []int16 {
	out := make([]int16, len(t.fixed))
	for i := range t.fixed {
		out[i] = audio.ToPCM16(t.Sample(i))
	}
	return out
}
