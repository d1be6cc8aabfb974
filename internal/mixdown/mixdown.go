// Package mixdown renders a chart timeline into a single stereo master
// track.
//
// Clips are quantized to 40.24 fixed point before summing, so the master is
// bit-identical however events are grouped or scheduled.
package mixdown

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/hannahherbig/2dxrender/internal/archive"
	"github.com/hannahherbig/2dxrender/internal/audio"
	"github.com/hannahherbig/2dxrender/internal/chart"
	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"
)

const fracBits = 24

var fixedScale = math.Ldexp(1, fracBits)

// Source is the read-only store of resources a timeline refers to.
type Source interface {
	Len() int
	Entry(i int) archive.Entry
	ClapIndex() int
}

// ClipDecoder decodes one resource to normalized stereo PCM.
type ClipDecoder interface {
	Decode(ctx context.Context, name string, data []byte) (audio.Clip, error)
}

// AudioDecodeError reports a resource that could not be read or decoded.
type AudioDecodeError struct {
	Index int
	Name  string
	Err   error
}

func (e *AudioDecodeError) Error() string {
	return fmt.Sprintf("decode sample %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *AudioDecodeError) Unwrap() error { return e.Err }

// Settings are the render options that affect mixing.
type Settings struct {
	Volume      float64
	ClapVolume  float64
	AssistClap  bool
	Workers     int
	SubmixWidth int
}

// Engine mixes timelines against one source.
type Engine struct {
	src      Source
	dec      ClipDecoder
	settings Settings
	log      logging.LeveledLogger
}

// NewEngine creates a mixdown engine.
func NewEngine(src Source, dec ClipDecoder, settings Settings, log logging.LeveledLogger) *Engine {
	settings.Workers = max(settings.Workers, 1)
	settings.SubmixWidth = max(settings.SubmixWidth, 1)
	return &Engine{src: src, dec: dec, settings: settings, log: log}
}

// placement is one clip positioned on the master, already truncated.
type placement struct {
	clip  []int64
	start int // first master frame
	skip  int // clip frames dropped before time 0
	n     int // frames to mix
}

func (p placement) end() int { return p.start + p.n }

// Mix renders tl. Decoding stops at the first failure, which is returned as
// an *AudioDecodeError.
func (e *Engine) Mix(ctx context.Context, tl *chart.Timeline) (*Track, error) {
	if !tl.Frozen() {
		return nil, fmt.Errorf("mixdown: timeline is still being decoded")
	}
	ends := tl.Ends()
	events := tl.Events()

	clips, err := e.decodeAll(ctx, events)
	if err != nil {
		return nil, err
	}

	var placements []placement
	frames := 0
	for _, ev := range events {
		if ev.IsEnd() || ev.Sample < 0 {
			continue
		}
		p, ok := place(ev, clips[ev.Sample], ends)
		if !ok {
			continue
		}
		placements = append(placements, p)
		frames = max(frames, p.end())
	}
	e.log.Debugf("%d events, %d clips placed, %d frames", len(events), len(placements), frames)

	track := &Track{fixed: make([]int64, frames*audio.Channels)}
	if err := e.sum(ctx, track, placements); err != nil {
		return nil, err
	}
	e.log.Infof("mixed %d clips into %s of audio", len(placements), track.Duration())
	return track, nil
}

// place positions a clip at its event offset and applies the owning
// player's end marker. ok is false when nothing is left to play.
func place(ev chart.Event, clip []int64, ends [chart.Players]chart.End) (placement, bool) {
	start := msToFrames(ev.Offset)
	n := len(clip) / audio.Channels
	if ev.Player >= 0 && ev.Player < chart.Players && ends[ev.Player].Bounded {
		n = min(n, max(0, msToFrames(ends[ev.Player].Offset)-start))
	}
	skip := 0
	if start < 0 {
		skip = -start
		start = 0
	}
	if n-skip <= 0 {
		return placement{}, false
	}
	return placement{clip: clip, start: start, skip: skip, n: n - skip}, true
}

func msToFrames(ms int) int {
	return int(int64(ms) * audio.SampleRate / 1000)
}

func (e *Engine) gain(index int) float64 {
	if e.settings.AssistClap && index == e.src.ClapIndex() {
		return e.settings.ClapVolume
	}
	return e.settings.Volume
}

// decodeAll decodes each distinct sample once and returns its quantized
// clip, keyed by store index. Every use of a sample shares one gain, so the
// gain is applied here.
func (e *Engine) decodeAll(ctx context.Context, events []chart.Event) (map[int][]int64, error) {
	var indices []int
	seen := make(map[int]bool)
	for _, ev := range events {
		if ev.IsEnd() || ev.Sample < 0 || seen[ev.Sample] {
			continue
		}
		seen[ev.Sample] = true
		indices = append(indices, ev.Sample)
	}

	clips := make([][]int64, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.settings.Workers)
	for i, idx := range indices {
		g.Go(func() error {
			// A failed decode cancels gctx; queued work must not start.
			if err := gctx.Err(); err != nil {
				return err
			}
			if idx >= e.src.Len() {
				return &AudioDecodeError{Index: idx, Err: fmt.Errorf("index out of range (store has %d entries)", e.src.Len())}
			}
			entry := e.src.Entry(idx)
			data, err := entry.Bytes()
			if err != nil {
				return &AudioDecodeError{Index: idx, Name: entry.Name, Err: err}
			}
			clip, err := e.dec.Decode(gctx, entry.Name, data)
			if err != nil {
				return &AudioDecodeError{Index: idx, Name: entry.Name, Err: err}
			}
			clips[i] = quantize(clip, e.gain(idx))
			e.log.Tracef("decoded %s: %d frames", entry.Name, clip.Frames())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byIndex := make(map[int][]int64, len(indices))
	for i, idx := range indices {
		byIndex[idx] = clips[i]
	}
	return byIndex, nil
}

func quantize(clip audio.Clip, gain float64) []int64 {
	q := make([]int64, len(clip)-len(clip)%audio.Channels)
	for i := range q {
		q[i] = int64(math.Round(float64(clip[i]) * gain * fixedScale))
	}
	return q
}

// sum adds placements into track in groups of SubmixWidth. Each group is
// summed into a private buffer spanning only its own frames.
func (e *Engine) sum(ctx context.Context, track *Track, placements []placement) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.settings.Workers)
	for lo := 0; lo < len(placements); lo += e.settings.SubmixWidth {
		group := placements[lo:min(lo+e.settings.SubmixWidth, len(placements))]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			first, last := group[0].start, group[0].end()
			for _, p := range group[1:] {
				first = min(first, p.start)
				last = max(last, p.end())
			}
			buf := make([]int64, (last-first)*audio.Channels)
			for _, p := range group {
				dst := buf[(p.start-first)*audio.Channels:]
				src := p.clip[p.skip*audio.Channels : (p.skip+p.n)*audio.Channels]
				for i, v := range src {
					dst[i] += v
				}
			}

			mu.Lock()
			defer mu.Unlock()
			dst := track.fixed[first*audio.Channels:]
			for i, v := range buf {
				dst[i] += v
			}
			return nil
		})
	}
	return g.Wait()
}
