package chart

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hannahherbig/2dxrender/internal/binfmt"
	"github.com/pion/logging"
)

// ChartSlots is the number of chart selectors in a .1 file directory.
const ChartSlots = 12

// SampleLookup resolves numeric sample ids to store indices.
type SampleLookup interface {
	Lookup(id int) (int, error)
}

// Options carries the render settings that affect decoding.
type Options struct {
	NoBGM bool
	// ClapIndex is the store index of the assist clap, or -1 when assist
	// clap is off.
	ClapIndex int
}

// InvalidChartIDError reports a chart selector outside 0..ChartSlots-1.
type InvalidChartIDError struct {
	ID int
}

func (e *InvalidChartIDError) Error() string {
	return fmt.Sprintf("invalid chart id %d (want 0-%d)", e.ID, ChartSlots-1)
}

// ChartNotFoundError reports a valid selector with no chart behind it.
type ChartNotFoundError struct {
	Path string
	ID   int
}

func (e *ChartNotFoundError) Error() string {
	return fmt.Sprintf("%s: chart %d not found", e.Path, e.ID)
}

// ValidateChartID checks a selector before any input is read.
func ValidateChartID(id int) error {
	if id < 0 || id >= ChartSlots {
		return &InvalidChartIDError{ID: id}
	}
	return nil
}

// Decoder turns chart files into timelines.
type Decoder struct {
	lookup SampleLookup
	opts   Options
	log    logging.LeveledLogger
}

// NewDecoder creates a decoder resolving samples through lookup.
func NewDecoder(lookup SampleLookup, opts Options, log logging.LeveledLogger) *Decoder {
	return &Decoder{lookup: lookup, opts: opts, log: log}
}

// DecodeFile reads path and decodes it as JSON when it has a .json
// extension and as a binary .1 chart otherwise.
func (d *Decoder) DecodeFile(path string, chartID int) (*Timeline, error) {
	if err := ValidateChartID(chartID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chart: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return d.DecodeJSON(path, data, chartID)
	}
	return d.DecodeBinary(path, data, chartID)
}

func (d *Decoder) newContext(path string) *decoderContext {
	return &decoderContext{
		path:     path,
		lookup:   d.lookup,
		opts:     d.opts,
		tl:       newTimeline(),
		bindings: [Players]map[int]int{{}, {}},
	}
}

// decoderContext holds the per-decode slot bindings of both players.
type decoderContext struct {
	path     string
	lookup   SampleLookup
	opts     Options
	tl       *Timeline
	bindings [Players]map[int]int
	patched  int
}

func (c *decoderContext) clapActive() bool { return c.opts.ClapIndex >= 0 }

func (c *decoderContext) checkPlayer(player, offset int) error {
	if player < 0 || player >= Players {
		return binfmt.Errorf(c.path, -1, "event at %d ms: player %d out of range", offset, player)
	}
	return nil
}

func (c *decoderContext) resolve(id, offset int) (int, error) {
	idx, err := c.lookup.Lookup(id)
	if err != nil {
		return noSample, fmt.Errorf("%s: event at %d ms: %w", c.path, offset, err)
	}
	return idx, nil
}

func (c *decoderContext) bound(player, slot, offset int) (int, error) {
	idx, ok := c.bindings[player][slot]
	if !ok {
		return noSample, binfmt.Errorf(c.path, -1,
			"event at %d ms: player %d slot %d played before any sample was loaded", offset, player+1, slot)
	}
	return idx, nil
}

// note emits a key press. Primary lane notes with a nonzero value also
// trigger at offset+value; assist clap adds claps at both positions.
func (c *decoderContext) note(offset, player, slot, value int) error {
	if err := c.checkPlayer(player, offset); err != nil {
		return err
	}
	sample, err := c.bound(player, slot, offset)
	if err != nil {
		return err
	}
	if slot == PrimaryLane && value != 0 {
		c.tl.emit(Event{Offset: offset + value, Sample: sample, Slot: slot, Player: player})
		if c.clapActive() {
			c.tl.emit(Event{Offset: offset + value, Sample: c.opts.ClapIndex, Slot: noSlot})
		}
	}
	if c.clapActive() && slot == PrimaryLane {
		c.tl.emit(Event{Offset: offset, Sample: c.opts.ClapIndex, Slot: noSlot})
	}
	c.tl.emit(Event{Offset: offset, Sample: sample, Slot: slot, Player: player})
	return nil
}

// rebind loads a sample into a slot. Events already decoded for that slot
// at or after offset play the new sample, since the source lists commands
// in authoring order rather than playback order.
func (c *decoderContext) rebind(offset, player, slot, id int) error {
	if err := c.checkPlayer(player, offset); err != nil {
		return err
	}
	sample, err := c.resolve(id, offset)
	if err != nil {
		return err
	}
	c.bindings[player][slot] = sample
	c.patched += c.tl.rebind(player, slot, offset, sample)
	return nil
}

// ambient emits a background cue. Cues with no sample are dropped, and so
// is the BGM track (store index 0) when NoBGM is set.
func (c *decoderContext) ambient(offset, id int) error {
	sample, err := c.resolve(id, offset)
	if err != nil {
		return err
	}
	if sample == noSample || (sample == 0 && c.opts.NoBGM) {
		return nil
	}
	c.tl.emit(Event{Offset: offset, Sample: sample, Slot: noSlot})
	return nil
}

func (c *decoderContext) end(offset, player int) error {
	if err := c.checkPlayer(player, offset); err != nil {
		return err
	}
	c.tl.emit(Event{Offset: offset, Sample: noSample, Slot: noSlot, Player: player})
	return nil
}

func (c *decoderContext) finish(log logging.LeveledLogger) *Timeline {
	c.tl.Freeze()
	log.Debugf("%s: %d events, %d retroactive rebinds", c.path, c.tl.Len(), c.patched)
	return c.tl
}
