// Package chart decodes .1 binary charts and JSON chart documents into a
// Timeline of keysound events.
package chart

import (
	"fmt"
	"slices"
)

const (
	// Players is the number of independent play sides.
	Players = 2
	// PrimaryLane is the slot whose notes may carry a delayed second trigger.
	PrimaryLane = 7

	noSample = -1
	noSlot   = -1
)

// Event is one entry of a timeline. Sample -1 means nothing is played; an
// event with Sample -1 and Slot -1 marks the end of its player's chart.
type Event struct {
	Offset int // milliseconds from the start of the chart
	Sample int // store index, or -1
	Slot   int // lane the sample was bound through, or -1
	Player int
}

// IsEnd reports whether e is a player end marker.
func (e Event) IsEnd() bool { return e.Sample == noSample && e.Slot == noSlot }

func (e Event) String() string {
	if e.IsEnd() {
		return fmt.Sprintf("end(p%d @%dms)", e.Player+1, e.Offset)
	}
	return fmt.Sprintf("p%d slot %d @%dms -> %d", e.Player+1, e.Slot, e.Offset, e.Sample)
}

// End is a player's end offset. Bounded is false when the chart never
// declared one; such players are never truncated.
type End struct {
	Offset  int
	Bounded bool
}

type slotKey struct{ player, slot int }

// Timeline is an arena of events in emission order. Events bound through a
// slot are indexed per (player, slot) so rebinding only visits candidates.
type Timeline struct {
	events []Event
	bySlot map[slotKey][]int
	frozen bool
}

func newTimeline() *Timeline {
	return &Timeline{bySlot: make(map[slotKey][]int)}
}

// NewTimeline returns a frozen timeline holding events as given.
func NewTimeline(events ...Event) *Timeline {
	t := newTimeline()
	for _, e := range events {
		t.emit(e)
	}
	t.Freeze()
	return t
}

func (t *Timeline) emit(e Event) {
	if t.frozen {
		panic("chart: emit on frozen timeline")
	}
	if e.Slot != noSlot {
		k := slotKey{e.Player, e.Slot}
		t.bySlot[k] = append(t.bySlot[k], len(t.events))
	}
	t.events = append(t.events, e)
}

// rebind points every event of (player, slot) at or after offset to sample
// and returns how many were changed.
func (t *Timeline) rebind(player, slot, offset, sample int) int {
	n := 0
	for _, i := range t.bySlot[slotKey{player, slot}] {
		if t.events[i].Offset >= offset {
			t.events[i].Sample = sample
			n++
		}
	}
	return n
}

// Freeze ends the decoding phase. A frozen timeline is never modified.
func (t *Timeline) Freeze() { t.frozen = true }

// Frozen reports whether Freeze has been called.
func (t *Timeline) Frozen() bool { return t.frozen }

// Len returns the number of events.
func (t *Timeline) Len() int { return len(t.events) }

// Events returns a copy of the events in emission order.
func (t *Timeline) Events() []Event { return slices.Clone(t.events) }

// Ends scans the whole timeline for end markers. The last marker decoded for
// a player wins.
func (t *Timeline) Ends() [Players]End {
	var ends [Players]End
	for _, e := range t.events {
		if e.IsEnd() && e.Player >= 0 && e.Player < Players {
			ends[e.Player] = End{Offset: e.Offset, Bounded: true}
		}
	}
	return ends
}
