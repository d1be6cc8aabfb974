package chart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/hannahherbig/2dxrender/internal/binfmt"
)

// Event tags used by JSON chart documents.
const (
	tagNoteP1   = "note_p1"
	tagNoteP2   = "note_p2"
	tagSampleP1 = "sample_p1"
	tagSampleP2 = "sample_p2"
	tagAuto     = "auto"
	tagEnd      = "end"
)

type jsonDocument struct {
	Charts []json.RawMessage `json:"charts"`
}

type jsonChart struct {
	Events json.RawMessage `json:"events"`
}

// jsonEvent is one parsed event of a JSON chart.
type jsonEvent interface {
	apply(c *decoderContext) error
}

type noteEvent struct{ player, offset, slot, value int }
type sampleEvent struct{ player, offset, slot, soundID int }
type autoEvent struct{ offset, soundID int }
type endEvent struct{ offset, player int }

func (e noteEvent) apply(c *decoderContext) error {
	return c.note(e.offset, e.player, e.slot, e.value)
}

func (e sampleEvent) apply(c *decoderContext) error {
	return c.rebind(e.offset, e.player, e.slot, e.soundID)
}

func (e autoEvent) apply(c *decoderContext) error { return c.ambient(e.offset, e.soundID) }

func (e endEvent) apply(c *decoderContext) error { return c.end(e.offset, e.player) }

// DecodeJSON decodes a chart document of the form
// {"charts": [{"events": groups}]}, where groups is an object or array of
// event arrays. The selector indexes the charts array.
func (d *Decoder) DecodeJSON(path string, data []byte, chartID int) (*Timeline, error) {
	if err := ValidateChartID(chartID); err != nil {
		return nil, err
	}
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, binfmt.Errorf(path, jsonOffset(err), "%v", err)
	}
	pos := chartID
	if pos >= len(doc.Charts) {
		return nil, &ChartNotFoundError{Path: path, ID: chartID}
	}

	var ch jsonChart
	if err := json.Unmarshal(doc.Charts[pos], &ch); err != nil {
		return nil, binfmt.Errorf(path, -1, "charts[%d]: %v", pos, err)
	}
	if len(ch.Events) == 0 {
		return nil, binfmt.Errorf(path, -1, "charts[%d]: missing events", pos)
	}
	groups, err := eventGroups(ch.Events)
	if err != nil {
		return nil, binfmt.Errorf(path, -1, "charts[%d].events: %v", pos, err)
	}

	ctx := d.newContext(path)
	for _, g := range groups {
		var raws []json.RawMessage
		if err := json.Unmarshal(g.body, &raws); err != nil {
			return nil, binfmt.Errorf(path, -1, "charts[%d].events[%s]: event group must be an array", pos, g.label)
		}
		for i, raw := range raws {
			ev, err := parseEvent(raw)
			if err != nil {
				return nil, binfmt.Errorf(path, -1, "charts[%d].events[%s][%d]: %v", pos, g.label, i, err)
			}
			if err := ev.apply(ctx); err != nil {
				return nil, err
			}
		}
	}
	return ctx.finish(d.log), nil
}

type eventGroup struct {
	label string
	body  json.RawMessage
}

// eventGroups splits the events value into groups, keeping document order
// for object keys.
func eventGroups(raw json.RawMessage) ([]eventGroup, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) > 0 && raw[0] == '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		groups := make([]eventGroup, len(list))
		for i, body := range list {
			groups[i] = eventGroup{label: strconv.Itoa(i), body: body}
		}
		return groups, nil
	case len(raw) > 0 && raw[0] == '{':
		dec := json.NewDecoder(bytes.NewReader(raw))
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var groups []eventGroup
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := tok.(string)
			var body json.RawMessage
			if err := dec.Decode(&body); err != nil {
				return nil, err
			}
			groups = append(groups, eventGroup{label: strconv.Quote(key), body: body})
		}
		return groups, nil
	}
	return nil, fmt.Errorf("events must be an object or an array")
}

// parseEvent validates one event object against the field set of its tag.
func parseEvent(raw json.RawMessage) (jsonEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("event must be an object")
	}
	tagRaw, ok := fields["event"]
	if !ok {
		return nil, fmt.Errorf("missing \"event\" tag")
	}
	var tag string
	if err := json.Unmarshal(tagRaw, &tag); err != nil {
		return nil, fmt.Errorf("\"event\" tag must be a string")
	}

	f := fieldReader{fields: fields}
	var ev jsonEvent
	switch tag {
	case tagNoteP1, tagNoteP2:
		ev = noteEvent{
			player: playerOf(tag, tagNoteP1),
			offset: f.integer("offset"),
			slot:   f.integer("slot"),
			value:  f.integer("value"),
		}
	case tagSampleP1, tagSampleP2:
		ev = sampleEvent{
			player:  playerOf(tag, tagSampleP1),
			offset:  f.integer("offset"),
			slot:    f.integer("slot"),
			soundID: f.integer("sound_id"),
		}
	case tagAuto:
		ev = autoEvent{offset: f.integer("offset"), soundID: f.integer("sound_id")}
	case tagEnd:
		ev = endEvent{offset: f.integer("offset"), player: f.integer("player")}
	default:
		return nil, fmt.Errorf("unknown event tag %q", tag)
	}
	if f.err != nil {
		return nil, fmt.Errorf("%s: %w", tag, f.err)
	}
	return ev, nil
}

func playerOf(tag, p1 string) int {
	if tag == p1 {
		return 0
	}
	return 1
}

// fieldReader reads integer fields, keeping the first error.
type fieldReader struct {
	fields map[string]json.RawMessage
	err    error
}

func (r *fieldReader) integer(name string) int {
	if r.err != nil {
		return 0
	}
	raw, ok := r.fields[name]
	if !ok {
		r.err = fmt.Errorf("missing field %q", name)
		return 0
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		r.err = fmt.Errorf("field %q must be an integer, got %s", name, raw)
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		r.err = fmt.Errorf("field %q must be an integer, got %s", name, raw)
		return 0
	}
	v, err := n.Int64()
	if err != nil || v < math.MinInt32 || v > math.MaxInt32 {
		r.err = fmt.Errorf("field %q must be a 32-bit integer, got %s", name, raw)
		return 0
	}
	return int(v)
}

func jsonOffset(err error) int64 {
	if se, ok := err.(*json.SyntaxError); ok {
		return se.Offset
	}
	return -1
}
