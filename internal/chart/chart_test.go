package chart

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hannahherbig/2dxrender/internal/binfmt"
	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnknownID = errors.New("unknown id")

// idLookup maps sample ids to store indices; id 0 is no sound.
type idLookup map[int]int

func (l idLookup) Lookup(id int) (int, error) {
	if id == 0 {
		return noSample, nil
	}
	if idx, ok := l[id]; ok {
		return idx, nil
	}
	return noSample, fmt.Errorf("id %d: %w", id, errUnknownID)
}

// ids 1..n map to indices 0..n-1, like an extracted archive.
func sequentialLookup(n int) idLookup {
	l := idLookup{}
	for i := 1; i <= n; i++ {
		l[i] = i - 1
	}
	return l
}

func newTestDecoder(lookup SampleLookup, opts Options) *Decoder {
	return NewDecoder(lookup, opts, logging.NewDefaultLoggerFactory().NewLogger("chart"))
}

type record struct {
	offset  int32
	command byte
	param   byte
	value   int16
}

// buildChartFile places records for chartID right after the 12-entry
// directory. Trailing bytes are appended after the records unchanged.
func buildChartFile(chartID int, records []record, trailing []byte) []byte {
	dir := make([]byte, ChartSlots*8)
	var body bytes.Buffer
	for _, r := range records {
		binary.Write(&body, binary.LittleEndian, r.offset)
		body.WriteByte(r.command)
		body.WriteByte(r.param)
		binary.Write(&body, binary.LittleEndian, r.value)
	}
	body.Write(trailing)
	binary.LittleEndian.PutUint32(dir[chartID*8:], uint32(len(dir)))
	binary.LittleEndian.PutUint32(dir[chartID*8+4:], uint32(body.Len()))
	return append(dir, body.Bytes()...)
}

func sentinel() record { return record{offset: endOfChart} }

// --- Binary decoding ---

func TestRetroactiveRebindPatchesLaterNote(t *testing.T) {
	file := buildChartFile(2, []record{
		{0, cmdLoadSampleP1, 3, 1},
		{50, cmdKeyP1, 3, 0},
		{150, cmdKeyP1, 3, 0},
		{100, cmdLoadSampleP1, 3, 2}, // decoded after the note at 150
		sentinel(),
	}, nil)

	tl, err := newTestDecoder(sequentialLookup(4), Options{ClapIndex: -1}).DecodeBinary("song.1", file, 2)
	require.NoError(t, err)

	events := tl.Events()
	require.Len(t, events, 2)
	assert.Equal(t, Event{Offset: 50, Sample: 0, Slot: 3, Player: 0}, events[0], "note before the rebind keeps the old sample")
	assert.Equal(t, Event{Offset: 150, Sample: 1, Slot: 3, Player: 0}, events[1], "note after the rebind plays the new sample")
}

func TestRebindOnlyTouchesSamePlayerAndSlot(t *testing.T) {
	file := buildChartFile(0, []record{
		{0, cmdLoadSampleP1, 3, 1},
		{0, cmdLoadSampleP1, 4, 1},
		{0, cmdLoadSampleP2, 3, 1},
		{200, cmdKeyP1, 4, 0},
		{200, cmdKeyP2, 3, 0},
		{100, cmdLoadSampleP1, 3, 3},
		sentinel(),
	}, nil)

	tl, err := newTestDecoder(sequentialLookup(4), Options{ClapIndex: -1}).DecodeBinary("song.1", file, 0)
	require.NoError(t, err)
	for _, e := range tl.Events() {
		assert.Equal(t, 0, e.Sample, "%v should not be rebound", e)
	}
}

func TestSentinelStopsDecoding(t *testing.T) {
	garbage := []byte{0x10, 0, 0, 0, cmdKeyP1, 9, 0, 0, 0xde, 0xad, 0xbe}
	file := buildChartFile(1, []record{
		{0, cmdLoadSampleP1, 1, 1},
		{10, cmdKeyP1, 1, 0},
		sentinel(),
	}, garbage)

	tl, err := newTestDecoder(sequentialLookup(2), Options{ClapIndex: -1}).DecodeBinary("song.1", file, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, tl.Len())
	assert.True(t, tl.Frozen())
}

func TestMissingSentinelIsFormatError(t *testing.T) {
	file := buildChartFile(1, []record{{0, cmdBgmNote, 0, 1}}, nil)
	_, err := newTestDecoder(sequentialLookup(2), Options{ClapIndex: -1}).DecodeBinary("song.1", file, 1)
	var fe *binfmt.FormatError
	assert.True(t, errors.As(err, &fe), "err = %v", err)
}

func TestNoBGMDropsOnlyIndexZero(t *testing.T) {
	records := []record{
		{0, cmdBgmNote, 0, 1},
		{0, cmdBgmNote, 0, 2},
		{500, cmdBgmNote, 0, 3},
		sentinel(),
	}
	file := buildChartFile(2, records, nil)

	tests := []struct {
		noBGM bool
		want  []int
	}{
		{false, []int{0, 1, 2}},
		{true, []int{1, 2}},
	}
	for _, tt := range tests {
		tl, err := newTestDecoder(sequentialLookup(3), Options{NoBGM: tt.noBGM, ClapIndex: -1}).DecodeBinary("song.1", file, 2)
		require.NoError(t, err)
		var got []int
		for _, e := range tl.Events() {
			got = append(got, e.Sample)
			assert.Equal(t, -1, e.Slot)
		}
		assert.Equal(t, tt.want, got, "noBGM=%v", tt.noBGM)
	}
}

func TestAmbientWithoutSoundIsDropped(t *testing.T) {
	file := buildChartFile(0, []record{{0, cmdBgmNote, 0, 0}, sentinel()}, nil)
	tl, err := newTestDecoder(sequentialLookup(1), Options{ClapIndex: -1}).DecodeBinary("song.1", file, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, tl.Len())
	assert.False(t, tl.Ends()[0].Bounded, "a silent cue must not look like an end marker")
}

func TestAssistClapOnPrimaryLane(t *testing.T) {
	const clap = 9
	file := buildChartFile(2, []record{
		{0, cmdLoadSampleP1, PrimaryLane, 1},
		{0, cmdLoadSampleP1, 2, 2},
		{1000, cmdKeyP1, PrimaryLane, 250},
		{1100, cmdKeyP1, 2, 0},
		sentinel(),
	}, nil)

	tl, err := newTestDecoder(sequentialLookup(2), Options{ClapIndex: clap}).DecodeBinary("song.1", file, 2)
	require.NoError(t, err)

	var claps, notes []Event
	for _, e := range tl.Events() {
		if e.Sample == clap {
			claps = append(claps, e)
		} else {
			notes = append(notes, e)
		}
	}
	require.Len(t, claps, 2)
	assert.Equal(t, Event{Offset: 1250, Sample: clap, Slot: -1}, claps[0])
	assert.Equal(t, Event{Offset: 1000, Sample: clap, Slot: -1}, claps[1])

	assert.Equal(t, []Event{
		{Offset: 1250, Sample: 0, Slot: PrimaryLane},
		{Offset: 1000, Sample: 0, Slot: PrimaryLane},
		{Offset: 1100, Sample: 1, Slot: 2},
	}, notes)
}

func TestPrimaryLaneWithoutClap(t *testing.T) {
	file := buildChartFile(2, []record{
		{0, cmdLoadSampleP2, PrimaryLane, 1},
		{1000, cmdKeyP2, PrimaryLane, 0},
		sentinel(),
	}, nil)
	tl, err := newTestDecoder(sequentialLookup(1), Options{ClapIndex: -1}).DecodeBinary("song.1", file, 2)
	require.NoError(t, err)
	assert.Equal(t, []Event{{Offset: 1000, Sample: 0, Slot: PrimaryLane, Player: 1}}, tl.Events())
}

func TestEndMarkersLastWins(t *testing.T) {
	file := buildChartFile(0, []record{
		{5000, cmdEnd, 0, 0},
		{7000, cmdEnd, 0, 0},
		sentinel(),
	}, nil)
	tl, err := newTestDecoder(sequentialLookup(1), Options{ClapIndex: -1}).DecodeBinary("song.1", file, 0)
	require.NoError(t, err)

	ends := tl.Ends()
	assert.Equal(t, End{Offset: 7000, Bounded: true}, ends[0])
	assert.Equal(t, End{}, ends[1], "player 2 has no end marker")
}

func TestBinaryErrors(t *testing.T) {
	good := buildChartFile(2, []record{sentinel()}, nil)
	dec := newTestDecoder(sequentialLookup(1), Options{ClapIndex: -1})

	var invalid *InvalidChartIDError
	for _, id := range []int{-1, ChartSlots, 99} {
		_, err := dec.DecodeBinary("song.1", good, id)
		assert.True(t, errors.As(err, &invalid), "id %d: err = %v", id, err)
	}

	var notFound *ChartNotFoundError
	_, err := dec.DecodeBinary("song.1", good, 3)
	assert.True(t, errors.As(err, &notFound), "empty directory entry: err = %v", err)
	_, err = dec.DecodeBinary("tiny.1", []byte{1, 2}, 0)
	assert.True(t, errors.As(err, &notFound), "short file: err = %v", err)

	unbound := buildChartFile(0, []record{{10, cmdKeyP1, 5, 0}, sentinel()}, nil)
	_, err = dec.DecodeBinary("song.1", unbound, 0)
	var fe *binfmt.FormatError
	assert.True(t, errors.As(err, &fe), "unbound slot: err = %v", err)

	unknown := buildChartFile(0, []record{{10, cmdLoadSampleP1, 5, 42}, sentinel()}, nil)
	_, err = dec.DecodeBinary("song.1", unknown, 0)
	assert.ErrorIs(t, err, errUnknownID)

	badPlayer := buildChartFile(0, []record{{10, cmdEnd, 2, 0}, sentinel()}, nil)
	_, err = dec.DecodeBinary("song.1", badPlayer, 0)
	assert.True(t, errors.As(err, &fe), "bad player: err = %v", err)
}

// --- JSON decoding ---

// jsonChartDoc holds its only populated chart at selector 2.
const jsonChartDoc = `{
  "charts": [{"events": []}, {"events": []}, {
    "events": {
      "0": [
        {"event": "sample_p1", "offset": 0, "slot": 3, "sound_id": 1},
        {"event": "auto", "offset": 0, "sound_id": 1}
      ],
      "1": [
        {"event": "note_p1", "offset": 150, "slot": 3, "value": 0},
        {"event": "sample_p1", "offset": 100, "slot": 3, "sound_id": 2},
        {"event": "end", "offset": 9000, "player": 0}
      ]
    }
  }]
}`

func TestJSONMatchesBinary(t *testing.T) {
	binFile := buildChartFile(2, []record{
		{0, cmdLoadSampleP1, 3, 1},
		{0, cmdBgmNote, 0, 1},
		{150, cmdKeyP1, 3, 0},
		{100, cmdLoadSampleP1, 3, 2},
		{9000, cmdEnd, 0, 0},
		sentinel(),
	}, nil)

	dec := newTestDecoder(sequentialLookup(3), Options{ClapIndex: -1})
	fromBinary, err := dec.DecodeBinary("song.1", binFile, 2)
	require.NoError(t, err)
	fromJSON, err := dec.DecodeJSON("song.json", []byte(jsonChartDoc), 2)
	require.NoError(t, err)

	assert.Equal(t, fromBinary.Events(), fromJSON.Events())
	assert.Equal(t, Event{Offset: 150, Sample: 1, Slot: 3}, fromJSON.Events()[1])
}

func TestJSONArrayGroups(t *testing.T) {
	doc := `{"charts":[{"events":[[{"event":"sample_p2","offset":0,"slot":1,"sound_id":2}],[{"event":"note_p2","offset":40,"slot":1,"value":0}]]}]}`
	tl, err := newTestDecoder(sequentialLookup(2), Options{ClapIndex: -1}).DecodeJSON("a.json", []byte(doc), 0)
	require.NoError(t, err)
	assert.Equal(t, []Event{{Offset: 40, Sample: 1, Slot: 1, Player: 1}}, tl.Events())
}

func TestJSONRejectsBadEvents(t *testing.T) {
	tests := []struct {
		name  string
		event string
	}{
		{"missing field", `{"event":"note_p1","offset":1,"slot":3}`},
		{"string number", `{"event":"auto","offset":"10","sound_id":1}`},
		{"fractional", `{"event":"auto","offset":1.5,"sound_id":1}`},
		{"unknown tag", `{"event":"bpm","offset":0}`},
		{"missing tag", `{"offset":0,"sound_id":1}`},
		{"not an object", `[1,2]`},
	}
	dec := newTestDecoder(sequentialLookup(1), Options{ClapIndex: -1})
	for _, tt := range tests {
		doc := fmt.Sprintf(`{"charts":[{"events":[[%s]]}]}`, tt.event)
		_, err := dec.DecodeJSON("bad.json", []byte(doc), 0)
		var fe *binfmt.FormatError
		assert.True(t, errors.As(err, &fe), "%s: err = %v", tt.name, err)
	}
}

func TestJSONChartSelection(t *testing.T) {
	two := `{"charts":[{"events":[]},{"events":[[{"event":"end","offset":5,"player":1}]]}]}`
	dec := newTestDecoder(sequentialLookup(1), Options{ClapIndex: -1})

	tl, err := dec.DecodeJSON("two.json", []byte(two), 1)
	require.NoError(t, err)
	assert.Equal(t, End{Offset: 5, Bounded: true}, tl.Ends()[1])

	var notFound *ChartNotFoundError
	_, err = dec.DecodeJSON("two.json", []byte(two), 4)
	assert.True(t, errors.As(err, &notFound), "err = %v", err)
	_, err = dec.DecodeJSON("none.json", []byte(`{"charts":[]}`), 0)
	assert.True(t, errors.As(err, &notFound), "err = %v", err)

	one := `{"charts":[{"events":[[{"event":"end","offset":5,"player":0}]]}]}`
	_, err = dec.DecodeJSON("one.json", []byte(one), 0)
	require.NoError(t, err)
	_, err = dec.DecodeJSON("one.json", []byte(one), 5)
	require.True(t, errors.As(err, &notFound), "a single chart only answers selector 0: err = %v", err)
	assert.Equal(t, 5, notFound.ID)

	var fe *binfmt.FormatError
	_, err = dec.DecodeJSON("broken.json", []byte(`{"charts":`), 0)
	assert.True(t, errors.As(err, &fe), "err = %v", err)
}

func TestDecodeFileDispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "chart.JSON")
	require.NoError(t, os.WriteFile(jsonPath, []byte(jsonChartDoc), 0o644))
	binPath := filepath.Join(dir, "chart.1")
	require.NoError(t, os.WriteFile(binPath, buildChartFile(2, []record{{3, cmdEnd, 1, 0}, sentinel()}, nil), 0o644))

	dec := newTestDecoder(sequentialLookup(3), Options{ClapIndex: -1})
	tl, err := dec.DecodeFile(jsonPath, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, tl.Len(), "auto, note and end; sample loads emit nothing")

	tl, err = dec.DecodeFile(binPath, 2)
	require.NoError(t, err)
	assert.Equal(t, End{Offset: 3, Bounded: true}, tl.Ends()[1])

	var invalid *InvalidChartIDError
	_, err = dec.DecodeFile(filepath.Join(dir, "missing.1"), 12)
	assert.True(t, errors.As(err, &invalid), "chart id is checked before the file is read")
}

// --- Timeline ---

func TestFrozenTimelinePanicsOnEmit(t *testing.T) {
	tl := NewTimeline(Event{Offset: 1, Sample: 0, Slot: 1})
	defer func() {
		if recover() == nil {
			t.Error("emit on a frozen timeline should panic")
		}
	}()
	tl.emit(Event{})
}

func TestEventsReturnsCopy(t *testing.T) {
	tl := NewTimeline(Event{Offset: 1, Sample: 0, Slot: 1})
	ev := tl.Events()
	ev[0].Sample = 42
	if tl.Events()[0].Sample != 0 {
		t.Error("Events() exposed the internal arena")
	}
}
