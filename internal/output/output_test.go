package output

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	pcm "github.com/hannahherbig/2dxrender/internal/audio"
	"github.com/hannahherbig/2dxrender/internal/config"
	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMaster []int16

func (m fakeMaster) Frames() int    { return len(m) / pcm.Channels }
func (m fakeMaster) Int16() []int16 { return m }
func (m fakeMaster) Float32() []float32 {
	out := make([]float32, len(m))
	for i, v := range m {
		out[i] = float32(v) / 32767
	}
	return out
}

func sine(frames int) fakeMaster {
	m := make(fakeMaster, frames*pcm.Channels)
	for i := range m {
		m[i] = int16((i % 200) * 100)
	}
	return m
}

func newTestWriter(format config.Format, ffmpeg, tempDir string) *Writer {
	tags := config.Tags{Album: "Album", Artist: "Artist", Title: "Title", Track: "1001", Year: "2024"}
	return NewWriter(format, tags, ffmpeg, tempDir, logging.NewDefaultLoggerFactory().NewLogger("output"))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestWriteWAV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.wav")
	master := fakeMaster{0, 1, -1, 32767, -32767, 1234}

	require.NoError(t, newTestWriter(config.FormatWAV, "", "").Write(context.Background(), master, path))
	assert.Equal(t, []string{"song.wav"}, dirNames(t, dir), "no temporary files left behind")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	dec := wav.NewDecoder(bytes.NewReader(data))
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(pcm.SampleRate), dec.SampleRate)
	assert.Equal(t, uint16(pcm.Channels), dec.NumChans)
	assert.Equal(t, uint16(pcm.BitDepth), dec.BitDepth)

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	want := make([]int, len(master))
	for i, v := range master {
		want[i] = int(v)
	}
	assert.Equal(t, want, buf.Data)
}

func TestFailedWriteLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	err := newTestWriter(config.FormatMP3, "", "").Write(context.Background(), sine(10), path)
	assert.True(t, errors.Is(err, pcm.ErrFFmpegNotFound), "err = %v", err)
	assert.Empty(t, dirNames(t, dir))

	err = newTestWriter(config.FormatWAV, "", "").Write(context.Background(), sine(10), filepath.Join(dir, "missing", "song.wav"))
	assert.Error(t, err)
}

func TestFFmpegArgs(t *testing.T) {
	tags := config.Tags{Album: "A", Title: "T", Year: "2020", Track: "7"}
	args := ffmpegArgs(config.FormatMP3, tags, "in.wav", "out.part")
	assert.Equal(t, []string{
		"-y", "-loglevel", "error", "-i", "in.wav",
		"-codec:a", "libmp3lame", "-b:a", "320k", "-id3v2_version", "3",
		"-metadata", "album=A",
		"-metadata", "title=T",
		"-metadata", "date=2020",
		"-metadata", "track=7",
		"-f", "mp3", "out.part",
	}, args)

	args = ffmpegArgs(config.FormatFLAC, config.Tags{}, "in.wav", "out.part")
	assert.Equal(t, []string{"-y", "-loglevel", "error", "-i", "in.wav", "-codec:a", "flac", "-f", "flac", "out.part"}, args)
}

func TestTranscodeRemovesIntermediate(t *testing.T) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	for _, format := range []config.Format{config.FormatMP3, config.FormatFLAC} {
		dir, tmp := t.TempDir(), t.TempDir()
		path := filepath.Join(dir, "song"+format.Ext())
		require.NoError(t, newTestWriter(format, ffmpeg, tmp).Write(context.Background(), sine(4410), path))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
		assert.Empty(t, dirNames(t, tmp), "%s: intermediate wav removed", format)
	}
}

func TestWriteOpus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.ogg")
	require.NoError(t, newTestWriter(config.FormatOpus, "", "").Write(context.Background(), sine(pcm.SampleRate/2), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("OggS")))
	assert.True(t, bytes.Contains(data, []byte("OpusHead")))
}

func TestOpusWarnsAboutDroppedTags(t *testing.T) {
	var logs bytes.Buffer
	loggers := &logging.DefaultLoggerFactory{Writer: &logs, DefaultLogLevel: logging.LogLevelWarn}

	NewWriter(config.FormatOpus, config.Tags{}, "", "", loggers.NewLogger("output"))
	assert.Empty(t, logs.String())

	NewWriter(config.FormatWAV, config.Tags{Title: "Title"}, "", "", loggers.NewLogger("output"))
	assert.Empty(t, logs.String(), "wav is never tagged")

	NewWriter(config.FormatOpus, config.Tags{Title: "Title"}, "", "", loggers.NewLogger("output"))
	assert.Contains(t, logs.String(), "does not carry tags")
}
