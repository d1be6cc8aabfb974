// Package output encodes a rendered master track to disk.
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	pcm "github.com/hannahherbig/2dxrender/internal/audio"
	"github.com/hannahherbig/2dxrender/internal/config"
	"github.com/pion/logging"
)

// Master is a rendered stereo track at pcm.SampleRate.
type Master interface {
	Frames() int
	Int16() []int16
	Float32() []float32
}

// Writer writes masters in one format.
type Writer struct {
	format  config.Format
	tags    config.Tags
	ffmpeg  string
	tempDir string
	log     logging.LeveledLogger
}

// NewWriter creates a writer. ffmpegPath is required for mp3 and flac;
// intermediate files go to tempDir, or the system default when empty.
func NewWriter(format config.Format, tags config.Tags, ffmpegPath, tempDir string, log logging.LeveledLogger) *Writer {
	if format == config.FormatOpus && tags != (config.Tags{}) {
		log.Warnf("%s output does not carry tags; album, title and artist are dropped", format)
	}
	return &Writer{format: format, tags: tags, ffmpeg: ffmpegPath, tempDir: tempDir, log: log}
}

// NeedsFFmpeg reports whether format is produced by FFmpeg.
func NeedsFFmpeg(format config.Format) bool {
	return format == config.FormatMP3 || format == config.FormatFLAC
}

// Write encodes m to path. The file is produced under a temporary sibling
// name and renamed into place only when encoding succeeded, so a failed
// write never leaves a partial file behind.
func (w *Writer) Write(ctx context.Context, m Master, path string) (err error) {
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%s.partial", filepath.Base(path), uuid.NewString()))
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	switch w.format {
	case config.FormatWAV:
		err = writeWAV(tmp, m.Int16())
	case config.FormatMP3, config.FormatFLAC:
		err = w.transcode(ctx, m, tmp)
	case config.FormatOpus:
		err = writeOpus(tmp, m.Float32())
	default:
		err = &config.ConfigError{Field: "output-format", Value: string(w.format), Reason: "unsupported"}
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	w.log.Infof("wrote %s (%s, %d frames)", path, w.format, m.Frames())
	return nil
}

// writeWAV writes 16-bit stereo PCM at pcm.SampleRate.
func writeWAV(path string, samples []int16) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, pcm.SampleRate, pcm.BitDepth, pcm.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: pcm.Channels, SampleRate: pcm.SampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: pcm.BitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish wav: %w", err)
	}
	return f.Close()
}
