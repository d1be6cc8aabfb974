package output

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	pcm "github.com/hannahherbig/2dxrender/internal/audio"
	"github.com/hannahherbig/2dxrender/internal/config"
)

// transcode renders m as an intermediate WAV and has FFmpeg encode it into
// path. The intermediate file is always removed.
func (w *Writer) transcode(ctx context.Context, m Master, path string) error {
	if w.ffmpeg == "" {
		return fmt.Errorf("%s output: %w", w.format, pcm.ErrFFmpegNotFound)
	}
	dir := w.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	wavPath := filepath.Join(dir, "2dxrender-"+uuid.NewString()+".wav")
	defer os.Remove(wavPath)
	if err := writeWAV(wavPath, m.Int16()); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, w.ffmpeg, ffmpegArgs(w.format, w.tags, wavPath, path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %s encode: %w: %s", w.format, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

func ffmpegArgs(format config.Format, tags config.Tags, in, out string) []string {
	args := []string{"-y", "-loglevel", "error", "-i", in}
	switch format {
	case config.FormatMP3:
		args = append(args, "-codec:a", "libmp3lame", "-b:a", "320k", "-id3v2_version", "3")
	case config.FormatFLAC:
		args = append(args, "-codec:a", "flac")
	}
	for _, kv := range []struct{ key, value string }{
		{"album", tags.Album},
		{"album_artist", tags.AlbumArtist},
		{"title", tags.Title},
		{"artist", tags.Artist},
		{"genre", tags.Genre},
		{"date", tags.Year},
		{"track", tags.Track},
	} {
		if kv.value != "" {
			args = append(args, "-metadata", kv.key+"="+kv.value)
		}
	}
	return append(args, "-f", string(format), out)
}
