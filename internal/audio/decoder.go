package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"runtime"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mitchellh/go-homedir"
	"github.com/pion/logging"
)

// ErrFFmpegNotFound is returned when a resource needs FFmpeg and none was
// configured or found.
var ErrFFmpegNotFound = errors.New("ffmpeg not found")

const wavFormatPCM = 1

// FindFFmpeg resolves the FFmpeg binary. A non-empty override is used as is
// (after ~ expansion) and must exist; otherwise PATH and the usual install
// locations are searched.
func FindFFmpeg(override string) (string, error) {
	if override != "" {
		path, err := homedir.Expand(override)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w at %s", ErrFFmpegNotFound, path)
		}
		return path, nil
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "windows":
		commonPaths = []string{
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files (x86)\ffmpeg\bin\ffmpeg.exe`,
		}
	case "darwin":
		commonPaths = []string{
			"/usr/local/bin/ffmpeg",
			"/opt/homebrew/bin/ffmpeg",
			"/opt/local/bin/ffmpeg",
		}
	default:
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/opt/ffmpeg/bin/ffmpeg",
		}
	}
	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrFFmpegNotFound
}

// Decoder turns encoded keysounds into Clips. PCM WAV and MP3 are decoded
// natively; everything else (WMA, ADPCM WAV, OGG) goes through FFmpeg.
type Decoder struct {
	ffmpeg string
	log    logging.LeveledLogger
}

// NewDecoder creates a decoder. ffmpegPath may be empty, in which case only
// natively supported resources can be decoded.
func NewDecoder(ffmpegPath string, log logging.LeveledLogger) *Decoder {
	return &Decoder{ffmpeg: ffmpegPath, log: log}
}

// Decode decodes data, using name only for diagnostics. The container is
// sniffed from the leading bytes.
func (d *Decoder) Decode(ctx context.Context, name string, data []byte) (Clip, error) {
	switch {
	case isWAV(data):
		clip, ok, err := d.decodeWAV(data)
		if ok || err != nil {
			return clip, err
		}
		d.log.Tracef("%s: non-PCM wav, falling back to ffmpeg", name)
	case isMP3(data):
		return d.decodeMP3(data)
	}
	return d.decodeFFmpeg(ctx, name, data)
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// decodeWAV decodes integer PCM WAV. ok is false for other encodings.
func (d *Decoder) decodeWAV(data []byte) (clip Clip, ok bool, err error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, false, fmt.Errorf("invalid wav data")
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, false, nil
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, true, fmt.Errorf("wav: %w", err)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	samples := make([]float32, len(buf.Data))
	if bitDepth == 8 {
		// 8-bit PCM is unsigned.
		for i, v := range buf.Data {
			samples[i] = float32(v-128) / 128
		}
	} else {
		factor := float32(math.Pow(2, float64(bitDepth-1)))
		for i, v := range buf.Data {
			samples[i] = float32(v) / factor
		}
	}
	clip, err = normalize(samples, buf.Format.NumChannels, buf.Format.SampleRate)
	return clip, true, err
}

// decodeMP3 decodes MP3 data; go-mp3 always yields 16-bit stereo.
func (d *Decoder) decodeMP3(data []byte) (Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return normalize(samples, Channels, dec.SampleRate())
}

// decodeFFmpeg pipes data through FFmpeg, which also does the stereo
// conversion and resampling.
func (d *Decoder) decodeFFmpeg(ctx context.Context, name string, data []byte) (Clip, error) {
	if d.ffmpeg == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrFFmpegNotFound)
	}
	cmd := exec.CommandContext(ctx, d.ffmpeg,
		"-i", "pipe:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
	}

	// Keep whole stereo frames only.
	out = out[:len(out)-len(out)%(4*Channels)]
	clip := make(Clip, len(out)/4)
	for i := range clip {
		clip[i] = math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
	}
	return clip, nil
}

func normalize(samples []float32, channels, rate int) (Clip, error) {
	stereo, err := ToStereo(samples, channels)
	if err != nil {
		return nil, err
	}
	out, err := Resample(stereo, Channels, rate, SampleRate)
	if err != nil {
		return nil, err
	}
	return Clip(out), nil
}
