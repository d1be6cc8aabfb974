// Package render runs a complete chart render: extract samples, decode the
// chart, mix and write the output file.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hannahherbig/2dxrender/internal/archive"
	"github.com/hannahherbig/2dxrender/internal/audio"
	"github.com/hannahherbig/2dxrender/internal/chart"
	"github.com/hannahherbig/2dxrender/internal/config"
	"github.com/hannahherbig/2dxrender/internal/mixdown"
	"github.com/hannahherbig/2dxrender/internal/output"
	"github.com/mitchellh/go-homedir"
	"github.com/pion/logging"
)

// Job names the inputs and output of one render.
type Job struct {
	ChartPath  string // .1 or .json chart
	SamplePath string // .s3p/.2dx archive or folder of samples
	OutputPath string
}

// Renderer runs render jobs. It is safe for concurrent use.
type Renderer struct {
	loggers logging.LoggerFactory
	log     logging.LeveledLogger
}

// New creates a renderer whose components log through loggers.
func New(loggers logging.LoggerFactory) *Renderer {
	return &Renderer{loggers: loggers, log: loggers.NewLogger("render")}
}

// Render runs job with cfg. Configuration is validated before any input is
// opened; on failure no output file is left behind.
func (r *Renderer) Render(ctx context.Context, cfg config.RenderConfig, job Job) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := chart.ValidateChartID(cfg.ChartID); err != nil {
		return err
	}
	format, _ := cfg.Format()
	ffmpeg, err := r.ffmpeg(cfg, format)
	if err != nil {
		return err
	}
	outPath, err := homedir.Expand(job.OutputPath)
	if err != nil {
		return err
	}

	start := time.Now()
	extractor := archive.NewExtractor(archive.Options{InMemory: cfg.InMemory, TempDir: cfg.TempDir}, r.loggers.NewLogger("archive"))
	clapSound := ""
	if cfg.AssistClap {
		clapSound = cfg.AssistClapSound
	}
	store, err := extractor.Extract(job.SamplePath, clapSound)
	if err != nil {
		return err
	}
	defer store.Close()

	clapIndex := -1
	if cfg.AssistClap {
		if store.ClapIndex() == archive.NoSound {
			cfg = cfg.WithoutAssistClap()
		} else {
			clapIndex = store.ClapIndex()
		}
	}

	decoder := chart.NewDecoder(store, chart.Options{NoBGM: cfg.NoBGM, ClapIndex: clapIndex}, r.loggers.NewLogger("chart"))
	tl, err := decoder.DecodeFile(job.ChartPath, cfg.ChartID)
	if err != nil {
		return err
	}

	engine := mixdown.NewEngine(store, audio.NewDecoder(ffmpeg, r.loggers.NewLogger("audio")), mixdown.Settings{
		Volume:      cfg.Volume,
		ClapVolume:  cfg.AssistClapVolume,
		AssistClap:  cfg.AssistClap,
		Workers:     cfg.Workers,
		SubmixWidth: cfg.SubmixWidth,
	}, r.loggers.NewLogger("mixdown"))
	track, err := engine.Mix(ctx, tl)
	if err != nil {
		return err
	}

	w := output.NewWriter(format, cfg.Tags, ffmpeg, cfg.TempDir, r.loggers.NewLogger("output"))
	if err := w.Write(ctx, track, outPath); err != nil {
		return err
	}
	r.log.Infof("rendered chart %d of %s in %s", cfg.ChartID, job.ChartPath, time.Since(start).Round(time.Millisecond))
	return nil
}

// ffmpeg resolves the FFmpeg binary. It is required for mp3 and flac output
// and for an explicit override; otherwise it is optional and only needed
// for samples that cannot be decoded natively.
func (r *Renderer) ffmpeg(cfg config.RenderConfig, format config.Format) (string, error) {
	path, err := audio.FindFFmpeg(cfg.FFmpegPath)
	if err == nil {
		return path, nil
	}
	if output.NeedsFFmpeg(format) || cfg.FFmpegPath != "" {
		return "", fmt.Errorf("resolve ffmpeg for %s output: %w", format, err)
	}
	if errors.Is(err, audio.ErrFFmpegNotFound) {
		r.log.Debugf("ffmpeg not found; only PCM WAV and MP3 samples can be decoded")
		return "", nil
	}
	return "", err
}
