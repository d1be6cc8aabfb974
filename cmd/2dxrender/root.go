package main

import (
	"context"

	"github.com/hannahherbig/2dxrender/internal/config"
	"github.com/pion/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	defaults = config.Load()
	logLevel string
	loggers  *logging.DefaultLoggerFactory
)

var rootCmd = &cobra.Command{
	Use:   "2dxrender",
	Short: "Render rhythm game charts to audio",
	Long: `2dxrender mixes the keysounds of a chart into a single audio file.
Samples come from S3P or 2DX archives or a folder of extracted files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := config.ParseLogLevel(logLevel)
		if err != nil {
			return err
		}
		loggers = logging.NewDefaultLoggerFactory()
		loggers.DefaultLogLevel = level
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaults.LogLevel, "log level: disabled, error, warn, info, debug or trace")
}

// Execute runs the root command and exits with status 1 on error.
func Execute(ctx context.Context) {
	cobra.CheckErr(rootCmd.ExecuteContext(ctx))
}

// addMixFlags registers the settings shared by single and batch renders.
func addMixFlags(fs *pflag.FlagSet, cfg *config.RenderConfig) {
	fs.BoolVarP(&cfg.NoBGM, "no-bgm", "n", cfg.NoBGM, "leave out the background track")
	fs.Float64VarP(&cfg.Volume, "volume", "r", cfg.Volume, "render volume (1.0 = 100%)")
	fs.BoolVarP(&cfg.AssistClap, "assist-clap", "a", cfg.AssistClap, "add a clap on every primary lane note")
	fs.StringVarP(&cfg.AssistClapSound, "assist-clap-sound", "p", cfg.AssistClapSound, "clap sound file")
	fs.Float64VarP(&cfg.AssistClapVolume, "volume-clap", "k", cfg.AssistClapVolume, "assist clap volume (1.0 = 100%)")
	fs.StringVarP(&cfg.OutputFormat, "output-format", "f", cfg.OutputFormat, "output format: wav, mp3, flac or opus")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent sample decoders")
	fs.IntVar(&cfg.SubmixWidth, "submix-width", cfg.SubmixWidth, "clips summed per sub-mix group")
	fs.BoolVar(&cfg.InMemory, "in-memory", cfg.InMemory, "keep extracted samples in memory")
	fs.StringVar(&cfg.TempDir, "temp-dir", cfg.TempDir, "directory for extracted samples and intermediate files")
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "path to the ffmpeg binary")
}
