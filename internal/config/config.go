package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/pion/logging"
)

// Format is an output container.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatOpus Format = "opus"
)

// Formats lists every supported output format.
var Formats = []Format{FormatWAV, FormatMP3, FormatFLAC, FormatOpus}

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string {
	if f == FormatOpus {
		return ".ogg"
	}
	return "." + string(f)
}

// ParseFormat resolves a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	name := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range Formats {
		if f == name {
			return f, nil
		}
	}
	return "", &ConfigError{Field: "output-format", Value: s, Reason: "unsupported output format"}
}

var logLevels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

// ParseLogLevel resolves a case-insensitive log level name. The empty string
// means info.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return logging.LogLevelInfo, nil
	}
	if l, ok := logLevels[name]; ok {
		return l, nil
	}
	return logging.LogLevelDisabled, &ConfigError{Field: "log-level", Value: s, Reason: "want disabled, error, warn, info, debug or trace"}
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %q: %s", e.Field, e.Value, e.Reason)
}

// Tags are descriptive fields copied verbatim into compressed outputs.
type Tags struct {
	Album       string
	AlbumArtist string
	Title       string
	Artist      string
	Genre       string
	Year        string
	Track       string
}

// RenderConfig is the read-only configuration for one render. Components take
// it by value; nothing in the module mutates a caller's copy.
type RenderConfig struct {
	ChartID int

	NoBGM            bool
	Volume           float64 // render volume (1.0 = 100%)
	AssistClap       bool
	AssistClapSound  string
	AssistClapVolume float64

	OutputFormat string
	Tags         Tags

	Workers     int // decode worker pool size
	SubmixWidth int // clips per sub-mix group
	InMemory    bool
	TempDir     string
	FFmpegPath  string
	LogLevel    string
}

// Load reads configuration defaults from environment variables.
func Load() RenderConfig {
	return RenderConfig{
		ChartID: envInt("RENDER_CHART", 2),

		NoBGM:            envBool("RENDER_NO_BGM", false),
		Volume:           envFloat("RENDER_VOLUME", 0.85),
		AssistClap:       envBool("RENDER_ASSIST_CLAP", false),
		AssistClapSound:  envStr("RENDER_CLAP_SOUND", "clap.wav"),
		AssistClapVolume: envFloat("RENDER_CLAP_VOLUME", 1.25),

		OutputFormat: envStr("RENDER_FORMAT", "mp3"),

		Workers:     envInt("RENDER_WORKERS", runtime.NumCPU()),
		SubmixWidth: envInt("RENDER_SUBMIX_WIDTH", 128),
		InMemory:    envBool("RENDER_IN_MEMORY", false),
		TempDir:     envStr("RENDER_TEMP_DIR", ""),
		FFmpegPath:  envStr("RENDER_FFMPEG", ""),
		LogLevel:    envStr("RENDER_LOG_LEVEL", "info"),
	}
}

// Format returns the parsed output format.
func (c RenderConfig) Format() (Format, error) {
	return ParseFormat(c.OutputFormat)
}

// Validate checks every field that could fail later in the render, so that
// bad configuration is rejected before any input is touched.
func (c RenderConfig) Validate() error {
	if _, err := c.Format(); err != nil {
		return err
	}
	if c.Volume < 0 {
		return &ConfigError{Field: "volume", Value: ftoa(c.Volume), Reason: "must not be negative"}
	}
	if c.AssistClapVolume < 0 {
		return &ConfigError{Field: "volume-clap", Value: ftoa(c.AssistClapVolume), Reason: "must not be negative"}
	}
	if c.Workers < 1 {
		return &ConfigError{Field: "workers", Value: strconv.Itoa(c.Workers), Reason: "must be at least 1"}
	}
	if c.SubmixWidth < 1 {
		return &ConfigError{Field: "submix-width", Value: strconv.Itoa(c.SubmixWidth), Reason: "must be at least 1"}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// WithoutAssistClap returns a copy of c with assist clap disabled.
func (c RenderConfig) WithoutAssistClap() RenderConfig {
	c.AssistClap = false
	return c
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
