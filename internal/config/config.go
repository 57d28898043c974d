// Package config provides the configuration schema, loader, credential
// lookup, and provider factory registry for voxdispatch.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/voxdispatch/internal/selector"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog returns the slog level for l. Unknown levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatTint LogFormat = "tint"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON || f == LogFormatTint
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Probe     ProbeConfig     `yaml:"probe"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds process-wide settings.
type ServerConfig struct {
	// Mode selects the provider set: offline, online, or auto.
	Mode selector.Mode `yaml:"mode"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// LogFile, when set, receives logs in addition to stderr and is rotated.
	LogFile string `yaml:"log_file"`

	// ScratchDir holds generated output files. Empty means os.TempDir().
	ScratchDir string `yaml:"scratch_dir"`

	// AdminAddr is the listen address of the health and metrics endpoint.
	// Empty disables it.
	AdminAddr string `yaml:"admin_addr"`

	// ServiceName is the service.name reported in telemetry.
	ServiceName string `yaml:"service_name"`
}

// ProbeConfig bounds the startup availability probes.
type ProbeConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// SynthesisConfig bounds provider calls.
type SynthesisConfig struct {
	Timeout time.Duration `yaml:"timeout"`

	// Concurrency is the number of batch items synthesized at once.
	Concurrency int `yaml:"concurrency"`
}

// PlaybackConfig controls local audio playback. It is hot-reloadable.
type PlaybackConfig struct {
	MaxDuration  time.Duration `yaml:"max_duration"`
	PollInterval time.Duration `yaml:"poll_interval"`
	SampleRate   int           `yaml:"sample_rate"`
}

// ProvidersConfig holds per-provider settings. Credentials never live here;
// see [Credentials].
type ProvidersConfig struct {
	System     SystemConfig     `yaml:"system"`
	Espeak     EspeakConfig     `yaml:"espeak"`
	Festival   FestivalConfig   `yaml:"festival"`
	Coqui      CoquiConfig      `yaml:"coqui"`
	GTTS       GTTSConfig       `yaml:"gtts"`
	Azure      AzureConfig      `yaml:"azure"`
	Polly      PollyConfig      `yaml:"polly"`
	Watson     WatsonConfig     `yaml:"watson"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`

	// Disabled lists provider IDs that are never constructed or probed.
	Disabled []string `yaml:"disabled"`
}

// SystemConfig configures the platform speech engine.
type SystemConfig struct {
	// Binary overrides the platform command (say, powershell, espeak-ng).
	Binary string `yaml:"binary"`
}

// EspeakConfig configures eSpeak.
type EspeakConfig struct {
	Binary string `yaml:"binary"`
}

// FestivalConfig configures Festival.
type FestivalConfig struct {
	Binary    string `yaml:"binary"`
	Text2Wave string `yaml:"text2wave"`
}

// CoquiConfig configures the Coqui TTS server client.
type CoquiConfig struct {
	URL      string `yaml:"url"`
	APIMode  string `yaml:"api_mode"`
	Language string `yaml:"language"`
}

// GTTSConfig configures the Google Translate TTS client.
type GTTSConfig struct {
	BaseURL string `yaml:"base_url"`
	TLD     string `yaml:"tld"`
}

// AzureConfig configures Azure Speech.
type AzureConfig struct {
	OutputFormat string `yaml:"output_format"`
	Endpoint     string `yaml:"endpoint"`
}

// PollyConfig configures Amazon Polly. Region falls back to AWS_REGION.
type PollyConfig struct {
	Region string `yaml:"region"`
	Engine string `yaml:"engine"`
}

// WatsonConfig configures IBM Watson. The service URL comes from
// IBM_WATSON_URL.
type WatsonConfig struct{}

// OpenAIConfig configures OpenAI speech.
type OpenAIConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// ElevenLabsConfig configures ElevenLabs.
type ElevenLabsConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Defaults.
const (
	DefaultServiceName       = "voxdispatch"
	DefaultProbeTimeout      = 5 * time.Second
	DefaultSynthesisTimeout  = 2 * time.Minute
	DefaultPlaybackDuration  = 10 * time.Minute
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultPlaybackRate      = 24000
	DefaultCoquiURL          = "http://localhost:5002"
	DefaultOpenAIModel       = "tts-1"
	DefaultElevenLabsModel   = "eleven_flash_v2_5"
	DefaultAzureOutputFormat = "audio-24khz-48kbitrate-mono-mp3"
)

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values.
func (c *Config) applyDefaults() {
	if c.Server.Mode == "" {
		c.Server.Mode = selector.ModeAuto
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = LogFormatText
	}
	if c.Server.ServiceName == "" {
		c.Server.ServiceName = DefaultServiceName
	}
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = DefaultProbeTimeout
	}
	if c.Synthesis.Timeout == 0 {
		c.Synthesis.Timeout = DefaultSynthesisTimeout
	}
	if c.Synthesis.Concurrency == 0 {
		c.Synthesis.Concurrency = 1
	}
	if c.Playback.MaxDuration == 0 {
		c.Playback.MaxDuration = DefaultPlaybackDuration
	}
	if c.Playback.PollInterval == 0 {
		c.Playback.PollInterval = DefaultPollInterval
	}
	if c.Playback.SampleRate == 0 {
		c.Playback.SampleRate = DefaultPlaybackRate
	}

	p := &c.Providers
	if p.Espeak.Binary == "" {
		p.Espeak.Binary = "espeak"
	}
	if p.Festival.Binary == "" {
		p.Festival.Binary = "festival"
	}
	if p.Festival.Text2Wave == "" {
		p.Festival.Text2Wave = "text2wave"
	}
	if p.Coqui.URL == "" {
		p.Coqui.URL = DefaultCoquiURL
	}
	if p.Coqui.APIMode == "" {
		p.Coqui.APIMode = "standard"
	}
	if p.Coqui.Language == "" {
		p.Coqui.Language = "en"
	}
	if p.GTTS.TLD == "" {
		p.GTTS.TLD = "com"
	}
	if p.Azure.OutputFormat == "" {
		p.Azure.OutputFormat = DefaultAzureOutputFormat
	}
	if p.Polly.Engine == "" {
		p.Polly.Engine = "standard"
	}
	if p.OpenAI.Model == "" {
		p.OpenAI.Model = DefaultOpenAIModel
	}
	if p.ElevenLabs.Model == "" {
		p.ElevenLabs.Model = DefaultElevenLabsModel
	}
}
