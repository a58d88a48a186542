// Package config provides the configuration schema, loader, and provider
// registry for the speechscore service.
package config

import "time"

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

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// TraceExporter selects where spans go.
type TraceExporter string

const (
	TraceNone   TraceExporter = "none"
	TraceStdout TraceExporter = "stdout"
	TraceOTLP   TraceExporter = "otlp"
)

// IsValid reports whether e is a recognised exporter.
func (e TraceExporter) IsValid() bool {
	switch e {
	case TraceNone, TraceStdout, TraceOTLP:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Storage    StorageConfig    `yaml:"storage"`
	Transcoder TranscoderConfig `yaml:"transcoder"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Bus        BusConfig        `yaml:"bus"`
	Batch      BatchConfig      `yaml:"batch"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// CORSOrigin is sent as Access-Control-Allow-Origin. Empty disables CORS.
	CORSOrigin string `yaml:"cors"`

	// MaxUploadMB bounds multipart request bodies.
	MaxUploadMB int64 `yaml:"max_upload_mb"`
}

// ProvidersConfig selects the implementation behind each upstream service.
// Each entry's Name is looked up in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1", "tts-1").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// ScoringConfig tunes the scoring pipeline.
type ScoringConfig struct {
	// Language is the ISO-639-1 hint passed to speech-to-text.
	Language string `yaml:"language"`

	// AverageWPM is the reference speaking rate the speed ratio is based on.
	AverageWPM float64 `yaml:"average_wpm"`

	// ChunkSeconds is the segment analyzer's window length.
	ChunkSeconds int `yaml:"chunk_seconds"`

	TTSVoice      string `yaml:"tts_voice"`
	TTSChunkChars int    `yaml:"tts_chunk_chars"`

	// Timeout bounds one scoring request end to end.
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig names the working directories. Root is used to derive any
// directory left empty.
type StorageConfig struct {
	Root    string `yaml:"root"`
	Uploads string `yaml:"uploads"`
	Audio   string `yaml:"audio"`
	TTS     string `yaml:"tts"`
	Scripts string `yaml:"scripts"`
}

// TranscoderConfig holds the external media conversion command. The
// template must contain {input} and {output}; empty uses ffmpeg.
type TranscoderConfig struct {
	Command string `yaml:"command"`
}

// CatalogConfig selects the asset catalog backend. PostgresDSN wins over
// SQLitePath; both empty disables the catalog.
type CatalogConfig struct {
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BusConfig enables the NATS scoring worker. An empty URL with Embedded
// false disables it.
type BusConfig struct {
	URL              string `yaml:"url"`
	Subject          string `yaml:"subject"`
	CompletedSubject string `yaml:"completed_subject"`
	Queue            string `yaml:"queue"`
	Concurrency      int    `yaml:"concurrency"`

	// Embedded starts an in-process NATS server on EmbeddedPort.
	Embedded     bool `yaml:"embedded"`
	EmbeddedPort int  `yaml:"embedded_port"`
}

// Enabled reports whether the worker should start.
func (b BusConfig) Enabled() bool { return b.URL != "" || b.Embedded }

// BatchConfig tunes spreadsheet batch runs.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	ServiceName   string        `yaml:"service_name"`
	TraceExporter TraceExporter `yaml:"trace_exporter"`
	OTLPEndpoint  string        `yaml:"otlp_endpoint"`
	OTLPInsecure  bool          `yaml:"otlp_insecure"`

	// SampleRatio is the fraction of new traces recorded, in (0, 1]. Zero
	// records every trace. Child spans follow their parent's decision.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ResilienceConfig tunes the circuit breaker placed in front of every
// upstream provider.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}
