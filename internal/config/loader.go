package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "deepgram", "whisper", "whisper-native"},
	"tts": {"openai"},
}

// OpenAIKeyEnv is consulted for openai providers configured without api_key.
const OpenAIKeyEnv = "OPENAI_API_KEY"

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none
// are named) into the process environment. Missing files are ignored and
// variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	applyKeyFallback(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied. Providers are
// left unset, so the result does not pass [Validate] on its own.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	applyKeyFallback(cfg)
	return cfg
}

func applyKeyFallback(cfg *Config) {
	key := os.Getenv(OpenAIKeyEnv)
	if key == "" {
		return
	}
	for _, e := range []*ProviderEntry{&cfg.Providers.LLM, &cfg.Providers.STT, &cfg.Providers.TTS} {
		if e.Name == "openai" && e.APIKey == "" {
			e.APIKey = key
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.MaxUploadMB < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb %d must not be negative", cfg.Server.MaxUploadMB))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required; every scoring run transcribes the recording"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required; every scoring run synthesizes a reference reading"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required; transcripts are corrected and questions answered with it"))
	}

	sc := cfg.Scoring
	if sc.AverageWPM <= 0 {
		errs = append(errs, fmt.Errorf("scoring.average_wpm %.2f must be positive", sc.AverageWPM))
	}
	if sc.ChunkSeconds <= 0 {
		errs = append(errs, fmt.Errorf("scoring.chunk_seconds %d must be positive", sc.ChunkSeconds))
	}
	if sc.TTSChunkChars <= 0 {
		errs = append(errs, fmt.Errorf("scoring.tts_chunk_chars %d must be positive", sc.TTSChunkChars))
	}
	if sc.Timeout < 0 {
		errs = append(errs, fmt.Errorf("scoring.timeout %s must not be negative", sc.Timeout))
	}

	if c := cfg.Transcoder.Command; c != "" {
		if !strings.Contains(c, "{input}") || !strings.Contains(c, "{output}") {
			errs = append(errs, fmt.Errorf("transcoder.command %q must contain {input} and {output}", c))
		}
	}

	if cfg.Catalog.SQLitePath != "" && cfg.Catalog.PostgresDSN != "" {
		slog.Warn("catalog.sqlite_path and catalog.postgres_dsn are both set; using postgres")
	}

	if cfg.Bus.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("bus.concurrency %d must not be negative", cfg.Bus.Concurrency))
	}
	if cfg.Bus.EmbeddedPort < -1 || cfg.Bus.EmbeddedPort > 65535 {
		errs = append(errs, fmt.Errorf("bus.embedded_port %d is out of range", cfg.Bus.EmbeddedPort))
	}
	if cfg.Batch.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("batch.concurrency %d must not be negative", cfg.Batch.Concurrency))
	}

	t := cfg.Telemetry
	if t.TraceExporter != "" && !t.TraceExporter.IsValid() {
		errs = append(errs, fmt.Errorf("telemetry.trace_exporter %q is invalid; valid values: none, stdout, otlp", t.TraceExporter))
	}
	if t.TraceExporter == TraceOTLP && t.OTLPEndpoint == "" {
		errs = append(errs, errors.New("telemetry.otlp_endpoint is required when trace_exporter is otlp"))
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio %g must be between 0 and 1", t.SampleRatio))
	}

	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
