package config

import (
	"path/filepath"
	"time"
)

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr    = ":8000"
	DefaultLanguage      = "ko"
	DefaultAverageWPM    = 100
	DefaultChunkSeconds  = 60
	DefaultTTSVoice      = "alloy"
	DefaultTTSChunkChars = 4000
	DefaultTimeout       = 10 * time.Minute
	DefaultStorageRoot   = "data"
	DefaultMaxUploadMB   = 512
	DefaultServiceName   = "speechscore"
	DefaultBatchWorkers  = 2
	DefaultBusWorkers    = 2
)

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogFormat == "" {
		s.LogFormat = LogFormatText
	}
	if s.MaxUploadMB == 0 {
		s.MaxUploadMB = DefaultMaxUploadMB
	}

	sc := &cfg.Scoring
	if sc.Language == "" {
		sc.Language = DefaultLanguage
	}
	if sc.AverageWPM == 0 {
		sc.AverageWPM = DefaultAverageWPM
	}
	if sc.ChunkSeconds == 0 {
		sc.ChunkSeconds = DefaultChunkSeconds
	}
	if sc.TTSVoice == "" {
		sc.TTSVoice = DefaultTTSVoice
	}
	if sc.TTSChunkChars == 0 {
		sc.TTSChunkChars = DefaultTTSChunkChars
	}
	if sc.Timeout == 0 {
		sc.Timeout = DefaultTimeout
	}

	st := &cfg.Storage
	if st.Root == "" {
		st.Root = DefaultStorageRoot
	}
	for _, d := range []struct {
		dst  *string
		name string
	}{
		{&st.Uploads, "input_video"},
		{&st.Audio, "convert_audio"},
		{&st.TTS, "convert_tts"},
		{&st.Scripts, "scripts"},
	} {
		if *d.dst == "" {
			*d.dst = filepath.Join(st.Root, d.name)
		}
	}

	if cfg.Bus.Concurrency == 0 {
		cfg.Bus.Concurrency = DefaultBusWorkers
	}
	if cfg.Batch.Concurrency == 0 {
		cfg.Batch.Concurrency = DefaultBatchWorkers
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.TraceExporter == "" {
		cfg.Telemetry.TraceExporter = TraceNone
	}
}
