// Package config provides the configuration structure for the speech
// synthesizer and the property bag consumed by the orchestrator core.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	SynthesisSubject         string `toml:"synthesis_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
}

// EngineConfig holds the backend engine selection and tuning knobs.
type EngineConfig struct {
	Endpoint       string  `toml:"endpoint"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Voice          string  `toml:"voice"`
	Temperature    float64 `toml:"temperature"`

	UseMock      bool `toml:"use_mock"`
	UseRest      bool `toml:"use_rest"`
	UseStreaming bool `toml:"use_streaming"`
	UseLocal     bool `toml:"use_local"`

	LocalBinaryPath    string `toml:"local_binary_path"`
	LocalModelPath     string `toml:"local_model_path"`
	LocalSnacModelPath string `toml:"local_snac_model_path"`
}

// AudioConfig describes the audio stream the engine produces.
type AudioConfig struct {
	SampleRate    int `toml:"sample_rate"`
	Channels      int `toml:"channels"`
	BitsPerSample int `toml:"bits_per_sample"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir      string `toml:"base_logs_dir"`
	SynthesisLogFile string `toml:"synthesis_log_file"`
}

// Config is the root configuration structure.
type Config struct {
	NATS   NATSConfig   `toml:"nats"`
	Engine EngineConfig `toml:"engine"`
	Audio  AudioConfig  `toml:"audio"`
	Paths  PathsConfig  `toml:"paths"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
