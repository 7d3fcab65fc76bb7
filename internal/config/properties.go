package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Property keys understood by the synthesizer core. Engine override flags
// are honored under both their current and legacy names; either one being
// true enables the corresponding engine.
const (
	PropEndpoint       = "synthesis.endpoint"
	PropEndpointLegacy = "tts.service.url"

	PropUseMock            = "synthesis.engine.mock"
	PropUseMockLegacy      = "internal.use-engine-mock"
	PropUseRest            = "synthesis.engine.rest"
	PropUseRestLegacy      = "internal.use-engine-rest"
	PropUseStreaming       = "synthesis.engine.streaming"
	PropUseStreamingLegacy = "internal.use-engine-streaming"
	PropUseLocal           = "synthesis.engine.local"
	PropUseLocalLegacy     = "internal.use-engine-local"

	PropLogFile        = "synthesis.log-file"
	PropTimeoutSeconds = "synthesis.timeout-seconds"
	PropVoice          = "synthesis.voice"
	PropTemperature    = "synthesis.temperature"

	PropSampleRate    = "synthesis.audio.sample-rate"
	PropChannels      = "synthesis.audio.channels"
	PropBitsPerSample = "synthesis.audio.bits-per-sample"

	PropLocalBinary    = "synthesis.local.binary"
	PropLocalModel     = "synthesis.local.model-path"
	PropLocalSnacModel = "synthesis.local.snac-model-path"
)

// Properties is a thread-safe string property bag. It backs the
// configuration lookup capability of the orchestrator: every value is
// stored as a string and parsed on access, with the caller's fallback
// returned for absent or unparsable values.
type Properties struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewProperties creates an empty property bag.
func NewProperties() *Properties {
	return &Properties{
		mu:     sync.RWMutex{},
		values: make(map[string]string),
	}
}

// Set stores value under key, replacing any previous value.
func (p *Properties) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.values[key] = value
}

// GetString returns the value stored under key, or fallback when absent.
func (p *Properties) GetString(key, fallback string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value, ok := p.values[key]
	if !ok {
		return fallback
	}

	return value
}

// GetBool parses the value stored under key as a boolean, returning
// fallback when the key is absent or the value does not parse.
func (p *Properties) GetBool(key string, fallback bool) bool {
	raw := p.GetString(key, "")
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return parsed
}

// GetInt parses the value stored under key as an integer, returning
// fallback when the key is absent or the value does not parse.
func (p *Properties) GetInt(key string, fallback int) int {
	raw := p.GetString(key, "")
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return parsed
}

// GetFloat parses the value stored under key as a float, returning
// fallback when the key is absent or the value does not parse.
func (p *Properties) GetFloat(key string, fallback float64) float64 {
	raw := p.GetString(key, "")
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}

	return parsed
}

// LoadFile merges a TOML override file into the bag. Nested tables are
// flattened into dotted keys, so `[synthesis.engine]` / `mock = true`
// becomes "synthesis.engine.mock".
func (p *Properties) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read properties file: %w", err)
	}

	var tree map[string]any

	err = toml.Unmarshal(data, &tree)
	if err != nil {
		return fmt.Errorf("failed to parse properties file: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	flattenInto(p.values, "", tree)

	return nil
}

// flattenInto walks a decoded TOML tree and stores every scalar leaf under
// its dotted key path.
func flattenInto(dst map[string]string, prefix string, tree map[string]any) {
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}

		nested, ok := value.(map[string]any)
		if ok {
			flattenInto(dst, full, nested)

			continue
		}

		dst[full] = fmt.Sprintf("%v", value)
	}
}

// Properties seeds a property bag from the loaded configuration. Only
// non-zero values are set, so absent configuration falls through to the
// core's own defaults.
func (c *Config) Properties() *Properties {
	props := NewProperties()

	setIfNotEmpty := func(key, value string) {
		if value != "" {
			props.Set(key, value)
		}
	}

	setIfTrue := func(key string, value bool) {
		if value {
			props.Set(key, "true")
		}
	}

	setIfPositive := func(key string, value int) {
		if value > 0 {
			props.Set(key, strconv.Itoa(value))
		}
	}

	setIfNotEmpty(PropEndpoint, c.Engine.Endpoint)
	setIfNotEmpty(PropVoice, c.Engine.Voice)
	setIfNotEmpty(PropLogFile, c.Paths.SynthesisLogFile)
	setIfNotEmpty(PropLocalBinary, c.Engine.LocalBinaryPath)
	setIfNotEmpty(PropLocalModel, c.Engine.LocalModelPath)
	setIfNotEmpty(PropLocalSnacModel, c.Engine.LocalSnacModelPath)

	setIfTrue(PropUseMock, c.Engine.UseMock)
	setIfTrue(PropUseRest, c.Engine.UseRest)
	setIfTrue(PropUseStreaming, c.Engine.UseStreaming)
	setIfTrue(PropUseLocal, c.Engine.UseLocal)

	setIfPositive(PropTimeoutSeconds, c.Engine.TimeoutSeconds)
	setIfPositive(PropSampleRate, c.Audio.SampleRate)
	setIfPositive(PropChannels, c.Audio.Channels)
	setIfPositive(PropBitsPerSample, c.Audio.BitsPerSample)

	if c.Engine.Temperature > 0 {
		props.Set(PropTemperature, strconv.FormatFloat(c.Engine.Temperature, 'f', -1, 64))
	}

	return props
}
