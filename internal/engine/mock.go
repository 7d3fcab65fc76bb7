package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-synthesizer/internal/audio"
	"github.com/book-expert/speech-synthesizer/internal/core"
)

const (
	mockToneFrequency = 220.0
	mockToneAmplitude = 8000

	// Synthetic pacing: each character contributes to the word's tone
	// duration so longer words sound longer.
	mockMillisPerChar = 60
	mockMinWordMillis = 150
)

// MockAdapter synthesizes a deterministic sine tone per word. It exists so
// the full pipeline can run without any backend, and it emits word
// boundaries the way a real engine would.
type MockAdapter struct {
	format core.AudioFormat
	site   core.EngineSite
	log    *logger.Logger

	mu  sync.Mutex
	out core.AudioOutput
}

// NewMockAdapter builds a mock adapter using the configured audio format.
func NewMockAdapter(
	props core.Properties,
	site core.EngineSite,
	log *logger.Logger,
) *MockAdapter {
	return &MockAdapter{
		format: audio.FormatFromProperties(props),
		site:   site,
		log:    log,
		mu:     sync.Mutex{},
		out:    nil,
	}
}

// SetOutput assigns the destination for synthesized audio.
func (a *MockAdapter) SetOutput(out core.AudioOutput) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.out = out
}

func (a *MockAdapter) output() core.AudioOutput {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.out
}

// Speak generates one tone per word, fires a word boundary before each
// word and writes the whole take as a WAV payload.
func (a *MockAdapter) Speak(ctx context.Context, text string, _ bool, requestID string) error {
	if strings.TrimSpace(text) == "" {
		return ErrTextEmpty
	}

	pcm, err := a.render(ctx, text)
	if err != nil {
		return err
	}

	encoded, err := audio.EncodePCM16(pcm, a.format)
	if err != nil {
		return fmt.Errorf("failed to encode mock audio: %w", err)
	}

	err = writeAll(a.output(), encoded)
	if err != nil {
		return err
	}

	a.log.Info("Mock synthesis completed for request %s (%d bytes)", requestID, len(encoded))

	return nil
}

// render produces little-endian 16-bit PCM and fires boundaries as a side
// effect. Audio offsets are byte offsets into the PCM stream.
func (a *MockAdapter) render(ctx context.Context, text string) ([]byte, error) {
	var pcm []byte

	searchFrom := 0

	for _, word := range strings.Fields(text) {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("mock synthesis interrupted: %w", ctx.Err())
		}

		textOffset := strings.Index(text[searchFrom:], word) + searchFrom
		searchFrom = textOffset + len(word)

		if a.site != nil {
			a.site.FireWordBoundary(core.WordBoundary{
				AudioOffset: uint64(len(pcm)),
				TextOffset:  uint32(textOffset),
				WordLength:  uint32(len(word)),
			})
		}

		pcm = append(pcm, a.tone(word)...)
	}

	return pcm, nil
}

func (a *MockAdapter) tone(word string) []byte {
	millis := len(word) * mockMillisPerChar
	if millis < mockMinWordMillis {
		millis = mockMinWordMillis
	}

	samples := a.format.SampleRate * millis / 1000
	buffer := make([]byte, samples*2)

	for i := range samples {
		angle := 2 * math.Pi * mockToneFrequency * float64(i) / float64(a.format.SampleRate)
		sample := int16(mockToneAmplitude * math.Sin(angle))
		binary.LittleEndian.PutUint16(buffer[i*2:], uint16(sample))
	}

	return buffer
}

// Term releases the adapter.
func (a *MockAdapter) Term() error {
	return nil
}
