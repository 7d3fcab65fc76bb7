// Package core defines the capability interfaces and shared result types
// that the synthesis orchestrator consumes. The actual engine backends,
// audio sinks and configuration sources live behind these interfaces.
package core

import "context"

// EngineAdapter is the pluggable backend strategy that performs the actual
// text-to-speech synthesis. Exactly one adapter is selected for the lifetime
// of a synthesizer; audio produced during Speak is pushed through the output
// assigned via SetOutput.
type EngineAdapter interface {
	// Speak synthesizes text (plain or SSML) for the given request and
	// blocks until the backend has produced all audio. A nil return means
	// the request completed; a non-nil error is reported to callers as a
	// canceled result, not as a fatal condition.
	Speak(ctx context.Context, text string, ssml bool, requestID string) error

	// SetOutput assigns the audio consumer the adapter writes into.
	SetOutput(out AudioOutput)

	// Term releases backend resources. Called exactly once at shutdown.
	Term() error
}

// EngineSite is the surface an engine adapter reports side-band signals
// through while a request is active.
type EngineSite interface {
	FireWordBoundary(boundary WordBoundary)
}

// AudioOutput is the audio sink capability: a byte stream consumer with a
// drain barrier. Implementations must be safe for use from the single
// active synthesis turn plus concurrent lifecycle calls.
type AudioOutput interface {
	Write(data []byte) (int, error)
	WaitUntilDone()
	Close() error
	GetFormat() AudioFormat
	HasHeader() bool
}

// Properties is the configuration lookup capability. Missing keys resolve
// to the supplied fallback.
type Properties interface {
	GetString(key, fallback string) string
	GetBool(key string, fallback bool) bool
	GetInt(key string, fallback int) int
}

// Speaker is the blocking synthesis surface that transport workers drive.
type Speaker interface {
	Speak(ctx context.Context, text string, ssml bool) (*Result, error)
}

// ObjectStore is the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// EventSource allows a result to be re-fired through the event registry it
// was attached to. Implemented by the event hub.
type EventSource interface {
	FireResult(result *Result)
}

// Future resolves to the terminal result of an asynchronous synthesis turn.
type Future interface {
	Wait() (*Result, error)
	Done() <-chan struct{}
}
