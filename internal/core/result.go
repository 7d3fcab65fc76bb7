package core

// Reason identifies why a synthesis result was produced.
type Reason int

// Result reasons, one per lifecycle event.
const (
	ReasonUnknown Reason = iota
	ReasonStarted
	ReasonAudioChunk
	ReasonCompleted
	ReasonCanceled
)

// String returns the reason name for logs and diagnostics.
func (r Reason) String() string {
	switch r {
	case ReasonStarted:
		return "started"
	case ReasonAudioChunk:
		return "audio-chunk"
	case ReasonCompleted:
		return "completed"
	case ReasonCanceled:
		return "canceled"
	case ReasonUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// CancellationCode classifies why a synthesis turn was canceled.
type CancellationCode int

// Cancellation codes reported with canceled results.
const (
	CancelNone CancellationCode = iota
	CancelConnectionFailure
	CancelServiceError
	CancelRuntimeError
)

// Cancellation carries the code and message attached to a canceled result.
type Cancellation struct {
	Code    CancellationCode
	Message string
}

// AudioFormat describes the byte stream an audio output consumes.
type AudioFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Encoding      string
}

// WordBoundary marks the position of a spoken word within the synthesized
// audio stream.
type WordBoundary struct {
	AudioOffset uint64
	TextOffset  uint32
	WordLength  uint32
}

// Result is the immutable record of one synthesis lifecycle event. A fresh
// result is created per fired event and never mutated after construction;
// ownership transfers to whichever listener receives it.
type Result struct {
	// RequestID correlates every event fired for one speak invocation.
	RequestID string

	// Reason states which lifecycle event this result represents.
	Reason Reason

	// Audio holds the chunk payload for audio-chunk results and the full
	// accumulated payload for terminal results. Nil for started results.
	Audio []byte

	// Format and HasHeader describe the audio payload, taken from the
	// configured sink at construction time.
	Format    AudioFormat
	HasHeader bool

	// Cancellation is present only when Reason is ReasonCanceled.
	Cancellation *Cancellation

	// Events references the registry this result was fired through.
	Events EventSource

	// Outcome is the embedded future of the two-phase calling convention;
	// set only on results returned by StartSpeaking.
	Outcome Future
}
