package synthesis

import (
	"sync"

	"github.com/book-expert/speech-synthesizer/internal/audio"
	"github.com/book-expert/speech-synthesizer/internal/core"
	"github.com/book-expert/speech-synthesizer/internal/eventhub"
)

// chunkRelay sits between the engine adapter and the configured audio
// sink. It is installed on the adapter once; per turn it tags incoming
// chunks with the active request, fires the synthesizing event for each
// chunk, accumulates the full payload for the terminal result and forwards
// the bytes to whichever sink is currently configured. A nil sink simply
// discards the forwarded bytes.
type chunkRelay struct {
	hub *eventhub.Hub

	mu        sync.Mutex
	sink      core.AudioOutput
	requestID string
	active    bool
	captured  []byte
}

func newChunkRelay(hub *eventhub.Hub, sink core.AudioOutput) *chunkRelay {
	return &chunkRelay{
		hub:       hub,
		mu:        sync.Mutex{},
		sink:      sink,
		requestID: "",
		active:    false,
		captured:  nil,
	}
}

// setSink swaps the forwarding destination. Takes effect from the next
// chunk onward.
func (r *chunkRelay) setSink(sink core.AudioOutput) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sink = sink
}

// describe reports the format of the current sink, falling back to the
// default format when no sink is configured.
func (r *chunkRelay) describe() (core.AudioFormat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sink == nil {
		return audio.DefaultFormat(), true
	}

	return r.sink.GetFormat(), r.sink.HasHeader()
}

// begin opens a capture window for one request.
func (r *chunkRelay) begin(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requestID = requestID
	r.active = true
	r.captured = nil
}

// finish closes the capture window and returns the accumulated payload.
func (r *chunkRelay) finish() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	captured := r.captured
	r.captured = nil
	r.requestID = ""
	r.active = false

	return captured
}

// Write implements core.AudioOutput for the adapter side.
func (r *chunkRelay) Write(data []byte) (int, error) {
	chunk := append([]byte(nil), data...)

	r.mu.Lock()

	sink := r.sink
	requestID := r.requestID
	active := r.active

	if active {
		r.captured = append(r.captured, chunk...)
	}

	format := audio.DefaultFormat()
	hasHeader := true

	if sink != nil {
		format = sink.GetFormat()
		hasHeader = sink.HasHeader()
	}

	r.mu.Unlock()

	// Callbacks and sink writes run outside the lock so a listener can
	// safely reconfigure the relay.
	if active {
		r.hub.Fire(eventhub.CategorySynthesizing, &core.Result{
			RequestID:    requestID,
			Reason:       core.ReasonAudioChunk,
			Audio:        chunk,
			Format:       format,
			HasHeader:    hasHeader,
			Cancellation: nil,
			Events:       r.hub,
			Outcome:      nil,
		})
	}

	if sink != nil {
		_, err := sink.Write(data)
		if err != nil {
			return 0, err
		}
	}

	return len(data), nil
}

// WaitUntilDone drains the current sink.
func (r *chunkRelay) WaitUntilDone() {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()

	if sink != nil {
		sink.WaitUntilDone()
	}
}

// Close closes the current sink.
func (r *chunkRelay) Close() error {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()

	if sink == nil {
		return nil
	}

	return sink.Close()
}

// GetFormat implements core.AudioOutput.
func (r *chunkRelay) GetFormat() core.AudioFormat {
	format, _ := r.describe()

	return format
}

// HasHeader implements core.AudioOutput.
func (r *chunkRelay) HasHeader() bool {
	_, hasHeader := r.describe()

	return hasHeader
}
