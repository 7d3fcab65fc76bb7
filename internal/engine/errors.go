// Package engine provides the backend synthesis engine adapters and the
// selection policy that constructs exactly one of them from configuration.
package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/book-expert/speech-synthesizer/internal/core"
)

// Static errors.
var (
	// ErrNoEngineAdapter indicates that no engine adapter could be
	// constructed from the current configuration. Fatal, not retried.
	ErrNoEngineAdapter = errors.New("no synthesis engine adapter could be constructed")

	// ErrSelectorTerminated indicates a Select call after Terminate.
	ErrSelectorTerminated = errors.New("engine selector already terminated")

	// ErrTextEmpty indicates an empty synthesis request.
	ErrTextEmpty = errors.New("text cannot be empty")

	// ErrConnectionFailed indicates the backend was unreachable.
	ErrConnectionFailed = errors.New("failed to reach synthesis backend")

	// ErrServiceError indicates the backend rejected or aborted a request.
	ErrServiceError = errors.New("synthesis backend reported an error")

	// ErrStreamingEndpoint indicates a streaming adapter was requested
	// without a websocket endpoint.
	ErrStreamingEndpoint = errors.New("streaming engine requires a ws:// or wss:// endpoint")

	// ErrLocalModelPath indicates the local adapter has no model to load.
	ErrLocalModelPath = errors.New("local engine requires a model path")

	// ErrNoOutput indicates an adapter spoke before SetOutput was called.
	ErrNoOutput = errors.New("engine has no audio output assigned")
)

// Classify maps an adapter failure onto the cancellation code delivered
// with the canceled result.
func Classify(err error) core.CancellationCode {
	switch {
	case err == nil:
		return core.CancelNone
	case errors.Is(err, ErrConnectionFailed):
		return core.CancelConnectionFailure
	case errors.Is(err, ErrServiceError):
		return core.CancelServiceError
	default:
		return core.CancelRuntimeError
	}
}

const writeChunkSize = 32 * 1024

// writeAll forwards data to the output in bounded chunks so listeners of
// the synthesizing event observe a stream rather than one giant payload.
func writeAll(out core.AudioOutput, data []byte) error {
	if out == nil {
		return ErrNoOutput
	}

	for len(data) > 0 {
		chunk := data
		if len(chunk) > writeChunkSize {
			chunk = chunk[:writeChunkSize]
		}

		_, err := out.Write(chunk)
		if err != nil {
			return fmt.Errorf("failed to write audio chunk: %w", err)
		}

		data = data[len(chunk):]
	}

	return nil
}

// streamToOutput copies reader contents into the output chunk by chunk.
func streamToOutput(out core.AudioOutput, reader io.Reader) error {
	if out == nil {
		return ErrNoOutput
	}

	buffer := make([]byte, writeChunkSize)

	for {
		n, readErr := reader.Read(buffer)
		if n > 0 {
			_, writeErr := out.Write(buffer[:n])
			if writeErr != nil {
				return fmt.Errorf("failed to write audio chunk: %w", writeErr)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}

			return fmt.Errorf("failed to read audio stream: %w", readErr)
		}
	}
}
