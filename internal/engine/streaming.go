package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/gorilla/websocket"

	"github.com/book-expert/speech-synthesizer/internal/config"
	"github.com/book-expert/speech-synthesizer/internal/core"
)

const (
	frameWordBoundary = "word_boundary"
	frameDone         = "done"
	frameError        = "error"

	handshakeTimeout = 10 * time.Second
)

// streamRequest opens a synthesis turn on the websocket.
type streamRequest struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	Ssml      bool   `json:"ssml"`
	Voice     string `json:"voice,omitempty"`
}

// streamFrame is a text control frame interleaved with binary audio frames.
type streamFrame struct {
	Type        string `json:"type"`
	AudioOffset uint64 `json:"audio_offset,omitempty"`
	TextOffset  uint32 `json:"text_offset,omitempty"`
	WordLength  uint32 `json:"word_length,omitempty"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
}

// StreamingAdapter synthesizes speech over a websocket backend that
// interleaves binary audio frames with JSON control frames.
type StreamingAdapter struct {
	endpoint string
	voice    string
	site     core.EngineSite
	log      *logger.Logger

	mu  sync.Mutex
	out core.AudioOutput
}

// NewStreamingAdapter builds a streaming adapter. The endpoint must use a
// websocket scheme.
func NewStreamingAdapter(
	props core.Properties,
	site core.EngineSite,
	log *logger.Logger,
) (*StreamingAdapter, error) {
	endpoint := props.GetString(config.PropEndpoint,
		props.GetString(config.PropEndpointLegacy, ""))

	if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
		return nil, ErrStreamingEndpoint
	}

	return &StreamingAdapter{
		endpoint: endpoint,
		voice:    props.GetString(config.PropVoice, ""),
		site:     site,
		log:      log,
		mu:       sync.Mutex{},
		out:      nil,
	}, nil
}

// SetOutput assigns the destination for synthesized audio.
func (a *StreamingAdapter) SetOutput(out core.AudioOutput) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.out = out
}

func (a *StreamingAdapter) output() core.AudioOutput {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.out
}

// Speak dials the backend, sends one request and consumes frames until a
// done or error frame arrives.
func (a *StreamingAdapter) Speak(
	ctx context.Context,
	text string,
	ssml bool,
	requestID string,
) error {
	if strings.TrimSpace(text) == "" {
		return ErrTextEmpty
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, a.endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer func() { _ = conn.Close() }()

	// Unblock the read loop when the caller cancels.
	finished := make(chan struct{})
	defer close(finished)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-finished:
		}
	}()

	request := streamRequest{
		RequestID: requestID,
		Text:      text,
		Ssml:      ssml,
		Voice:     a.voice,
	}

	err = conn.WriteJSON(request)
	if err != nil {
		return fmt.Errorf("%w: failed to send stream request: %w", ErrConnectionFailed, err)
	}

	return a.consume(ctx, conn, requestID)
}

func (a *StreamingAdapter) consume(ctx context.Context, conn *websocket.Conn, requestID string) error {
	out := a.output()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("stream interrupted: %w", ctx.Err())
			}

			return fmt.Errorf("%w: stream read failed: %w", ErrConnectionFailed, err)
		}

		if messageType == websocket.BinaryMessage {
			writeErr := writeAll(out, payload)
			if writeErr != nil {
				return writeErr
			}

			continue
		}

		var frame streamFrame

		err = json.Unmarshal(payload, &frame)
		if err != nil {
			return fmt.Errorf("%w: malformed control frame: %w", ErrServiceError, err)
		}

		switch frame.Type {
		case frameWordBoundary:
			if a.site != nil {
				a.site.FireWordBoundary(core.WordBoundary{
					AudioOffset: frame.AudioOffset,
					TextOffset:  frame.TextOffset,
					WordLength:  frame.WordLength,
				})
			}
		case frameDone:
			a.log.Info("Streaming request %s completed via %s", requestID, a.endpoint)

			return nil
		case frameError:
			return fmt.Errorf(
				"%w: %s (code: %s)",
				ErrServiceError,
				frame.Message,
				frame.Code,
			)
		default:
			// Unknown control frames are skipped for forward
			// compatibility.
		}
	}
}

// Term releases the adapter. Connections are per request, nothing persists.
func (a *StreamingAdapter) Term() error {
	return nil
}
