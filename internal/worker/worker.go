// Package worker consumes text-processed events from NATS, drives the
// synthesizer and publishes the resulting audio chunk events.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/speech-synthesizer/internal/core"
)

const handleMessageTimeout = 5 * time.Minute

var (
	// ErrTextKeyEmpty indicates an event without a text object key.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")

	// ErrSynthesisCanceled indicates the synthesizer produced a canceled
	// result for the job.
	ErrSynthesisCanceled = errors.New("synthesis canceled")
)

// NatsWorker subscribes to a synthesis subject and serves jobs through
// the speaker one message at a time per subscription callback.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	speaker        core.Speaker
	log            *logger.Logger
}

// NewNatsWorker creates a worker bound to the given subject.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	speaker core.Speaker,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		speaker:        speaker,
		log:            log,
	}
}

// Run subscribes and blocks until the context is canceled, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse synthesis event: %v", err)

		return
	}

	audioKey, err := w.processJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to process synthesis job for workflow %s: %v",
			event.Header.WorkflowID, err)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReply(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v",
			event.Header.WorkflowID, err)
	}
}

// processJob downloads the source text, synthesizes it and uploads the
// rendered audio, returning the key it was stored under.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	if event.TextKey == "" {
		return "", ErrTextKeyEmpty
	}

	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text for key '%s': %w", event.TextKey, err)
	}

	result, err := w.speaker.Speak(ctx, string(textData), false)
	if err != nil {
		return "", fmt.Errorf("failed to synthesize text: %w", err)
	}

	if result.Reason == core.ReasonCanceled {
		message := ""
		if result.Cancellation != nil {
			message = result.Cancellation.Message
		}

		return "", fmt.Errorf("%w: %s", ErrSynthesisCanceled, message)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, result.Audio)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio for key '%s': %w", audioKey, err)
	}

	return audioKey, nil
}

func (w *NatsWorker) publishReply(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}
