package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-synthesizer/internal/core"
	"github.com/book-expert/speech-synthesizer/internal/worker"
)

var (
	errMockDownload = errors.New("mock download error")
	errMockSpeak    = errors.New("mock speak error")
)

// mockObjectStore records uploads and serves a fixed text payload.
type mockObjectStore struct {
	downloadShouldFail bool
	uploadShouldFail   bool
	downloadedKey      string
	uploadedKey        string
	uploadedData       []byte
}

func (m *mockObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	if m.downloadShouldFail {
		return nil, errMockDownload
	}

	m.downloadedKey = key

	return []byte("page text to speak"), nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte) error {
	if m.uploadShouldFail {
		return errors.New("mock upload error")
	}

	m.uploadedKey = key
	m.uploadedData = data

	return nil
}

// mockSpeaker scripts the synthesis outcome.
type mockSpeaker struct {
	speakShouldFail bool
	returnCanceled  bool
	spokenText      string
}

func (m *mockSpeaker) Speak(_ context.Context, text string, _ bool) (*core.Result, error) {
	if m.speakShouldFail {
		return nil, errMockSpeak
	}

	m.spokenText = text

	if m.returnCanceled {
		return &core.Result{
			RequestID: "req-canceled",
			Reason:    core.ReasonCanceled,
			Cancellation: &core.Cancellation{
				Code:    core.CancelServiceError,
				Message: "backend unavailable",
			},
		}, nil
	}

	return &core.Result{
		RequestID: "req-ok",
		Reason:    core.ReasonCompleted,
		Audio:     []byte("rendered audio"),
	}, nil
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

func setupTest(t *testing.T) (
	*worker.NatsWorker,
	*mockObjectStore,
	*mockSpeaker,
	*nats.Conn,
) {
	t.Helper()

	mockStore := &mockObjectStore{
		downloadShouldFail: false,
		uploadShouldFail:   false,
		downloadedKey:      "",
		uploadedKey:        "",
		uploadedData:       nil,
	}
	speaker := &mockSpeaker{
		speakShouldFail: false,
		returnCanceled:  false,
		spokenText:      "",
	}

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	workerInstance := worker.NewNatsWorker(
		natsConnection, "synthesis.jobs", mockStore, speaker, testLogger,
	)

	return workerInstance, mockStore, speaker, natsConnection
}

func testEvent() *events.TextProcessedEvent {
	return &events.TextProcessedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		TextKey:           "pages/0001.txt",
		PNGKey:            "",
		PageNumber:        1,
		TotalPages:        3,
		Voice:             "",
		Seed:              0,
		NGL:               0,
		TopP:              0,
		RepetitionPenalty: 0,
		Temperature:       0,
	}
}

func TestWorkerProcessesJob(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, speaker, natsConnection := setupTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	event := testEvent()
	eventData, err := json.Marshal(event)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request("synthesis.jobs", eventData, 5*time.Second)
	require.NoError(t, err)

	var replyEvent events.AudioChunkCreatedEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &replyEvent))

	assert.Equal(t, "pages/0001.txt", mockStore.downloadedKey)
	assert.Equal(t, "page text to speak", speaker.spokenText)
	assert.NotEmpty(t, mockStore.uploadedKey)
	assert.Equal(t, []byte("rendered audio"), mockStore.uploadedData)

	assert.Equal(t, mockStore.uploadedKey, replyEvent.AudioKey)
	assert.Equal(t, event.Header.WorkflowID, replyEvent.Header.WorkflowID)
	assert.Equal(t, event.PageNumber, replyEvent.PageNumber)
	assert.Equal(t, event.TotalPages, replyEvent.TotalPages)

	cancel()

	assert.NoError(t, <-errChan)
}

func TestWorkerSkipsCanceledSynthesis(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, speaker, natsConnection := setupTest(t)
	speaker.returnCanceled = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = workerInstance.Run(ctx) }()

	eventData, err := json.Marshal(testEvent())
	require.NoError(t, err)

	// No reply is published for a canceled synthesis.
	_, err = natsConnection.Request("synthesis.jobs", eventData, 500*time.Millisecond)
	require.Error(t, err)

	assert.Empty(t, mockStore.uploadedKey)
}

func TestWorkerIgnoresMalformedEvents(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, _, natsConnection := setupTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = workerInstance.Run(ctx) }()

	_, err := natsConnection.Request("synthesis.jobs", []byte("not-json"), 500*time.Millisecond)
	require.Error(t, err)

	assert.Empty(t, mockStore.downloadedKey)
	assert.Empty(t, mockStore.uploadedKey)
}

func TestWorkerFailsDownload(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, speaker, natsConnection := setupTest(t)
	mockStore.downloadShouldFail = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = workerInstance.Run(ctx) }()

	eventData, err := json.Marshal(testEvent())
	require.NoError(t, err)

	_, err = natsConnection.Request("synthesis.jobs", eventData, 500*time.Millisecond)
	require.Error(t, err)

	assert.Empty(t, speaker.spokenText)
}
