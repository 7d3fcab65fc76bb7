package synthesis_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-synthesizer/internal/audio"
	"github.com/book-expert/speech-synthesizer/internal/config"
	"github.com/book-expert/speech-synthesizer/internal/core"
	"github.com/book-expert/speech-synthesizer/internal/engine"
	"github.com/book-expert/speech-synthesizer/internal/eventhub"
	"github.com/book-expert/speech-synthesizer/internal/synthesis"
)

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

// stubAdapter is a scriptable engine adapter.
type stubAdapter struct {
	mu    sync.Mutex
	out   core.AudioOutput
	speak func(ctx context.Context, out core.AudioOutput, text string, requestID string) error

	active    atomic.Int32
	maxActive atomic.Int32
	termCount atomic.Int32
}

func (a *stubAdapter) Speak(ctx context.Context, text string, _ bool, requestID string) error {
	current := a.active.Add(1)
	defer a.active.Add(-1)

	for {
		observed := a.maxActive.Load()
		if current <= observed || a.maxActive.CompareAndSwap(observed, current) {
			break
		}
	}

	if a.speak == nil {
		return nil
	}

	return a.speak(ctx, a.output(), text, requestID)
}

func (a *stubAdapter) SetOutput(out core.AudioOutput) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.out = out
}

func (a *stubAdapter) output() core.AudioOutput {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.out
}

func (a *stubAdapter) Term() error {
	a.termCount.Add(1)

	return nil
}

// stubSource hands out one stub adapter, or fails when selectErr is set.
type stubSource struct {
	adapter   *stubAdapter
	selectErr error
	termCount atomic.Int32
}

func (s *stubSource) Select() (core.EngineAdapter, error) {
	if s.selectErr != nil {
		return nil, s.selectErr
	}

	return s.adapter, nil
}

func (s *stubSource) Terminate() error {
	s.termCount.Add(1)

	if s.adapter != nil {
		return s.adapter.Term()
	}

	return nil
}

func newTestSynthesizer(
	t *testing.T,
	adapter *stubAdapter,
) (*synthesis.Synthesizer, *stubSource) {
	t.Helper()

	source := &stubSource{adapter: adapter, selectErr: nil, termCount: atomic.Int32{}}
	synth := synthesis.NewWithSelector(config.NewProperties(), createTestLogger(t), source)

	return synth, source
}

// eventRecorder captures fired lifecycle events in order.
type eventRecorder struct {
	mu      sync.Mutex
	reasons []core.Reason
	ids     []string
}

func (r *eventRecorder) listen(hub *eventhub.Hub, owner string) {
	record := func(event eventhub.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.reasons = append(r.reasons, event.Result.Reason)
		r.ids = append(r.ids, event.Result.RequestID)
	}

	hub.Connect(eventhub.CategoryStarted, owner, record)
	hub.Connect(eventhub.CategorySynthesizing, owner, record)
	hub.Connect(eventhub.CategoryCompleted, owner, record)
	hub.Connect(eventhub.CategoryCanceled, owner, record)
}

func (r *eventRecorder) snapshot() ([]core.Reason, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]core.Reason(nil), r.reasons...), append([]string(nil), r.ids...)
}

func TestSpeakCompletes(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{
		speak: func(_ context.Context, out core.AudioOutput, _ string, _ string) error {
			_, err := out.Write([]byte("first-"))
			if err != nil {
				return err
			}

			_, err = out.Write([]byte("second"))

			return err
		},
	}

	synth, _ := newTestSynthesizer(t, adapter)

	recorder := &eventRecorder{}
	recorder.listen(synth.Events(), "test")

	result, err := synth.Speak(context.Background(), "hello", false)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, core.ReasonCompleted, result.Reason)
	assert.Equal(t, []byte("first-second"), result.Audio)
	assert.NotEmpty(t, result.RequestID)
	assert.Nil(t, result.Cancellation)

	reasons, ids := recorder.snapshot()
	require.Equal(t, []core.Reason{
		core.ReasonStarted,
		core.ReasonAudioChunk,
		core.ReasonAudioChunk,
		core.ReasonCompleted,
	}, reasons)

	for _, id := range ids {
		assert.Equal(t, result.RequestID, id)
	}
}

func TestSpeakCanceledOnEngineError(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{
		speak: func(_ context.Context, _ core.AudioOutput, _ string, _ string) error {
			return fmt.Errorf("%w: backend exploded", engine.ErrServiceError)
		},
	}

	synth, _ := newTestSynthesizer(t, adapter)

	canceled := make(chan *core.Result, 1)
	synth.Events().Connect(eventhub.CategoryCanceled, "test", func(event eventhub.Event) {
		canceled <- event.Result
	})

	result, err := synth.Speak(context.Background(), "hello", false)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, core.ReasonCanceled, result.Reason)
	require.NotNil(t, result.Cancellation)
	assert.Equal(t, core.CancelServiceError, result.Cancellation.Code)
	assert.Contains(t, result.Cancellation.Message, "backend exploded")

	select {
	case fired := <-canceled:
		assert.Equal(t, result.RequestID, fired.RequestID)
	case <-time.After(time.Second):
		t.Fatal("canceled event never fired")
	}

	// The failed turn released its queue slot.
	assert.Equal(t, 0, synth.Pending())

	next, err := synth.Speak(context.Background(), "again", false)
	require.NoError(t, err)
	assert.Equal(t, core.ReasonCanceled, next.Reason)
}

func TestConcurrentSpeaksServeOneAtATime(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{
		speak: func(_ context.Context, _ core.AudioOutput, _ string, _ string) error {
			time.Sleep(2 * time.Millisecond)

			return nil
		},
	}

	synth, _ := newTestSynthesizer(t, adapter)

	const requests = 20

	operations := make([]*synthesis.Operation, 0, requests)
	for range requests {
		operations = append(operations, synth.SpeakAsync(context.Background(), "hello", false))
	}

	for _, operation := range operations {
		result, err := operation.Wait()
		require.NoError(t, err)
		assert.Equal(t, core.ReasonCompleted, result.Reason)
	}

	assert.Equal(t, int32(1), adapter.maxActive.Load())
	assert.Equal(t, 0, synth.Pending())
}

func TestStartSpeakingTwoPhase(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	adapter := &stubAdapter{
		speak: func(_ context.Context, out core.AudioOutput, _ string, _ string) error {
			<-release

			_, err := out.Write([]byte("payload"))

			return err
		},
	}

	synth, _ := newTestSynthesizer(t, adapter)

	started, err := synth.StartSpeaking(context.Background(), "hello", false)
	require.NoError(t, err)
	require.NotNil(t, started)

	assert.Equal(t, core.ReasonStarted, started.Reason)
	assert.Nil(t, started.Audio)
	require.NotNil(t, started.Outcome)

	// The terminal result must not exist yet.
	select {
	case <-started.Outcome.Done():
		t.Fatal("outcome resolved before synthesis finished")
	default:
	}

	close(release)

	terminal, err := started.Outcome.Wait()
	require.NoError(t, err)
	assert.Equal(t, core.ReasonCompleted, terminal.Reason)
	assert.Equal(t, started.RequestID, terminal.RequestID)
	assert.Equal(t, []byte("payload"), terminal.Audio)
}

func TestStartSpeakingAsyncResolvesToStartedPhase(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{speak: nil}
	synth, _ := newTestSynthesizer(t, adapter)

	operation := synth.StartSpeakingAsync(context.Background(), "hello", false)

	started, err := operation.Wait()
	require.NoError(t, err)
	assert.Equal(t, core.ReasonStarted, started.Reason)
	require.NotNil(t, started.Outcome)

	terminal, err := started.Outcome.Wait()
	require.NoError(t, err)
	assert.Equal(t, core.ReasonCompleted, terminal.Reason)
}

func TestSpeakFailsWhenSelectionFails(t *testing.T) {
	t.Parallel()

	source := &stubSource{adapter: nil, selectErr: engine.ErrNoEngineAdapter, termCount: atomic.Int32{}}
	synth := synthesis.NewWithSelector(config.NewProperties(), createTestLogger(t), source)

	result, err := synth.Speak(context.Background(), "hello", false)
	require.ErrorIs(t, err, engine.ErrNoEngineAdapter)
	assert.Nil(t, result)

	// Failed selection never occupies a queue slot.
	assert.Equal(t, 0, synth.Pending())
}

func TestTermIsSingleUse(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{speak: nil}
	synth, source := newTestSynthesizer(t, adapter)

	require.NoError(t, synth.Term())
	require.NoError(t, synth.Term())
	assert.Equal(t, int32(1), source.termCount.Load())

	_, err := synth.Speak(context.Background(), "hello", false)
	require.ErrorIs(t, err, synthesis.ErrSynthesizerTerminated)

	_, err = synth.StartSpeaking(context.Background(), "hello", false)
	require.ErrorIs(t, err, synthesis.ErrSynthesizerTerminated)
}

func TestSetOutputForwardsAudio(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{
		speak: func(_ context.Context, out core.AudioOutput, _ string, _ string) error {
			_, err := out.Write([]byte("sink-bytes"))

			return err
		},
	}

	synth, _ := newTestSynthesizer(t, adapter)

	// With no sink configured the payload is still captured.
	result, err := synth.Speak(context.Background(), "hello", false)
	require.NoError(t, err)
	assert.Equal(t, []byte("sink-bytes"), result.Audio)

	sink := audio.NewBufferSink(audio.DefaultFormat(), true)
	synth.SetOutput(sink)

	result, err = synth.Speak(context.Background(), "hello", false)
	require.NoError(t, err)
	assert.Equal(t, []byte("sink-bytes"), result.Audio)
	assert.Equal(t, []byte("sink-bytes"), sink.Bytes())
}

func TestWordBoundaryReachesListeners(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{speak: nil}
	synth, _ := newTestSynthesizer(t, adapter)

	received := make(chan core.WordBoundary, 1)
	synth.Events().ConnectWordBoundary("test", func(boundary core.WordBoundary) {
		received <- boundary
	})

	synth.FireWordBoundary(core.WordBoundary{AudioOffset: 44, TextOffset: 7, WordLength: 5})

	select {
	case boundary := <-received:
		assert.Equal(t, uint64(44), boundary.AudioOffset)
		assert.Equal(t, uint32(7), boundary.TextOffset)
		assert.Equal(t, uint32(5), boundary.WordLength)
	case <-time.After(time.Second):
		t.Fatal("word boundary never delivered")
	}
}

func TestEnableDisableIsAdvisory(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{speak: nil}
	synth, _ := newTestSynthesizer(t, adapter)

	assert.True(t, synth.IsEnabled())

	synth.Disable()
	assert.False(t, synth.IsEnabled())

	// Disabled is reported, not enforced: requests still run.
	result, err := synth.Speak(context.Background(), "hello", false)
	require.NoError(t, err)
	assert.Equal(t, core.ReasonCompleted, result.Reason)

	synth.Enable()
	assert.True(t, synth.IsEnabled())
}

func TestDeterministicRequestIDs(t *testing.T) {
	t.Parallel()

	adapter := &stubAdapter{speak: nil}
	synth, _ := newTestSynthesizer(t, adapter)

	var counter atomic.Int32

	synth.SetIDGenerator(func() string {
		return fmt.Sprintf("req-%03d", counter.Add(1))
	})

	first, err := synth.Speak(context.Background(), "hello", false)
	require.NoError(t, err)
	assert.Equal(t, "req-001", first.RequestID)

	second, err := synth.Speak(context.Background(), "again", false)
	require.NoError(t, err)
	assert.Equal(t, "req-002", second.RequestID)
}
