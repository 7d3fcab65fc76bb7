// Package synthesis contains the orchestrator that turns speak requests
// into sequenced synthesis turns: one request active at a time, lifecycle
// events fired through the hub, audio relayed to the configured sink.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/speech-synthesizer/internal/config"
	"github.com/book-expert/speech-synthesizer/internal/core"
	"github.com/book-expert/speech-synthesizer/internal/engine"
	"github.com/book-expert/speech-synthesizer/internal/eventhub"
	"github.com/book-expert/speech-synthesizer/internal/sequencer"
)

// ErrSynthesizerTerminated indicates a speak call after Term.
var ErrSynthesizerTerminated = errors.New("synthesizer already terminated")

// AdapterSource supplies the engine adapter. Production code uses the
// engine selector; tests inject stubs.
type AdapterSource interface {
	Select() (core.EngineAdapter, error)
	Terminate() error
}

// Synthesizer orchestrates synthesis requests. Requests from any number
// of goroutines are admitted to a FIFO queue and served one at a time;
// every request fires a started event, zero or more synthesizing events
// and exactly one terminal event.
type Synthesizer struct {
	props  core.Properties
	log    *logger.Logger
	ownLog bool

	hub      *eventhub.Hub
	queue    *sequencer.Sequencer
	source   AdapterSource
	relay    *chunkRelay
	factory  resultFactory
	newID    func() string
	enabled  atomic.Bool
	shutdown atomic.Bool
}

// New creates a synthesizer whose adapter is chosen by the standard
// selection policy. The sink starts unset; assign one with SetOutput.
func New(props core.Properties, log *logger.Logger) *Synthesizer {
	synth := newSynthesizer(props, log, nil)
	synth.source = engine.NewSelector(props, synth, log)

	return synth
}

// NewWithSelector creates a synthesizer with an injected adapter source.
func NewWithSelector(props core.Properties, log *logger.Logger, source AdapterSource) *Synthesizer {
	return newSynthesizer(props, log, source)
}

func newSynthesizer(props core.Properties, log *logger.Logger, source AdapterSource) *Synthesizer {
	hub := eventhub.New()

	synth := &Synthesizer{
		props:    props,
		log:      log,
		ownLog:   false,
		hub:      hub,
		queue:    sequencer.New(),
		source:   source,
		relay:    newChunkRelay(hub, nil),
		factory:  resultFactory{hub: hub},
		newID:    dashlessID,
		enabled:  atomic.Bool{},
		shutdown: atomic.Bool{},
	}
	synth.enabled.Store(true)

	return synth
}

// dashlessID generates the request identifier attached to every event of
// one speak invocation.
func dashlessID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SetIDGenerator replaces the request id generator. Call before issuing
// requests; intended for tests that need deterministic ids.
func (s *Synthesizer) SetIDGenerator(generate func() string) {
	s.newID = generate
}

// Init resolves the dedicated log file, if configured, and performs the
// initial adapter selection so a misconfigured engine surfaces here
// rather than on the first speak.
func (s *Synthesizer) Init() error {
	logPath := s.props.GetString(config.PropLogFile, "")
	if logPath != "" {
		dedicated, err := logger.New(filepath.Dir(logPath), filepath.Base(logPath))
		if err != nil {
			return fmt.Errorf("failed to open synthesis log: %w", err)
		}

		s.log = dedicated
		s.ownLog = true
	}

	_, err := s.ensureAdapter()
	if err != nil {
		return err
	}

	return nil
}

// Term shuts the synthesizer down: the adapter is terminated and the sink
// closed. Only the first call has any effect.
func (s *Synthesizer) Term() error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	var termErr error
	if s.source != nil {
		termErr = s.source.Terminate()
	}

	closeErr := s.relay.Close()

	if s.ownLog {
		_ = s.log.Close()
	}

	if termErr != nil {
		return termErr
	}

	return closeErr
}

// Enable marks the synthesizer as enabled.
func (s *Synthesizer) Enable() { s.enabled.Store(true) }

// Disable marks the synthesizer as disabled. The flag is advisory: it is
// reported to callers but does not reject requests.
func (s *Synthesizer) Disable() { s.enabled.Store(false) }

// IsEnabled reports the advisory enabled flag.
func (s *Synthesizer) IsEnabled() bool { return s.enabled.Load() }

// Events exposes the lifecycle event registry.
func (s *Synthesizer) Events() *eventhub.Hub { return s.hub }

// Pending reports how many requests are queued or active.
func (s *Synthesizer) Pending() int { return s.queue.Pending() }

// SetOutput swaps the audio sink. Audio produced after the swap flows to
// the new sink; a nil sink discards audio while chunk events keep firing.
func (s *Synthesizer) SetOutput(out core.AudioOutput) {
	s.relay.setSink(out)
}

// FireWordBoundary forwards an engine word boundary to registered
// listeners. Implements the side-band surface adapters report through.
func (s *Synthesizer) FireWordBoundary(boundary core.WordBoundary) {
	s.hub.FireWordBoundary(boundary)
}

// Speak synthesizes text and blocks until the turn reaches its terminal
// state. Engine failures come back as a canceled result with a nil error;
// a non-nil error means the turn never entered the queue.
func (s *Synthesizer) Speak(ctx context.Context, text string, ssml bool) (*core.Result, error) {
	return s.speakTurn(ctx, text, ssml, nil, nil)
}

// SpeakAsync starts a synthesis turn and returns an operation that
// resolves to the terminal result.
func (s *Synthesizer) SpeakAsync(ctx context.Context, text string, ssml bool) *Operation {
	operation := newOperation()

	go func() {
		result, err := s.speakTurn(ctx, text, ssml, nil, nil)
		operation.complete(result, err)
	}()

	return operation
}

// StartSpeaking blocks until the turn reaches the head of the queue and
// returns the started-phase result. Its Outcome future resolves to the
// terminal result once synthesis finishes.
func (s *Synthesizer) StartSpeaking(ctx context.Context, text string, ssml bool) (*core.Result, error) {
	operation := newOperation()
	started := make(chan *core.Result, 1)

	go func() {
		result, err := s.speakTurn(ctx, text, ssml, started, operation)
		operation.complete(result, err)
	}()

	select {
	case result := <-started:
		return result, nil
	case <-operation.Done():
		// The turn resolved without entering the queue, or it won the
		// race against our channel read.
		select {
		case result := <-started:
			return result, nil
		default:
		}

		_, err := operation.Wait()
		if err != nil {
			return nil, err
		}

		return nil, ErrSynthesizerTerminated
	}
}

// StartSpeakingAsync returns an operation that resolves to the
// started-phase result.
func (s *Synthesizer) StartSpeakingAsync(ctx context.Context, text string, ssml bool) *Operation {
	operation := newOperation()

	go func() {
		result, err := s.StartSpeaking(ctx, text, ssml)
		operation.complete(result, err)
	}()

	return operation
}

// ensureAdapter selects the engine adapter and (re)installs the relay as
// its output. Selection is idempotent after the first success.
func (s *Synthesizer) ensureAdapter() (core.EngineAdapter, error) {
	adapter, err := s.source.Select()
	if err != nil {
		return nil, fmt.Errorf("engine selection failed: %w", err)
	}

	adapter.SetOutput(s.relay)

	return adapter, nil
}

// speakTurn runs one synthesis turn end to end: admit, wait for the head
// of the queue, fire started, drive the adapter, drain the sink, fire the
// terminal event, release the queue. When started is non-nil it receives
// the started-phase result carrying outcome as its future.
func (s *Synthesizer) speakTurn(
	ctx context.Context,
	text string,
	ssml bool,
	started chan<- *core.Result,
	outcome *Operation,
) (*core.Result, error) {
	if s.shutdown.Load() {
		return nil, ErrSynthesizerTerminated
	}

	adapter, err := s.ensureAdapter()
	if err != nil {
		// A failed selection never occupies a queue slot.
		return nil, err
	}

	requestID := s.newID()

	s.queue.Admit(requestID)
	s.queue.AwaitTurn(requestID)
	defer s.queue.Release()

	format, hasHeader := s.relay.describe()

	s.hub.Fire(eventhub.CategoryStarted, s.factory.started(requestID, format, hasHeader))

	if started != nil {
		phase := s.factory.started(requestID, format, hasHeader)
		phase.Outcome = outcome
		started <- phase
	}

	s.relay.begin(requestID)

	speakErr := adapter.Speak(ctx, text, ssml, requestID)

	s.relay.WaitUntilDone()

	payload := s.relay.finish()

	var result *core.Result

	if speakErr != nil {
		s.log.Warn("Synthesis request %s canceled: %v", requestID, speakErr)

		result = s.factory.canceled(requestID, speakErr, format, hasHeader)
	} else {
		result = s.factory.completed(requestID, payload, format, hasHeader)
	}

	s.hub.FireResult(result)

	return result, nil
}
