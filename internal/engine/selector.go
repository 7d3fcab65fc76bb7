package engine

import (
	"strings"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-synthesizer/internal/config"
	"github.com/book-expert/speech-synthesizer/internal/core"
)

// Selector decides which engine adapter serves synthesis and constructs it
// exactly once. It has three states: unselected, selected and terminated.
// After Terminate it never constructs another adapter.
type Selector struct {
	props core.Properties
	site  core.EngineSite
	log   *logger.Logger

	mu         sync.Mutex
	adapter    core.EngineAdapter
	terminated bool
}

// NewSelector builds an unselected Selector. The site receives word
// boundaries from adapters that produce them.
func NewSelector(props core.Properties, site core.EngineSite, log *logger.Logger) *Selector {
	return &Selector{
		props:      props,
		site:       site,
		log:        log,
		mu:         sync.Mutex{},
		adapter:    nil,
		terminated: false,
	}
}

// Select returns the chosen adapter, constructing it on first call.
// Subsequent calls return the same adapter. Selection failures leave the
// selector unselected so a later call can retry with changed properties.
func (s *Selector) Select() (core.EngineAdapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return nil, ErrSelectorTerminated
	}

	if s.adapter != nil {
		return s.adapter, nil
	}

	adapter, err := s.construct()
	if err != nil {
		return nil, err
	}

	s.adapter = adapter

	return adapter, nil
}

// Selected reports the current adapter without constructing one.
func (s *Selector) Selected() core.EngineAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adapter
}

// Terminate shuts down the selected adapter, if any, and pins the selector
// in its terminal state. Safe to call more than once.
func (s *Selector) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return nil
	}

	s.terminated = true

	if s.adapter == nil {
		return nil
	}

	err := s.adapter.Term()
	s.adapter = nil

	return err
}

// construct walks the candidate engines in priority order: REST first,
// then streaming, mock and local. The first constructor that succeeds
// wins.
func (s *Selector) construct() (core.EngineAdapter, error) {
	useRest, useStreaming, useMock, useLocal := s.flags()

	if useRest {
		s.log.Info("Selected REST synthesis engine")

		return NewRESTAdapter(s.props, s.log), nil
	}

	if useStreaming {
		adapter, err := NewStreamingAdapter(s.props, s.site, s.log)
		if err == nil {
			s.log.Info("Selected streaming synthesis engine")

			return adapter, nil
		}

		s.log.Warn("Streaming engine unavailable: %v", err)
	}

	if useMock {
		s.log.Info("Selected mock synthesis engine")

		return NewMockAdapter(s.props, s.site, s.log), nil
	}

	if useLocal {
		adapter, err := NewLocalAdapter(s.props, s.log)
		if err == nil {
			s.log.Info("Selected local synthesis engine")

			return adapter, nil
		}

		s.log.Warn("Local engine unavailable: %v", err)
	}

	return nil, ErrNoEngineAdapter
}

// flags resolves engine eligibility from the endpoint scheme and the
// boolean override properties. Overrides are honored under both their
// current and legacy key names. With nothing configured, REST is the
// default.
func (s *Selector) flags() (useRest, useStreaming, useMock, useLocal bool) {
	endpoint := s.props.GetString(config.PropEndpoint,
		s.props.GetString(config.PropEndpointLegacy, ""))

	switch {
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		useRest = true
	case strings.HasPrefix(endpoint, "ws://"), strings.HasPrefix(endpoint, "wss://"):
		useStreaming = true
	}

	useRest = useRest ||
		s.props.GetBool(config.PropUseRest, false) ||
		s.props.GetBool(config.PropUseRestLegacy, false)
	useStreaming = useStreaming ||
		s.props.GetBool(config.PropUseStreaming, false) ||
		s.props.GetBool(config.PropUseStreamingLegacy, false)
	useMock = s.props.GetBool(config.PropUseMock, false) ||
		s.props.GetBool(config.PropUseMockLegacy, false)
	useLocal = s.props.GetBool(config.PropUseLocal, false) ||
		s.props.GetBool(config.PropUseLocalLegacy, false)

	if !useRest && !useStreaming && !useMock && !useLocal {
		useRest = true
	}

	return useRest, useStreaming, useMock, useLocal
}
