package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-synthesizer/internal/config"
	"github.com/book-expert/speech-synthesizer/internal/core"
)

const (
	speechPath = "/v1/generate/speech"
	healthPath = "/health"

	defaultRESTEndpoint   = "http://localhost:8000"
	defaultTimeoutSeconds = 300

	contentTypeJSON = "application/json"
	acceptWAV       = "audio/wav"
)

// speechRequest is the JSON body posted to the speech endpoint.
type speechRequest struct {
	Text        string  `json:"text"`
	Ssml        bool    `json:"ssml"`
	RequestID   string  `json:"request_id"`
	Voice       string  `json:"voice,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// backendError is the JSON error body returned on non-2xx responses.
type backendError struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
}

// RESTAdapter synthesizes speech through an HTTP backend that returns the
// complete WAV payload in the response body.
type RESTAdapter struct {
	endpoint    string
	voice       string
	temperature float64
	client      *http.Client
	log         *logger.Logger

	mu  sync.Mutex
	out core.AudioOutput
}

// NewRESTAdapter builds a REST adapter from properties, falling back to the
// default local endpoint when none is configured.
func NewRESTAdapter(props core.Properties, log *logger.Logger) *RESTAdapter {
	endpoint := props.GetString(config.PropEndpoint,
		props.GetString(config.PropEndpointLegacy, defaultRESTEndpoint))
	timeout := props.GetInt(config.PropTimeoutSeconds, defaultTimeoutSeconds)

	temperature, err := strconv.ParseFloat(props.GetString(config.PropTemperature, "0"), 64)
	if err != nil {
		temperature = 0
	}

	return &RESTAdapter{
		endpoint:    strings.TrimSuffix(endpoint, "/"),
		voice:       props.GetString(config.PropVoice, ""),
		temperature: temperature,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		log: log,
		mu:  sync.Mutex{},
		out: nil,
	}
}

// NewRESTAdapterWithClient is a test hook that injects the HTTP client.
func NewRESTAdapterWithClient(
	props core.Properties,
	log *logger.Logger,
	client *http.Client,
) *RESTAdapter {
	adapter := NewRESTAdapter(props, log)
	adapter.client = client

	return adapter
}

// SetOutput assigns the destination for synthesized audio.
func (a *RESTAdapter) SetOutput(out core.AudioOutput) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.out = out
}

func (a *RESTAdapter) output() core.AudioOutput {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.out
}

// Speak posts the text to the backend and streams the WAV response into
// the configured output.
func (a *RESTAdapter) Speak(ctx context.Context, text string, ssml bool, requestID string) error {
	if strings.TrimSpace(text) == "" {
		return ErrTextEmpty
	}

	body := speechRequest{
		Text:        text,
		Ssml:        ssml,
		RequestID:   requestID,
		Voice:       a.voice,
		Temperature: a.temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		a.endpoint+speechPath,
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to create speech request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", acceptWAV)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return a.decodeError(resp)
	}

	err = streamToOutput(a.output(), resp.Body)
	if err != nil {
		return err
	}

	a.log.Info("Speech request %s completed via %s", requestID, a.endpoint)

	return nil
}

func (a *RESTAdapter) decodeError(resp *http.Response) error {
	var detail backendError

	decodeErr := json.NewDecoder(resp.Body).Decode(&detail)
	if decodeErr != nil || detail.Detail == "" {
		return fmt.Errorf("%w: status %s", ErrServiceError, resp.Status)
	}

	return fmt.Errorf(
		"%w: status %s: %s (code: %s)",
		ErrServiceError,
		resp.Status,
		detail.Detail,
		detail.ErrorCode,
	)
}

// HealthCheck probes the backend health endpoint.
func (a *RESTAdapter) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %s", ErrServiceError, resp.Status)
	}

	return nil
}

// Term releases the adapter. The HTTP client holds no persistent
// connections worth draining here.
func (a *RESTAdapter) Term() error {
	a.client.CloseIdleConnections()

	return nil
}
