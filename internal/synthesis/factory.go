package synthesis

import (
	"github.com/book-expert/speech-synthesizer/internal/core"
	"github.com/book-expert/speech-synthesizer/internal/engine"
	"github.com/book-expert/speech-synthesizer/internal/eventhub"
)

// resultFactory builds the per-event result records. Every fired event
// gets a fresh result; nothing is reused or mutated after construction.
type resultFactory struct {
	hub *eventhub.Hub
}

func (f resultFactory) started(requestID string, format core.AudioFormat, hasHeader bool) *core.Result {
	return &core.Result{
		RequestID:    requestID,
		Reason:       core.ReasonStarted,
		Audio:        nil,
		Format:       format,
		HasHeader:    hasHeader,
		Cancellation: nil,
		Events:       f.hub,
		Outcome:      nil,
	}
}

func (f resultFactory) completed(
	requestID string,
	payload []byte,
	format core.AudioFormat,
	hasHeader bool,
) *core.Result {
	return &core.Result{
		RequestID:    requestID,
		Reason:       core.ReasonCompleted,
		Audio:        payload,
		Format:       format,
		HasHeader:    hasHeader,
		Cancellation: nil,
		Events:       f.hub,
		Outcome:      nil,
	}
}

func (f resultFactory) canceled(
	requestID string,
	cause error,
	format core.AudioFormat,
	hasHeader bool,
) *core.Result {
	return &core.Result{
		RequestID: requestID,
		Reason:    core.ReasonCanceled,
		Audio:     nil,
		Format:    format,
		HasHeader: hasHeader,
		Cancellation: &core.Cancellation{
			Code:    engine.Classify(cause),
			Message: cause.Error(),
		},
		Events:  f.hub,
		Outcome: nil,
	}
}
