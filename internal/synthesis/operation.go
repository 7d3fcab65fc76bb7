package synthesis

import "github.com/book-expert/speech-synthesizer/internal/core"

// Operation is the future half of an asynchronous synthesis turn. It is
// created unresolved and completed exactly once by the turn that owns it.
type Operation struct {
	done   chan struct{}
	result *core.Result
	err    error
}

func newOperation() *Operation {
	return &Operation{
		done:   make(chan struct{}),
		result: nil,
		err:    nil,
	}
}

// complete resolves the operation. Must be called exactly once.
func (o *Operation) complete(result *core.Result, err error) {
	o.result = result
	o.err = err
	close(o.done)
}

// Wait blocks until the operation resolves and returns its outcome.
func (o *Operation) Wait() (*core.Result, error) {
	<-o.done

	return o.result, o.err
}

// Done returns a channel closed when the operation has resolved.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}
