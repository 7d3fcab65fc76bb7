// Package sequencer serializes synthesis requests into strict admission
// order. Requests are admitted into a FIFO queue and callers block until
// their identifier reaches the front; at most one request holds the turn
// at any time.
package sequencer

import "sync"

// Sequencer is the single serialization point for engine invocation. One
// monitor guards both the queue mutation and the wait predicate, so a
// Release can never miss a waiter.
type Sequencer struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []string
}

// New creates an empty sequencer.
func New() *Sequencer {
	seq := &Sequencer{}
	seq.cond = sync.NewCond(&seq.mu)

	return seq
}

// Admit appends id to the tail of the queue. It never blocks and never
// fails; queue capacity is unbounded because each entry is a small token.
func (s *Sequencer) Admit(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, id)
}

// AwaitTurn blocks the calling goroutine until id is at the head of the
// queue. Safe to call concurrently from many goroutines each awaiting a
// different identifier.
func (s *Sequencer) AwaitTurn(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 || s.queue[0] != id {
		s.cond.Wait()
	}
}

// Release removes the current head of the queue and wakes every waiter;
// each re-checks whether its own identifier is now at the head. Calling
// Release on an empty queue is a no-op.
func (s *Sequencer) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) > 0 {
		s.queue = s.queue[1:]
	}

	s.cond.Broadcast()
}

// Pending returns the number of admitted identifiers still queued,
// including the one currently holding the turn.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}
