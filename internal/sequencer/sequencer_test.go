// Package sequencer_test verifies the FIFO admission queue.
package sequencer_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-synthesizer/internal/sequencer"
)

func TestSequencer_ServesInAdmissionOrder(t *testing.T) {
	t.Parallel()

	seq := sequencer.New()

	const requests = 50

	ids := make([]string, requests)
	for i := range requests {
		ids[i] = fmt.Sprintf("request-%03d", i)
		seq.Admit(ids[i])
	}

	var (
		mu     sync.Mutex
		served []string
	)

	var waitGroup sync.WaitGroup

	// Waiters start in shuffled goroutine order; service order must still
	// equal admission order.
	for i := requests - 1; i >= 0; i-- {
		waitGroup.Add(1)

		go func(id string) {
			defer waitGroup.Done()

			seq.AwaitTurn(id)

			mu.Lock()
			served = append(served, id)
			mu.Unlock()

			seq.Release()
		}(ids[i])
	}

	waitGroup.Wait()

	require.Len(t, served, requests)
	assert.Equal(t, ids, served)
	assert.Zero(t, seq.Pending())
}

func TestSequencer_SingleTurnAtATime(t *testing.T) {
	t.Parallel()

	seq := sequencer.New()

	const requests = 20

	var (
		active    atomic.Int32
		maxActive atomic.Int32
		waitGroup sync.WaitGroup
	)

	for i := range requests {
		id := fmt.Sprintf("turn-%02d", i)
		seq.Admit(id)
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			seq.AwaitTurn(id)

			now := active.Add(1)
			for {
				seen := maxActive.Load()
				if now <= seen || maxActive.CompareAndSwap(seen, now) {
					break
				}
			}

			time.Sleep(time.Millisecond)

			active.Add(-1)
			seq.Release()
		}()
	}

	waitGroup.Wait()

	assert.Equal(t, int32(1), maxActive.Load(), "two turns were active concurrently")
}

func TestSequencer_AwaitBlocksUntilHead(t *testing.T) {
	t.Parallel()

	seq := sequencer.New()
	seq.Admit("first")
	seq.Admit("second")

	turnReached := make(chan struct{})

	go func() {
		seq.AwaitTurn("second")
		close(turnReached)
	}()

	select {
	case <-turnReached:
		t.Fatal("second request acquired the turn while first was queued")
	case <-time.After(50 * time.Millisecond):
	}

	seq.AwaitTurn("first")
	seq.Release()

	select {
	case <-turnReached:
	case <-time.After(2 * time.Second):
		t.Fatal("second request was never woken after release")
	}
}

func TestSequencer_ReleaseOnEmptyQueue(t *testing.T) {
	t.Parallel()

	seq := sequencer.New()
	seq.Release()

	assert.Zero(t, seq.Pending())
}
