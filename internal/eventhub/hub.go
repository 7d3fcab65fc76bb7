// Package eventhub fans synthesis lifecycle events out to dynamically
// registered listeners. Each result-driven category (started, synthesizing,
// completed, canceled) keeps its own registry guarded by its own lock, so
// firing one category never serializes against listeners of another.
package eventhub

import (
	"sync"
	"sync/atomic"

	"github.com/book-expert/speech-synthesizer/internal/core"
)

// Category selects one of the result-driven event channels.
type Category int

// Event categories. The word-boundary signal is not a category: it is a
// single always-broadcast signal with its own connect path.
const (
	CategoryStarted Category = iota
	CategorySynthesizing
	CategoryCompleted
	CategoryCanceled

	categoryCount
)

// categoryWordBoundary is an internal sentinel so word-boundary
// subscriptions can share the Disconnect path.
const categoryWordBoundary Category = -1

// String returns the category name for logs and diagnostics.
func (c Category) String() string {
	switch c {
	case CategoryStarted:
		return "started"
	case CategorySynthesizing:
		return "synthesizing"
	case CategoryCompleted:
		return "completed"
	case CategoryCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Event is the argument wrapper delivered to listeners. A fresh Event is
// constructed for every callback invocation; the result inside is shared
// and must be treated as read-only.
type Event struct {
	Result *core.Result
}

// Callback receives category events.
type Callback func(event Event)

// WordBoundaryCallback receives word-boundary broadcasts.
type WordBoundaryCallback func(boundary core.WordBoundary)

// Subscription is the opaque handle returned by Connect and required by
// Disconnect. Handles replace raw subscriber-identity comparison: each
// connected callback gets its own handle, while the owner token groups the
// callbacks of one subscriber for bulk removal.
type Subscription struct {
	id       uint64
	owner    string
	category Category
	callback Callback
	boundary WordBoundaryCallback
}

// Owner returns the subscriber identity this subscription was registered
// under.
func (s *Subscription) Owner() string {
	return s.owner
}

// registry is one category's listener list. Fire iterates a copied
// snapshot, so Connect and Disconnect from other goroutines during a fire
// cannot corrupt iteration; listeners added mid-fire may or may not see
// the event already in flight.
type registry struct {
	mu   sync.Mutex
	subs []*Subscription
}

func (r *registry) add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = append(r.subs, sub)
}

func (r *registry) remove(match func(*Subscription) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.subs[:0]

	for _, sub := range r.subs {
		if !match(sub) {
			kept = append(kept, sub)
		}
	}

	r.subs = kept
}

func (r *registry) snapshot() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Subscription, len(r.subs))
	copy(out, r.subs)

	return out
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.subs)
}

// Hub is the thread-safe multi-channel event registry.
type Hub struct {
	nextID     atomic.Uint64
	categories [categoryCount]registry
	boundaries registry
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{}
}

// Connect registers callback under the given subscriber identity in the
// given category and returns the handle required to disconnect it. One
// subscriber may hold any number of connected callbacks per category.
func (h *Hub) Connect(category Category, owner string, callback Callback) *Subscription {
	sub := &Subscription{
		id:       h.nextID.Add(1),
		owner:    owner,
		category: category,
		callback: callback,
		boundary: nil,
	}

	h.categories[category].add(sub)

	return sub
}

// Disconnect removes the single callback identified by sub. Disconnecting
// an already removed subscription is a no-op.
func (h *Hub) Disconnect(sub *Subscription) {
	if sub == nil {
		return
	}

	h.registryFor(sub.category).remove(func(s *Subscription) bool {
		return s.id == sub.id
	})
}

// DisconnectOwner removes every callback the given subscriber identity has
// connected in the given category.
func (h *Hub) DisconnectOwner(category Category, owner string) {
	h.categories[category].remove(func(s *Subscription) bool {
		return s.owner == owner
	})
}

// Fire synchronously invokes every callback currently connected in the
// given category, each receiving a freshly constructed event wrapper
// around result.
func (h *Hub) Fire(category Category, result *core.Result) {
	for _, sub := range h.categories[category].snapshot() {
		sub.callback(Event{Result: result})
	}
}

// FireResult routes result to the category matching its reason: started,
// audio-chunk, completed and canceled results go to their respective
// registries. An unrecognized reason fires nothing.
func (h *Hub) FireResult(result *core.Result) {
	switch result.Reason {
	case core.ReasonStarted:
		h.Fire(CategoryStarted, result)
	case core.ReasonAudioChunk:
		h.Fire(CategorySynthesizing, result)
	case core.ReasonCompleted:
		h.Fire(CategoryCompleted, result)
	case core.ReasonCanceled:
		h.Fire(CategoryCanceled, result)
	case core.ReasonUnknown:
	default:
	}
}

// ConnectWordBoundary registers a callback on the always-broadcast
// word-boundary signal.
func (h *Hub) ConnectWordBoundary(owner string, callback WordBoundaryCallback) *Subscription {
	sub := &Subscription{
		id:       h.nextID.Add(1),
		owner:    owner,
		category: categoryWordBoundary,
		callback: nil,
		boundary: callback,
	}

	h.boundaries.add(sub)

	return sub
}

// FireWordBoundary broadcasts a word boundary to every connected
// word-boundary listener.
func (h *Hub) FireWordBoundary(boundary core.WordBoundary) {
	for _, sub := range h.boundaries.snapshot() {
		sub.boundary(boundary)
	}
}

// ListenerCount reports how many callbacks are connected in category.
func (h *Hub) ListenerCount(category Category) int {
	return h.categories[category].count()
}

func (h *Hub) registryFor(category Category) *registry {
	if category == categoryWordBoundary {
		return &h.boundaries
	}

	return &h.categories[category]
}
