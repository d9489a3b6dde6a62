package coordinator

import (
	"sync"
	"time"
)

// Mode is the control mode of the relays.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

// Source says what caused a mode transition.
type Source string

const (
	SourceUserAction Source = "user_action"
	SourceTimeout    Source = "timeout"
	SourceCutoff     Source = "cutoff"
)

// Event is broadcast on every mode transition.
type Event struct {
	Mode      Mode
	Timestamp time.Time
	Source    Source
}

// Notifier is a synchronous in-process broadcast of mode transitions.
// Listeners are invoked in registration order on the publisher's
// goroutine. There is no replay: a listener registered after an event
// fires never sees it. The notifier is a signal, not a source of truth;
// safety-relevant decisions must re-read the authoritative store.
type Notifier struct {
	mu    sync.Mutex
	subs  map[int]func(Event)
	order []int
	next  int
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func(Event))}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (n *Notifier) Subscribe(fn func(Event)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	n.subs[id] = fn
	n.order = append(n.order, id)
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Publish delivers the event to all current listeners, synchronously
// and in registration order.
func (n *Notifier) Publish(e Event) {
	n.mu.Lock()
	fns := make([]func(Event), 0, len(n.subs))
	for _, id := range n.order {
		if fn, ok := n.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
