package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler receives events. Handlers must not assume any particular
// goroutine; the bus calls them from whichever goroutine emitted the event.
type Handler func(Event)

// Subscription identifies a registered handler for later removal.
type Subscription struct {
	id   uint64
	kind Kind
}

type subscriber struct {
	id      uint64
	kind    Kind
	handler Handler
}

// Bus fans events out to subscribers. The subscriber list is copy-on-write:
// Publish reads an immutable snapshot without locking, so dispatch never
// contends with subscription changes. Dispatch is synchronous, which keeps
// per-agent delivery order equal to emission order; handler panics are
// caught and logged so a misbehaving subscriber cannot affect the run.
type Bus struct {
	mu     sync.Mutex
	subs   atomic.Pointer[[]subscriber]
	nextID atomic.Uint64
}

func NewBus() *Bus {
	b := &Bus{}
	empty := make([]subscriber, 0)
	b.subs.Store(&empty)
	return b
}

// Subscribe registers a handler for a kind, or for every event with KindAll.
func (b *Bus) Subscribe(kind Kind, handler Handler) *Subscription {
	if handler == nil {
		return &Subscription{}
	}
	if kind == "" {
		kind = KindAll
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID.Add(1)
	current := *b.subs.Load()
	next := make([]subscriber, len(current), len(current)+1)
	copy(next, current)
	next = append(next, subscriber{id: id, kind: kind, handler: handler})
	b.subs.Store(&next)

	return &Subscription{id: id, kind: kind}
}

// Unsubscribe removes a previously registered handler. Unknown
// subscriptions are ignored.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil || sub.id == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current := *b.subs.Load()
	next := make([]subscriber, 0, len(current))
	for _, s := range current {
		if s.id != sub.id {
			next = append(next, s)
		}
	}
	b.subs.Store(&next)
}

// Publish delivers the event to every matching subscriber in registration
// order.
func (b *Bus) Publish(evt Event) {
	for _, s := range *b.subs.Load() {
		if s.kind != KindAll && s.kind != evt.Kind {
			continue
		}
		b.dispatch(s, evt)
	}
}

func (b *Bus) dispatch(s subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panicked",
				"kind", evt.Kind,
				"agent_id", evt.AgentID,
				"panic", r)
		}
	}()
	s.handler(evt)
}

// SubscriberCount returns the number of registered handlers.
func (b *Bus) SubscriberCount() int {
	return len(*b.subs.Load())
}
