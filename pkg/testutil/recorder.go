package testutil

import (
	"sync"

	"github.com/quillworks/quill/pkg/events"
)

// Recorder collects every event it receives, preserving delivery order.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Handler returns the function to pass to Bus.Subscribe.
func (r *Recorder) Handler() events.Handler {
	return func(evt events.Event) {
		r.mu.Lock()
		r.events = append(r.events, evt)
		r.mu.Unlock()
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Kinds returns the recorded event kinds in delivery order.
func (r *Recorder) Kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// ByKind returns the recorded events of one kind.
func (r *Recorder) ByKind(kind events.Kind) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events of the kind were recorded.
func (r *Recorder) Count(kind events.Kind) int {
	return len(r.ByKind(kind))
}
