// Package loopdetect watches tool-call history for signs that a run is no
// longer making progress: repeated identical calls that return identical
// output, or a streak of turns with no successful tool execution and no
// final answer.
package loopdetect

import (
	"sync"
	"time"
)

// OutcomeClass buckets a tool call result for history purposes.
type OutcomeClass string

const (
	OutcomeSuccess  OutcomeClass = "success"
	OutcomeFailure  OutcomeClass = "failure"
	OutcomeCacheHit OutcomeClass = "cache_hit"
)

// Entry is one recorded tool call.
type Entry struct {
	ToolName   string       `json:"tool_name"`
	ArgsHash   string       `json:"args_hash"`
	OutputHash string       `json:"output_hash,omitempty"`
	Outcome    OutcomeClass `json:"outcome"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Kind names the heuristic that fired.
type Kind string

const (
	KindRepeatedNoOp        Kind = "repeated_noop_calls"
	KindConsecutiveFailures Kind = "consecutive_failed_turns"
)

// Verdict is the detector's judgment after the latest observation.
type Verdict struct {
	Triggered           bool
	Kind                Kind
	ConsecutiveFailures int
}

// Detector keeps a bounded ring of recent tool calls plus a failed-turn
// streak counter. It is owned by a single run; methods are safe for
// concurrent use anyway since tool batches record from worker goroutines.
type Detector struct {
	mu sync.Mutex

	ring    []Entry
	maxRing int

	failThreshold       int
	consecutiveFailures int
}

// NewDetector builds a detector with the given ring bound and failed-turn
// threshold.
func NewDetector(maxHistory, failThreshold int) *Detector {
	if maxHistory < 1 {
		maxHistory = 1
	}
	if failThreshold < 1 {
		failThreshold = 1
	}
	return &Detector{
		maxRing:       maxHistory,
		failThreshold: failThreshold,
	}
}

// RecordCall appends a tool call observation, evicting the oldest entry when
// the ring is full.
func (d *Detector) RecordCall(e Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ring = append(d.ring, e)
	if len(d.ring) > d.maxRing {
		d.ring = d.ring[len(d.ring)-d.maxRing:]
	}
}

// RecordTurn observes a completed turn. progress means the turn produced a
// successful tool execution or a final answer.
func (d *Detector) RecordTurn(progress bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if progress {
		d.consecutiveFailures = 0
	} else {
		d.consecutiveFailures++
	}
}

// Check evaluates both heuristics against the current state.
func (d *Detector) Check() Verdict {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.consecutiveFailures >= d.failThreshold {
		return Verdict{
			Triggered:           true,
			Kind:                KindConsecutiveFailures,
			ConsecutiveFailures: d.consecutiveFailures,
		}
	}

	if d.noopPairs() >= 2 {
		return Verdict{
			Triggered:           true,
			Kind:                KindRepeatedNoOp,
			ConsecutiveFailures: d.consecutiveFailures,
		}
	}

	return Verdict{ConsecutiveFailures: d.consecutiveFailures}
}

// noopPairs counts adjacent call pairs that are identical in tool, arguments
// and output. Cache hits count: a hit replays the identical output by
// construction. Three identical calls in a row form two pairs.
func (d *Detector) noopPairs() int {
	pairs := 0
	for i := 1; i < len(d.ring); i++ {
		prev, cur := d.ring[i-1], d.ring[i]
		if prev.Outcome == OutcomeFailure || cur.Outcome == OutcomeFailure {
			continue
		}
		if prev.ToolName == cur.ToolName &&
			prev.ArgsHash == cur.ArgsHash &&
			prev.OutputHash != "" &&
			prev.OutputHash == cur.OutputHash {
			pairs++
		}
	}
	return pairs
}

// History snapshots the ring for persistence.
func (d *Detector) History() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Entry, len(d.ring))
	copy(out, d.ring)
	return out
}

// ConsecutiveFailures returns the current failed-turn streak.
func (d *Detector) ConsecutiveFailures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consecutiveFailures
}

// Restore rehydrates the detector from persisted state.
func (d *Detector) Restore(entries []Entry, failedTurns int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(entries) > d.maxRing {
		entries = entries[len(entries)-d.maxRing:]
	}
	d.ring = append(d.ring[:0], entries...)
	d.consecutiveFailures = failedTurns
}
