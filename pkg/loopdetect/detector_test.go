package loopdetect

import (
	"fmt"
	"testing"
	"time"
)

func call(tool, args, output string, outcome OutcomeClass) Entry {
	return Entry{
		ToolName:   tool,
		ArgsHash:   args,
		OutputHash: output,
		Outcome:    outcome,
		Timestamp:  time.Now(),
	}
}

func TestDetector_RepeatedNoOpCalls(t *testing.T) {
	d := NewDetector(50, 3)

	d.RecordCall(call("search", "h1", "o1", OutcomeSuccess))
	d.RecordCall(call("search", "h1", "o1", OutcomeSuccess))
	if v := d.Check(); v.Triggered {
		t.Fatalf("one identical pair should not trigger: %+v", v)
	}

	// Three identical calls form two pairs.
	d.RecordCall(call("search", "h1", "o1", OutcomeCacheHit))
	v := d.Check()
	if !v.Triggered || v.Kind != KindRepeatedNoOp {
		t.Errorf("Check() = %+v, want repeated_noop_calls", v)
	}
}

func TestDetector_DifferentOutputsAreProgress(t *testing.T) {
	d := NewDetector(50, 3)

	for i := 0; i < 5; i++ {
		d.RecordCall(call("poll", "h1", fmt.Sprintf("o%d", i), OutcomeSuccess))
	}
	if v := d.Check(); v.Triggered {
		t.Errorf("changing outputs should not trigger: %+v", v)
	}
}

func TestDetector_FailuresDoNotCountAsNoOps(t *testing.T) {
	d := NewDetector(50, 10)

	for i := 0; i < 4; i++ {
		d.RecordCall(call("flaky", "h1", "", OutcomeFailure))
	}
	if v := d.Check(); v.Triggered {
		t.Errorf("repeated failures are not no-op pairs: %+v", v)
	}
}

func TestDetector_ConsecutiveFailedTurns(t *testing.T) {
	d := NewDetector(50, 3)

	d.RecordTurn(false)
	d.RecordTurn(false)
	if v := d.Check(); v.Triggered {
		t.Fatalf("below threshold should not trigger: %+v", v)
	}

	d.RecordTurn(false)
	v := d.Check()
	if !v.Triggered || v.Kind != KindConsecutiveFailures || v.ConsecutiveFailures != 3 {
		t.Errorf("Check() = %+v, want consecutive_failed_turns at 3", v)
	}
}

func TestDetector_ProgressResetsStreak(t *testing.T) {
	d := NewDetector(50, 3)

	d.RecordTurn(false)
	d.RecordTurn(false)
	d.RecordTurn(true)
	d.RecordTurn(false)

	if v := d.Check(); v.Triggered {
		t.Errorf("streak should reset on progress: %+v", v)
	}
	if got := d.ConsecutiveFailures(); got != 1 {
		t.Errorf("ConsecutiveFailures() = %d, want 1", got)
	}
}

func TestDetector_RingBound(t *testing.T) {
	d := NewDetector(3, 3)

	for i := 0; i < 10; i++ {
		d.RecordCall(call("t", fmt.Sprintf("h%d", i), "o", OutcomeSuccess))
	}

	hist := d.History()
	if len(hist) != 3 {
		t.Fatalf("History() has %d entries, want 3", len(hist))
	}
	if hist[0].ArgsHash != "h7" || hist[2].ArgsHash != "h9" {
		t.Errorf("ring kept wrong entries: %+v", hist)
	}
}

func TestDetector_Restore(t *testing.T) {
	d := NewDetector(50, 3)
	d.RecordCall(call("search", "h1", "o1", OutcomeSuccess))
	d.RecordCall(call("search", "h1", "o1", OutcomeSuccess))
	d.RecordTurn(false)
	d.RecordTurn(false)

	fresh := NewDetector(50, 3)
	fresh.Restore(d.History(), d.ConsecutiveFailures())

	// One more identical call and one more failed turn push both heuristics
	// over their thresholds; either trigger is acceptable, failures win.
	fresh.RecordCall(call("search", "h1", "o1", OutcomeSuccess))
	fresh.RecordTurn(false)

	v := fresh.Check()
	if !v.Triggered {
		t.Fatalf("restored detector lost its history: %+v", v)
	}
	if v.Kind != KindConsecutiveFailures {
		t.Errorf("Kind = %s, want %s", v.Kind, KindConsecutiveFailures)
	}
}

func TestDetector_RestoreTruncatesToRing(t *testing.T) {
	entries := make([]Entry, 10)
	for i := range entries {
		entries[i] = call("t", fmt.Sprintf("h%d", i), "o", OutcomeSuccess)
	}

	d := NewDetector(4, 3)
	d.Restore(entries, 0)

	hist := d.History()
	if len(hist) != 4 {
		t.Fatalf("History() has %d entries, want 4", len(hist))
	}
	if hist[0].ArgsHash != "h6" {
		t.Errorf("restore kept wrong tail: %+v", hist)
	}
}
