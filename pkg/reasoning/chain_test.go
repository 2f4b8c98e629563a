package reasoning

import (
	"context"
	"strings"
	"testing"

	"github.com/quillworks/quill/pkg/config"
	"github.com/quillworks/quill/pkg/testutil"
)

func chainConfig() config.ReasoningConfig {
	return config.ReasoningConfig{
		Type:                config.ReasoningChainOfThought,
		MaxReasoningSteps:   3,
		ConfidenceThreshold: 0.8,
		ValidationRetries:   2,
	}
}

func TestChainOfThought_StopsOnConfidentAnswer(t *testing.T) {
	c := newChainOfThought(chainConfig(), nil, nil)
	ctx := context.Background()

	if err := c.Observe(ctx, Observation{Thought: "looking", Confidence: 0.4}); err != nil {
		t.Fatal(err)
	}
	if d := c.Decision(); d.Stop {
		t.Fatalf("low-confidence step should not stop: %+v", d)
	}

	err := c.Observe(ctx, Observation{
		Thought:       "found it",
		Confidence:    0.95,
		FinalProposed: true,
		FinalOutput:   "the answer",
	})
	if err != nil {
		t.Fatal(err)
	}

	d := c.Decision()
	if !d.Stop || d.Reason != "confident_answer" || d.Answer != "the answer" {
		t.Errorf("Decision() = %+v", d)
	}
}

func TestChainOfThought_LowConfidenceFinalContinues(t *testing.T) {
	c := newChainOfThought(chainConfig(), nil, nil)

	err := c.Observe(context.Background(), Observation{
		Thought:       "maybe?",
		Confidence:    0.5,
		FinalProposed: true,
		FinalOutput:   "a guess",
	})
	if err != nil {
		t.Fatal(err)
	}
	if d := c.Decision(); d.Stop {
		t.Errorf("proposal below threshold should not stop: %+v", d)
	}
}

func TestChainOfThought_StepBudget(t *testing.T) {
	c := newChainOfThought(chainConfig(), nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Observe(ctx, Observation{Thought: "still thinking", Confidence: 0.2}); err != nil {
			t.Fatal(err)
		}
	}

	d := c.Decision()
	if !d.Stop || d.Reason != "max_reasoning_steps" {
		t.Errorf("Decision() = %+v, want max_reasoning_steps", d)
	}
	if d.Answer != "still thinking" {
		t.Errorf("budget stop should fall back to the last thought: %q", d.Answer)
	}
}

func TestChainOfThought_ContextInjection(t *testing.T) {
	c := newChainOfThought(chainConfig(), nil, nil)
	if c.ContextInjection() != "" {
		t.Error("fresh strategy should inject nothing")
	}

	_ = c.Observe(context.Background(), Observation{Thought: "step one", Confidence: 0.6})

	if out := c.ContextInjection(); !strings.Contains(out, "step one") {
		t.Errorf("ContextInjection() = %q", out)
	}
}

func TestChainOfThought_ValidationRejectsStep(t *testing.T) {
	cfg := chainConfig()
	cfg.EnableReasoningValidation = true
	client := testutil.NewScriptedClient(
		testutil.TextTurn(`{"pass": false, "critique": "circular reasoning"}`),
		testutil.TextTurn(`{"pass": true, "critique": ""}`),
	)
	var steps []string
	c := newChainOfThought(cfg, client, func(thought string, _ float64, _ int, _ float64) {
		steps = append(steps, thought)
	})
	ctx := context.Background()

	if err := c.Observe(ctx, Observation{Thought: "bad step", Confidence: 0.5}); err != nil {
		t.Fatal(err)
	}
	if c.chain.Len() != 0 {
		t.Fatalf("rejected step was kept: %+v", c.chain)
	}
	if note := c.ContextInjection(); !strings.Contains(note, "circular reasoning") {
		t.Errorf("rejection note missing critique: %q", note)
	}

	if err := c.Observe(ctx, Observation{Thought: "better step", Confidence: 0.5}); err != nil {
		t.Fatal(err)
	}
	if c.chain.Len() != 1 {
		t.Fatalf("accepted step was dropped: %+v", c.chain)
	}
	if len(steps) != 1 || steps[0] != "better step" {
		t.Errorf("onStep saw %v, want only the accepted step", steps)
	}
}

func TestChainOfThought_ValidationRetryBudget(t *testing.T) {
	cfg := chainConfig()
	cfg.EnableReasoningValidation = true
	cfg.ValidationRetries = 1
	client := testutil.NewScriptedClient(
		testutil.TextTurn(`{"pass": false, "critique": "nope"}`),
	)
	c := newChainOfThought(cfg, client, nil)
	ctx := context.Background()

	_ = c.Observe(ctx, Observation{Thought: "first try", Confidence: 0.5})

	// Retries exhausted: the next step is accepted without another critique
	// call, which would fail loudly on the drained script.
	if err := c.Observe(ctx, Observation{Thought: "second try", Confidence: 0.5}); err != nil {
		t.Fatal(err)
	}
	if c.chain.Len() != 1 {
		t.Errorf("step after exhausted retries should be kept, chain len = %d", c.chain.Len())
	}
	if client.Calls() != 1 {
		t.Errorf("critique calls = %d, want 1", client.Calls())
	}
}

func TestChainOfThought_SnapshotRestore(t *testing.T) {
	c := newChainOfThought(chainConfig(), nil, nil)
	ctx := context.Background()
	_ = c.Observe(ctx, Observation{Thought: "one", Confidence: 0.4})
	_ = c.Observe(ctx, Observation{Thought: "two", Confidence: 0.6})

	raw, err := c.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	restored := newChainOfThought(chainConfig(), nil, nil)
	if err := restored.Restore(raw); err != nil {
		t.Fatal(err)
	}
	if restored.chain.Len() != 2 {
		t.Errorf("restored chain len = %d, want 2", restored.chain.Len())
	}
	if restored.chain.FinalConfidence() != 0.6 {
		t.Errorf("restored confidence = %v", restored.chain.FinalConfidence())
	}

	// A restored strategy continues where it left off.
	_ = restored.Observe(ctx, Observation{Thought: "three", Confidence: 0.2})
	if d := restored.Decision(); !d.Stop || d.Reason != "max_reasoning_steps" {
		t.Errorf("Decision() = %+v", d)
	}
}

func TestNew_Factory(t *testing.T) {
	if s, err := New(config.ReasoningConfig{Type: config.ReasoningNone}, nil, nil); err != nil || s.Name() != "none" {
		t.Errorf("New(none) = %v, %v", s, err)
	}
	if s, err := New(config.ReasoningConfig{Type: config.ReasoningChainOfThought}, nil, nil); err != nil || s.Name() != "chain_of_thought" {
		t.Errorf("New(chain) = %v, %v", s, err)
	}
	if _, err := New(config.ReasoningConfig{Type: config.ReasoningTreeOfThoughts}, nil, nil); err == nil {
		t.Error("tree of thoughts without a client should fail")
	}
	if _, err := New(config.ReasoningConfig{Type: "bogus"}, nil, nil); err == nil {
		t.Error("unknown type should fail")
	}
}
