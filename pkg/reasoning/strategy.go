package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quillworks/quill/pkg/config"
	"github.com/quillworks/quill/pkg/llms"
)

// Observation carries what one turn produced into the strategy.
type Observation struct {
	// Thought is the free-text reasoning the model emitted this turn.
	Thought string
	// Confidence is the model's self-reported confidence for this step,
	// already clamped to [0,1]. Zero when the model reported none.
	Confidence float64
	// ToolObservation summarizes the turn's tool results, empty when the
	// turn ran no tools.
	ToolObservation string
	// FinalProposed is true when the model proposed a final answer.
	FinalProposed bool
	// FinalOutput is the proposed answer when FinalProposed is set.
	FinalOutput string
}

// Decision is a strategy's verdict after observing a turn.
type Decision struct {
	// Stop is true when the strategy wants the run to finish now.
	Stop bool
	// Answer is the final output to finish with. May differ from the
	// model's proposal, e.g. the best tree leaf.
	Answer string
	// Reason names what triggered the stop.
	Reason string
}

// StepCallback receives each accepted reasoning step for event emission.
type StepCallback func(thought string, confidence float64, depth int, score float64)

// Strategy is one reasoning approach. The turn loop owns the conversation
// protocol; strategies own the additional reasoning state layered on top of
// it and its stopping rules.
type Strategy interface {
	Name() string

	// ContextInjection renders accumulated reasoning state for the next
	// prompt. Empty means nothing to inject.
	ContextInjection() string

	// Observe ingests one turn's parsed output. Tree strategies may call
	// the model here to expand candidate continuations.
	Observe(ctx context.Context, obs Observation) error

	// Decision reports whether the strategy considers the run finished.
	Decision() Decision

	// Snapshot serializes the strategy state for persistence.
	Snapshot() (json.RawMessage, error)

	// Restore loads previously snapshotted state.
	Restore(raw json.RawMessage) error
}

// New builds the strategy selected by cfg. The client is used by strategies
// that make their own model calls (tree expansion, step validation); it may
// be nil when the configuration needs neither.
func New(cfg config.ReasoningConfig, client llms.ModelClient, onStep StepCallback) (Strategy, error) {
	switch cfg.Type {
	case config.ReasoningNone, "":
		return &noopStrategy{}, nil
	case config.ReasoningChainOfThought:
		return newChainOfThought(cfg, client, onStep), nil
	case config.ReasoningTreeOfThoughts:
		if client == nil {
			return nil, fmt.Errorf("tree of thoughts requires a model client")
		}
		return newTreeOfThoughts(cfg, client, onStep), nil
	default:
		return nil, fmt.Errorf("unsupported reasoning type: %s", cfg.Type)
	}
}

// noopStrategy is used when reasoning is disabled. It never stops the run
// and injects nothing.
type noopStrategy struct{}

func (noopStrategy) Name() string                             { return "none" }
func (noopStrategy) ContextInjection() string                 { return "" }
func (noopStrategy) Observe(context.Context, Observation) error { return nil }
func (noopStrategy) Decision() Decision                       { return Decision{} }
func (noopStrategy) Snapshot() (json.RawMessage, error)       { return json.RawMessage("{}"), nil }
func (noopStrategy) Restore(json.RawMessage) error            { return nil }

// collectText drains a model stream into a single string. Strategies use it
// for their auxiliary calls where streaming granularity does not matter.
func collectText(ctx context.Context, client llms.ModelClient, req llms.Request) (string, error) {
	ch, err := client.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for chunk := range ch {
		b.WriteString(chunk.Content)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}

// extractJSON finds the first balanced JSON object or array in text,
// tolerating markdown fences and surrounding prose.
func extractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(text); j++ {
			c := text[j]
			if escaped {
				escaped = false
				continue
			}
			switch {
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{' || c == '[':
				depth++
			case c == '}' || c == ']':
				depth--
				if depth == 0 {
					return text[i : j+1], true
				}
			}
		}
	}
	return "", false
}
