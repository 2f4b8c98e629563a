package reasoning

import (
	"context"
	"encoding/json"

	"github.com/quillworks/quill/pkg/config"
	"github.com/quillworks/quill/pkg/llms"
)

// chainOfThought appends one step per turn and stops once the model
// proposes an answer with enough confidence, or the step budget runs out.
type chainOfThought struct {
	cfg    config.ReasoningConfig
	client llms.ModelClient
	onStep StepCallback

	chain       Chain
	pendingNote string
	retriesUsed int
	decided     Decision
}

func newChainOfThought(cfg config.ReasoningConfig, client llms.ModelClient, onStep StepCallback) *chainOfThought {
	return &chainOfThought{cfg: cfg, client: client, onStep: onStep}
}

func (c *chainOfThought) Name() string { return "chain_of_thought" }

func (c *chainOfThought) ContextInjection() string {
	out := c.chain.Render()
	if c.pendingNote != "" {
		if out != "" {
			out += "\n"
		}
		out += c.pendingNote
	}
	return out
}

func (c *chainOfThought) Observe(ctx context.Context, obs Observation) error {
	c.pendingNote = ""

	step := Step{
		Thought:     obs.Thought,
		Observation: obs.ToolObservation,
		Confidence:  clampScore(obs.Confidence),
	}

	if c.cfg.EnableReasoningValidation && c.client != nil && step.Thought != "" &&
		c.retriesUsed < c.cfg.ValidationRetries {
		pass, critique, err := critiqueStep(ctx, c.client, step.Thought)
		if err == nil && !pass {
			// Rejected step is dropped; the next turn regenerates it.
			c.retriesUsed++
			c.pendingNote = "Your previous reasoning step was rejected: " + critique +
				"\nRevise the step and try again."
			return nil
		}
	}
	c.retriesUsed = 0

	c.chain.Append(step)
	if c.onStep != nil {
		c.onStep(step.Thought, step.Confidence, c.chain.Len()-1, 0)
	}

	if obs.FinalProposed && c.chain.FinalConfidence() >= c.cfg.ConfidenceThreshold {
		c.decided = Decision{Stop: true, Answer: obs.FinalOutput, Reason: "confident_answer"}
	} else if c.chain.Len() >= c.cfg.MaxReasoningSteps {
		answer := obs.FinalOutput
		if answer == "" {
			answer = obs.Thought
		}
		c.decided = Decision{Stop: true, Answer: answer, Reason: "max_reasoning_steps"}
	}
	return nil
}

func (c *chainOfThought) Decision() Decision { return c.decided }

type chainState struct {
	Chain       Chain  `json:"chain"`
	PendingNote string `json:"pending_note,omitempty"`
	RetriesUsed int    `json:"retries_used,omitempty"`
}

func (c *chainOfThought) Snapshot() (json.RawMessage, error) {
	return json.Marshal(chainState{
		Chain:       c.chain,
		PendingNote: c.pendingNote,
		RetriesUsed: c.retriesUsed,
	})
}

func (c *chainOfThought) Restore(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var st chainState
	if err := json.Unmarshal(raw, &st); err != nil {
		return err
	}
	c.chain = st.Chain
	c.pendingNote = st.PendingNote
	c.retriesUsed = st.RetriesUsed
	return nil
}
