// Package state defines the persisted agent record and the store contract.
// The store holds the canonical copy between runs; an active run owns its
// state exclusively and writes back after every turn.
package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quillworks/quill/pkg/llms"
	"github.com/quillworks/quill/pkg/loopdetect"
	"github.com/quillworks/quill/pkg/reasoning"
	"github.com/quillworks/quill/pkg/tools"
)

// ModelMessage is the parsed reasoning artifact of one turn. At most one of
// FinalOutput and ToolCalls drives the turn; when the model emits both, the
// final output wins and the calls are discarded.
type ModelMessage struct {
	Thoughts      string          `json:"thoughts,omitempty"`
	FinalOutput   string          `json:"final_output,omitempty"`
	ToolCalls     []llms.ToolCall `json:"tool_calls,omitempty"`
	ReasoningStep *reasoning.Step `json:"reasoning_step,omitempty"`
}

// Turn records one loop iteration.
type Turn struct {
	Index        int                     `json:"index"`
	ModelMessage ModelMessage            `json:"model_message"`
	ToolResults  []tools.ExecutionResult `json:"tool_results,omitempty"`
	StartedAt    time.Time               `json:"started_at"`
	CompletedAt  time.Time               `json:"completed_at"`
	Error        string                  `json:"error,omitempty"`
}

// Final reports whether the turn carries a final answer.
func (t Turn) Final() bool {
	return t.ModelMessage.FinalOutput != ""
}

// AgentState is the full per-agent record. Turn indices are contiguous and
// strictly increasing from 0; AppendTurn enforces that.
type AgentState struct {
	AgentID string `json:"agent_id"`
	// Goal is frozen after the first turn.
	Goal  string `json:"goal"`
	Turns []Turn `json:"turns"`
	// Summary stands in for turns elided from the prompt. The full turn
	// list above remains authoritative. SummarizedTurns counts how many
	// leading turns the summary already covers.
	Summary         string `json:"summary,omitempty"`
	SummarizedTurns int    `json:"summarized_turns,omitempty"`
	// ReasoningState is the active strategy's snapshot.
	ReasoningState json.RawMessage `json:"reasoning_state,omitempty"`
	// ToolCallHistory is the loop detector's bounded ring.
	ToolCallHistory     []loopdetect.Entry `json:"tool_call_history,omitempty"`
	ConsecutiveFailures int                `json:"consecutive_failures,omitempty"`

	// Completed marks a terminal run; FinalOutput and TerminalError
	// record how it ended. A completed state short-circuits re-runs with
	// the memoized output.
	Completed     bool   `json:"completed,omitempty"`
	FinalOutput   string `json:"final_output,omitempty"`
	TerminalError string `json:"terminal_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppendTurn adds a turn, rejecting index gaps and successors of a final
// turn.
func (s *AgentState) AppendTurn(t Turn) error {
	if t.Index != len(s.Turns) {
		return fmt.Errorf("turn index %d out of sequence, want %d", t.Index, len(s.Turns))
	}
	if n := len(s.Turns); n > 0 && s.Turns[n-1].Final() {
		return fmt.Errorf("cannot append turn %d after final turn %d", t.Index, n-1)
	}
	s.Turns = append(s.Turns, t)
	return nil
}

// Validate checks the structural invariants of a loaded state.
func (s *AgentState) Validate() error {
	if s.AgentID == "" {
		return fmt.Errorf("agent state missing agent_id")
	}
	for i, t := range s.Turns {
		if t.Index != i {
			return fmt.Errorf("turn index %d at position %d violates contiguity", t.Index, i)
		}
		if t.Final() && i != len(s.Turns)-1 {
			return fmt.Errorf("final turn %d has a successor", i)
		}
	}
	return nil
}

// Clone returns a deep copy sharing no mutable data with s.
func (s *AgentState) Clone() *AgentState {
	if s == nil {
		return nil
	}
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		ct := t
		ct.ToolResults = append([]tools.ExecutionResult(nil), t.ToolResults...)
		if t.ModelMessage.ToolCalls != nil {
			calls := make([]llms.ToolCall, len(t.ModelMessage.ToolCalls))
			for j, call := range t.ModelMessage.ToolCalls {
				cc := call
				cc.Arguments = cloneArgs(call.Arguments)
				calls[j] = cc
			}
			ct.ModelMessage.ToolCalls = calls
		}
		if t.ModelMessage.ReasoningStep != nil {
			step := *t.ModelMessage.ReasoningStep
			ct.ModelMessage.ReasoningStep = &step
		}
		out.Turns[i] = ct
	}
	out.ToolCallHistory = append([]loopdetect.Entry(nil), s.ToolCallHistory...)
	out.ReasoningState = append(json.RawMessage(nil), s.ReasoningState...)
	return &out
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return cloneArgs(vv)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
