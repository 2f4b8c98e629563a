// Package events implements the engine's lifecycle event fan-out. The bus
// decouples event producers (the turn loop, the tool executor, reasoning
// strategies) from consumers (metrics, streaming sinks, host callbacks).
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the lifecycle events the engine emits.
type Kind string

const (
	RunStarted        Kind = "run_started"
	RunCompleted      Kind = "run_completed"
	StepStarted       Kind = "step_started"
	StepCompleted     Kind = "step_completed"
	LLMCallStarted    Kind = "llm_call_started"
	LLMCallCompleted  Kind = "llm_call_completed"
	LLMChunkReceived  Kind = "llm_chunk_received"
	ToolCallStarted   Kind = "tool_call_started"
	ToolCallCompleted Kind = "tool_call_completed"
	StatusUpdate      Kind = "status_update"
	LoopDetected      Kind = "loop_detected"
	ReasoningStep     Kind = "reasoning_step"

	// KindAll subscribes a handler to every event.
	KindAll Kind = "*"
)

// Event is one lifecycle notification. TurnIndex is the turn the engine was
// executing, or about to execute, when the event fired; RunStarted carries
// the index of the first turn the run will perform.
type Event struct {
	ID        string
	Kind      Kind
	AgentID   string
	TurnIndex int
	Timestamp time.Time
	Payload   any
}

// New builds an event with a fresh ID and a UTC timestamp.
func New(kind Kind, agentID string, turnIndex int, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		AgentID:   agentID,
		TurnIndex: turnIndex,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// RunStartedPayload accompanies RunStarted.
type RunStartedPayload struct {
	Goal     string
	Resumed  bool
	ToolList []string
}

// RunCompletedPayload accompanies RunCompleted.
type RunCompletedPayload struct {
	Succeeded   bool
	FinalOutput string
	Error       string
	TotalTurns  int
	Duration    time.Duration
}

// StepCompletedPayload accompanies StepCompleted.
type StepCompletedPayload struct {
	ExecutedTools int
	Final         bool
	Error         string
}

// LLMCallStartedPayload accompanies LLMCallStarted.
type LLMCallStartedPayload struct {
	Model   string
	Attempt int
}

// LLMCallCompletedPayload accompanies LLMCallCompleted.
type LLMCallCompletedPayload struct {
	Model        string
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
	Error        string
}

// LLMChunkPayload accompanies LLMChunkReceived. Content has already been
// through the scaffold filter; tool-call JSON never appears here.
type LLMChunkPayload struct {
	Content string
}

// ToolCallStartedPayload accompanies ToolCallStarted. Cache hits skip this
// event entirely.
type ToolCallStartedPayload struct {
	ToolName    string
	CallID      string
	Fingerprint string
}

// ToolCallCompletedPayload accompanies ToolCallCompleted.
type ToolCallCompletedPayload struct {
	ToolName string
	CallID   string
	Success  bool
	CacheHit bool
	Outcome  string
	Elapsed  time.Duration
	Error    string
}

// StatusUpdatePayload accompanies StatusUpdate.
type StatusUpdatePayload struct {
	Message string
}

// LoopDetectedPayload accompanies LoopDetected.
type LoopDetectedPayload struct {
	Kind                string
	ConsecutiveFailures int
}

// ReasoningStepPayload accompanies ReasoningStep.
type ReasoningStepPayload struct {
	Thought    string
	Confidence float64
	Depth      int
	Score      float64
}
