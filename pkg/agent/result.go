package agent

import (
	"errors"

	"github.com/quillworks/quill/pkg/state"
)

// Terminal reasons reported in RunResult.Error. Empty means success.
const (
	ReasonCancelled        = "cancelled"
	ReasonMaxTurns         = "max_turns"
	ReasonRunTimeout       = "run_timeout"
	ReasonLoopDetected     = "loop_detected"
	ReasonLLMFailed        = "llm_failed"
	ReasonStateStoreFailed = "state_store_failed"
	ReasonInvalidConfig    = "invalid_configuration"
	ReasonInternal         = "internal"
)

// ErrRunInProgress is returned when Run or Step is called for an agent that
// already has an active run in this process. Concurrent runs fail fast
// rather than queueing.
var ErrRunInProgress = errors.New("run already in progress for this agent")

// ErrGoalMismatch is returned when a run is started with a different goal
// than the persisted, uncompleted state carries. The goal freezes once the
// first turn is recorded.
var ErrGoalMismatch = errors.New("goal differs from persisted agent state")

// RunResult is the outcome of a completed run.
type RunResult struct {
	Succeeded bool
	// FinalOutput may be non-empty even on failure, e.g. a partial answer
	// truncated by the turn budget.
	FinalOutput string
	// Error is one of the Reason constants, empty on success.
	Error      string
	TotalTurns int
	// TerminalState is a snapshot of the agent state at termination, as
	// persisted (or as held in memory when the final save failed).
	TerminalState *state.AgentState
}

// StepResult is the outcome of a single turn.
type StepResult struct {
	// Continue is true when the run has not terminated.
	Continue          bool
	ExecutedToolCount int
	FinalOutput       string
	Error             string
}
