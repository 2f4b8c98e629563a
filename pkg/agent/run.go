package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quillworks/quill/pkg/dedupe"
	"github.com/quillworks/quill/pkg/events"
	"github.com/quillworks/quill/pkg/llms"
	"github.com/quillworks/quill/pkg/loopdetect"
	"github.com/quillworks/quill/pkg/observability"
	"github.com/quillworks/quill/pkg/prompt"
	"github.com/quillworks/quill/pkg/reasoning"
	"github.com/quillworks/quill/pkg/state"
	"github.com/quillworks/quill/pkg/tools"
)

// run is the per-invocation context of one agentID.
type run struct {
	a       *Agent
	agentID string
	st      *state.AgentState

	registry *tools.Registry
	executor *tools.Executor
	strategy reasoning.Strategy
	detector *loopdetect.Detector

	functionMode bool
	parentCtx    context.Context
	turnIndex    int
	startedAt    time.Time
	loopVerdict  *loopdetect.Verdict
}

// Run executes turns until the run terminates and returns the result.
// Concurrent calls for the same agentID fail fast with ErrRunInProgress.
func (a *Agent) Run(ctx context.Context, agentID, goal string, toolset []tools.Tool) (*RunResult, error) {
	if err := a.acquire(agentID); err != nil {
		return nil, err
	}
	defer a.release(agentID)

	r, memo, err := a.prepare(ctx, agentID, goal, toolset)
	if err != nil {
		return nil, err
	}
	if memo != nil {
		return memo, nil
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if a.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.RunTimeout)
		defer cancel()
	}
	r.parentCtx = ctx

	tracer := observability.GetTracer("quill.agent")
	runCtx, span := tracer.Start(runCtx, observability.SpanAgentRun,
		trace.WithAttributes(attribute.String(observability.AttrAgentID, agentID)))
	defer span.End()

	r.start(goal)

	for {
		if reason := r.checkBudgets(runCtx); reason != "" {
			return r.terminate(reason), nil
		}
		final, reason := r.step(runCtx)
		if reason != "" {
			res := r.terminate(reason)
			span.SetAttributes(attribute.String(observability.AttrTerminalReason, reason))
			return res, nil
		}
		if final {
			return r.terminate(""), nil
		}
	}
}

// Step performs exactly one turn for hosts that drive the loop themselves.
// A terminated or budget-exhausted agent finalizes immediately.
func (a *Agent) Step(ctx context.Context, agentID, goal string, toolset []tools.Tool) (*StepResult, error) {
	if err := a.acquire(agentID); err != nil {
		return nil, err
	}
	defer a.release(agentID)

	r, memo, err := a.prepare(ctx, agentID, goal, toolset)
	if err != nil {
		return nil, err
	}
	if memo != nil {
		return &StepResult{Continue: false, FinalOutput: memo.FinalOutput, Error: memo.Error}, nil
	}
	r.parentCtx = ctx
	r.start(goal)

	if reason := r.checkBudgets(ctx); reason != "" {
		r.terminate(reason)
		return &StepResult{Continue: false, Error: reason}, nil
	}

	final, reason := r.step(ctx)
	if reason != "" {
		res := r.terminate(reason)
		return &StepResult{Continue: false, Error: reason, FinalOutput: res.FinalOutput}, nil
	}

	executed := 0
	if n := len(r.st.Turns); n > 0 {
		executed = len(r.st.Turns[n-1].ToolResults)
	}
	if final {
		res := r.terminate("")
		return &StepResult{Continue: false, ExecutedToolCount: executed, FinalOutput: res.FinalOutput}, nil
	}
	if reason := r.checkBudgets(ctx); reason != "" {
		r.terminate(reason)
		return &StepResult{Continue: false, ExecutedToolCount: executed, Error: reason}, nil
	}
	return &StepResult{Continue: true, ExecutedToolCount: executed}, nil
}

// prepare loads or creates the state, builds the per-run machinery, and
// short-circuits completed runs with their memoized result.
func (a *Agent) prepare(ctx context.Context, agentID, goal string, toolset []tools.Tool) (*run, *RunResult, error) {
	st, err := a.store.Load(ctx, agentID)
	switch {
	case errors.Is(err, state.ErrNotFound):
		now := time.Now().UTC()
		st = &state.AgentState{AgentID: agentID, Goal: goal, CreatedAt: now, UpdatedAt: now}
	case err != nil:
		return nil, nil, fmt.Errorf("%s: %w", ReasonStateStoreFailed, err)
	}

	if st.Goal != "" && st.Goal != goal {
		return nil, nil, fmt.Errorf("%w: agent %s has goal %q", ErrGoalMismatch, agentID, st.Goal)
	}
	if st.Goal == "" {
		st.Goal = goal
	}

	if st.Completed && st.TerminalError == "" && !a.cfg.DisableResultMemoization {
		return nil, &RunResult{
			Succeeded:     true,
			FinalOutput:   st.FinalOutput,
			TotalTurns:    len(st.Turns),
			TerminalState: st,
		}, nil
	}

	registry := tools.NewRegistry()
	if err := registry.RegisterAll(toolset...); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", ReasonInvalidConfig, err)
	}

	r := &run{
		a:            a,
		agentID:      agentID,
		st:           st,
		registry:     registry,
		functionMode: a.cfg.UseFunctionCalling && a.client.SupportsFunctionCalling(),
		startedAt:    time.Now(),
		turnIndex:    len(st.Turns),
	}

	r.executor = tools.NewExecutor(registry, tools.ExecutorOptions{
		Cache:          a.cache,
		DefaultTimeout: a.cfg.ToolTimeout,
		MaxParallel:    a.cfg.MaxParallelTools,
		OnCallStarted: func(req tools.Request, fingerprint string) {
			r.emit(events.ToolCallStarted, events.ToolCallStartedPayload{
				ToolName:    req.Name,
				CallID:      req.CallID,
				Fingerprint: fingerprint,
			})
		},
		OnCallCompleted: func(res tools.ExecutionResult) {
			if res.Kind == tools.OutcomeCacheHit {
				r.a.collector.CacheHit()
			} else if res.Kind == tools.OutcomeSuccess {
				r.a.collector.CacheMiss()
			}
			r.a.collector.ToolCall(res.ToolName, res.Elapsed, resultErr(res))
			payload := events.ToolCallCompletedPayload{
				ToolName: res.ToolName,
				CallID:   res.CallID,
				Success:  res.Succeeded(),
				CacheHit: res.Kind == tools.OutcomeCacheHit,
				Outcome:  string(res.Kind),
				Elapsed:  res.Elapsed,
			}
			if !res.Succeeded() {
				payload.Error = res.ObservationText()
			}
			r.emit(events.ToolCallCompleted, payload)
		},
	})

	strategy, err := reasoning.New(a.cfg.Reasoning, a.client, func(thought string, confidence float64, depth int, score float64) {
		r.emit(events.ReasoningStep, events.ReasoningStepPayload{
			Thought:    thought,
			Confidence: confidence,
			Depth:      depth,
			Score:      score,
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", ReasonInvalidConfig, err)
	}
	if len(st.ReasoningState) > 0 {
		if err := strategy.Restore(st.ReasoningState); err != nil {
			return nil, nil, fmt.Errorf("%s: restoring reasoning state: %w", ReasonStateStoreFailed, err)
		}
	}
	r.strategy = strategy

	r.detector = loopdetect.NewDetector(a.cfg.MaxToolCallHistory, a.cfg.ConsecutiveFailureThreshold)
	r.detector.Restore(st.ToolCallHistory, st.ConsecutiveFailures)

	return r, nil, nil
}

func (r *run) start(goal string) {
	r.a.collector.RunStarted()
	r.emit(events.RunStarted, events.RunStartedPayload{
		Goal:     goal,
		Resumed:  len(r.st.Turns) > 0,
		ToolList: r.registry.Names(),
	})
}

// checkBudgets returns a terminal reason, or empty to keep going.
func (r *run) checkBudgets(runCtx context.Context) string {
	if r.parentCtx != nil && r.parentCtx.Err() != nil {
		return ReasonCancelled
	}
	if runCtx.Err() != nil {
		return ReasonRunTimeout
	}
	if len(r.st.Turns) >= r.a.cfg.EffectiveMaxTurns() {
		return ReasonMaxTurns
	}
	if verdict := r.detector.Check(); verdict.Triggered {
		r.loopVerdict = &verdict
		return ReasonLoopDetected
	}
	return ""
}

// step executes one turn: prompt, model call, parse, optional tool batch,
// persist. Returns (final, terminalReason).
func (r *run) step(ctx context.Context) (bool, string) {
	r.turnIndex = len(r.st.Turns)
	turnStart := time.Now().UTC()
	r.emit(events.StepStarted, nil)
	r.status("thinking")

	tracer := observability.GetTracer("quill.agent")
	ctx, span := tracer.Start(ctx, observability.SpanAgentTurn,
		trace.WithAttributes(attribute.Int(observability.AttrTurnIndex, r.turnIndex)))
	defer span.End()

	if reason := r.compactHistory(ctx); reason != "" {
		return r.stepAborted(reason)
	}

	messages := r.buildPrompt()
	out, err := r.callModel(ctx, messages)
	if err != nil {
		if r.parentCtx.Err() != nil {
			return r.stepAborted(ReasonCancelled)
		}
		if ctx.Err() != nil {
			return r.stepAborted(ReasonRunTimeout)
		}
		slog.Error("model call failed after retries", "agent_id", r.agentID, "error", err)
		return r.stepAborted(ReasonLLMFailed)
	}

	msg := parseModelOutput(out.text, out.calls, r.functionMode)
	turn := state.Turn{Index: r.turnIndex, StartedAt: turnStart}

	if msg.FinalOutput != "" && len(msg.ToolCalls) > 0 {
		r.warn(fmt.Sprintf("final answer present, discarding %d tool calls", len(msg.ToolCalls)))
		msg.ToolCalls = nil
	}

	switch {
	case msg.FinalOutput != "":
		// EmitFinal handled below once the turn is recorded.
	case len(msg.ToolCalls) > 0:
		r.status(fmt.Sprintf("running %d tools", len(msg.ToolCalls)))
		turn.ToolResults = r.dispatchTools(ctx, msg.ToolCalls)
	default:
		turn.Error = "model response contained neither a final answer nor tool calls"
	}

	progress := msg.FinalOutput != ""
	for _, res := range turn.ToolResults {
		if res.Succeeded() {
			progress = true
		}
	}
	r.detector.RecordTurn(progress)

	if err := r.observeReasoning(ctx, &msg, turn.ToolResults); err != nil && ctx.Err() != nil {
		if r.parentCtx.Err() != nil {
			return r.stepAborted(ReasonCancelled)
		}
		return r.stepAborted(ReasonRunTimeout)
	}
	if msg.FinalOutput != "" {
		turn.Error = ""
	}
	turn.ModelMessage = msg

	turn.CompletedAt = time.Now().UTC()
	if err := r.st.AppendTurn(turn); err != nil {
		slog.Error("turn bookkeeping failed", "agent_id", r.agentID, "error", err)
		return r.stepAborted(ReasonInternal)
	}

	if err := r.persist(ctx); err != nil {
		// A context-honoring store fails as soon as the run is cancelled or
		// timed out; that is not a storage fault.
		if r.parentCtx.Err() != nil {
			return r.stepAborted(ReasonCancelled)
		}
		if ctx.Err() != nil {
			return r.stepAborted(ReasonRunTimeout)
		}
		slog.Error("state save failed after retries", "agent_id", r.agentID, "error", err)
		return r.stepAborted(ReasonStateStoreFailed)
	}

	r.emit(events.StepCompleted, events.StepCompletedPayload{
		ExecutedTools: len(turn.ToolResults),
		Final:         turn.Final(),
		Error:         turn.Error,
	})

	return turn.Final(), ""
}

// stepAborted closes the step event pair when a turn dies before the normal
// completion path, keeping StepStarted and StepCompleted balanced.
func (r *run) stepAborted(reason string) (bool, string) {
	r.emit(events.StepCompleted, events.StepCompletedPayload{Error: reason})
	return false, reason
}

// dispatchTools runs the batch and records every call with the loop
// detector. Results come back in request order.
func (r *run) dispatchTools(ctx context.Context, calls []llms.ToolCall) []tools.ExecutionResult {
	reqs := make([]tools.Request, len(calls))
	for i, call := range calls {
		id := call.ID
		if id == "" {
			id = uuid.NewString()
		}
		reqs[i] = tools.Request{CallID: id, Name: call.Name, Args: call.Arguments}
	}

	results := r.executor.InvokeBatch(ctx, reqs)

	for _, res := range results {
		outcome := loopdetect.OutcomeFailure
		switch res.Kind {
		case tools.OutcomeSuccess:
			outcome = loopdetect.OutcomeSuccess
		case tools.OutcomeCacheHit:
			outcome = loopdetect.OutcomeCacheHit
		}
		r.detector.RecordCall(loopdetect.Entry{
			ToolName:   res.ToolName,
			ArgsHash:   res.Fingerprint,
			OutputHash: dedupe.FingerprintOutput(res.Output),
			Outcome:    outcome,
			Timestamp:  res.StartedAt.UTC(),
		})
	}
	return results
}

// observeReasoning feeds the turn into the strategy and lets its decision
// promote an answer.
func (r *run) observeReasoning(ctx context.Context, msg *state.ModelMessage, results []tools.ExecutionResult) error {
	var confidence float64
	if msg.ReasoningStep != nil {
		confidence = msg.ReasoningStep.Confidence
	}

	var obsParts []string
	for _, res := range results {
		obsParts = append(obsParts, fmt.Sprintf("%s: %s", res.ToolName, firstLine(res.ObservationText())))
	}

	err := r.strategy.Observe(ctx, reasoning.Observation{
		Thought:         msg.Thoughts,
		Confidence:      confidence,
		ToolObservation: strings.Join(obsParts, "; "),
		FinalProposed:   msg.FinalOutput != "",
		FinalOutput:     msg.FinalOutput,
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		slog.Warn("reasoning strategy observation failed", "agent_id", r.agentID, "error", err)
	}

	if d := r.strategy.Decision(); d.Stop && msg.FinalOutput == "" && d.Answer != "" {
		msg.FinalOutput = d.Answer
	}
	return nil
}

// compactHistory folds newly elided turns into the summary.
func (r *run) compactHistory(ctx context.Context) string {
	if !r.a.cfg.EnableHistorySummarization {
		return ""
	}
	boundary := len(r.st.Turns) - r.a.cfg.MaxRecentTurns
	if boundary <= r.st.SummarizedTurns {
		return ""
	}

	summary, err := r.a.compact.Compact(ctx, r.st.Summary, r.st.Turns[r.st.SummarizedTurns:boundary])
	if err != nil {
		if r.parentCtx.Err() != nil {
			return ReasonCancelled
		}
		if ctx.Err() != nil {
			return ReasonRunTimeout
		}
		slog.Warn("history compaction failed", "agent_id", r.agentID, "error", err)
		return ""
	}
	r.st.Summary = summary
	r.st.SummarizedTurns = boundary
	return ""
}

func (r *run) buildPrompt() []llms.Message {
	var toolInstructions string
	if !r.functionMode {
		if defs := r.registry.Describe(); len(defs) > 0 {
			toolInstructions = llms.ToolPrompt(defs)
		}
	}

	return r.a.prompts.Build(prompt.Input{
		SystemPrompt:       r.a.SystemPrompt,
		ToolInstructions:   toolInstructions,
		HostSystemMessages: r.a.HostSystemMessages,
		Summary:            r.st.Summary,
		Goal:               r.st.Goal,
		ReasoningContext:   r.strategy.ContextInjection(),
		Turns:              r.st.Turns[r.st.SummarizedTurns:],
	})
}

// persist writes the state back with short retries.
func (r *run) persist(ctx context.Context) error {
	r.st.ToolCallHistory = r.detector.History()
	r.st.ConsecutiveFailures = r.detector.ConsecutiveFailures()
	if snap, err := r.strategy.Snapshot(); err == nil {
		r.st.ReasoningState = snap
	}
	r.st.UpdatedAt = time.Now().UTC()

	var err error
	delay := 50 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		if err = r.a.store.Save(ctx, r.st); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

// terminate records the terminal condition, persists best-effort, and
// emits RunCompleted. reason empty means success.
func (r *run) terminate(reason string) *RunResult {
	if reason == ReasonLoopDetected && r.loopVerdict != nil {
		r.a.collector.LoopTriggered()
		r.emit(events.LoopDetected, events.LoopDetectedPayload{
			Kind:                string(r.loopVerdict.Kind),
			ConsecutiveFailures: r.loopVerdict.ConsecutiveFailures,
		})
	}

	final := ""
	if n := len(r.st.Turns); n > 0 {
		final = r.st.Turns[n-1].ModelMessage.FinalOutput
	}

	if reason == "" {
		r.st.Completed = true
		r.st.FinalOutput = final
		r.st.TerminalError = ""
	} else {
		r.st.FinalOutput = final
		r.st.TerminalError = reason
	}

	// Final flush runs on a detached context so cancellation still gets a
	// best-effort checkpoint.
	saveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.persist(saveCtx); err != nil {
		slog.Error("final state save failed", "agent_id", r.agentID, "error", err)
	}

	duration := time.Since(r.startedAt)
	r.a.collector.RunFinished(reason == "", len(r.st.Turns), duration)

	completed := events.RunCompletedPayload{
		Succeeded:   reason == "",
		FinalOutput: final,
		Error:       reason,
		TotalTurns:  len(r.st.Turns),
		Duration:    duration,
	}
	r.emit(events.RunCompleted, completed)

	return &RunResult{
		Succeeded:     reason == "",
		FinalOutput:   final,
		Error:         reason,
		TotalTurns:    len(r.st.Turns),
		TerminalState: r.st.Clone(),
	}
}

func (r *run) emit(kind events.Kind, payload any) {
	r.a.bus.Publish(events.New(kind, r.agentID, r.turnIndex, payload))
}

// status emits a StatusUpdate when public status is enabled.
func (r *run) status(message string) {
	if !r.a.cfg.EmitPublicStatus {
		return
	}
	r.emit(events.StatusUpdate, events.StatusUpdatePayload{Message: message})
}

// warn always emits, regardless of the public status gate.
func (r *run) warn(message string) {
	r.emit(events.StatusUpdate, events.StatusUpdatePayload{Message: message})
}

func resultErr(res tools.ExecutionResult) error {
	if res.Succeeded() {
		return nil
	}
	return errors.New(string(res.Kind))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
