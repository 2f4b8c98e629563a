package tools_test

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quillworks/quill/pkg/dedupe"
	"github.com/quillworks/quill/pkg/events"
	"github.com/quillworks/quill/pkg/observability"
	"github.com/quillworks/quill/pkg/testutil"
	"github.com/quillworks/quill/pkg/tools"
)

type panicker struct{}

func (panicker) Info() tools.ToolInfo {
	return tools.ToolInfo{Name: "panicker", Description: "Panics on every call"}
}

func (panicker) Execute(context.Context, map[string]any) (string, error) {
	panic("kaboom")
}

func newExecutor(t *testing.T, opts tools.ExecutorOptions, ts ...tools.Tool) *tools.Executor {
	t.Helper()
	reg := tools.NewRegistry()
	if err := reg.RegisterAll(ts...); err != nil {
		t.Fatal(err)
	}
	return tools.NewExecutor(reg, opts)
}

func TestExecutor_Success(t *testing.T) {
	calc := &testutil.Calculator{}
	ex := newExecutor(t, tools.ExecutorOptions{}, calc)

	res := ex.Invoke(context.Background(), tools.Request{
		CallID: "c1",
		Name:   "calculator",
		Args:   map[string]any{"op": "add", "a": 2, "b": 2},
	})

	if res.Kind != tools.OutcomeSuccess {
		t.Fatalf("Kind = %s: %+v", res.Kind, res)
	}
	if res.Output != "4" {
		t.Errorf("Output = %q, want 4", res.Output)
	}
	if res.CallID != "c1" || res.ToolName != "calculator" {
		t.Errorf("identity fields lost: %+v", res)
	}
	if res.Fingerprint == "" {
		t.Error("fingerprint missing")
	}
}

func TestExecutor_ValidationFailureSkipsBody(t *testing.T) {
	calc := &testutil.Calculator{}
	var started int
	ex := newExecutor(t, tools.ExecutorOptions{
		OnCallStarted: func(tools.Request, string) { started++ },
	}, calc)

	res := ex.Invoke(context.Background(), tools.Request{
		Name: "calculator",
		Args: map[string]any{"op": "add", "a": "NaN-ish"},
	})

	if res.Kind != tools.OutcomeValidationFailure {
		t.Fatalf("Kind = %s", res.Kind)
	}
	if len(res.MissingFields) != 1 || res.MissingFields[0] != "b" {
		t.Errorf("MissingFields = %v, want [b]", res.MissingFields)
	}
	if len(res.TypeErrors) != 1 {
		t.Errorf("TypeErrors = %v", res.TypeErrors)
	}
	if calc.Executions.Load() != 0 {
		t.Error("tool body ran despite validation failure")
	}
	if started != 0 {
		t.Error("OnCallStarted fired for a rejected call")
	}
}

func TestExecutor_UnknownTool(t *testing.T) {
	ex := newExecutor(t, tools.ExecutorOptions{})

	res := ex.Invoke(context.Background(), tools.Request{Name: "ghost"})

	if res.Kind != tools.OutcomeExecutionError {
		t.Fatalf("Kind = %s", res.Kind)
	}
	if res.ErrorClass != tools.ErrorClassArgument {
		t.Errorf("ErrorClass = %s", res.ErrorClass)
	}
}

func TestExecutor_CacheHit(t *testing.T) {
	cache, err := dedupe.NewCache(16, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	calc := &testutil.Calculator{}

	var started []string
	var completed []tools.ExecutionResult
	ex := newExecutor(t, tools.ExecutorOptions{
		Cache:           cache,
		OnCallStarted:   func(req tools.Request, _ string) { started = append(started, req.Name) },
		OnCallCompleted: func(r tools.ExecutionResult) { completed = append(completed, r) },
	}, calc)

	args := map[string]any{"op": "mul", "a": 6, "b": 7}
	first := ex.Invoke(context.Background(), tools.Request{Name: "calculator", Args: args})
	second := ex.Invoke(context.Background(), tools.Request{Name: "calculator", Args: map[string]any{"b": 7.0, "a": 6, "op": "mul"}})

	if first.Kind != tools.OutcomeSuccess {
		t.Fatalf("first Kind = %s", first.Kind)
	}
	if second.Kind != tools.OutcomeCacheHit {
		t.Fatalf("second Kind = %s", second.Kind)
	}
	if second.Output != "42" {
		t.Errorf("replayed output = %q", second.Output)
	}
	if second.Fingerprint != first.Fingerprint {
		t.Error("equivalent args produced different fingerprints")
	}
	if calc.Executions.Load() != 1 {
		t.Errorf("Executions = %d, want 1", calc.Executions.Load())
	}
	if len(started) != 1 {
		t.Errorf("OnCallStarted fired %d times, want 1 (cache hits never start)", len(started))
	}
	if len(completed) != 2 {
		t.Errorf("OnCallCompleted fired %d times, want 2", len(completed))
	}
}

func TestExecutor_FailuresNotCached(t *testing.T) {
	cache, err := dedupe.NewCache(16, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ex := newExecutor(t, tools.ExecutorOptions{Cache: cache},
		&testutil.Failer{Class: tools.ErrorClassTransient, Message: "flaky"})

	for i := 0; i < 2; i++ {
		res := ex.Invoke(context.Background(), tools.Request{Name: "failer", Args: map[string]any{}})
		if res.Kind != tools.OutcomeExecutionError {
			t.Fatalf("call %d Kind = %s", i, res.Kind)
		}
	}
	if cache.Len() != 0 {
		t.Errorf("failed results were cached, Len = %d", cache.Len())
	}
}

func TestExecutor_DisableCache(t *testing.T) {
	cache, err := dedupe.NewCache(16, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	calc := &testutil.Calculator{}
	reg := tools.NewRegistry()
	if err := reg.RegisterTool(cacheless{calc}); err != nil {
		t.Fatal(err)
	}
	ex := tools.NewExecutor(reg, tools.ExecutorOptions{Cache: cache})

	args := map[string]any{"op": "add", "a": 1, "b": 1}
	ex.Invoke(context.Background(), tools.Request{Name: "calculator", Args: args})
	ex.Invoke(context.Background(), tools.Request{Name: "calculator", Args: args})

	if calc.Executions.Load() != 2 {
		t.Errorf("Executions = %d, want 2 (caching disabled)", calc.Executions.Load())
	}
}

// cacheless wraps a calculator with DisableCache set.
type cacheless struct{ inner *testutil.Calculator }

func (c cacheless) Info() tools.ToolInfo {
	info := c.inner.Info()
	info.DisableCache = true
	return info
}

func (c cacheless) Execute(ctx context.Context, args map[string]any) (string, error) {
	return c.inner.Execute(ctx, args)
}

func TestExecutor_Timeout(t *testing.T) {
	ex := newExecutor(t, tools.ExecutorOptions{},
		&testutil.Sleeper{FixedDelay: 500 * time.Millisecond, Timeout: 20 * time.Millisecond})

	res := ex.Invoke(context.Background(), tools.Request{
		Name: "sleeper",
		Args: map[string]any{"duration_ms": 1},
	})

	if res.Kind != tools.OutcomeTimeout {
		t.Fatalf("Kind = %s: %+v", res.Kind, res)
	}
	if !strings.Contains(res.ErrorMessage, "timeout") {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}
}

func TestExecutor_PanicBecomesPermanentError(t *testing.T) {
	ex := newExecutor(t, tools.ExecutorOptions{}, panicker{})

	res := ex.Invoke(context.Background(), tools.Request{Name: "panicker"})

	if res.Kind != tools.OutcomeExecutionError {
		t.Fatalf("Kind = %s", res.Kind)
	}
	if res.ErrorClass != tools.ErrorClassPermanent {
		t.Errorf("ErrorClass = %s, want permanent", res.ErrorClass)
	}
	if !strings.Contains(res.ErrorMessage, "kaboom") {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}
}

func TestExecutor_ErrorClassPassthrough(t *testing.T) {
	ex := newExecutor(t, tools.ExecutorOptions{},
		&testutil.Failer{Class: tools.ErrorClassPermanent, Message: "bad input"})

	res := ex.Invoke(context.Background(), tools.Request{Name: "failer", Args: map[string]any{}})

	if res.ErrorClass != tools.ErrorClassPermanent {
		t.Errorf("ErrorClass = %s, want permanent", res.ErrorClass)
	}
}

func TestExecutor_BatchOrder(t *testing.T) {
	calc := &testutil.Calculator{}
	ex := newExecutor(t, tools.ExecutorOptions{MaxParallel: 4}, calc)

	var reqs []tools.Request
	for i := 0; i < 8; i++ {
		reqs = append(reqs, tools.Request{
			CallID: fmt.Sprintf("c%d", i),
			Name:   "calculator",
			Args:   map[string]any{"op": "add", "a": i, "b": 0},
		})
	}

	results := ex.InvokeBatch(context.Background(), reqs)

	if len(results) != len(reqs) {
		t.Fatalf("got %d results", len(results))
	}
	for i, res := range results {
		if res.CallID != fmt.Sprintf("c%d", i) {
			t.Errorf("result %d has CallID %s", i, res.CallID)
		}
		if res.Output != fmt.Sprintf("%d", i) {
			t.Errorf("result %d Output = %q", i, res.Output)
		}
	}
}

func TestExecutor_BatchPartialFailure(t *testing.T) {
	calc := &testutil.Calculator{}
	ex := newExecutor(t, tools.ExecutorOptions{}, calc,
		&testutil.Failer{Message: "down"})

	results := ex.InvokeBatch(context.Background(), []tools.Request{
		{Name: "calculator", Args: map[string]any{"op": "add", "a": 1, "b": 1}},
		{Name: "failer", Args: map[string]any{}},
		{Name: "calculator", Args: map[string]any{"op": "mul", "a": 3, "b": 3}},
	})

	if results[0].Kind != tools.OutcomeSuccess || results[2].Kind != tools.OutcomeSuccess {
		t.Errorf("sibling failure cancelled healthy calls: %+v", results)
	}
	if results[1].Kind != tools.OutcomeExecutionError {
		t.Errorf("results[1].Kind = %s", results[1].Kind)
	}
}

func TestExecutor_BatchCancellation(t *testing.T) {
	sleeper := &testutil.Sleeper{FixedDelay: 5 * time.Second}
	var completed atomic.Int32
	ex := newExecutor(t, tools.ExecutorOptions{
		MaxParallel:     1,
		OnCallCompleted: func(tools.ExecutionResult) { completed.Add(1) },
	}, sleeper)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	reqs := []tools.Request{
		{Name: "sleeper", Args: map[string]any{"duration_ms": 1}},
		{Name: "sleeper", Args: map[string]any{"duration_ms": 1}},
		{Name: "sleeper", Args: map[string]any{"duration_ms": 1}},
	}
	results := ex.InvokeBatch(ctx, reqs)

	for i, res := range results {
		if res.Kind == tools.OutcomeSuccess {
			t.Errorf("result %d succeeded after cancellation", i)
		}
		if res.ToolName != "sleeper" {
			t.Errorf("result %d missing identity: %+v", i, res)
		}
	}
	if int(completed.Load()) != len(reqs) {
		t.Errorf("OnCallCompleted fired %d times, want %d", completed.Load(), len(reqs))
	}
}

type countingRecorder struct {
	toolRecords atomic.Int32
}

func (c *countingRecorder) RecordRun(context.Context, time.Duration, int, error) {}
func (c *countingRecorder) RecordLLMCall(context.Context, string, time.Duration, int, int, error) {}
func (c *countingRecorder) RecordDedupe(context.Context, bool)                                   {}
func (c *countingRecorder) RecordLoopDetected(context.Context, string)                           {}

func (c *countingRecorder) RecordToolExecution(context.Context, string, time.Duration, error) {
	c.toolRecords.Add(1)
}

func TestInvoke_BridgeOwnsOTelToolCounters(t *testing.T) {
	rec := &countingRecorder{}
	observability.SetGlobalMetrics(rec)
	defer observability.SetGlobalMetrics(nil)

	bus := events.NewBus()
	observability.BridgeEvents(bus)

	ex := newExecutor(t, tools.ExecutorOptions{
		OnCallCompleted: func(res tools.ExecutionResult) {
			bus.Publish(events.New(events.ToolCallCompleted, "a1", 0, events.ToolCallCompletedPayload{
				ToolName: res.ToolName,
				CallID:   res.CallID,
				Success:  res.Succeeded(),
				CacheHit: res.Kind == tools.OutcomeCacheHit,
				Elapsed:  res.Elapsed,
			}))
		},
	}, &testutil.Calculator{})

	ex.Invoke(context.Background(), tools.Request{
		CallID: "c1",
		Name:   "calculator",
		Args:   map[string]any{"op": "add", "a": 2, "b": 2},
	})

	// Exactly one record per execution: the bridge's. A second record from
	// the executor itself would double every tool counter.
	if got := rec.toolRecords.Load(); got != 1 {
		t.Errorf("tool execution recorded %d times, want 1", got)
	}
}
