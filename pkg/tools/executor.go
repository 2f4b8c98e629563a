package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quillworks/quill/pkg/dedupe"
	"github.com/quillworks/quill/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// Request is one invocation the executor should perform.
type Request struct {
	CallID string
	Name   string
	Args   map[string]any
}

// ExecutorOptions tunes the executor.
type ExecutorOptions struct {
	// Cache enables result deduplication when non-nil.
	Cache *dedupe.Cache

	// DefaultTimeout applies to tools without a per-tool override.
	DefaultTimeout time.Duration

	// MaxParallel bounds concurrent invocations within a batch.
	MaxParallel int

	// AllowUnknownFields relaxes unknown-field rejection for every tool.
	AllowUnknownFields bool

	// OnCallStarted fires when a call is about to execute its body. Cache
	// hits and validation failures never reach the body, so they never
	// fire it.
	OnCallStarted func(req Request, fingerprint string)

	// OnCallCompleted fires for every call with its tagged result.
	OnCallCompleted func(result ExecutionResult)
}

// Executor validates and runs tool calls. Batch execution is concurrent up
// to MaxParallel; results always come back in request order.
type Executor struct {
	registry           *Registry
	cache              *dedupe.Cache
	defaultTimeout     time.Duration
	maxParallel        int
	allowUnknownFields bool
	onCallStarted      func(Request, string)
	onCallCompleted    func(ExecutionResult)
}

func NewExecutor(registry *Registry, opts ExecutorOptions) *Executor {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 4
	}
	return &Executor{
		registry:           registry,
		cache:              opts.Cache,
		defaultTimeout:     opts.DefaultTimeout,
		maxParallel:        opts.MaxParallel,
		allowUnknownFields: opts.AllowUnknownFields,
		onCallStarted:      opts.OnCallStarted,
		onCallCompleted:    opts.OnCallCompleted,
	}
}

// Invoke runs a single tool call through validation, dedupe lookup and
// timeout-bounded execution. It never returns a Go error: every failure mode
// is a tagged result variant.
func (e *Executor) Invoke(ctx context.Context, req Request) ExecutionResult {
	startedAt := time.Now()

	tracer := observability.GetTracer("quill.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, req.Name),
		),
	)
	defer span.End()

	result := e.invoke(ctx, req, startedAt)
	result.Elapsed = time.Since(startedAt)
	result.StartedAt = startedAt

	if e.onCallCompleted != nil {
		e.onCallCompleted(result)
	}

	span.SetAttributes(
		attribute.String("tool.outcome", string(result.Kind)),
		attribute.Int64("tool.duration_ms", result.Elapsed.Milliseconds()),
	)
	if result.Succeeded() {
		span.SetStatus(codes.Ok, "success")
	} else {
		span.SetStatus(codes.Error, result.ErrorMessage)
	}

	// OTel counters are owned by the observability event bridge; recording
	// here as well would double-count executions for hosts that install it.

	return result
}

func (e *Executor) invoke(ctx context.Context, req Request, startedAt time.Time) ExecutionResult {
	base := ExecutionResult{
		ToolName: req.Name,
		CallID:   req.CallID,
	}

	tool, err := e.registry.GetTool(req.Name)
	if err != nil {
		base.Kind = OutcomeExecutionError
		base.ErrorClass = ErrorClassArgument
		base.ErrorMessage = fmt.Sprintf("tool %s not registered", req.Name)
		base.Fingerprint = dedupe.Fingerprint(req.Name, req.Args)
		return base
	}

	info := tool.Info()
	allowUnknown := e.allowUnknownFields || info.AllowUnknownFields

	args, missing, typeErrors := validateArgs(info.Parameters, req.Args, allowUnknown)
	if len(missing) > 0 || len(typeErrors) > 0 {
		base.Kind = OutcomeValidationFailure
		base.MissingFields = missing
		base.TypeErrors = typeErrors
		base.Fingerprint = dedupe.Fingerprint(req.Name, req.Args)
		return base
	}

	base.Fingerprint = dedupe.Fingerprint(req.Name, args)

	cacheable := e.cache != nil && !info.DisableCache
	if cacheable {
		if output, age, hit := e.cache.Lookup(base.Fingerprint); hit {
			base.Kind = OutcomeCacheHit
			base.Output = output
			base.CacheAge = age
			return base
		}
	}

	if e.onCallStarted != nil {
		e.onCallStarted(req, base.Fingerprint)
	}

	timeout := info.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, execErr := runTool(callCtx, tool, args)

	if execErr != nil {
		if callCtx.Err() != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			base.Kind = OutcomeTimeout
			base.ErrorMessage = fmt.Sprintf("tool %s exceeded %v timeout", req.Name, timeout)
			return base
		}

		base.Kind = OutcomeExecutionError
		base.ErrorMessage = execErr.Error()
		base.ErrorClass = classify(execErr)
		return base
	}

	base.Kind = OutcomeSuccess
	base.Output = output
	if cacheable {
		e.cache.Store(base.Fingerprint, output, info.CacheTTL)
	}
	return base
}

// runTool executes the tool body in its own goroutine so the executor can
// observe cancellation even when a tool ignores its context. Panics become
// permanent errors.
func runTool(ctx context.Context, tool Tool, args map[string]any) (string, error) {
	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: NewToolError(ErrorClassPermanent, fmt.Sprintf("tool panicked: %v", r), nil)}
			}
		}()
		output, err := tool.Execute(ctx, args)
		done <- outcome{output: output, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case out := <-done:
		return out.output, out.err
	}
}

func classify(err error) ErrorClass {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Class
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTransient
	}
	return ErrorClassTransient
}

// InvokeBatch dispatches all requests with bounded concurrency and returns
// results in request order regardless of completion order. Individual
// failures do not cancel siblings; only ctx cancellation does.
func (e *Executor) InvokeBatch(ctx context.Context, reqs []Request) []ExecutionResult {
	results := make([]ExecutionResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	sem := semaphore.NewWeighted(int64(e.maxParallel))
	var wg sync.WaitGroup

	for i, req := range reqs {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled while waiting for a slot: mark the remainder.
			for j := i; j < len(reqs); j++ {
				results[j] = ExecutionResult{
					ToolName:     reqs[j].Name,
					CallID:       reqs[j].CallID,
					Fingerprint:  dedupe.Fingerprint(reqs[j].Name, reqs[j].Args),
					Kind:         OutcomeExecutionError,
					ErrorClass:   ErrorClassTransient,
					ErrorMessage: fmt.Sprintf("cancelled: %v", err),
					StartedAt:    time.Now(),
				}
				if e.onCallCompleted != nil {
					e.onCallCompleted(results[j])
				}
			}
			break
		}

		wg.Add(1)
		go func(idx int, r Request) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = e.Invoke(ctx, r)
		}(i, req)
	}

	wg.Wait()
	return results
}
