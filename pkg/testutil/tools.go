package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quillworks/quill/pkg/tools"
)

// Calculator evaluates a binary arithmetic operation. Deterministic output
// makes it the workhorse for dedupe and loop tests.
type Calculator struct {
	// Executions counts real invocations, so tests can tell cache hits
	// from fresh runs.
	Executions atomic.Int64
}

func (c *Calculator) Info() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        "calculator",
		Description: "Evaluates a basic arithmetic operation on two numbers",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"op": map[string]any{
					"type":        "string",
					"description": "One of add, sub, mul, div",
				},
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []any{"op", "a", "b"},
		},
	}
}

func (c *Calculator) Execute(_ context.Context, args map[string]any) (string, error) {
	c.Executions.Add(1)
	op, _ := args["op"].(string)
	a, _ := args["a"].(float64)
	b, _ := args["b"].(float64)
	switch op {
	case "add":
		return fmt.Sprintf("%g", a+b), nil
	case "sub":
		return fmt.Sprintf("%g", a-b), nil
	case "mul":
		return fmt.Sprintf("%g", a*b), nil
	case "div":
		if b == 0 {
			return "", tools.NewToolError(tools.ErrorClassArgument, "division by zero", nil)
		}
		return fmt.Sprintf("%g", a/b), nil
	default:
		return "", tools.NewToolError(tools.ErrorClassArgument, "unknown op "+op, nil)
	}
}

// Sleeper sleeps for the requested duration, honoring cancellation. Used by
// timeout and cancellation tests.
type Sleeper struct {
	// FixedDelay overrides the duration_ms argument when non-zero.
	FixedDelay time.Duration
	// Timeout feeds the per-tool timeout override in ToolInfo.
	Timeout time.Duration
}

func (s *Sleeper) Info() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        "sleeper",
		Description: "Sleeps for the given number of milliseconds",
		Timeout:     s.Timeout,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"duration_ms": map[string]any{"type": "integer"},
			},
			"required": []any{"duration_ms"},
		},
	}
}

func (s *Sleeper) Execute(ctx context.Context, args map[string]any) (string, error) {
	delay := s.FixedDelay
	if delay == 0 {
		switch ms := args["duration_ms"].(type) {
		case int64:
			delay = time.Duration(ms) * time.Millisecond
		case float64:
			delay = time.Duration(ms) * time.Millisecond
		}
	}
	select {
	case <-time.After(delay):
		return "slept", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Failer always fails with the configured class.
type Failer struct {
	Class   tools.ErrorClass
	Message string
}

func (f *Failer) Info() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        "failer",
		Description: "Always fails",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (f *Failer) Execute(context.Context, map[string]any) (string, error) {
	msg := f.Message
	if msg == "" {
		msg = "deliberate failure"
	}
	class := f.Class
	if class == "" {
		class = tools.ErrorClassTransient
	}
	return "", tools.NewToolError(class, msg, nil)
}

// Echo returns its text argument unchanged.
type Echo struct{}

func (Echo) Info() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        "echo",
		Description: "Returns the provided text",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []any{"text"},
		},
	}
}

func (Echo) Execute(_ context.Context, args map[string]any) (string, error) {
	text, _ := args["text"].(string)
	return text, nil
}
