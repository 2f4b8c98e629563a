// Package testutil provides the scripted model client, event recorder, and
// canned tools the engine's tests are built on.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quillworks/quill/pkg/llms"
)

// ScriptedTurn is one canned model response.
type ScriptedTurn struct {
	// Chunks are emitted in order.
	Chunks []llms.Chunk
	// Err makes Stream fail instead of emitting chunks.
	Err error
	// Delay is slept before each chunk, observing cancellation.
	Delay time.Duration
}

// TextTurn scripts a plain streaming response split into the given pieces.
func TextTurn(pieces ...string) ScriptedTurn {
	t := ScriptedTurn{}
	for i, p := range pieces {
		t.Chunks = append(t.Chunks, llms.Chunk{
			Content: p,
			Type:    llms.ResponseTypeStreaming,
			IsFinal: i == len(pieces)-1,
		})
	}
	if len(t.Chunks) > 0 {
		t.Chunks[len(t.Chunks)-1].FinishReason = "stop"
	}
	return t
}

// ToolCallTurn scripts a native function-calling response.
func ToolCallTurn(calls ...llms.ToolCall) ScriptedTurn {
	return ScriptedTurn{
		Chunks: []llms.Chunk{{
			Type:         llms.ResponseTypeFunctionCall,
			ToolCalls:    calls,
			IsFinal:      true,
			FinishReason: "tool_calls",
		}},
	}
}

// ErrTurn scripts a Stream failure.
func ErrTurn(err error) ScriptedTurn {
	return ScriptedTurn{Err: err}
}

// ScriptedClient replays scripted turns in order. Stream fails once the
// script is exhausted, so a test that provokes extra model calls fails
// loudly.
type ScriptedClient struct {
	ModelName       string
	FunctionCalling bool

	mu       sync.Mutex
	turns    []ScriptedTurn
	requests []llms.Request
}

func NewScriptedClient(turns ...ScriptedTurn) *ScriptedClient {
	return &ScriptedClient{ModelName: "scripted", turns: turns}
}

func (c *ScriptedClient) Append(turns ...ScriptedTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turns...)
}

func (c *ScriptedClient) Stream(ctx context.Context, req llms.Request) (<-chan llms.Chunk, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	if len(c.turns) == 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("scripted client exhausted after %d calls", len(c.requests)-1)
	}
	turn := c.turns[0]
	c.turns = c.turns[1:]
	c.mu.Unlock()

	if turn.Err != nil {
		return nil, turn.Err
	}

	ch := make(chan llms.Chunk)
	go func() {
		defer close(ch)
		for _, chunk := range turn.Chunks {
			if turn.Delay > 0 {
				select {
				case <-time.After(turn.Delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *ScriptedClient) SupportsFunctionCalling() bool { return c.FunctionCalling }

func (c *ScriptedClient) Model() string {
	if c.ModelName == "" {
		return "scripted"
	}
	return c.ModelName
}

// Calls returns how many times Stream was invoked.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Requests returns every request Stream received, in order.
func (c *ScriptedClient) Requests() []llms.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llms.Request(nil), c.requests...)
}
