package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillworks/quill/pkg/events"
	"github.com/quillworks/quill/pkg/llms"
	"github.com/quillworks/quill/pkg/streamfilter"
)

// modelOutput is one fully drained model response.
type modelOutput struct {
	text  string
	calls []llms.ToolCall
	usage *llms.Usage
}

// callModel runs one model request under the retry policy: exponential
// backoff from InitialRetryDelay capped at MaxRetryDelay, at most
// MaxRetries retries, cancellation observed between attempts. Non-retryable
// errors and retry exhaustion both surface as the final error.
func (r *run) callModel(ctx context.Context, messages []llms.Message) (*modelOutput, error) {
	req := llms.Request{
		Messages:        messages,
		MaxTokens:       r.a.cfg.MaxTokens,
		Temperature:     r.a.cfg.Temperature,
		TopP:            r.a.cfg.TopP,
		EnableStreaming: true,
	}
	if r.functionMode {
		req.Tools = r.registry.Describe()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		r.emit(events.LLMCallStarted, events.LLMCallStartedPayload{
			Model:   r.a.client.Model(),
			Attempt: attempt,
		})

		start := time.Now()
		out, err := r.streamOnce(ctx, req)
		duration := time.Since(start)

		var inTokens, outTokens int
		if out != nil && out.usage != nil {
			inTokens = out.usage.InputTokens
			outTokens = out.usage.OutputTokens
		}
		r.a.collector.LLMCall(duration, inTokens, outTokens, err)

		completed := events.LLMCallCompletedPayload{
			Model:        r.a.client.Model(),
			Duration:     duration,
			InputTokens:  inTokens,
			OutputTokens: outTokens,
		}
		if err != nil {
			completed.Error = err.Error()
		}
		r.emit(events.LLMCallCompleted, completed)

		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if !llms.IsRetryable(err) || attempt >= r.a.cfg.MaxRetries {
			return nil, lastErr
		}

		delay := r.a.cfg.MaxRetryDelay
		if attempt < 16 {
			if d := r.a.cfg.InitialRetryDelay << attempt; d < delay {
				delay = d
			}
		}
		slog.Debug("retrying model call",
			"agent_id", r.agentID,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// streamOnce drains one model stream under the per-call timeout, forwarding
// visible content through the scaffold filter as LlmChunkReceived events.
// Tool-call arguments never reach subscribers.
func (r *run) streamOnce(ctx context.Context, req llms.Request) (*modelOutput, error) {
	llmCtx := ctx
	if r.a.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, r.a.cfg.LLMTimeout)
		defer cancel()
	}

	ch, err := r.a.client.Stream(llmCtx, req)
	if err != nil {
		return nil, err
	}

	filter := streamfilter.New()
	out := &modelOutput{}
	for chunk := range ch {
		out.text += chunk.Content
		if len(chunk.ToolCalls) > 0 {
			out.calls = append(out.calls, chunk.ToolCalls...)
		}
		if chunk.Usage != nil {
			out.usage = chunk.Usage
		}
		if visible := filter.Feed(chunk.Content); visible != "" {
			r.emit(events.LLMChunkReceived, events.LLMChunkPayload{Content: visible})
		}
	}
	if visible := filter.Flush(); visible != "" {
		r.emit(events.LLMChunkReceived, events.LLMChunkPayload{Content: visible})
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if llmCtx.Err() != nil {
		// The per-call timeout fired while the parent is still live.
		return nil, llms.NewError(llms.ErrTransient,
			fmt.Sprintf("model call exceeded %v timeout", r.a.cfg.LLMTimeout), llmCtx.Err())
	}
	return out, nil
}
