// Package compactor folds old turns into a bounded summary once the
// retained window overflows. The authoritative state keeps every turn; the
// summary only stands in for prompt construction.
package compactor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quillworks/quill/pkg/config"
	"github.com/quillworks/quill/pkg/llms"
	"github.com/quillworks/quill/pkg/prompt"
	"github.com/quillworks/quill/pkg/state"
)

const summarizePrompt = `Summarize the agent's progress below for use as conversation context. Keep key facts, decisions, tool findings, and open threads. Be concise; plain prose, no lists of raw tool output.`

// maxFoldTokens bounds the turn digest handed to the summary model, so one
// compaction request cannot blow the model's context window.
const maxFoldTokens = 2048

// Compactor produces summaries of elided turns.
type Compactor struct {
	cfg    config.Config
	client llms.ModelClient
}

// New builds a compactor. The client is only used in model summary mode and
// may be nil otherwise.
func New(cfg config.Config, client llms.ModelClient) *Compactor {
	return &Compactor{cfg: cfg, client: client}
}

// Partition splits turns into the elided prefix and the retained window of
// at most maxRecent turns.
func Partition(turns []state.Turn, maxRecent int) (elided, retained []state.Turn) {
	if maxRecent <= 0 || len(turns) <= maxRecent {
		return nil, turns
	}
	cut := len(turns) - maxRecent
	return turns[:cut], turns[cut:]
}

// Compact folds the prior summary and newly elided turns into one summary
// capped at the configured length. In model mode a failed model call falls
// back to the deterministic textualizer rather than aborting the run.
func (c *Compactor) Compact(ctx context.Context, priorSummary string, elided []state.Turn) (string, error) {
	if len(elided) == 0 {
		return priorSummary, nil
	}

	if c.cfg.SummaryMode == config.SummaryModeModel && c.client != nil {
		summary, err := c.summarizeWithModel(ctx, priorSummary, elided)
		if err == nil {
			return prompt.Truncate(summary, c.cfg.MaxSummaryLength), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("model summarization failed, using deterministic summary", "error", err)
	}

	return prompt.Truncate(c.textualize(priorSummary, elided), c.cfg.MaxSummaryLength), nil
}

func (c *Compactor) summarizeWithModel(ctx context.Context, priorSummary string, elided []state.Turn) (string, error) {
	var b strings.Builder
	if priorSummary != "" {
		b.WriteString("Earlier summary:\n")
		b.WriteString(priorSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("Turns to fold in:\n")
	b.WriteString(TruncateToTokens(c.textualize("", elided), maxFoldTokens))

	req := llms.Request{
		Messages: []llms.Message{
			{Role: llms.RoleSystem, Content: summarizePrompt},
			{Role: llms.RoleUser, Content: b.String()},
		},
		Temperature: 0,
	}

	ch, err := c.client.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for chunk := range ch {
		out.WriteString(chunk.Content)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	summary := strings.TrimSpace(out.String())
	if summary == "" {
		return "", fmt.Errorf("model returned empty summary")
	}
	return summary, nil
}

// textualize renders a deterministic summary: one line per turn with its
// thought gist and tool outcomes.
func (c *Compactor) textualize(priorSummary string, elided []state.Turn) string {
	var b strings.Builder
	if priorSummary != "" {
		b.WriteString(priorSummary)
		b.WriteString("\n")
	}
	for _, t := range elided {
		fmt.Fprintf(&b, "Turn %d:", t.Index)
		if gist := firstLine(t.ModelMessage.Thoughts); gist != "" {
			b.WriteString(" " + gist)
		}
		for _, r := range t.ToolResults {
			fmt.Fprintf(&b, " [%s: %s", r.ToolName, string(r.Kind))
			if r.Succeeded() {
				if gist := firstLine(r.Output); gist != "" {
					b.WriteString(" " + prompt.Truncate(gist, 120))
				}
			}
			b.WriteString("]")
		}
		if t.ModelMessage.FinalOutput != "" {
			b.WriteString(" final: " + firstLine(t.ModelMessage.FinalOutput))
		}
		if t.Error != "" {
			b.WriteString(" error: " + t.Error)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return s
}
