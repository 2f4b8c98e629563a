// Package prompt assembles the message list sent to the model each turn.
// Message order is fixed: engine system message, host system messages,
// history summary, goal, retained turns as model/observation pairs, then
// host-supplied conversation messages.
package prompt

import (
	"fmt"
	"strings"

	"github.com/quillworks/quill/pkg/config"
	"github.com/quillworks/quill/pkg/llms"
	"github.com/quillworks/quill/pkg/state"
)

const defaultSystemPrompt = `You are an autonomous problem-solving agent. Work toward the stated goal step by step. You may call the available tools when you need information or side effects. When you have enough information, respond with your final answer and stop calling tools.`

// Builder renders prompts under the configured field-size caps.
type Builder struct {
	cfg config.Config
}

func NewBuilder(cfg config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// Input carries everything one prompt depends on.
type Input struct {
	// SystemPrompt overrides the engine's default system message.
	SystemPrompt string
	// ToolInstructions is appended to the system message in text mode; it
	// describes the tool-call envelope the parser expects.
	ToolInstructions string
	// HostSystemMessages follow the engine system message verbatim.
	HostSystemMessages []string
	// Summary stands in for elided history.
	Summary string
	Goal    string
	// ReasoningContext is the active strategy's injection.
	ReasoningContext string
	// Turns are the retained turns, oldest first.
	Turns []state.Turn
	// HostMessages are appended after the history.
	HostMessages []llms.Message
}

// Build renders the message list.
func (b *Builder) Build(in Input) []llms.Message {
	var msgs []llms.Message

	system := in.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	if in.ToolInstructions != "" {
		system += "\n\n" + in.ToolInstructions
	}
	msgs = append(msgs, llms.Message{Role: llms.RoleSystem, Content: system})

	for _, m := range in.HostSystemMessages {
		msgs = append(msgs, llms.Message{Role: llms.RoleSystem, Content: m})
	}

	if in.Summary != "" {
		msgs = append(msgs, llms.Message{
			Role:    llms.RoleSystem,
			Content: "Summary of earlier progress:\n" + Truncate(in.Summary, b.cfg.MaxSummaryLength),
		})
	}

	if in.Goal != "" {
		msgs = append(msgs, llms.Message{Role: llms.RoleUser, Content: "Goal: " + in.Goal})
	}

	if in.ReasoningContext != "" {
		msgs = append(msgs, llms.Message{Role: llms.RoleSystem, Content: in.ReasoningContext})
	}

	for _, t := range in.Turns {
		msgs = append(msgs, b.renderTurn(t)...)
	}

	msgs = append(msgs, in.HostMessages...)
	return msgs
}

// renderTurn yields the assistant message followed by one tool message per
// execution result.
func (b *Builder) renderTurn(t state.Turn) []llms.Message {
	var msgs []llms.Message

	assistant := llms.Message{Role: llms.RoleAssistant}
	var parts []string
	if t.ModelMessage.Thoughts != "" {
		parts = append(parts, Truncate(t.ModelMessage.Thoughts, b.cfg.MaxThoughtsLength))
	}
	if t.ModelMessage.FinalOutput != "" {
		parts = append(parts, Truncate(t.ModelMessage.FinalOutput, b.cfg.MaxFinalLength))
	}
	assistant.Content = strings.Join(parts, "\n\n")
	assistant.ToolCalls = t.ModelMessage.ToolCalls
	msgs = append(msgs, assistant)

	for _, r := range t.ToolResults {
		msgs = append(msgs, llms.Message{
			Role:       llms.RoleTool,
			Name:       r.ToolName,
			ToolCallID: r.CallID,
			Content:    Truncate(r.ObservationText(), b.cfg.MaxToolOutputSize),
		})
	}

	if t.Error != "" && len(t.ToolResults) == 0 && !t.Final() {
		msgs = append(msgs, llms.Message{
			Role:    llms.RoleUser,
			Content: "Your previous response could not be parsed: " + t.Error + "\nPlease answer again in the expected format.",
		})
	}
	return msgs
}

// Truncate caps s at max runes, appending an elision marker with the elided
// length. max <= 0 disables the cap.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	elided := len(runes) - max
	return string(runes[:max]) + fmt.Sprintf("\n...[truncated %d chars]", elided)
}
