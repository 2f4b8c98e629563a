package agent

import (
	"strings"
	"testing"

	"github.com/quillworks/quill/pkg/llms"
)

func TestParseModelOutput_PlainProseIsFinal(t *testing.T) {
	msg := parseModelOutput("The answer is 4.", nil, false)

	if msg.FinalOutput != "The answer is 4." {
		t.Errorf("FinalOutput = %q", msg.FinalOutput)
	}
	if len(msg.ToolCalls) != 0 {
		t.Errorf("unexpected tool calls: %v", msg.ToolCalls)
	}
}

func TestParseModelOutput_TextModeToolCall(t *testing.T) {
	text := `Let me compute.
{"function": "calculator", "arguments": {"op": "add", "a": 2, "b": 2}}`

	msg := parseModelOutput(text, nil, false)

	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Name != "calculator" {
		t.Fatalf("ToolCalls = %v", msg.ToolCalls)
	}
	if msg.FinalOutput != "" {
		t.Errorf("turn with tool calls should not be final: %q", msg.FinalOutput)
	}
	if !strings.Contains(msg.Thoughts, "Let me compute.") {
		t.Errorf("Thoughts = %q", msg.Thoughts)
	}
}

func TestParseModelOutput_ScaffoldFinal(t *testing.T) {
	text := `{"thought": "I checked both sources", "confidence": 0.9, "final_output": "It is sunny."}`

	msg := parseModelOutput(text, nil, false)

	if msg.FinalOutput != "It is sunny." {
		t.Errorf("FinalOutput = %q", msg.FinalOutput)
	}
	if msg.Thoughts != "I checked both sources" {
		t.Errorf("Thoughts = %q", msg.Thoughts)
	}
	if msg.ReasoningStep == nil || msg.ReasoningStep.Confidence != 0.9 {
		t.Errorf("ReasoningStep = %+v", msg.ReasoningStep)
	}
}

func TestParseModelOutput_ScaffoldWithToolCall(t *testing.T) {
	text := `{"thought": "need data", "confidence": 0.4}
{"function": "search", "arguments": {"q": "weather"}}`

	msg := parseModelOutput(text, nil, false)

	if len(msg.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %v", msg.ToolCalls)
	}
	if msg.FinalOutput != "" {
		t.Errorf("FinalOutput = %q", msg.FinalOutput)
	}
	if msg.Thoughts != "need data" {
		t.Errorf("Thoughts = %q", msg.Thoughts)
	}
	if msg.ReasoningStep == nil || msg.ReasoningStep.Confidence != 0.4 {
		t.Errorf("ReasoningStep = %+v", msg.ReasoningStep)
	}
}

func TestParseModelOutput_FunctionMode(t *testing.T) {
	native := []llms.ToolCall{{ID: "c1", Name: "search", Arguments: map[string]any{"q": "go"}}}

	msg := parseModelOutput("Checking the docs.", native, true)

	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "c1" {
		t.Fatalf("native calls lost: %v", msg.ToolCalls)
	}
	if msg.Thoughts != "Checking the docs." {
		t.Errorf("Thoughts = %q", msg.Thoughts)
	}
	if msg.FinalOutput != "" {
		t.Errorf("FinalOutput = %q", msg.FinalOutput)
	}
}

func TestParseModelOutput_FunctionModeIgnoresEnvelopes(t *testing.T) {
	// In function-calling mode the text is never scanned for envelopes.
	text := `{"function": "search", "arguments": {}}`

	msg := parseModelOutput(text, nil, true)
	if len(msg.ToolCalls) != 0 {
		t.Errorf("text envelope parsed in function mode: %v", msg.ToolCalls)
	}
}

func TestParseModelOutput_EmptyIsParseFailure(t *testing.T) {
	msg := parseModelOutput("", nil, false)

	if msg.FinalOutput != "" || len(msg.ToolCalls) != 0 || msg.Thoughts != "" {
		t.Errorf("empty output should yield a zero message: %+v", msg)
	}
}

func TestParseModelOutput_FinalAnswerVariant(t *testing.T) {
	msg := parseModelOutput(`{"final_answer": "42"}`, nil, false)
	if msg.FinalOutput != "42" {
		t.Errorf("FinalOutput = %q", msg.FinalOutput)
	}
}

func TestExtractScaffold_LeavesOtherJSONAlone(t *testing.T) {
	text := `The config is {"debug": true} as shown.`

	cleaned, sc := extractScaffold(text)
	if !strings.Contains(cleaned, `{"debug": true}`) {
		t.Errorf("non-scaffold JSON removed: %q", cleaned)
	}
	if sc.HasFinal || sc.HasConf || sc.Thought != "" {
		t.Errorf("scaffold = %+v", sc)
	}
}
