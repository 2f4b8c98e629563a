package agent

import (
	"encoding/json"
	"strings"

	"github.com/quillworks/quill/pkg/llms"
	"github.com/quillworks/quill/pkg/reasoning"
	"github.com/quillworks/quill/pkg/state"
)

// scaffold holds the reasoning envelope fields the model may interleave
// with its prose: {"thought": ..., "confidence": ..., "final_output": ...}.
type scaffold struct {
	Thought    string
	Confidence float64
	HasConf    bool
	Final      string
	HasFinal   bool
}

// parseModelOutput turns raw model output into the turn's ModelMessage. In
// text mode, tool calls are parsed out of the prose; in function-calling
// mode they arrive natively. A response with neither a final answer nor
// tool calls yields a zero message, which the turn loop treats as a parse
// failure.
func parseModelOutput(text string, nativeCalls []llms.ToolCall, functionMode bool) state.ModelMessage {
	visible := text
	calls := nativeCalls
	if !functionMode {
		visible, calls = llms.ParseToolCalls(text)
	}

	cleaned, sc := extractScaffold(visible)
	thoughts := strings.TrimSpace(cleaned)
	if sc.Thought != "" {
		if thoughts != "" {
			thoughts = sc.Thought + "\n" + thoughts
		} else {
			thoughts = sc.Thought
		}
	}

	msg := state.ModelMessage{ToolCalls: calls}

	switch {
	case sc.HasFinal:
		msg.FinalOutput = strings.TrimSpace(sc.Final)
		msg.Thoughts = thoughts
	case len(calls) == 0 && thoughts != "":
		// Plain prose with no tool calls is the answer.
		msg.FinalOutput = thoughts
	default:
		msg.Thoughts = thoughts
	}

	if sc.HasConf || msg.Thoughts != "" {
		msg.ReasoningStep = &reasoning.Step{
			Thought:    msg.Thoughts,
			Confidence: sc.Confidence,
		}
	}
	return msg
}

// extractScaffold removes reasoning-envelope JSON objects from text and
// returns their merged fields. Objects without recognized scaffold keys are
// left in place.
func extractScaffold(text string) (string, scaffold) {
	var sc scaffold
	var out strings.Builder
	rest := text

	for {
		start, end := findBalancedObject(rest)
		if start < 0 {
			out.WriteString(rest)
			break
		}

		var fields map[string]any
		candidate := rest[start:end]
		if err := json.Unmarshal([]byte(candidate), &fields); err != nil || !isScaffoldObject(fields) {
			out.WriteString(rest[:start+1])
			rest = rest[start+1:]
			continue
		}

		out.WriteString(rest[:start])
		mergeScaffold(&sc, fields)
		rest = rest[end:]
	}
	return out.String(), sc
}

func isScaffoldObject(fields map[string]any) bool {
	for _, key := range []string{"thought", "thoughts", "confidence", "final_output", "final_answer"} {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

func mergeScaffold(sc *scaffold, fields map[string]any) {
	for _, key := range []string{"thought", "thoughts"} {
		if v, ok := fields[key].(string); ok && sc.Thought == "" {
			sc.Thought = v
		}
	}
	if v, ok := fields["confidence"].(float64); ok {
		sc.Confidence = v
		sc.HasConf = true
	}
	for _, key := range []string{"final_output", "final_answer"} {
		if v, ok := fields[key].(string); ok {
			sc.Final = v
			sc.HasFinal = true
		}
	}
}

// findBalancedObject locates the first complete JSON object in s, returning
// its start and one-past-end offsets, or (-1, -1).
func findBalancedObject(s string) (int, int) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(s); j++ {
			c := s[j]
			if escaped {
				escaped = false
				continue
			}
			switch {
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					return i, j + 1
				}
			}
		}
		return -1, -1
	}
	return -1, -1
}
