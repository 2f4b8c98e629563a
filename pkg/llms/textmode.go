package llms

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Text-mode tool calling. When a provider has no native function-calling
// path, the engine injects a system message describing the registered tools
// and parses tool-call envelopes back out of the assistant text.
//
// Two envelope shapes are recognized, bare or inside markdown fences:
//
//	{"function": "name", "arguments": {...}}
//	{"action": "tool_call", "tool_name": "name", "parameters": {...}}
//
// The second shape also accepts "tool" for the name and "params" for the
// arguments. A JSON array of either shape is treated as a batch.

// ToolPrompt renders the system message describing tools for text-mode
// providers.
func ToolPrompt(tools []ToolDefinition) string {
	if len(tools) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("You can call the following tools. To call a tool, respond with a JSON object ")
	sb.WriteString(`of the form {"function": "<tool name>", "arguments": {...}} and nothing else. `)
	sb.WriteString("To call several tools at once, respond with a JSON array of such objects.\n\nAvailable tools:\n")

	for _, tool := range tools {
		sb.WriteString(fmt.Sprintf("\n- %s: %s\n", tool.Name, tool.Description))
		if tool.Parameters != nil {
			if schema, err := json.Marshal(tool.Parameters); err == nil {
				sb.WriteString(fmt.Sprintf("  arguments schema: %s\n", schema))
			}
		}
	}

	return sb.String()
}

// ParseToolCalls extracts tool-call envelopes from assistant text. It returns
// the remaining visible text with recognized envelopes (and their fences)
// removed, plus the parsed calls in order of appearance.
func ParseToolCalls(text string) (string, []ToolCall) {
	var visible strings.Builder
	var calls []ToolCall

	rest := text
	for {
		fence, before, body, after := nextFence(rest)
		if !fence {
			v, c := scanInline(rest)
			visible.WriteString(v)
			calls = append(calls, c...)
			break
		}

		v, c := scanInline(before)
		visible.WriteString(v)
		calls = append(calls, c...)

		if fenceCalls, ok := decodeEnvelope([]byte(strings.TrimSpace(body))); ok {
			calls = append(calls, fenceCalls...)
		} else {
			// Not a tool-call block, keep it verbatim.
			visible.WriteString("```" + body + "```")
		}
		rest = after
	}

	return visible.String(), calls
}

// nextFence splits s around the first complete ``` fenced block. The opening
// language tag line is dropped from the body.
func nextFence(s string) (found bool, before, body, after string) {
	start := strings.Index(s, "```")
	if start < 0 {
		return false, s, "", ""
	}
	rest := s[start+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return false, s, "", ""
	}

	body = rest[:end]
	// Drop a leading language tag such as "json".
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag != "" && !strings.ContainsAny(tag, "{}[]") {
			body = body[nl+1:]
		}
	}
	return true, s[:start], body, rest[end+3:]
}

// scanInline walks plain text looking for balanced JSON regions that decode
// as tool-call envelopes. Unrecognized text passes through untouched.
func scanInline(s string) (string, []ToolCall) {
	var visible strings.Builder
	var calls []ToolCall

	for i := 0; i < len(s); {
		c := s[i]
		if c != '{' && c != '[' {
			visible.WriteByte(c)
			i++
			continue
		}

		end := matchBalanced(s, i)
		if end < 0 {
			visible.WriteByte(c)
			i++
			continue
		}

		if parsed, ok := decodeEnvelope([]byte(s[i : end+1])); ok {
			calls = append(calls, parsed...)
			i = end + 1
			continue
		}

		visible.WriteByte(c)
		i++
	}

	return visible.String(), calls
}

// matchBalanced returns the index of the bracket closing the one at start,
// honoring JSON string literals and escapes, or -1 if unbalanced.
func matchBalanced(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// decodeEnvelope attempts to interpret raw JSON as one or more tool calls.
func decodeEnvelope(raw []byte) ([]ToolCall, bool) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}

	switch v := payload.(type) {
	case map[string]any:
		call, ok := decodeOne(v)
		if !ok {
			return nil, false
		}
		return []ToolCall{call}, true
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		calls := make([]ToolCall, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			call, ok := decodeOne(m)
			if !ok {
				return nil, false
			}
			calls = append(calls, call)
		}
		return calls, true
	default:
		return nil, false
	}
}

func decodeOne(m map[string]any) (ToolCall, bool) {
	// Shape 1: {"function": "name", "arguments": {...}}
	if name, ok := m["function"].(string); ok && name != "" {
		return ToolCall{Name: name, Arguments: argsOf(m["arguments"])}, true
	}

	// Shape 2: {"action": "tool_call", "tool_name"|"tool": ..., "parameters"|"params": {...}}
	if action, ok := m["action"].(string); ok && action == "tool_call" {
		name, _ := m["tool_name"].(string)
		if name == "" {
			name, _ = m["tool"].(string)
		}
		if name == "" {
			return ToolCall{}, false
		}
		args := m["parameters"]
		if args == nil {
			args = m["params"]
		}
		return ToolCall{Name: name, Arguments: argsOf(args)}, true
	}

	return ToolCall{}, false
}

func argsOf(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
