// Package streamfilter strips tool-call JSON and reasoning scaffolding from
// streamed model output so subscribers only ever see visible prose. The
// filter is incremental: chunks may split anywhere, including inside fence
// markers or JSON tokens.
package streamfilter

import "strings"

// scaffoldKeys mark JSON objects that belong to the engine protocol rather
// than the visible answer.
var scaffoldKeys = []string{
	`"function"`,
	`"arguments"`,
	`"action"`,
	`"tool_name"`,
	`"tool"`,
	`"parameters"`,
	`"params"`,
	`"tool_calls"`,
	`"thought"`,
	`"confidence"`,
	`"final_output"`,
}

type mode int

const (
	stText mode = iota
	stTicks
	stFenceHeader
	stFenceBody
	stFenceNewline
	stFenceTicks
	stJSON
)

// Filter classifies streamed text and returns only the visible portion.
// Not safe for concurrent use; each stream gets its own Filter.
type Filter struct {
	state mode
	// pending holds content whose visibility is still undecided.
	pending strings.Builder
	// out accumulates visible content for the current Feed call.
	out strings.Builder

	tickCount  int
	closeTicks int
	jsonDepth  int
	inString   bool
	escaped    bool
}

func New() *Filter {
	return &Filter{}
}

// Feed consumes the next chunk and returns the newly visible content, which
// may be empty while the filter is inside an undecided region.
func (f *Filter) Feed(chunk string) string {
	f.out.Reset()
	for i := 0; i < len(chunk); i++ {
		f.step(chunk[i])
	}
	return f.out.String()
}

// Flush ends the stream, releasing any pending content that never resolved
// into a recognized scaffold region.
func (f *Filter) Flush() string {
	f.out.Reset()
	if f.pending.Len() > 0 {
		// An unterminated JSON region with scaffold keys stays hidden
		// even without its closing brace.
		rest := f.pending.String()
		if !(f.state == stJSON && containsScaffoldKey(rest)) {
			f.out.WriteString(rest)
		}
		f.pending.Reset()
	}
	f.state = stText
	return f.out.String()
}

func (f *Filter) step(c byte) {
	switch f.state {
	case stText:
		switch c {
		case '`':
			f.state = stTicks
			f.tickCount = 1
			f.pending.WriteByte(c)
		case '{':
			f.state = stJSON
			f.jsonDepth = 1
			f.inString = false
			f.escaped = false
			f.pending.WriteByte(c)
		default:
			f.out.WriteByte(c)
		}

	case stTicks:
		if c == '`' {
			f.tickCount++
			f.pending.WriteByte(c)
			if f.tickCount == 3 {
				f.state = stFenceHeader
			}
			return
		}
		// Not a fence; the backticks were ordinary text.
		f.out.WriteString(f.pending.String())
		f.pending.Reset()
		f.state = stText
		f.step(c)

	case stFenceHeader:
		f.pending.WriteByte(c)
		if c == '\n' {
			f.state = stFenceBody
		}

	case stFenceBody:
		f.pending.WriteByte(c)
		if c == '\n' {
			f.state = stFenceNewline
		}

	case stFenceNewline:
		if c == '`' {
			f.state = stFenceTicks
			f.closeTicks = 1
			f.pending.WriteByte(c)
			return
		}
		f.state = stFenceBody
		f.step(c)

	case stFenceTicks:
		if c == '`' {
			f.closeTicks++
			f.pending.WriteByte(c)
			if f.closeTicks == 3 {
				f.finishFence()
			}
			return
		}
		f.state = stFenceBody
		f.step(c)

	case stJSON:
		f.pending.WriteByte(c)
		if f.escaped {
			f.escaped = false
			return
		}
		switch {
		case c == '\\' && f.inString:
			f.escaped = true
		case c == '"':
			f.inString = !f.inString
		case f.inString:
		case c == '{':
			f.jsonDepth++
		case c == '}':
			f.jsonDepth--
			if f.jsonDepth == 0 {
				f.finishJSON()
			}
		}
	}
}

// finishFence decides a completed fenced block: fences wrapping scaffold
// JSON disappear, any other fence passes through verbatim.
func (f *Filter) finishFence() {
	block := f.pending.String()
	f.pending.Reset()
	f.state = stText

	body := fenceBody(block)
	trimmed := strings.TrimSpace(body)
	looksJSON := strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
	if looksJSON && containsScaffoldKey(trimmed) {
		return
	}
	f.out.WriteString(block)
}

// finishJSON decides a completed inline JSON object.
func (f *Filter) finishJSON() {
	obj := f.pending.String()
	f.pending.Reset()
	f.state = stText

	if containsScaffoldKey(obj) {
		return
	}
	f.out.WriteString(obj)
}

// fenceBody strips the opening marker line and the closing marker.
func fenceBody(block string) string {
	inner := strings.TrimPrefix(block, "```")
	if idx := strings.IndexByte(inner, '\n'); idx >= 0 {
		inner = inner[idx+1:]
	}
	inner = strings.TrimSuffix(inner, "```")
	if idx := strings.LastIndexByte(inner, '\n'); idx >= 0 {
		inner = inner[:idx+1]
	}
	return inner
}

func containsScaffoldKey(s string) bool {
	for _, key := range scaffoldKeys {
		if strings.Contains(s, key) {
			return true
		}
	}
	return false
}
