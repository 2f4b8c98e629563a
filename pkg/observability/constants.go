// Package observability wires the engine into OpenTelemetry: spans around
// model calls and tool executions, and OTel instruments exported through
// Prometheus. It complements pkg/metrics, which is the engine's own
// backend-free snapshot surface.
package observability

const (
	AttrAgentID        = "agent.id"
	AttrToolName       = "tool.name"
	AttrLLMModel       = "llm.model"
	AttrTurnIndex      = "agent.turn_index"
	AttrTerminalReason = "agent.terminal_reason"
	AttrErrorType      = "error.type"

	SpanAgentRun      = "agent.run"
	SpanAgentTurn     = "agent.turn"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"
	SpanSummarization = "agent.summarization"

	DefaultServiceName = "quill"
)
