// Package quill is a runtime library for LLM-powered agents. It provides
// the turn loop that alternates model reasoning with tool execution, linear
// and tree-based reasoning strategies, a validating tool executor with
// result deduplication and loop detection, streaming with scaffold
// filtering, history compaction, and pluggable state persistence.
//
// The entry point is pkg/agent:
//
//	ag, err := agent.CreateAgent(client, store, cfg)
//	result, err := ag.Run(ctx, "agent-1", "What is 2+2?", []tools.Tool{calc})
//
// Hosts supply a llms.ModelClient adapter for their provider and implement
// tools either directly against tools.Tool or through the typed
// tools/functiontool builder.
package quill
