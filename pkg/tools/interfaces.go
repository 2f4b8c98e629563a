// Package tools implements the tool registry and executor: descriptor
// bookkeeping, argument validation with scalar coercion, per-call timeouts,
// error classification, and parallel batch execution with result
// deduplication.
package tools

import (
	"context"
	"fmt"
	"time"
)

// ToolInfo is the plain descriptor record the registry holds for each tool.
// Parameters is a JSON-schema-shaped object; tools built with the
// functiontool subpackage get it generated from struct tags, and any tool
// may supply a hand-written schema instead.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`

	// Timeout overrides the executor's default per-call timeout when > 0.
	Timeout time.Duration `json:"timeout,omitempty"`

	// CacheTTL overrides the dedupe cache's default TTL when > 0.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// DisableCache opts the tool out of result deduplication entirely.
	DisableCache bool `json:"disable_cache,omitempty"`

	// AllowUnknownFields permits argument fields absent from the schema.
	AllowUnknownFields bool `json:"allow_unknown_fields,omitempty"`
}

// Tool is an externally provided callable. Execute receives validated,
// coerced arguments and returns its textual output.
type Tool interface {
	Info() ToolInfo
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ErrorClass buckets execution errors for retry decisions. Only transient
// errors are eligible for caller-initiated retry.
type ErrorClass string

const (
	ErrorClassTransient ErrorClass = "transient"
	ErrorClassPermanent ErrorClass = "permanent"
	ErrorClassArgument  ErrorClass = "argument"
)

// ToolError lets a tool classify its own failure. Unclassified errors
// default to transient.
type ToolError struct {
	Class   ErrorClass
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError builds a classified tool error.
func NewToolError(class ErrorClass, message string, err error) *ToolError {
	return &ToolError{Class: class, Message: message, Err: err}
}
