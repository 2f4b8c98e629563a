package tools

import "time"

// OutcomeKind tags an ExecutionResult variant.
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeValidationFailure OutcomeKind = "validation_failure"
	OutcomeTimeout           OutcomeKind = "timeout"
	OutcomeExecutionError    OutcomeKind = "execution_error"
	OutcomeCacheHit          OutcomeKind = "cache_hit"
)

// ExecutionResult is the tagged outcome of one tool invocation. Exactly the
// fields for the active Kind are populated; validation failures carry the
// missing fields and type errors, execution errors carry the message and
// class, cache hits carry the replayed output and its age.
type ExecutionResult struct {
	ToolName    string      `json:"tool_name"`
	CallID      string      `json:"call_id,omitempty"`
	Fingerprint string      `json:"fingerprint"`
	Kind        OutcomeKind `json:"kind"`

	Output string `json:"output,omitempty"`

	MissingFields []string `json:"missing_fields,omitempty"`
	TypeErrors    []string `json:"type_errors,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	ErrorClass   ErrorClass `json:"error_class,omitempty"`

	CacheAge time.Duration `json:"cache_age,omitempty"`

	Elapsed   time.Duration `json:"elapsed"`
	StartedAt time.Time     `json:"started_at"`
}

// Succeeded reports whether the result carries usable output.
func (r ExecutionResult) Succeeded() bool {
	return r.Kind == OutcomeSuccess || r.Kind == OutcomeCacheHit
}

// ObservationText renders the result as a tool observation for the model.
func (r ExecutionResult) ObservationText() string {
	switch r.Kind {
	case OutcomeSuccess, OutcomeCacheHit:
		return r.Output
	case OutcomeValidationFailure:
		msg := "invalid arguments"
		if len(r.MissingFields) > 0 {
			msg += ": missing " + join(r.MissingFields)
		}
		if len(r.TypeErrors) > 0 {
			msg += ": " + join(r.TypeErrors)
		}
		return "Error: " + msg
	case OutcomeTimeout:
		return "Error: tool execution timed out"
	case OutcomeExecutionError:
		return "Error: " + r.ErrorMessage
	default:
		return "Error: unknown result"
	}
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
