package state

import (
	"encoding/json"
	"fmt"
)

// SchemaVersion tags the persisted layout. Bump on incompatible changes.
const SchemaVersion = 1

// UnsupportedVersionError is returned by Decode when the stored payload was
// written by an unknown schema version.
type UnsupportedVersionError struct {
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported state schema version %d (supported: %d)", e.Version, SchemaVersion)
}

type envelope struct {
	SchemaVersion int         `json:"schema_version"`
	State         *AgentState `json:"state"`
}

// Encode serializes the state with its schema version.
func Encode(s *AgentState) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("cannot encode nil state")
	}
	return json.Marshal(envelope{SchemaVersion: SchemaVersion, State: s})
}

// Decode parses a persisted payload and validates its structural
// invariants.
func Decode(data []byte) (*AgentState, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("corrupt state payload: %w", err)
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, &UnsupportedVersionError{Version: env.SchemaVersion}
	}
	if env.State == nil {
		return nil, fmt.Errorf("state payload missing state record")
	}
	if err := env.State.Validate(); err != nil {
		return nil, err
	}
	return env.State, nil
}
