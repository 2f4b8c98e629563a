package state

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when the agent has no persisted state.
var ErrNotFound = errors.New("agent state not found")

// Store persists agent states. Save is atomic with respect to Load: a
// concurrent reader sees either the prior snapshot or the new one.
type Store interface {
	Load(ctx context.Context, agentID string) (*AgentState, error)
	Save(ctx context.Context, s *AgentState) error
	Delete(ctx context.Context, agentID string) error
}

// MemoryStore keeps encoded snapshots in a map. Going through the codec on
// both sides gives Save/Load the same copy semantics as a durable store, so
// callers can never alias the stored record.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, agentID string) (*AgentState, error) {
	m.mu.RLock()
	data, ok := m.records[agentID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return Decode(data)
}

func (m *MemoryStore) Save(_ context.Context, s *AgentState) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.records[s.AgentID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, agentID string) error {
	m.mu.Lock()
	delete(m.records, agentID)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored agents.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
