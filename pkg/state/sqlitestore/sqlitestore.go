// Package sqlitestore persists agent states in a local SQLite database.
// Suited to single-process deployments that need checkpoints to survive
// restarts without running a database server.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quillworks/quill/pkg/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_states (
	agent_id       TEXT PRIMARY KEY,
	schema_version INTEGER NOT NULL,
	payload        BLOB NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);`

// Store implements state.Store on SQLite. Row upserts are atomic, which
// gives Save the required snapshot semantics for free.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. Use ":memory:" for an
// ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Load(ctx context.Context, agentID string) (*state.AgentState, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM agent_states WHERE agent_id = ?`, agentID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, state.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent state: %w", err)
	}
	return state.Decode(payload)
}

func (s *Store) Save(ctx context.Context, st *state.AgentState) error {
	payload, err := state.Encode(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_states (agent_id, schema_version, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			payload        = excluded.payload,
			updated_at     = excluded.updated_at`,
		st.AgentID, state.SchemaVersion, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save agent state: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, agentID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM agent_states WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("failed to delete agent state: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
