package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Chative-core-poc-v1/docagent/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/docagent/pkg/logger"
	"github.com/Chative-core-poc-v1/docagent/pkg/sqldb"
)

const (
	postgresSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id  TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

	sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id  TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`
)

type sqlQueries struct {
	load, save, delete string
}

var dialectQueries = map[string]sqlQueries{
	sqldb.Postgres: {
		load: `SELECT state FROM checkpoints WHERE thread_id = $1`,
		save: `INSERT INTO checkpoints (thread_id, state, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (thread_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		delete: `DELETE FROM checkpoints WHERE thread_id = $1`,
	},
	sqldb.SQLite: {
		load: `SELECT state FROM checkpoints WHERE thread_id = ?`,
		save: `INSERT INTO checkpoints (thread_id, state, updated_at) VALUES (?, ?, ?)
ON CONFLICT (thread_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		delete: `DELETE FROM checkpoints WHERE thread_id = ?`,
	},
}

// SQLCheckpointRepository stores one JSON document per thread.
type SQLCheckpointRepository struct {
	db      *sql.DB
	queries sqlQueries
}

// NewSQLCheckpointRepository creates the checkpoints table if needed.
func NewSQLCheckpointRepository(ctx context.Context, db *sql.DB, dialect string) (*SQLCheckpointRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	q, ok := dialectQueries[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	ddl := sqliteSchema
	if dialect == sqldb.Postgres {
		ddl = postgresSchema
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints table: %w", err)
	}

	logx.Debug().Str("dialect", dialect).Msg("SQL checkpoint store ready")
	return &SQLCheckpointRepository{db: db, queries: q}, nil
}

func (r *SQLCheckpointRepository) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, r.queries.load, threadID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to load checkpoint")
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	state := model.NewConversationState()
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("decode checkpoint for thread %s: %w", threadID, err)
	}
	if state.Messages == nil {
		state.Messages = []model.Message{}
	}
	return state, nil
}

func (r *SQLCheckpointRepository) Save(ctx context.Context, threadID string, state *model.ConversationState) error {
	if state == nil {
		return fmt.Errorf("nil state for thread %s", threadID)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.queries.save, threadID, string(raw), time.Now().UTC()); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to save checkpoint")
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (r *SQLCheckpointRepository) Delete(ctx context.Context, threadID string) error {
	if _, err := r.db.ExecContext(ctx, r.queries.delete, threadID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

var _ model.CheckpointRepository = (*SQLCheckpointRepository)(nil)
