package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/nishiki-ai/tapestry/internal/metrics"
	"github.com/nishiki-ai/tapestry/internal/workflow"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS plans (
	workflow_id TEXT PRIMARY KEY,
	definition  TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS task_outputs (
	workflow_id TEXT NOT NULL,
	task_name   TEXT NOT NULL,
	output      TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (workflow_id, task_name)
);
CREATE TABLE IF NOT EXISTS agent_memory (
	agent_name TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	entry      TEXT NOT NULL,
	PRIMARY KEY (agent_name, seq)
);
`

// SQLStore persists workflow state in a relational database. It supports
// the "sqlite3" and "postgres" drivers; schema creation is idempotent.
type SQLStore struct {
	db          *sqlx.DB
	logger      *zap.Logger
	memoryLimit int
}

// SQLConfig holds SQL store configuration.
type SQLConfig struct {
	Driver      string // "sqlite3" or "postgres"
	DSN         string
	MemoryLimit int // max retained agent-memory entries per agent
}

// NewSQLStore opens the database, applies the schema, and verifies
// connectivity.
func NewSQLStore(cfg SQLConfig, logger *zap.Logger) (*SQLStore, error) {
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = 20
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite3" {
		// sqlite serializes writers; a single connection avoids
		// SQLITE_BUSY under the executor's concurrent output writes.
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("SQL memory store ready",
		zap.String("driver", cfg.Driver),
		zap.Int("memory_limit", cfg.MemoryLimit),
	)
	return &SQLStore{db: db, logger: logger, memoryLimit: cfg.MemoryLimit}, nil
}

// SavePlan stores the serialized plan. A plan already present under the
// workflow ID fails with ErrPlanExists; plans are never overwritten.
func (s *SQLStore) SavePlan(ctx context.Context, workflowID string, plan workflow.Plan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	err = tx.GetContext(ctx, &exists, s.db.Rebind(`SELECT 1 FROM plans WHERE workflow_id = ?`), workflowID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrPlanExists, workflowID)
	case err != sql.ErrNoRows:
		return fmt.Errorf("%w: check plan: %v", ErrUnavailable, err)
	}

	_, err = tx.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO plans (workflow_id, definition, created_at) VALUES (?, ?, ?)`),
		workflowID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: insert plan: %v", ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit plan: %v", ErrUnavailable, err)
	}
	return nil
}

// LoadPlan returns the stored plan, or ok=false when none exists.
func (s *SQLStore) LoadPlan(ctx context.Context, workflowID string) (workflow.Plan, bool, error) {
	var definition string
	err := s.db.GetContext(ctx, &definition,
		s.db.Rebind(`SELECT definition FROM plans WHERE workflow_id = ?`), workflowID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: load plan: %v", ErrUnavailable, err)
	}

	var plan workflow.Plan
	if err := json.Unmarshal([]byte(definition), &plan); err != nil {
		return nil, false, fmt.Errorf("unmarshal plan %s: %w", workflowID, err)
	}
	return plan, true, nil
}

// SaveTaskOutput upserts the output for (workflowID, taskName). The
// executor guarantees at most one writer per key; last-writer-wins keeps
// resume semantics simple.
func (s *SQLStore) SaveTaskOutput(ctx context.Context, workflowID, taskName, output string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO task_outputs (workflow_id, task_name, output, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (workflow_id, task_name)
		DO UPDATE SET output = excluded.output, updated_at = excluded.updated_at`),
		workflowID, taskName, output, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: save task output: %v", ErrUnavailable, err)
	}
	return nil
}

// LoadTaskOutputs returns all persisted outputs for the workflow.
func (s *SQLStore) LoadTaskOutputs(ctx context.Context, workflowID string) (map[string]string, error) {
	rows, err := s.db.QueryxContext(ctx,
		s.db.Rebind(`SELECT task_name, output FROM task_outputs WHERE workflow_id = ?`), workflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: load task outputs: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	outputs := make(map[string]string)
	for rows.Next() {
		var name, output string
		if err := rows.Scan(&name, &output); err != nil {
			return nil, fmt.Errorf("%w: scan task output: %v", ErrUnavailable, err)
		}
		outputs[name] = output
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate task outputs: %v", ErrUnavailable, err)
	}
	return outputs, nil
}

// AppendAgentMemory appends an entry and trims the agent's history from
// the head so at most the configured limit is retained.
func (s *SQLStore) AppendAgentMemory(ctx context.Context, agentName, entry string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var maxSeq int64
	err = tx.GetContext(ctx, &maxSeq,
		s.db.Rebind(`SELECT COALESCE(MAX(seq), 0) FROM agent_memory WHERE agent_name = ?`), agentName)
	if err != nil {
		return fmt.Errorf("%w: read memory sequence: %v", ErrUnavailable, err)
	}

	next := maxSeq + 1
	_, err = tx.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO agent_memory (agent_name, seq, entry) VALUES (?, ?, ?)`),
		agentName, next, entry)
	if err != nil {
		return fmt.Errorf("%w: append memory: %v", ErrUnavailable, err)
	}

	_, err = tx.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM agent_memory WHERE agent_name = ? AND seq <= ?`),
		agentName, next-int64(s.memoryLimit))
	if err != nil {
		return fmt.Errorf("%w: trim memory: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit memory: %v", ErrUnavailable, err)
	}
	metrics.AgentMemoryAppends.Inc()
	return nil
}

// LoadAgentMemory returns up to limit of the newest retained entries,
// oldest-first.
func (s *SQLStore) LoadAgentMemory(ctx context.Context, agentName string, limit int) ([]string, error) {
	if limit <= 0 || limit > s.memoryLimit {
		limit = s.memoryLimit
	}
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(`
		SELECT entry FROM (
			SELECT seq, entry FROM agent_memory WHERE agent_name = ?
			ORDER BY seq DESC LIMIT ?
		) newest ORDER BY seq ASC`),
		agentName, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: load agent memory: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("%w: scan memory entry: %v", ErrUnavailable, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate agent memory: %v", ErrUnavailable, err)
	}
	return entries, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
