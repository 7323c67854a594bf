// ABOUTME: SQLite implementation of TurnStore using modernc.org/sqlite
// ABOUTME: Creates the turns schema on open and stores timestamps as RFC3339

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements TurnStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ TurnStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the ledger at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// PRAGMAs below apply per connection; a single connection keeps them in
	// force and serialises ledger writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		prompt_message_id TEXT,
		reply_message_id TEXT,
		sender TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		stop_reason TEXT NOT NULL,
		tool_calls_json TEXT NOT NULL DEFAULT '[]',
		depth_exhausted INTEGER NOT NULL DEFAULT 0,
		round INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turns_agent ON turns(agent_id, seq);
	CREATE INDEX IF NOT EXISTS idx_turns_reply ON turns(reply_message_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTurn appends a turn to the ledger.
func (s *SQLiteStore) SaveTurn(ctx context.Context, turn *Turn) error {
	if turn.AgentID == "" {
		return errors.New("turn has no agent id")
	}
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	toolCalls := turn.ToolCallsJSON
	if toolCalls == "" {
		toolCalls = "[]"
	}

	// seq orders turns that share a created_at second.
	query := `
		INSERT INTO turns (id, agent_id, chat_id, prompt_message_id, reply_message_id, sender,
			prompt, content, stop_reason, tool_calls_json, depth_exhausted, round, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM turns))
	`

	_, err := s.db.ExecContext(ctx, query,
		turn.ID,
		turn.AgentID,
		turn.ChatID,
		nullString(turn.PromptMessageID),
		nullString(turn.ReplyMessageID),
		turn.Sender,
		turn.Prompt,
		turn.Content,
		turn.StopReason,
		toolCalls,
		turn.DepthExhausted,
		turn.Round,
		turn.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	s.logger.Debug("saved turn", "id", turn.ID, "agent_id", turn.AgentID, "round", turn.Round)
	return nil
}

const turnColumns = `id, agent_id, chat_id, prompt_message_id, reply_message_id, sender,
	prompt, content, stop_reason, tool_calls_json, depth_exhausted, round, created_at`

// GetTurn retrieves a turn by ID
func (s *SQLiteStore) GetTurn(ctx context.Context, id string) (*Turn, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+turnColumns+` FROM turns WHERE id = ?`, id)
	turn, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// ListTurnsByAgent retrieves an agent's turns in the order they were saved.
func (s *SQLiteStore) ListTurnsByAgent(ctx context.Context, agentID string, limit int) ([]*Turn, error) {
	var query string
	var args []any

	if limit > 0 {
		query = `
			SELECT ` + turnColumns + ` FROM (
				SELECT * FROM turns WHERE agent_id = ? ORDER BY seq DESC LIMIT ?
			)
			ORDER BY seq ASC
		`
		args = []any{agentID, limit}
	} else {
		query = `SELECT ` + turnColumns + ` FROM turns WHERE agent_id = ? ORDER BY seq ASC`
		args = []any{agentID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turn rows: %w", err)
	}

	return turns, nil
}

// ListAgents summarises agents by their most recent turn.
func (s *SQLiteStore) ListAgents(ctx context.Context, limit int) ([]AgentSummary, error) {
	query := `
		SELECT agent_id, COUNT(*), MAX(seq), MAX(created_at)
		FROM turns
		GROUP BY agent_id
		ORDER BY MAX(seq) DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []AgentSummary
	for rows.Next() {
		var summary AgentSummary
		var seq int64
		var lastStr string
		if err := rows.Scan(&summary.AgentID, &summary.Turns, &seq, &lastStr); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		summary.LastTurnAt, err = time.Parse(time.RFC3339, lastStr)
		if err != nil {
			return nil, fmt.Errorf("parsing last turn time: %w", err)
		}
		agents = append(agents, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}

	return agents, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(row scanner) (*Turn, error) {
	var turn Turn
	var promptID, replyID sql.NullString
	var createdAtStr string

	err := row.Scan(
		&turn.ID,
		&turn.AgentID,
		&turn.ChatID,
		&promptID,
		&replyID,
		&turn.Sender,
		&turn.Prompt,
		&turn.Content,
		&turn.StopReason,
		&turn.ToolCallsJSON,
		&turn.DepthExhausted,
		&turn.Round,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning turn row: %w", err)
	}

	turn.PromptMessageID = promptID.String
	turn.ReplyMessageID = replyID.String
	turn.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing turn created_at: %w", err)
	}

	return &turn, nil
}

// nullString returns nil for empty strings so optional columns stay NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
