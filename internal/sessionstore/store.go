// Package sessionstore persists conversation history (spec §2 component
// O): sessions, their append-only message log, and optional branching.
// SQLite-backed via modernc.org/sqlite — the teacher's pure-Go driver,
// kept distinct from the vault's mattn/go-sqlite3 so both teacher SQL
// drivers are exercised. Branching idiom follows the teacher's
// internal/sessions/memory.go and branch_memory.go.
package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/localmind/aegis/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	agent_id TEXT,
	title TEXT,
	metadata TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	branch_id TEXT,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT,
	tool_calls TEXT,
	tool_call_id TEXT,
	is_error INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
CREATE TABLE IF NOT EXISTS branches (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	parent_branch_id TEXT,
	name TEXT NOT NULL,
	branch_point INTEGER NOT NULL,
	status TEXT NOT NULL,
	is_primary INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
`

// Store is a single-writer, SQLite-backed session + message store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path. Pass
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer, matching the vault's serialisation model
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// CreateSession inserts a new session.
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	meta, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("sessionstore: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, agent_id, title, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.AgentID, session.Title, string(meta), session.CreatedAt, session.UpdatedAt)
	return err
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, agent_id, title, metadata, created_at, updated_at FROM sessions WHERE id = ?`, id)
	var out models.Session
	var meta string
	if err := row.Scan(&out.ID, &out.AgentID, &out.Title, &meta, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sessionstore: session %q not found", id)
		}
		return nil, err
	}
	if meta != "" {
		_ = json.Unmarshal([]byte(meta), &out.Metadata)
	}
	return &out, nil
}

// AppendMessage appends a message to a session's (optionally branched)
// history. Messages are never mutated once appended (spec §3).
func (s *Store) AppendMessage(ctx context.Context, branchID string, msg *models.Message) error {
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("sessionstore: marshal tool calls: %w", err)
	}
	var seq int64
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`, msg.SessionID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("sessionstore: compute sequence: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, branch_id, seq, role, content, tool_calls, tool_call_id, is_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, branchID, seq, string(msg.Role), msg.Content, string(toolCalls), msg.ToolCallID, boolToInt(msg.IsError), msg.CreatedAt)
	return err
}

// History returns a session's messages in append order.
func (s *Store) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, tool_calls, tool_call_id, is_error, created_at
		 FROM messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var toolCalls string
		var isError int
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &toolCalls, &m.ToolCallID, &isError, &m.CreatedAt); err != nil {
			return nil, err
		}
		if toolCalls != "" {
			_ = json.Unmarshal([]byte(toolCalls), &m.ToolCalls)
		}
		m.IsError = isError != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateBranch records a new branch diverging from parentBranchID at
// branchPoint (spec-supplemented feature: session branching).
func (s *Store) CreateBranch(ctx context.Context, branch *models.Branch) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branches (id, session_id, parent_branch_id, name, branch_point, status, is_primary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		branch.ID, branch.SessionID, branch.ParentBranchID, branch.Name, branch.BranchPoint, string(branch.Status), boolToInt(branch.IsPrimary), now)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
