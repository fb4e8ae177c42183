// Package sessionstore persists completed turns to a SQLite database,
// the way the teacher's internal/session package persists chat
// sessions. Per the spec's Non-goals, only completed turns are
// durable — an in-flight turn's partial state never hits this store,
// so a process restart mid-turn simply loses that turn rather than
// resuming it.
package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/samsaffron/turnsched/internal/modelapi"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    messages TEXT NOT NULL,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    tool_calls INTEGER DEFAULT 0,
    completed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, sequence);
`

// Turn is one completed continuation-loop pass through the scheduler:
// the messages it appended to history and the usage it accrued.
type Turn struct {
	ID           int64
	SessionID    string
	Sequence     int
	Messages     []modelapi.Message
	InputTokens  int
	OutputTokens int
	ToolCalls    int
	CompletedAt  time.Time
}

// Store persists completed Turns keyed by session ID.
type Store struct {
	db *sql.DB
}

// ResolveDBPath mirrors the teacher's XDG-aware path resolution,
// honoring an explicit override (including ":memory:") before falling
// back to $XDG_DATA_HOME/turnsched/sessions.db.
func ResolveDBPath(override string) (string, error) {
	override = strings.TrimSpace(override)
	if override == "" {
		dir, err := dataDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "sessions.db"), nil
	}
	if override == ":memory:" {
		return override, nil
	}
	return filepath.Abs(os.ExpandEnv(override))
}

func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "turnsched"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("sessionstore: home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "turnsched"), nil
}

// Open creates or opens the SQLite database at path, initializing the
// schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sessionstore: create data dir: %w", err)
		}
	}
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// AppendTurn persists one completed turn, assigning it the next
// sequence number for its session.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, messages []modelapi.Message, inputTokens, outputTokens, toolCalls int) (Turn, error) {
	data, err := json.Marshal(messages)
	if err != nil {
		return Turn{}, fmt.Errorf("sessionstore: marshal messages: %w", err)
	}

	var nextSeq int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), -1) + 1 FROM turns WHERE session_id = ?`, sessionID)
	if err := row.Scan(&nextSeq); err != nil {
		return Turn{}, fmt.Errorf("sessionstore: next sequence: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, sequence, messages, input_tokens, output_tokens, tool_calls, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, nextSeq, string(data), inputTokens, outputTokens, toolCalls, now,
	)
	if err != nil {
		return Turn{}, fmt.Errorf("sessionstore: insert turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Turn{}, fmt.Errorf("sessionstore: last insert id: %w", err)
	}

	return Turn{
		ID: id, SessionID: sessionID, Sequence: nextSeq, Messages: messages,
		InputTokens: inputTokens, OutputTokens: outputTokens, ToolCalls: toolCalls, CompletedAt: now,
	}, nil
}

// Turns returns every persisted turn for a session, oldest first.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sequence, messages, input_tokens, output_tokens, tool_calls, completed_at FROM turns WHERE session_id = ? ORDER BY sequence ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: query turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var raw string
		t.SessionID = sessionID
		if err := rows.Scan(&t.ID, &t.Sequence, &raw, &t.InputTokens, &t.OutputTokens, &t.ToolCalls, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("sessionstore: scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &t.Messages); err != nil {
			return nil, fmt.Errorf("sessionstore: unmarshal messages: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
