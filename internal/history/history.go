// Package history archives session transcripts to SQLite.
// The archive is write-mostly: sessions are never restored from it, it only
// keeps an audit trail of what was said.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/groq-extension-go/internal/logger"
	"github.com/comigor/groq-extension-go/internal/session"
)

// Archive is a session.Recorder backed by a SQLite database.
type Archive struct {
	db *sql.DB
}

var _ session.Recorder = (*Archive)(nil)

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between concurrent requests
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        role TEXT NOT NULL,
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create messages table: %w", err)
	}
	logger.L.Info("sqlite history DB initialized", "path", path)
	return &Archive{db: db}, nil
}

// Record stores msgs for the session. Failures are logged, never returned:
// archiving must not break a conversation.
func (a *Archive) Record(sessionID string, msgs []session.ChatMessage, at time.Time) {
	tx, err := a.db.Begin()
	if err != nil {
		logger.L.Error("failed to begin history transaction", "session", sessionID, "error", err)
		return
	}
	for _, m := range msgs {
		if _, err := tx.Exec(`INSERT INTO messages (session_id, role, content, created_at) VALUES (?,?,?,?);`,
			sessionID, string(m.Role), m.Content, at); err != nil {
			logger.L.Error("failed to store message in sqlite", "session", sessionID, "error", err)
			_ = tx.Rollback()
			return
		}
	}
	if err := tx.Commit(); err != nil {
		logger.L.Error("failed to commit history transaction", "session", sessionID, "error", err)
	}
}

// List returns all archived messages of a session in chronological order.
func (a *Archive) List(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id ASC;`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (a *Archive) Close() error {
	return a.db.Close()
}
