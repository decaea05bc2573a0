// Package audit records every tool invocation in a local SQLite database.
// Recording is strictly best-effort: the audit trail must never block or
// fail the operation it describes, so all errors are logged and dropped.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id         TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    action     TEXT NOT NULL,
    session_id TEXT NOT NULL,
    params     TEXT NOT NULL DEFAULT '{}',
    result     TEXT NOT NULL DEFAULT '',
    error      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_action  ON audit_log(action, created_at);
`

// maxValueLen bounds any single recorded parameter value.
const maxValueLen = 1000

// sensitiveKeys are redacted from recorded parameters. Matching is by
// substring on the lowercased key name.
var sensitiveKeys = []string{
	"password", "token", "secret", "key",
	"api_key", "private_key", "credential", "auth",
}

// Entry is one recorded invocation.
type Entry struct {
	ID        string
	CreatedAt string
	Action    string
	SessionID string
	Params    string
	Result    string
	Error     string
}

// Store writes audit entries to <dir>/audit.db.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates the audit database under dir, running migrations as needed.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	dbPath := filepath.Join(dir, "audit.db")
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Log records one invocation. A nil Store is a no-op so callers can run
// with auditing disabled without guarding every call site.
func (s *Store) Log(action, sessionID string, params map[string]any, result, errMsg string) {
	if s == nil || s.db == nil {
		return
	}
	encoded, err := json.Marshal(sanitize(params))
	if err != nil {
		encoded = []byte("{}")
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_log (id, created_at, action, session_id, params, result, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		action,
		sessionID,
		string(encoded),
		truncate(result),
		truncate(errMsg),
	)
	if err != nil {
		s.log.Warn("audit write failed", "action", action, "error", err)
	}
}

// Recent returns the latest n entries, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, action, session_id, params, result, error
		 FROM audit_log ORDER BY created_at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Action, &e.SessionID, &e.Params, &e.Result, &e.Error); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// sanitize redacts sensitive keys and bounds value sizes so the audit
// trail cannot leak credentials or balloon on large payloads.
func sanitize(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if isSensitive(k) {
			out[k] = "[REDACTED]"
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = truncate(s)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func truncate(s string) string {
	if len(s) > maxValueLen {
		return s[:maxValueLen] + "...[truncated]"
	}
	return s
}
