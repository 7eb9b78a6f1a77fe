// Package history persists the shared conversation transcript. Every query
// appends a user turn and, on success, a system turn; the full transcript is
// replayed to whichever model is active, so context survives model switches.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrStorage wraps database failures. History persistence is best-effort:
// callers log it and keep serving from the in-memory transcript.
var ErrStorage = errors.New("history storage failure")

// Roles a turn can carry. "system" is the assistant side of the exchange,
// matching the role the transcript is replayed with.
const (
	RoleUser   = "user"
	RoleSystem = "system"
)

// Turn is one entry of the transcript.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Record is a stored turn with its bookkeeping columns.
type Record struct {
	ID        int64  `json:"id"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// Store reads and writes transcript rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one turn. The model name and token cap in effect at the time
// are recorded alongside, so the transcript doubles as a query log.
func (s *Store) Append(ctx context.Context, model string, maxTokens int, role, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (model, max_tokens, role, content)
		VALUES (?, ?, ?, ?)
	`, model, maxTokens, role, content)
	if err != nil {
		return fmt.Errorf("%w: append: %v", ErrStorage, err)
	}
	return nil
}

// LoadAll returns every turn in insertion order.
func (s *Store) LoadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model, max_tokens, role, content
		FROM history
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %v", ErrStorage, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Model, &r.MaxTokens, &r.Role, &r.Content); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStorage, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %v", ErrStorage, err)
	}
	return out, nil
}

// Clear deletes the whole transcript.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("%w: clear: %v", ErrStorage, err)
	}
	return nil
}
