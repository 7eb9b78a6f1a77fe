// Package audit persists gateway events into the append-only audit_log table.
// The recorder subscribes to the event bus, so the gateway never blocks on
// audit writes and a recorder failure never fails a request.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ssabihuddin/modelgate/internal/infra/eventbus"
	"github.com/ssabihuddin/modelgate/pkg/uuid"
)

// Recorder consumes bus events and writes audit rows.
type Recorder struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRecorder creates a Recorder over an already-migrated database.
func NewRecorder(db *sql.DB, log *slog.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// Start subscribes to the gateway topics and consumes them until ctx is
// cancelled. Run it in its own goroutine; write failures are logged and the
// loop keeps going.
func (r *Recorder) Start(ctx context.Context, bus eventbus.EventBus) {
	switches := bus.Subscribe(eventbus.TopicModelSwitched)
	queries := bus.Subscribe(eventbus.TopicQueryCompleted)

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-switches:
			r.record(ctx, evt)
		case evt := <-queries:
			r.record(ctx, evt)
		}
	}
}

func (r *Recorder) record(ctx context.Context, evt eventbus.Event) {
	var model string
	switch p := evt.Payload.(type) {
	case SwitchEvent:
		model = p.To
	case QueryEvent:
		model = p.Model
	default:
		r.log.Warn("audit: unknown event payload", "topic", evt.Topic)
		return
	}

	detail, err := json.Marshal(evt.Payload)
	if err != nil {
		r.log.Error("audit: marshal payload", "topic", evt.Topic, "err", err)
		return
	}

	if err := r.insert(ctx, evt.Topic, model, string(detail)); err != nil {
		r.log.Error("audit: write failed", "topic", evt.Topic, "err", err)
	}
}

func (r *Recorder) insert(ctx context.Context, action, model, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, model, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewV7().String(), action, model, detail, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert audit_log: %w", err)
	}
	return nil
}

// ListByAction returns the most recent entries for an action, newest first.
func (r *Recorder) ListByAction(ctx context.Context, action string, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, action, model, detail, created_at
		FROM audit_log
		WHERE action = ?
		ORDER BY id DESC
		LIMIT ?
	`, action, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit_log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Action, &e.Model, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit_log: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
