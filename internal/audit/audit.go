package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"MediDesk/internal/ipc"
)

// Entry is one persisted dispatch record.
type Entry struct {
	ID         int64     `json:"id"`
	Channel    string    `json:"channel"`
	WindowID   int64     `json:"windowId"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Recorder persists one row per completed dispatch. A failed insert is
// logged and swallowed: auditing must never fail a dispatch.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecorder creates a recorder over an initialized database (see
// telemetry.InitDB for the schema).
func NewRecorder(db *sql.DB, logger *slog.Logger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

// Record implements ipc.Auditor.
func (r *Recorder) Record(ctx context.Context, entry ipc.AuditEntry) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dispatch_audit (channel, window_id, success, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Channel, entry.WindowID, entry.Success, entry.Error,
		entry.Duration.Milliseconds(), time.Now())
	if err != nil {
		r.logger.Warn("failed to record audit entry", "channel", entry.Channel, "error", err)
	}
}

// Recent returns the latest entries, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, channel, window_id, success, error, duration_ms, created_at
		 FROM dispatch_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errText sql.NullString
		if err := rows.Scan(&e.ID, &e.Channel, &e.WindowID, &e.Success, &errText, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Error = errText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
