// Package events records the hot-plug history: device arrivals,
// departures and worker failures, persisted to SQLite for inspection
// after the fact.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types recorded in the journal.
const (
	TypeAttached         = "attached"
	TypeDetached         = "detached"
	TypeWorkerFailed     = "worker_failed"
	TypeRegistryRefresh  = "registry_refreshed"
	TypeSessionRecovered = "session_recovered"
)

// Event is a single journal entry.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Port      string         `json:"port,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which events to return.
type Filter struct {
	Type   string // optional: filter by event type
	Port   string // optional: filter by device port
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// ListResult contains paginated journal results.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Journal persists events to SQLite.
type Journal struct {
	db *sql.DB
}

// NewJournal creates a Journal and ensures its schema exists.
func NewJournal(ctx context.Context, db *sql.DB) (*Journal, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS device_events (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			port       TEXT,
			kind       TEXT,
			details    TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_device_events_created
			ON device_events(created_at);
	`)
	if err != nil {
		return nil, fmt.Errorf("creating events schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record inserts an event. ID and CreatedAt are generated if empty.
func (j *Journal) Record(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = "evt-" + uuid.NewString()[:8]
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	var detailsJSON any
	if ev.Details != nil {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("marshalling event details: %w", err)
		}
		detailsJSON = string(b)
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO device_events (id, type, port, kind, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Type,
		nullableString(ev.Port), nullableString(ev.Kind),
		detailsJSON,
		ev.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching the filter, most recent first.
func (j *Journal) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Port != "" {
		conditions = append(conditions, "port = ?")
		args = append(args, filter.Port)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM device_events %s", where)
	var total int
	if err := j.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, type, port, kind, details, created_at FROM device_events %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var port, kind, detailsJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&ev.ID, &ev.Type, &port, &kind, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if port.Valid {
			ev.Port = port.String
		}
		if kind.Valid {
			ev.Kind = kind.String
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				ev.Details = details
			}
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", createdAt, err)
		}
		ev.CreatedAt = t

		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	if out == nil {
		out = []Event{}
	}

	return &ListResult{
		Events: out,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
