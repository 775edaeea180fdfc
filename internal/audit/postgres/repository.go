package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openlms/admin-session/internal/audit"
	pkgerrors "github.com/openlms/admin-session/pkg/errors"
)

// Repository writes session audit events to the session_events table.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, ev *audit.Event) error {
	if ev == nil {
		return pkgerrors.ErrNilEvent
	}

	query := `
	INSERT INTO session_events (id, kind, subject, username, role, detail, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		ev.ID,
		ev.Kind,
		ev.Subject,
		ev.Username,
		ev.Role,
		ev.Detail,
		ev.OccurredAt,
	); err != nil {
		return fmt.Errorf("failed to insert session event: %w", err)
	}
	return nil
}

// RecentBySubject returns the newest events for one subject, latest first.
func (r *Repository) RecentBySubject(ctx context.Context, subject string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT id, kind, subject, username, role, detail, occurred_at
	FROM session_events
	WHERE subject = $1
	ORDER BY occurred_at DESC
	LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var ev audit.Event
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Subject, &ev.Username, &ev.Role, &ev.Detail, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
