// Package postgres persists audit events to the audit_events table.
//
// Writes join an in-flight service transaction when one is present in the
// context, so domain mutations and their audit entries commit atomically.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	id "ralphbot/pkg/domain"
	audit "ralphbot/pkg/platform/audit"
	txcontext "ralphbot/pkg/platform/tx"

	"github.com/google/uuid"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes one audit event. Category falls back to the action's
// default when the emitter left it empty.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	var userID any
	if !event.UserID.IsNil() {
		userID = event.UserID.String()
	}

	query := `
		INSERT INTO audit_events (
			id, category, action, subject, user_id,
			purpose, decision, reason, request_id, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New().String(),
		string(category),
		event.Action,
		event.Subject,
		userID,
		event.Purpose,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ActorID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns the full audit trail for one user, oldest first.
// Backs the data export surface, so it must return every event.
func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	query := `
		SELECT category, action, subject, user_id, purpose, decision, reason, request_id, actor_id, created_at
		FROM audit_events
		WHERE user_id = $1
		ORDER BY created_at ASC`

	rows, err := s.execer(ctx).QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the most recent events across all users, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT category, action, subject, user_id, purpose, decision, reason, request_id, actor_id, created_at
		FROM audit_events
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.execer(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event     audit.Event
			category  string
			rawUserID sql.NullString
		)
		if err := rows.Scan(
			&category,
			&event.Action,
			&event.Subject,
			&rawUserID,
			&event.Purpose,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.ActorID,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if rawUserID.Valid {
			parsed, err := uuid.Parse(rawUserID.String)
			if err != nil {
				return nil, fmt.Errorf("parse audit user id: %w", err)
			}
			event.UserID = id.UserID(parsed)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
