// Package postgres persists the feedback queue on pgx. Execute wraps the
// validate-then-mutate sequence in a transaction with a row lock, so
// concurrent triage decisions on the same entry serialize at the
// database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ralphbot/internal/feedback/models"
	id "ralphbot/pkg/domain"
	"ralphbot/pkg/platform/sentinel"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const feedbackColumns = `id, author_id, chat_id, kind, severity, text, fingerprint, status,
	canonical_id, votes, priority, created_at, updated_at, triaged_at, resolved_at`

func scanFeedback(row pgx.Row) (*models.Feedback, error) {
	f := &models.Feedback{}
	var entryID, authorID uuid.UUID
	var canonicalID *uuid.UUID
	var triagedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&entryID, &authorID, &f.ChatID, &f.Kind, &f.Severity, &f.Text, &f.Fingerprint, &f.Status,
		&canonicalID, &f.Votes, &f.Priority, &f.CreatedAt, &f.UpdatedAt, &triagedAt, &resolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan feedback: %w", err)
	}

	f.ID = id.FeedbackID(entryID)
	f.AuthorID = id.UserID(authorID)
	if canonicalID != nil {
		cid := id.FeedbackID(*canonicalID)
		f.CanonicalID = &cid
	}
	if triagedAt.Valid {
		t := triagedAt.Time
		f.TriagedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		f.ResolvedAt = &t
	}
	return f, nil
}

func saveArgs(f *models.Feedback) []any {
	var canonicalID *uuid.UUID
	if f.CanonicalID != nil {
		cid := uuid.UUID(*f.CanonicalID)
		canonicalID = &cid
	}
	var triagedAt, resolvedAt *time.Time
	if f.TriagedAt != nil {
		triagedAt = f.TriagedAt
	}
	if f.ResolvedAt != nil {
		resolvedAt = f.ResolvedAt
	}
	return []any{
		uuid.UUID(f.ID), uuid.UUID(f.AuthorID), f.ChatID, string(f.Kind), string(f.Severity),
		f.Text, f.Fingerprint, string(f.Status), canonicalID, f.Votes, f.Priority,
		f.CreatedAt, f.UpdatedAt, triagedAt, resolvedAt,
	}
}

const saveQuery = `
	INSERT INTO feedback (` + feedbackColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (id) DO UPDATE SET
		author_id = EXCLUDED.author_id,
		status = EXCLUDED.status,
		canonical_id = EXCLUDED.canonical_id,
		votes = EXCLUDED.votes,
		priority = EXCLUDED.priority,
		updated_at = EXCLUDED.updated_at,
		triaged_at = EXCLUDED.triaged_at,
		resolved_at = EXCLUDED.resolved_at`

func (s *Store) Save(ctx context.Context, f *models.Feedback) error {
	if _, err := s.pool.Exec(ctx, saveQuery, saveArgs(f)...); err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, feedbackID id.FeedbackID) (*models.Feedback, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE id = $1`, uuid.UUID(feedbackID))
	return scanFeedback(row)
}

// Execute locks the row, runs fn on the loaded entry, and writes the
// result back in the same transaction.
func (s *Store) Execute(ctx context.Context, feedbackID id.FeedbackID, fn func(f *models.Feedback) error) (*models.Feedback, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin feedback tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRow(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE id = $1 FOR UPDATE`, uuid.UUID(feedbackID))
	f, err := scanFeedback(row)
	if err != nil {
		return nil, err
	}

	if err := fn(f); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, saveQuery, saveArgs(f)...); err != nil {
		return nil, fmt.Errorf("update feedback: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit feedback tx: %w", err)
	}
	return f, nil
}

func (s *Store) ListByStatus(ctx context.Context, statuses []models.Status, limit int) ([]*models.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback`
	args := []any{}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, names)
	}
	query += ` ORDER BY priority DESC, created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()
	return scanFeedbackRows(rows)
}

func (s *Store) ListByAuthor(ctx context.Context, authorID id.UserID) ([]*models.Feedback, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE author_id = $1 ORDER BY created_at ASC`,
		uuid.UUID(authorID))
	if err != nil {
		return nil, fmt.Errorf("list feedback by author: %w", err)
	}
	defer rows.Close()
	return scanFeedbackRows(rows)
}

func (s *Store) ListCandidates(ctx context.Context, kind models.Kind, since time.Time) ([]*models.Feedback, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE kind = $1 AND created_at >= $2 ORDER BY created_at ASC`,
		string(kind), since)
	if err != nil {
		return nil, fmt.Errorf("list dedup candidates: %w", err)
	}
	defer rows.Close()
	return scanFeedbackRows(rows)
}

func (s *Store) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM feedback GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count feedback: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan feedback count: %w", err)
		}
		counts[models.Status(status)] = count
	}
	return counts, rows.Err()
}

func scanFeedbackRows(rows pgx.Rows) ([]*models.Feedback, error) {
	var out []*models.Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
