package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ralphbot/internal/quality/models"
	id "ralphbot/pkg/domain"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists quality records in PostgreSQL.
// Pure I/O; tier derivation and delta reversal live in the service.
type Store struct {
	db execer
}

func New(db execer) *Store {
	return &Store{db: db}
}

// Apply atomically adds the delta to the author's counters and returns the
// updated record. A single INSERT ... ON CONFLICT ... RETURNING avoids races
// between two moderators resolving the same author's feedback at once.
// Counters floor at zero so a reversal can never drive them negative.
func (s *Store) Apply(ctx context.Context, userID id.UserID, delta models.Delta, now time.Time) (*models.QualityRecord, error) {
	query := `
		INSERT INTO quality_records (user_id, submitted, accepted, rejected, duplicates, updated_at)
		VALUES ($1, GREATEST(0, $2), GREATEST(0, $3), GREATEST(0, $4), GREATEST(0, $5), $6)
		ON CONFLICT (user_id) DO UPDATE SET
			submitted = GREATEST(0, quality_records.submitted + $2),
			accepted = GREATEST(0, quality_records.accepted + $3),
			rejected = GREATEST(0, quality_records.rejected + $4),
			duplicates = GREATEST(0, quality_records.duplicates + $5),
			updated_at = $6
		RETURNING user_id, submitted, accepted, rejected, duplicates, updated_at
	`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query,
		userID.String(), delta.Submitted, delta.Accepted, delta.Rejected, delta.Duplicates, now,
	))
	if err != nil {
		return nil, fmt.Errorf("apply quality delta: %w", err)
	}
	return record, nil
}

// Get returns the stored record, or a zero record when the author has no row yet.
func (s *Store) Get(ctx context.Context, userID id.UserID) (*models.QualityRecord, error) {
	query := `
		SELECT user_id, submitted, accepted, rejected, duplicates, updated_at
		FROM quality_records
		WHERE user_id = $1
	`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, userID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.QualityRecord{UserID: userID}, nil
		}
		return nil, fmt.Errorf("get quality record: %w", err)
	}
	return record, nil
}

// DeleteByUser removes the author's record. Part of account erasure.
func (s *Store) DeleteByUser(ctx context.Context, userID id.UserID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM quality_records WHERE user_id = $1`, userID.String())
	if err != nil {
		return fmt.Errorf("delete quality record: %w", err)
	}
	return nil
}

type row interface {
	Scan(dest ...any) error
}

func scanRecord(r row) (*models.QualityRecord, error) {
	var (
		record  models.QualityRecord
		rawUser string
	)
	if err := r.Scan(
		&rawUser,
		&record.Submitted,
		&record.Accepted,
		&record.Rejected,
		&record.Duplicates,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(rawUser)
	if err != nil {
		return nil, fmt.Errorf("stored user id: %w", err)
	}
	record.UserID = userID
	return &record, nil
}
