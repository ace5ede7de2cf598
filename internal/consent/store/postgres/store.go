// Package postgres persists consent records to the consents table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ralphbot/internal/consent/models"
	id "ralphbot/pkg/domain"
	txcontext "ralphbot/pkg/platform/tx"
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

func (s *Store) Save(ctx context.Context, record models.ConsentRecord) error {
	query := `
		INSERT INTO consents (id, user_id, purpose, granted_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID.String(),
		record.UserID.String(),
		record.Purpose.String(),
		record.GrantedAt,
		record.ExpiresAt,
		record.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]models.ConsentRecord, error) {
	query := `
		SELECT id, user_id, purpose, granted_at, expires_at, revoked_at
		FROM consents
		WHERE user_id = $1
		ORDER BY granted_at ASC`

	rows, err := s.execer(ctx).QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("query consents: %w", err)
	}
	defer rows.Close()

	var records []models.ConsentRecord
	for rows.Next() {
		var (
			record     models.ConsentRecord
			rawID      string
			rawUserID  string
			rawPurpose string
			revokedAt  sql.NullTime
		)
		if err := rows.Scan(&rawID, &rawUserID, &rawPurpose, &record.GrantedAt, &record.ExpiresAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		consentID, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse consent id: %w", err)
		}
		ownerID, err := uuid.Parse(rawUserID)
		if err != nil {
			return nil, fmt.Errorf("parse consent user id: %w", err)
		}
		record.ID = id.ConsentID(consentID)
		record.UserID = id.UserID(ownerID)
		record.Purpose = id.ConsentPurpose(rawPurpose)
		if revokedAt.Valid {
			at := revokedAt.Time
			record.RevokedAt = &at
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return records, nil
}

// Revoke stamps every unrevoked record for the purpose. Idempotent.
func (s *Store) Revoke(ctx context.Context, userID id.UserID, purpose id.ConsentPurpose, revokedAt time.Time) error {
	query := `
		UPDATE consents
		SET revoked_at = $1
		WHERE user_id = $2 AND purpose = $3 AND revoked_at IS NULL`

	_, err := s.execer(ctx).ExecContext(ctx, query, revokedAt, userID.String(), purpose.String())
	if err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}
	return nil
}

func (s *Store) DeleteByUser(ctx context.Context, userID id.UserID) error {
	_, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM consents WHERE user_id = $1`, userID.String())
	if err != nil {
		return fmt.Errorf("delete consents: %w", err)
	}
	return nil
}
