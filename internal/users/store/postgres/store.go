// Package postgres persists users to the users table. Writes join an
// in-flight transaction from the context when present.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ralphbot/internal/users/models"
	id "ralphbot/pkg/domain"
	"ralphbot/pkg/platform/sentinel"
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
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Save inserts or updates by primary key. Telegram ID collisions surface
// as ErrConflict; one Telegram account maps to exactly one user row.
func (s *Store) Save(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, telegram_id, first_name, username, active_persona, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			username = EXCLUDED.username,
			active_persona = EXCLUDED.active_persona,
			updated_at = EXCLUDED.updated_at`

	_, err := s.execer(ctx).ExecContext(ctx, query,
		user.ID.String(),
		user.TelegramID,
		user.FirstName,
		user.Username,
		user.ActivePersona,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `
		SELECT id, telegram_id, first_name, username, active_persona, created_at, updated_at
		FROM users
		WHERE id = $1`
	return s.scanUser(s.execer(ctx).QueryRowContext(ctx, query, userID.String()))
}

func (s *Store) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `
		SELECT id, telegram_id, first_name, username, active_persona, created_at, updated_at
		FROM users
		WHERE telegram_id = $1`
	return s.scanUser(s.execer(ctx).QueryRowContext(ctx, query, telegramID))
}

func (s *Store) Delete(ctx context.Context, userID id.UserID) error {
	result, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID.String())
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var (
		user  models.User
		rawID string
	)
	err := row.Scan(
		&rawID,
		&user.TelegramID,
		&user.FirstName,
		&user.Username,
		&user.ActivePersona,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	user.ID = id.UserID(parsed)
	return &user, nil
}

// isUniqueViolation detects Postgres error code 23505.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
