package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "ralphbot/pkg/domain"
)

// OverrideStore persists not-duplicate rulings. The pair is stored
// ordered so (a, b) and (b, a) hit the same row.
type OverrideStore struct {
	pool *pgxpool.Pool
}

func NewOverrideStore(pool *pgxpool.Pool) *OverrideStore {
	return &OverrideStore{pool: pool}
}

func orderedPair(a, b id.FeedbackID) (uuid.UUID, uuid.UUID) {
	lo, hi := uuid.UUID(a), uuid.UUID(b)
	if lo.String() > hi.String() {
		lo, hi = hi, lo
	}
	return lo, hi
}

func (s *OverrideStore) Record(ctx context.Context, a, b id.FeedbackID) error {
	lo, hi := orderedPair(a, b)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback_duplicate_overrides (pair_lo, pair_hi, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (pair_lo, pair_hi) DO NOTHING`, lo, hi)
	if err != nil {
		return fmt.Errorf("record duplicate override: %w", err)
	}
	return nil
}

func (s *OverrideStore) Exists(ctx context.Context, a, b id.FeedbackID) (bool, error) {
	lo, hi := orderedPair(a, b)
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM feedback_duplicate_overrides WHERE pair_lo = $1 AND pair_hi = $2`, lo, hi).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check duplicate override: %w", err)
	}
	return true, nil
}
