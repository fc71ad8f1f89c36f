package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
)

// StatusCacheStore persists last-observed product state per (product_id, pincode).
type StatusCacheStore struct {
	db    DB
	clock alert.Clock
}

// NewStatusCacheStore builds a status cache over the given pool.
func NewStatusCacheStore(db DB, clock alert.Clock) (*StatusCacheStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &StatusCacheStore{db: db, clock: clock}, nil
}

// Get returns the cached state for a (product_id, pincode) pair. The
// second return value is false when the pair has never been observed.
func (s *StatusCacheStore) Get(ctx context.Context, productID, pincode string) (alert.StockState, bool, error) {
	var state string
	err := s.db.QueryRow(ctx,
		`SELECT state FROM product_status_cache WHERE product_id = $1 AND pincode = $2`,
		productID, pincode,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get product status: %w", err)
	}
	return alert.StockState(state), true, nil
}

// Set upserts the observed state, always refreshing the timestamp. The
// cache reflects last-observed truth, not history.
func (s *StatusCacheStore) Set(ctx context.Context, productID, pincode string, state alert.StockState) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO product_status_cache (product_id, pincode, state, last_updated)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (product_id, pincode)
		 DO UPDATE SET state = EXCLUDED.state, last_updated = EXCLUDED.last_updated`,
		productID, pincode, string(state), s.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("set product status: %w", err)
	}
	return nil
}

// HasAny reports whether any state has ever been cached for a pincode.
// The scheduler uses it to detect a first scrape; the onboarding flow
// uses it to show immediate feedback.
func (s *StatusCacheStore) HasAny(ctx context.Context, pincode string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM product_status_cache WHERE pincode = $1)`,
		pincode,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check cached pincode: %w", err)
	}
	return exists, nil
}

// EvictOlderThan removes rows not re-observed within the given age and
// returns the number of rows deleted.
func (s *StatusCacheStore) EvictOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-age)
	tag, err := s.db.Exec(ctx,
		`DELETE FROM product_status_cache WHERE last_updated < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("evict product status: %w", err)
	}
	return tag.RowsAffected(), nil
}
