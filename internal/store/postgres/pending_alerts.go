package postgres

import (
	"context"
	"fmt"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
)

// PendingAlertStore persists deferred notifications for digest delivery.
type PendingAlertStore struct {
	db DB
}

// NewPendingAlertStore builds a pending-alert store over the given pool.
func NewPendingAlertStore(db DB) (*PendingAlertStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &PendingAlertStore{db: db}, nil
}

const insertPendingSQL = `INSERT INTO pending_alerts (chat_id, pincode, product_title, product_id, state)
	 VALUES ($1, $2, $3, $4, $5)
	 ON CONFLICT (chat_id, product_id, state, pincode) DO NOTHING`

// Queue inserts one pending row per product. The uniqueness constraint
// makes re-queueing the same state transition a no-op.
func (s *PendingAlertStore) Queue(ctx context.Context, chatID int64, pincode string, inStock, soldOut []alert.Product) error {
	for _, p := range inStock {
		if _, err := s.db.Exec(ctx, insertPendingSQL,
			chatID, pincode, p.Title, p.ID, string(alert.StateInStock)); err != nil {
			return fmt.Errorf("queue pending alert: %w", err)
		}
	}
	for _, p := range soldOut {
		if _, err := s.db.Exec(ctx, insertPendingSQL,
			chatID, pincode, p.Title, p.ID, string(alert.StateSoldOut)); err != nil {
			return fmt.Errorf("queue pending alert: %w", err)
		}
	}
	return nil
}

// Unsent returns up to limit undelivered rows for a recipient, oldest first.
func (s *PendingAlertStore) Unsent(ctx context.Context, chatID int64, limit int) ([]alert.PendingAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT chat_id, pincode, product_title, product_id, state, created_at, sent
		 FROM pending_alerts
		 WHERE chat_id = $1 AND sent = FALSE
		 ORDER BY created_at
		 LIMIT $2`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending alerts: %w", err)
	}
	defer rows.Close()

	var out []alert.PendingAlert
	for rows.Next() {
		var (
			pa    alert.PendingAlert
			state string
		)
		if err := rows.Scan(&pa.ChatID, &pa.Pincode, &pa.ProductTitle, &pa.ProductID, &state, &pa.CreatedAt, &pa.Sent); err != nil {
			return nil, fmt.Errorf("scan pending alert: %w", err)
		}
		pa.State = alert.StockState(state)
		out = append(out, pa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending alerts: %w", err)
	}
	return out, nil
}

// MarkSent flags every unsent row for the recipient as delivered and
// returns the affected count. Called only after a confirmed send.
func (s *PendingAlertStore) MarkSent(ctx context.Context, chatID int64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE pending_alerts SET sent = TRUE WHERE chat_id = $1 AND sent = FALSE`,
		chatID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark alerts sent: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Clear drops all pending rows for a recipient, delivered or not. The
// onboarding flow calls this when a recipient changes pincode.
func (s *PendingAlertStore) Clear(ctx context.Context, chatID int64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM pending_alerts WHERE chat_id = $1`,
		chatID,
	)
	if err != nil {
		return 0, fmt.Errorf("clear pending alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}
