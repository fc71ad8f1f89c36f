package alert

import (
	"context"
	"errors"
	"time"
)

// ErrNeedsRestart signals a session-fatal fetcher failure. The scheduler
// replaces the browser session and retries the pincode next cycle.
var ErrNeedsRestart = errors.New("browser session needs restart")

// StatusCache persists the last-observed state per (product_id, pincode).
type StatusCache interface {
	Get(ctx context.Context, productID, pincode string) (StockState, bool, error)
	Set(ctx context.Context, productID, pincode string, state StockState) error
	HasAny(ctx context.Context, pincode string) (bool, error)
	EvictOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// PendingAlertStore persists deferred notifications for digest delivery.
type PendingAlertStore interface {
	Queue(ctx context.Context, chatID int64, pincode string, inStock, soldOut []Product) error
	Unsent(ctx context.Context, chatID int64, limit int) ([]PendingAlert, error)
	MarkSent(ctx context.Context, chatID int64) (int64, error)
	Clear(ctx context.Context, chatID int64) (int64, error)
}

// RecipientSource reads subscriber data owned by the bot-command layer.
// ExpireSubscriptions and ResumeDuePauses are the only writes this core
// performs against recipient rows.
type RecipientSource interface {
	ActiveByPincode(ctx context.Context) (map[string][]int64, error)
	Preferences(ctx context.Context, chatID int64) (Preferences, error)
	ByFrequency(ctx context.Context, freq AlertFrequency) ([]int64, error)
	ExpireSubscriptions(ctx context.Context) (int64, error)
	ResumeDuePauses(ctx context.Context) (int64, error)
}

// Sink delivers a formatted message to a chat. Best effort: a nil error
// means the message was accepted, nothing more.
type Sink interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// SnapshotFetcher produces availability snapshots from the live storefront.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, pincode string) (Snapshot, error)
}

// Detector diffs a snapshot against the status cache.
type Detector interface {
	Detect(ctx context.Context, snap Snapshot) (ChangeSet, error)
}

// Router fans a change set out to recipients.
type Router interface {
	Route(ctx context.Context, chatIDs []int64, pincode string, cs ChangeSet) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
