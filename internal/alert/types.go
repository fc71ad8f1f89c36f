// Package alert defines core types shared across subsystems.
package alert

import "time"

// StockState represents the last-observed availability of a product.
type StockState string

// Stock state values persisted in the status cache.
const (
	StateInStock StockState = "stock"
	StateSoldOut StockState = "sold"
)

// AlertFrequency controls how a recipient receives alerts.
type AlertFrequency string

// Alert frequency values stored per recipient.
const (
	FrequencyInstant AlertFrequency = "instant"
	FrequencyHourly  AlertFrequency = "hourly"
	FrequencyDaily   AlertFrequency = "daily"
)

// ProductAvailability is one product's state as observed in a single fetch.
// It is ephemeral: only its (id, pincode) -> state projection is persisted.
type ProductAvailability struct {
	ID    string
	Title string
	State StockState
}

// Product identifies a product for display in notifications.
type Product struct {
	Title string
	ID    string
}

// Snapshot is one fetch's full availability listing for one pincode.
// Pincode is the pincode the storefront actually served, which may
// differ from the requested one after a degraded pincode change.
type Snapshot struct {
	Pincode   string
	Products  []ProductAvailability
	FetchedAt time.Time
}

// ChangeSet is the result of diffing a snapshot against the status cache.
// InStock and SoldOut always carry the full current listing; Changed
// gates whether a notification goes out at all.
type ChangeSet struct {
	Changed bool
	InStock []Product
	SoldOut []Product
}

// Preferences captures a recipient's delivery settings.
type Preferences struct {
	Frequency  AlertFrequency
	QuietStart string // "HH:MM:SS", empty when unset
	QuietEnd   string
	Paused     bool
	PauseUntil *time.Time
}

// PendingAlert is a deferred notification queued for digest or
// quiet-hours delivery. Uniqueness: (chat_id, product_id, state, pincode).
type PendingAlert struct {
	ChatID       int64
	Pincode      string
	ProductTitle string
	ProductID    string
	State        StockState
	CreatedAt    time.Time
	Sent         bool
}
