// Package detector diffs availability snapshots against the status cache.
package detector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
)

// Detector decides whether a snapshot should produce an alert and
// writes the observed states back to the cache.
type Detector struct {
	cache  alert.StatusCache
	logger *zap.Logger
}

// New constructs a Detector.
func New(cache alert.StatusCache, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{cache: cache, logger: logger}
}

// Detect applies the change rules for one snapshot:
//
//   - An IN_STOCK item alerts when its cached state differs, except on a
//     pincode's very first scrape when the item has no prior row (a new
//     pincode's initial listing would otherwise flood subscribers). A
//     never-seen item in a pincode with existing history does alert.
//   - A SOLD_OUT item alerts only on a genuine stock->sold transition;
//     first discovery of a sold-out item is recorded silently.
//   - Absence from the grid is not a state and is never evaluated.
//
// The returned lists carry the full current listing for display either
// way; Changed alone gates whether a notification is sent.
func (d *Detector) Detect(ctx context.Context, snap alert.Snapshot) (alert.ChangeSet, error) {
	hasHistory, err := d.cache.HasAny(ctx, snap.Pincode)
	if err != nil {
		return alert.ChangeSet{}, fmt.Errorf("check pincode history: %w", err)
	}
	firstScrape := !hasHistory

	cs := alert.ChangeSet{}
	for _, p := range snap.Products {
		product := alert.Product{Title: p.Title, ID: p.ID}
		cached, found, err := d.cache.Get(ctx, p.ID, snap.Pincode)
		if err != nil {
			return alert.ChangeSet{}, fmt.Errorf("read cached state: %w", err)
		}

		switch p.State {
		case alert.StateInStock:
			cs.InStock = append(cs.InStock, product)
			if cached != alert.StateInStock && !(firstScrape && !found) {
				cs.Changed = true
				d.logger.Debug("product now in stock",
					zap.String("pincode", snap.Pincode),
					zap.String("product_id", p.ID),
				)
			}
		case alert.StateSoldOut:
			cs.SoldOut = append(cs.SoldOut, product)
			if found && cached == alert.StateInStock {
				cs.Changed = true
				d.logger.Debug("product now sold out",
					zap.String("pincode", snap.Pincode),
					zap.String("product_id", p.ID),
				)
			}
		default:
			continue
		}

		if err := d.cache.Set(ctx, p.ID, snap.Pincode, p.State); err != nil {
			return alert.ChangeSet{}, fmt.Errorf("write cached state: %w", err)
		}
	}
	return cs, nil
}
