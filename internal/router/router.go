// Package router decides per-recipient delivery: immediate send or defer.
package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/metrics"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/timeutil"
)

// Router fans a change set out to recipients, consulting each
// recipient's frequency, quiet hours and pause state.
type Router struct {
	recipients alert.RecipientSource
	pending    alert.PendingAlertStore
	sink       alert.Sink
	clock      alert.Clock
	loc        *time.Location
	logger     *zap.Logger
}

// New constructs a Router. loc is the timezone quiet hours are
// evaluated in.
func New(
	recipients alert.RecipientSource,
	pending alert.PendingAlertStore,
	sink alert.Sink,
	clock alert.Clock,
	loc *time.Location,
	logger *zap.Logger,
) *Router {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		recipients: recipients,
		pending:    pending,
		sink:       sink,
		clock:      clock,
		loc:        loc,
		logger:     logger,
	}
}

// Route delivers a change set to every recipient. A failure for one
// recipient is logged and does not block the rest; the last error is
// returned so callers can observe that the fan-out was incomplete.
func (r *Router) Route(ctx context.Context, chatIDs []int64, pincode string, cs alert.ChangeSet) error {
	var lastErr error
	for _, chatID := range chatIDs {
		if err := r.routeOne(ctx, chatID, pincode, cs); err != nil {
			r.logger.Warn("routing failed for recipient",
				zap.Int64("chat_id", chatID),
				zap.String("pincode", pincode),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	return lastErr
}

func (r *Router) routeOne(ctx context.Context, chatID int64, pincode string, cs alert.ChangeSet) error {
	prefs, err := r.recipients.Preferences(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	if prefs.Paused {
		return nil
	}

	if r.shouldDefer(prefs) {
		if err := r.pending.Queue(ctx, chatID, pincode, cs.InStock, cs.SoldOut); err != nil {
			return fmt.Errorf("queue deferred alert: %w", err)
		}
		metrics.ObservePendingQueued(len(cs.InStock) + len(cs.SoldOut))
		r.logger.Debug("alert deferred",
			zap.Int64("chat_id", chatID),
			zap.String("pincode", pincode),
			zap.String("frequency", string(prefs.Frequency)),
		)
		return nil
	}

	msg := FormatChangeMessage(pincode, cs.InStock, cs.SoldOut)
	if err := r.sink.Send(ctx, chatID, msg); err != nil {
		// At-most-once: the cache was already updated, so a lost send is
		// only recovered if the state diverges again.
		metrics.ObserveSendFailure()
		return fmt.Errorf("send immediate alert: %w", err)
	}
	metrics.ObserveAlertSent("instant")
	return nil
}

// shouldDefer reports whether delivery must go to the pending queue:
// digest-mode recipients always defer, instant recipients defer only
// inside their quiet hours.
func (r *Router) shouldDefer(prefs alert.Preferences) bool {
	if prefs.Frequency == alert.FrequencyHourly || prefs.Frequency == alert.FrequencyDaily {
		return true
	}
	return r.inQuietHours(prefs)
}

func (r *Router) inQuietHours(prefs alert.Preferences) bool {
	if prefs.QuietStart == "" || prefs.QuietEnd == "" {
		return false
	}
	start, err := timeutil.ParseClock(prefs.QuietStart)
	if err != nil {
		r.logger.Warn("invalid quiet_hours_start", zap.String("value", prefs.QuietStart), zap.Error(err))
		return false
	}
	end, err := timeutil.ParseClock(prefs.QuietEnd)
	if err != nil {
		r.logger.Warn("invalid quiet_hours_end", zap.String("value", prefs.QuietEnd), zap.Error(err))
		return false
	}
	now := timeutil.ClockOf(r.clock.Now().In(r.loc))
	return timeutil.Between(now, start, end)
}
