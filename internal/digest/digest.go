// Package digest flushes queued pending alerts on hourly/daily cadence.
package digest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/metrics"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/router"
)

// Config tunes digest dispatch.
type Config struct {
	DailyHour          int
	DailyWindowMinutes int
	BatchLimit         int
	Location           *time.Location
}

// Dispatcher renders and sends consolidated digests of unsent pending
// alerts. Rows are marked sent only after a confirmed delivery.
type Dispatcher struct {
	recipients alert.RecipientSource
	pending    alert.PendingAlertStore
	sink       alert.Sink
	clock      alert.Clock
	retry      *alert.ExponentialRetryPolicy
	cfg        Config
	logger     *zap.Logger

	lastDaily time.Time
}

// New constructs a Dispatcher.
func New(
	recipients alert.RecipientSource,
	pending alert.PendingAlertStore,
	sink alert.Sink,
	clock alert.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.DailyHour < 0 || cfg.DailyHour > 23 {
		cfg.DailyHour = 8
	}
	if cfg.DailyWindowMinutes <= 0 {
		cfg.DailyWindowMinutes = 5
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 50
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		recipients: recipients,
		pending:    pending,
		sink:       sink,
		clock:      clock,
		retry:      alert.NewExponentialRetryPolicy(),
		cfg:        cfg,
		logger:     logger,
	}
}

// FlushHourly delivers digests to every hourly-frequency recipient.
func (d *Dispatcher) FlushHourly(ctx context.Context) error {
	return d.flush(ctx, alert.FrequencyHourly, "hourly")
}

// MaybeFlushDaily delivers daily digests when the local time is inside
// the configured window and today's flush has not happened yet. The
// window guard prevents duplicate sends within the same morning.
func (d *Dispatcher) MaybeFlushDaily(ctx context.Context) error {
	now := d.clock.Now().In(d.cfg.Location)
	windowStart := time.Date(now.Year(), now.Month(), now.Day(), d.cfg.DailyHour, 0, 0, 0, d.cfg.Location)
	windowEnd := windowStart.Add(time.Duration(d.cfg.DailyWindowMinutes) * time.Minute)
	if now.Before(windowStart) || !now.Before(windowEnd) {
		return nil
	}
	if sameDay(d.lastDaily.In(d.cfg.Location), now) {
		return nil
	}
	if err := d.flush(ctx, alert.FrequencyDaily, "daily"); err != nil {
		return err
	}
	d.lastDaily = now
	return nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func (d *Dispatcher) flush(ctx context.Context, freq alert.AlertFrequency, cadence string) error {
	chatIDs, err := d.recipients.ByFrequency(ctx, freq)
	if err != nil {
		return fmt.Errorf("list %s recipients: %w", cadence, err)
	}

	var lastErr error
	for _, chatID := range chatIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := d.dispatchOne(ctx, chatID, cadence); err != nil {
			d.logger.Warn("digest dispatch failed",
				zap.Int64("chat_id", chatID),
				zap.String("cadence", cadence),
				zap.Error(err),
			)
			metrics.ObserveDigest(cadence, "error")
			lastErr = err
		}
	}
	return lastErr
}

func (d *Dispatcher) dispatchOne(ctx context.Context, chatID int64, cadence string) error {
	pending, err := d.pending.Unsent(ctx, chatID, d.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("load pending alerts: %w", err)
	}
	if len(pending) == 0 {
		// No empty digests.
		return nil
	}

	msg := router.FormatDigestMessage(pending)
	if err := d.sendWithRetry(ctx, chatID, msg); err != nil {
		metrics.ObserveSendFailure()
		return fmt.Errorf("send digest: %w", err)
	}

	marked, err := d.pending.MarkSent(ctx, chatID)
	if err != nil {
		// The message went out but the rows stayed unsent; the next
		// flush will resend them. Surfacing the error keeps that visible.
		return fmt.Errorf("mark alerts sent: %w", err)
	}
	metrics.ObserveAlertSent(cadence)
	metrics.ObserveDigest(cadence, "sent")
	d.logger.Info("digest delivered",
		zap.Int64("chat_id", chatID),
		zap.String("cadence", cadence),
		zap.Int("alerts", len(pending)),
		zap.Int64("marked_sent", marked),
	)
	return nil
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, chatID int64, msg string) error {
	var err error
	for attempt := 0; attempt < d.retry.MaxAttempts(); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.retry.Backoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = d.sink.Send(ctx, chatID, msg)
		if err == nil {
			return nil
		}
		if !d.retry.ShouldRetry(err, attempt+1) {
			return err
		}
	}
	return err
}
