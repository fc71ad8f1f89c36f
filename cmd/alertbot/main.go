// Package main wires together the stock alert service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/api"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/clock/system"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/config"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/detector"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/digest"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/fetcher/headless"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/logging"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/metrics"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/notifier/telegram"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/probe"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/router"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/scheduler"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	clock := system.New()
	loc := cfg.Location()

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMin) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("open store pool: %w", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	statusCache, err := postgres.NewStatusCacheStore(pool, clock)
	if err != nil {
		return fmt.Errorf("build status cache: %w", err)
	}
	pendingStore, err := postgres.NewPendingAlertStore(pool)
	if err != nil {
		return fmt.Errorf("build pending alert store: %w", err)
	}
	recipientStore, err := postgres.NewRecipientStore(pool, clock)
	if err != nil {
		return fmt.Errorf("build recipient store: %w", err)
	}

	sink, err := telegram.New(telegram.Config{
		BotToken:   cfg.Telegram.BotToken,
		APIBaseURL: cfg.Telegram.APIBaseURL,
		Timeout:    time.Duration(cfg.Telegram.TimeoutSeconds) * time.Second,
	}, logger.Named("telegram"))
	if err != nil {
		return fmt.Errorf("build telegram sink: %w", err)
	}

	fetcher, err := headless.New(headless.Config{
		CategoryURL: cfg.Browser.CategoryURL,
		NavTimeout:  time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
		StepTimeout: time.Duration(cfg.Browser.StepTimeoutSec) * time.Second,
		UserAgent:   cfg.Browser.UserAgent,
	}, logger.Named("fetcher"))
	if err != nil {
		return fmt.Errorf("build fetcher: %w", err)
	}
	defer fetcher.Close()

	det := detector.New(statusCache, logger.Named("detector"))
	rtr := router.New(recipientStore, pendingStore, sink, clock, loc, logger.Named("router"))
	digests := digest.New(recipientStore, pendingStore, sink, clock, digest.Config{
		DailyHour:          cfg.Digest.DailyHour,
		DailyWindowMinutes: cfg.Digest.DailyWindowMinutes,
		BatchLimit:         cfg.Digest.BatchLimit,
		Location:           loc,
	}, logger.Named("digest"))

	opts := []scheduler.Option{}
	if cfg.Probe.Enabled {
		prober := probe.New(probe.Config{
			UserAgent: cfg.Browser.UserAgent,
			Timeout:   time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
		})
		opts = append(opts, scheduler.WithProber(prober))
	}

	sched := scheduler.New(
		scheduler.Config{
			CheckInterval:        time.Duration(cfg.Scheduler.CheckIntervalSeconds) * time.Second,
			JitterMin:            time.Duration(cfg.Scheduler.JitterMinSeconds) * time.Second,
			JitterMax:            time.Duration(cfg.Scheduler.JitterMaxSeconds) * time.Second,
			CacheRetention:       time.Duration(cfg.Scheduler.CacheRetentionDays) * 24 * time.Hour,
			ExpirySweepInterval:  time.Duration(cfg.Scheduler.ExpirySweepSeconds) * time.Second,
			PoolCheckInterval:    time.Duration(cfg.Scheduler.PoolCheckSeconds) * time.Second,
			PauseResumeInterval:  time.Duration(cfg.Scheduler.PauseResumeSeconds) * time.Second,
			HourlyDigestInterval: time.Duration(cfg.Digest.HourlyIntervalSeconds) * time.Second,
			ProbeURL:             cfg.Browser.CategoryURL,
		},
		fetcher,
		fetcher,
		det,
		rtr,
		recipientStore,
		statusCache,
		digests,
		pool,
		clock,
		logger.Named("scheduler"),
		opts...,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(pool, sched, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()

	logger.Info("starting scheduler",
		zap.String("category_url", cfg.Browser.CategoryURL),
		zap.String("timezone", cfg.Timezone),
	)
	sched.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
