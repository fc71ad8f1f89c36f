// Package scheduler drives the fetch -> detect -> route polling loop.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/metrics"
)

// Config controls cycle cadence and maintenance intervals.
type Config struct {
	CheckInterval        time.Duration
	JitterMin            time.Duration
	JitterMax            time.Duration
	CacheRetention       time.Duration
	ExpirySweepInterval  time.Duration
	PoolCheckInterval    time.Duration
	PauseResumeInterval  time.Duration
	HourlyDigestInterval time.Duration
	ProbeURL             string
}

// normalize substitutes safe defaults for invalid interval values. The
// loop must never crash over a bad config knob, so these are warnings.
func (c *Config) normalize(logger *zap.Logger) {
	fix := func(name string, d *time.Duration, def time.Duration) {
		if *d <= 0 {
			logger.Warn("invalid interval, using default",
				zap.String("setting", name),
				zap.Duration("default", def),
			)
			*d = def
		}
	}
	fix("check_interval", &c.CheckInterval, 5*time.Minute)
	fix("cache_retention", &c.CacheRetention, 14*24*time.Hour)
	fix("expiry_sweep_interval", &c.ExpirySweepInterval, 24*time.Hour)
	fix("pool_check_interval", &c.PoolCheckInterval, 5*time.Minute)
	fix("pause_resume_interval", &c.PauseResumeInterval, 24*time.Hour)
	fix("hourly_digest_interval", &c.HourlyDigestInterval, time.Hour)
	if c.JitterMin <= 0 {
		c.JitterMin = 2 * time.Second
	}
	if c.JitterMax < c.JitterMin {
		logger.Warn("jitter_max below jitter_min, clamping",
			zap.Duration("jitter_min", c.JitterMin),
		)
		c.JitterMax = c.JitterMin
	}
}

// SessionManager lets the scheduler discard a broken browser session.
type SessionManager interface {
	Restart()
}

// PoolValidator checks (and if needed reinitializes) the store pool.
type PoolValidator interface {
	Validate(ctx context.Context) (bool, error)
}

// Prober checks storefront reachability before a cycle is spent.
type Prober interface {
	Check(ctx context.Context, url string) error
}

// DigestFlusher is the digest dispatcher surface the side tasks drive.
type DigestFlusher interface {
	FlushHourly(ctx context.Context) error
	MaybeFlushDaily(ctx context.Context) error
}

// ChangeListener receives change sets as they are detected. Used by the
// bot-command layer for its own bookkeeping.
type ChangeListener func(pincode string, cs alert.ChangeSet)

// Scheduler owns the main polling cycle and its side tasks.
type Scheduler struct {
	cfg        Config
	fetcher    alert.SnapshotFetcher
	sessions   SessionManager
	detector   alert.Detector
	router     alert.Router
	recipients alert.RecipientSource
	cache      alert.StatusCache
	digests    DigestFlusher
	pool       PoolValidator
	prober     Prober
	clock      alert.Clock
	logger     *zap.Logger
	onChange   ChangeListener

	cycleMu sync.Mutex
	rng     *rand.Rand
	rngMu   sync.Mutex
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithChangeListener registers a callback invoked for every change set.
func WithChangeListener(fn ChangeListener) Option {
	return func(s *Scheduler) { s.onChange = fn }
}

// WithProber enables the pre-cycle storefront reachability check.
func WithProber(p Prober) Option {
	return func(s *Scheduler) { s.prober = p }
}

// New constructs a Scheduler.
func New(
	cfg Config,
	fetcher alert.SnapshotFetcher,
	sessions SessionManager,
	det alert.Detector,
	rtr alert.Router,
	recipients alert.RecipientSource,
	cache alert.StatusCache,
	digests DigestFlusher,
	pool PoolValidator,
	clock alert.Clock,
	logger *zap.Logger,
	opts ...Option,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.normalize(logger)
	s := &Scheduler{
		cfg:        cfg,
		fetcher:    fetcher,
		sessions:   sessions,
		detector:   det,
		router:     rtr,
		recipients: recipients,
		cache:      cache,
		digests:    digests,
		pool:       pool,
		clock:      clock,
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks, executing cycles and side tasks until the context is
// cancelled, then waits for every side task to terminate. The caller
// must keep the store pool open until Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	tasks := newTaskGroup(s.logger)
	tasks.Go(ctx, "expiry-sweep", s.cfg.ExpirySweepInterval, true, s.sweepExpiry)
	tasks.Go(ctx, "pause-resume", s.cfg.PauseResumeInterval, true, s.resumePauses)
	tasks.Go(ctx, "pool-health", s.cfg.PoolCheckInterval, false, s.checkPool)
	if s.digests != nil {
		tasks.Go(ctx, "hourly-digest", s.cfg.HourlyDigestInterval, false, s.digests.FlushHourly)
		tasks.Go(ctx, "daily-digest", time.Minute, false, s.digests.MaybeFlushDaily)
	}

	for {
		s.RunCycle(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, waiting for side tasks")
			tasks.Wait()
			return
		case <-time.After(s.cfg.CheckInterval):
		}
	}
}

// RunCycle executes one full fetch/detect/route sweep over all active
// pincodes. Overlapping invocations are skipped, never queued: racing
// diff computations would produce duplicate alerts.
func (s *Scheduler) RunCycle(ctx context.Context) {
	if !s.cycleMu.TryLock() {
		s.logger.Warn("cycle still running, skipping overlapping trigger")
		return
	}
	defer s.cycleMu.Unlock()

	cycleID := uuid.NewString()
	start := s.clock.Now()
	logger := s.logger.With(zap.String("cycle_id", cycleID))

	byPincode, err := s.recipients.ActiveByPincode(ctx)
	if err != nil {
		logger.Error("load active recipients failed", zap.Error(err))
		return
	}
	if len(byPincode) == 0 {
		logger.Info("no active subscribers, skipping cycle")
		return
	}

	if s.prober != nil && s.cfg.ProbeURL != "" {
		if err := s.prober.Check(ctx, s.cfg.ProbeURL); err != nil {
			logger.Warn("storefront unreachable, skipping cycle", zap.Error(err))
			return
		}
	}

	pincodes := make([]string, 0, len(byPincode))
	for pincode := range byPincode {
		pincodes = append(pincodes, pincode)
	}
	sort.Strings(pincodes)

	for i, pincode := range pincodes {
		if ctx.Err() != nil {
			return
		}
		s.checkPincode(ctx, logger, pincode, byPincode[pincode])

		if i < len(pincodes)-1 {
			select {
			case <-time.After(s.jitter()):
			case <-ctx.Done():
				return
			}
		}
	}

	s.evictCache(ctx, logger)
	metrics.ObserveCycle(s.clock.Now().Sub(start))
	logger.Info("cycle complete",
		zap.Int("pincodes", len(pincodes)),
		zap.Duration("duration", s.clock.Now().Sub(start)),
	)
}

func (s *Scheduler) checkPincode(ctx context.Context, logger *zap.Logger, pincode string, chatIDs []int64) {
	logger = logger.With(zap.String("pincode", pincode))

	snap, err := s.fetcher.Fetch(ctx, pincode)
	switch {
	case errors.Is(err, alert.ErrNeedsRestart):
		logger.Warn("session fatal, restarting browser", zap.Error(err))
		s.sessions.Restart()
		metrics.ObserveSnapshot("restart")
		metrics.ObserveSessionRestart()
		return
	case err != nil:
		logger.Error("snapshot fetch failed", zap.Error(err))
		metrics.ObserveSnapshot("error")
		return
	case snap.Pincode != pincode:
		// Degraded pincode change: retried next cycle.
		metrics.ObserveSnapshot("mismatch")
		return
	}
	metrics.ObserveSnapshot("ok")

	cs, err := s.detector.Detect(ctx, snap)
	if err != nil {
		logger.Error("change detection failed", zap.Error(err))
		return
	}
	metrics.SetProductsObserved(pincode, string(alert.StateInStock), len(cs.InStock))
	metrics.SetProductsObserved(pincode, string(alert.StateSoldOut), len(cs.SoldOut))

	if !cs.Changed {
		logger.Debug("no changes detected")
		return
	}
	metrics.ObserveChange(pincode)
	if s.onChange != nil {
		s.onChange(pincode, cs)
	}
	logger.Info("changes detected, routing alerts",
		zap.Int("recipients", len(chatIDs)),
		zap.Int("in_stock", len(cs.InStock)),
		zap.Int("sold_out", len(cs.SoldOut)),
	)
	if err := s.router.Route(ctx, chatIDs, pincode, cs); err != nil {
		logger.Warn("routing incomplete", zap.Error(err))
	}
}

func (s *Scheduler) evictCache(ctx context.Context, logger *zap.Logger) {
	evicted, err := s.cache.EvictOlderThan(ctx, s.cfg.CacheRetention)
	if err != nil {
		// Maintenance only: never fatal.
		logger.Warn("cache eviction failed", zap.Error(err))
		return
	}
	if evicted > 0 {
		metrics.ObserveEvictions(evicted)
		logger.Info("cache evicted stale rows", zap.Int64("rows", evicted))
	}
}

// PincodeCached reports whether a pincode already has scrape history.
// The onboarding flow uses it to show immediate feedback.
func (s *Scheduler) PincodeCached(ctx context.Context, pincode string) (bool, error) {
	return s.cache.HasAny(ctx, pincode)
}

func (s *Scheduler) sweepExpiry(ctx context.Context) error {
	expired, err := s.recipients.ExpireSubscriptions(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.logger.Info("subscriptions expired", zap.Int64("count", expired))
	}
	return nil
}

func (s *Scheduler) resumePauses(ctx context.Context) error {
	resumed, err := s.recipients.ResumeDuePauses(ctx)
	if err != nil {
		return err
	}
	if resumed > 0 {
		s.logger.Info("paused subscriptions resumed", zap.Int64("count", resumed))
	}
	return nil
}

func (s *Scheduler) checkPool(ctx context.Context) error {
	healthy, err := s.pool.Validate(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		s.logger.Warn("store pool was unhealthy and has been reinitialized")
	}
	return nil
}

func (s *Scheduler) jitter() time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	span := s.cfg.JitterMax - s.cfg.JitterMin
	if span <= 0 {
		return s.cfg.JitterMin
	}
	return s.cfg.JitterMin + time.Duration(s.rng.Int63n(int64(span)))
}
