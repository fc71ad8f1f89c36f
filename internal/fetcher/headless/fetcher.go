// Package headless produces availability snapshots via headless Chrome.
package headless

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
	"github.com/vaibhav7k/amul-stock-alert-bot/internal/hash/sha256"
)

// userAgents is the rotation pool applied to new browser sessions.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
}

// Config controls the behavior of the headless fetcher.
type Config struct {
	CategoryURL string
	NavTimeout  time.Duration
	StepTimeout time.Duration
	UserAgent   string
}

// Fetcher implements alert.SnapshotFetcher using chromedp. A single tab
// session is reused across pincodes within a cycle; the session tracks
// which pincode the storefront currently has selected.
type Fetcher struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	hasher      *sha256.Hasher
	logger      *zap.Logger

	mu   sync.Mutex
	sess *session
}

type session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	pincode string // pincode the live page currently serves, "" when unknown
}

// New creates a headless fetcher backed by chromedp.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.CategoryURL == "" {
		return nil, fmt.Errorf("category url is required")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		hasher:      sha256.New(),
		logger:      logger,
	}, nil
}

// Close tears down the session and the allocator.
func (f *Fetcher) Close() {
	f.mu.Lock()
	if f.sess != nil {
		f.sess.cancel()
		f.sess = nil
	}
	f.mu.Unlock()
	f.allocCancel()
}

// Restart discards the current browser session so the next Fetch starts
// from a fresh tab. Called by the scheduler after ErrNeedsRestart.
func (f *Fetcher) Restart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess != nil {
		f.sess.cancel()
		f.sess = nil
	}
}

// Fetch returns the availability snapshot for one pincode. The returned
// Snapshot.Pincode is the pincode the page actually served; a mismatch
// with the request means the pincode change degraded and the caller
// should skip detection for this pincode.
func (f *Fetcher) Fetch(ctx context.Context, pincode string) (alert.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess, err := f.ensureSession()
	if err != nil {
		return alert.Snapshot{}, fmt.Errorf("%w: %v", alert.ErrNeedsRestart, err)
	}

	if err := f.probe(sess); err != nil {
		return alert.Snapshot{}, fmt.Errorf("%w: health probe: %v", alert.ErrNeedsRestart, err)
	}

	if err := f.ensureCategoryPage(ctx, sess); err != nil {
		return alert.Snapshot{}, fmt.Errorf("%w: navigate: %v", alert.ErrNeedsRestart, err)
	}

	if pincode != sess.pincode {
		sess.pincode = f.changePincode(sess, pincode)
		if sess.pincode != pincode {
			f.logger.Warn("pincode change degraded, skipping scrape",
				zap.String("wanted", pincode),
				zap.String("got", sess.pincode),
			)
			return alert.Snapshot{Pincode: sess.pincode, FetchedAt: time.Now()}, nil
		}
	}

	products, err := f.scrapeGrid(sess, pincode)
	if err != nil {
		return alert.Snapshot{}, err
	}
	return alert.Snapshot{
		Pincode:   sess.pincode,
		Products:  products,
		FetchedAt: time.Now(),
	}, nil
}

func (f *Fetcher) ensureSession() (*session, error) {
	if f.sess != nil {
		return f.sess, nil
	}
	tabCtx, tabCancel := chromedp.NewContext(f.allocator)

	ua := f.cfg.UserAgent
	if ua == "" {
		ua = userAgents[rand.Intn(len(userAgents))]
	}
	startCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(ua).Do(ctx)
		}),
	); err != nil {
		tabCancel()
		return nil, fmt.Errorf("start browser tab: %w", err)
	}

	f.sess = &session{ctx: tabCtx, cancel: tabCancel}
	f.logger.Info("browser session started", zap.String("user_agent", ua))
	return f.sess, nil
}

// probe evaluates document.readyState with a short deadline. An
// unresponsive tab short-circuits the fetch with a restart signal.
func (f *Fetcher) probe(sess *session) error {
	probeCtx, cancel := context.WithTimeout(sess.ctx, 5*time.Second)
	defer cancel()
	var state string
	if err := chromedp.Run(probeCtx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return err
	}
	return nil
}

func (f *Fetcher) ensureCategoryPage(ctx context.Context, sess *session) error {
	stepCtx, cancel := context.WithTimeout(sess.ctx, f.cfg.NavTimeout)
	defer cancel()

	var location string
	if err := chromedp.Run(stepCtx, chromedp.Location(&location)); err != nil {
		return fmt.Errorf("read location: %w", err)
	}
	if strings.HasPrefix(location, f.cfg.CategoryURL) {
		return nil
	}

	f.logger.Info("navigating to category page", zap.String("url", f.cfg.CategoryURL))
	if err := chromedp.Run(stepCtx,
		chromedp.Navigate(f.cfg.CategoryURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(3*time.Second), // initial hydration
	); err != nil {
		return fmt.Errorf("navigate category page: %w", err)
	}
	return nil
}

// changePincode runs the location-selector sub-protocol: open the modal,
// inject the pincode, select the matching suggestion, wait for refresh.
// On failure it refreshes the page and returns the prior pincode so the
// caller can skip this pincode without killing the session.
func (f *Fetcher) changePincode(sess *session, pincode string) string {
	prior := sess.pincode
	f.logger.Info("changing pincode",
		zap.String("from", prior),
		zap.String("to", pincode),
	)

	if err := f.openLocationModal(sess); err != nil {
		f.logger.Error("pincode change: modal did not open", zap.Error(err))
		f.recoverPage(sess)
		return prior
	}
	if err := f.injectPincode(sess, pincode); err != nil {
		f.logger.Error("pincode change: input injection failed", zap.Error(err))
		f.recoverPage(sess)
		return prior
	}
	if err := f.selectSuggestion(sess, pincode); err != nil {
		// Suggestion not found usually means the pincode is unserviceable.
		f.logger.Error("pincode change: suggestion not found",
			zap.String("pincode", pincode),
			zap.Error(err),
		)
		f.recoverPage(sess)
		return prior
	}
	f.awaitModalClose(sess)

	f.logger.Info("pincode changed", zap.String("pincode", pincode))
	return pincode
}

func (f *Fetcher) openLocationModal(sess *session) error {
	// The modal may already be open from a prior degraded attempt.
	checkCtx, cancel := context.WithTimeout(sess.ctx, 3*time.Second)
	err := chromedp.Run(checkCtx, chromedp.WaitVisible("#locationWidgetModal", chromedp.ByID))
	cancel()
	if err == nil {
		return nil
	}

	stepCtx, cancel := context.WithTimeout(sess.ctx, f.cfg.StepTimeout)
	defer cancel()
	return chromedp.Run(stepCtx,
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Evaluate(`document.querySelector(".location_pin_wrap").click()`, nil),
		chromedp.WaitVisible("#locationWidgetModal", chromedp.ByID),
		chromedp.Sleep(time.Second), // animation buffer
	)
}

func (f *Fetcher) injectPincode(sess *session, pincode string) error {
	stepCtx, cancel := context.WithTimeout(sess.ctx, f.cfg.StepTimeout)
	defer cancel()
	// Value injection plus synthetic input/change events so the page's
	// framework picks the change up and loads suggestions.
	script := fmt.Sprintf(`(() => {
		const input = document.querySelector("#locationWidgetModal input");
		if (!input) { return false; }
		input.value = %q;
		input.dispatchEvent(new Event("input", { bubbles: true }));
		input.dispatchEvent(new Event("change", { bubbles: true }));
		return true;
	})()`, pincode)
	var ok bool
	if err := chromedp.Run(stepCtx,
		chromedp.WaitVisible("#locationWidgetModal input", chromedp.ByQuery),
		chromedp.Evaluate(script, &ok),
		chromedp.Sleep(2*time.Second), // wait for suggestion fetch
	); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pincode input not found in modal")
	}
	return nil
}

func (f *Fetcher) selectSuggestion(sess *session, pincode string) error {
	stepCtx, cancel := context.WithTimeout(sess.ctx, f.cfg.StepTimeout)
	defer cancel()
	suggestionXPath := fmt.Sprintf(
		`//p[contains(@class, "item-name") and contains(text(), "%s")]`, pincode)
	return chromedp.Run(stepCtx,
		chromedp.WaitVisible(suggestionXPath, chromedp.BySearch),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Click(suggestionXPath, chromedp.BySearch),
	)
}

func (f *Fetcher) awaitModalClose(sess *session) {
	stepCtx, cancel := context.WithTimeout(sess.ctx, f.cfg.StepTimeout)
	defer cancel()
	// A timeout here is fine as long as the page reloads underneath.
	if err := chromedp.Run(stepCtx,
		chromedp.WaitNotVisible("#locationWidgetModal", chromedp.ByID),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		f.logger.Debug("location modal did not report closing", zap.Error(err))
	}
}

// recoverPage refreshes the page to clear stuck overlays after a failed
// pincode change.
func (f *Fetcher) recoverPage(sess *session) {
	stepCtx, cancel := context.WithTimeout(sess.ctx, f.cfg.NavTimeout)
	defer cancel()
	if err := chromedp.Run(stepCtx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		f.logger.Warn("page recovery reload failed", zap.Error(err))
	}
}

func (f *Fetcher) scrapeGrid(sess *session, pincode string) ([]alert.ProductAvailability, error) {
	waitCtx, cancel := context.WithTimeout(sess.ctx, f.cfg.StepTimeout)
	err := chromedp.Run(waitCtx,
		chromedp.WaitReady("div.product-grid-body", chromedp.ByQuery),
		chromedp.WaitReady(".product-grid-price", chromedp.ByQuery),
	)
	cancel()
	if err != nil {
		// An empty grid is a valid (if suspicious) result, not a failure.
		f.logger.Warn("no product grid found", zap.String("pincode", pincode), zap.Error(err))
		return nil, nil
	}

	stepCtx, cancel := context.WithTimeout(sess.ctx, f.cfg.StepTimeout)
	defer cancel()
	var html string
	if err := chromedp.Run(stepCtx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("%w: read page html: %v", alert.ErrNeedsRestart, err)
	}

	products, err := ParseGrid(html)
	if err != nil {
		return nil, fmt.Errorf("parse grid: %w", err)
	}
	f.logger.Info("grid scraped",
		zap.String("pincode", pincode),
		zap.Int("products", len(products)),
		zap.String("page_hash", f.hasher.Hash([]byte(html))),
	)
	return products, nil
}
