// Package probe performs a cheap static reachability check of the
// storefront before a browser session is spent on a cycle.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Prober issues a single static GET against the category URL.
type Prober struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Prober.
func New(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// The same category URL is probed every cycle.
	c.AllowURLRevisit = true
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Prober{cfg: cfg, baseCollector: c}
}

// Check fetches the URL and reports whether the storefront answered
// with a usable status. The rendered grid is not expected in the static
// response; only reachability matters here.
func (p *Prober) Check(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	collector := p.baseCollector.Clone()
	var (
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := collector.Visit(url); err != nil {
		return fmt.Errorf("storefront probe: %w", err)
	}
	collector.Wait()

	if fetchErr != nil {
		return fmt.Errorf("storefront probe: %w", fetchErr)
	}
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("storefront probe: status %d", status)
	}
	return nil
}
