// Package scraper runs full-field item scrapes and search-result scrapes.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/halc8312/esp/internal/browser"
	"github.com/halc8312/esp/internal/extract"
	"github.com/halc8312/esp/internal/metrics"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/ratelimit"
	"github.com/halc8312/esp/internal/site"
)

type Options struct {
	// ReadyTimeout bounds the wait for a strategy's ready selector.
	ReadyTimeout time.Duration
	// ScrollDelay is the pause after each scroll or page turn on a listing.
	ScrollDelay  time.Duration
}

func DefaultOptions() Options {
	return Options{
		ReadyTimeout: 10 * time.Second,
		ScrollDelay:  2 * time.Second,
	}
}

type Scraper struct {
	provider browser.Provider
	registry *site.Registry
	metrics  *metrics.Metrics
	limiter  ratelimit.Limiter
	opts     Options
	logger   *slog.Logger
}

func New(provider browser.Provider, registry *site.Registry, m *metrics.Metrics, limiter ratelimit.Limiter, opts Options, logger *slog.Logger) *Scraper {
	if limiter == nil {
		limiter = ratelimit.Nop{}
	}
	return &Scraper{
		provider: provider,
		registry: registry,
		metrics:  m,
		limiter:  limiter,
		opts:     opts,
		logger:   logger.With("component", "scraper"),
	}
}

// ScrapeItem extracts one item in its own session. Navigation and extraction
// failures come back as an item with status error; the returned error is
// non-nil only when no session could be opened.
func (s *Scraper) ScrapeItem(ctx context.Context, rawURL string, headless bool) (models.ScrapedItem, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDuration(metrics.ModeItem, time.Since(start)) }()

	strategy, err := s.registry.Resolve(rawURL)
	if err != nil {
		s.logger.Warn("unsupported url", "url", rawURL, "error", err)
		return models.ErrorItem(rawURL), nil
	}

	lease, err := browser.Acquire(ctx, s.provider, nil, headless)
	if err != nil {
		s.logger.Error("failed to open browser session", "error", err)
		s.metrics.IncError(browser.ErrorKind(err))
		return models.ErrorItem(rawURL), err
	}
	defer s.release(lease)

	item := s.scrape(ctx, lease.Session(), strategy, rawURL)
	s.metrics.IncAttempt(strategy.Site, metrics.ModeItem, item.Succeeded())
	return item, nil
}

// scrape loads rawURL in sess and runs the item chains.
func (s *Scraper) scrape(ctx context.Context, sess browser.Session, strategy *site.Strategy, rawURL string) models.ScrapedItem {
	logger := s.logger.With("site", strategy.Site, "url", rawURL)

	if err := sess.Navigate(ctx, rawURL); err != nil {
		logger.Warn("navigation failed", "error", err)
		s.metrics.IncError(browser.ErrorKind(err))
		return models.ErrorItem(rawURL)
	}
	if strategy.Ready != "" && !sess.WaitFor(ctx, strategy.Ready, s.opts.ReadyTimeout) {
		logger.Debug("ready selector not found", "selector", strategy.Ready)
	}

	page, err := snapshot(ctx, sess, rawURL)
	if err != nil {
		logger.Warn("failed to read page", "error", err)
		s.metrics.IncError("other")
		return models.ErrorItem(rawURL)
	}

	item := strategy.ExtractItem(page, logger, s.metrics)
	if item.Title == "" {
		logger.Info("no title extracted")
	}
	return item
}

func (s *Scraper) release(lease *browser.Lease) {
	if err := lease.Release(); err != nil {
		s.logger.Warn("failed to close browser session", "error", err)
	}
}

func snapshot(ctx context.Context, sess browser.Session, pageURL string) (*extract.Page, error) {
	html, err := sess.Content(ctx)
	if err != nil {
		return nil, err
	}
	if html == "" {
		return nil, errors.New("empty document")
	}
	return extract.NewPage(pageURL, html)
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
