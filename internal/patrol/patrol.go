// Package patrol re-checks price, status and variant stock of known items.
package patrol

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halc8312/esp/internal/browser"
	"github.com/halc8312/esp/internal/extract"
	"github.com/halc8312/esp/internal/metrics"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/site"
)

type Options struct {
	Headless     bool
	ReadyTimeout time.Duration
}

type Fetcher struct {
	provider browser.Provider
	registry *site.Registry
	metrics  *metrics.Metrics
	opts     Options
	logger   *slog.Logger
}

func New(provider browser.Provider, registry *site.Registry, m *metrics.Metrics, opts Options, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		provider: provider,
		registry: registry,
		metrics:  m,
		opts:     opts,
		logger:   logger.With("component", "patrol"),
	}
}

// Provider returns the provider used when no session is shared.
func (f *Fetcher) Provider() browser.Provider {
	return f.provider
}

// Fetch re-checks rawURL. When shared is nil a session is opened and closed
// for this call; otherwise shared is used and left open. Fetch never fails:
// problems are reported through the result's Error field.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, shared browser.Session) models.PatrolResult {
	return f.FetchFor(ctx, "", rawURL, shared)
}

// FetchFor is Fetch with a site name to fall back on when rawURL itself
// does not resolve to a strategy.
func (f *Fetcher) FetchFor(ctx context.Context, siteName, rawURL string, shared browser.Session) (result models.PatrolResult) {
	start := time.Now()
	strategy, err := f.registry.Resolve(rawURL)
	if err != nil && siteName != "" {
		strategy, err = f.registry.ForSite(siteName)
	}
	if err != nil {
		return models.PatrolFailure(rawURL, err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("patrol panicked", "url", rawURL, "panic", r)
			result = models.PatrolFailure(rawURL, fmt.Sprintf("internal error: %v", r))
		}
		f.metrics.IncAttempt(strategy.Site, metrics.ModePatrol, result.Success())
		f.metrics.ObserveDuration(metrics.ModePatrol, time.Since(start))
	}()

	lease, err := browser.Acquire(ctx, f.provider, shared, f.opts.Headless)
	if err != nil {
		f.logger.Error("failed to open browser session", "error", err)
		f.metrics.IncError(browser.ErrorKind(err))
		return models.PatrolFailure(rawURL, err.Error())
	}
	defer func() {
		if err := lease.Release(); err != nil {
			f.logger.Warn("failed to close browser session", "error", err)
		}
	}()

	return f.check(ctx, lease.Session(), strategy, rawURL)
}

func (f *Fetcher) check(ctx context.Context, sess browser.Session, strategy *site.Strategy, rawURL string) models.PatrolResult {
	logger := f.logger.With("site", strategy.Site, "url", rawURL)

	if err := sess.Navigate(ctx, rawURL); err != nil {
		logger.Warn("navigation failed", "error", err)
		f.metrics.IncError(browser.ErrorKind(err))
		return models.PatrolFailure(rawURL, err.Error())
	}
	if strategy.Ready != "" {
		sess.WaitFor(ctx, strategy.Ready, f.opts.ReadyTimeout)
	}

	html, err := sess.Content(ctx)
	if err != nil {
		f.metrics.IncError("other")
		return models.PatrolFailure(rawURL, fmt.Sprintf("failed to read page: %v", err))
	}
	page, err := extract.NewPage(rawURL, html)
	if err != nil {
		f.metrics.IncError("other")
		return models.PatrolFailure(rawURL, err.Error())
	}

	result := strategy.ExtractPatrol(page, logger, f.metrics)
	logger.Debug("patrol checked", "price", result.Price, "status", result.Status, "variants", len(result.Variants))
	return result
}
