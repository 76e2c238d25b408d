// Package sweep revisits the least recently updated tracked products and
// applies what their patrol observed.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/halc8312/esp/internal/browser"
	"github.com/halc8312/esp/internal/metrics"
	"github.com/halc8312/esp/internal/models"
)

var ErrAlreadyRunning = errors.New("sweep already running")

// Store is the record store the sweep reads from and writes to.
type Store interface {
	// ListStale returns up to limit products, oldest updated_at first,
	// ties by id.
	ListStale(ctx context.Context, limit int) ([]models.TrackedProduct, error)
	// ApplyPatrol writes changes and sets updated_at in one transaction.
	ApplyPatrol(ctx context.Context, id int64, changes models.ProductChanges, at time.Time) error
	// Touch only advances updated_at.
	Touch(ctx context.Context, id int64, at time.Time) error
}

// Fetcher is the patrol entrypoint.
type Fetcher interface {
	FetchFor(ctx context.Context, siteName, rawURL string, shared browser.Session) models.PatrolResult
}

type Options struct {
	Headless bool
}

type Report struct {
	Processed   int            `json:"processed"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Changed     int            `json:"changed"`
	StoreErrors int            `json:"store_errors"`
	Batch       metrics.Report `json:"batch"`
}

const (
	outcomeChanged   = "changed"
	outcomeUnchanged = "unchanged"
	outcomeFailed    = "failed"
	outcomeStoreErr  = "store_error"
)

type Sweeper struct {
	store    Store
	fetcher  Fetcher
	provider browser.Provider
	metrics  *metrics.Metrics
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	running sync.Mutex
}

func New(store Store, fetcher Fetcher, provider browser.Provider, m *metrics.Metrics, opts Options, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		fetcher:  fetcher,
		provider: provider,
		metrics:  m,
		opts:     opts,
		logger:   logger.With("component", "sweep"),
		now:      time.Now,
	}
}

// Run patrols up to limit of the stalest products with one shared session.
// Every processed product gets its updated_at advanced, whether the patrol
// succeeded or not. Each product is committed on its own.
func (s *Sweeper) Run(ctx context.Context, limit int) (Report, error) {
	var report Report
	if !s.running.TryLock() {
		return report, ErrAlreadyRunning
	}
	defer s.running.Unlock()

	products, err := s.store.ListStale(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("failed to list stale products: %w", err)
	}
	if len(products) == 0 {
		s.logger.Debug("nothing to sweep")
		return report, nil
	}

	lease, err := browser.Acquire(ctx, s.provider, nil, s.opts.Headless)
	if err != nil {
		s.logger.Error("failed to open browser session", "error", err)
		s.metrics.IncError(browser.ErrorKind(err))
		return report, err
	}
	defer func() {
		if err := lease.Release(); err != nil {
			s.logger.Warn("failed to close browser session", "error", err)
		}
	}()

	batch := metrics.NewBatch(metrics.ModeSweep, s.metrics, s.logger)
	s.logger.Info("sweep started", "products", len(products), "limit", limit)

	for _, p := range products {
		if ctx.Err() != nil {
			break
		}
		report.Processed++

		result := s.fetcher.FetchFor(ctx, p.Site, p.SourceURL, lease.Session())
		batch.RecordPatrol(result)
		at := s.now()
		logger := s.logger.With("product_id", p.ID, "url", p.SourceURL)

		if !result.Success() {
			report.Failed++
			logger.Warn("patrol failed", "error", *result.Error)
			if err := s.store.Touch(ctx, p.ID, at); err != nil {
				report.StoreErrors++
				s.metrics.IncSweepRecord(outcomeStoreErr)
				logger.Error("failed to touch product", "error", err)
				continue
			}
			s.metrics.IncSweepRecord(outcomeFailed)
			continue
		}

		report.Succeeded++
		changes := Diff(p, result)
		if err := s.store.ApplyPatrol(ctx, p.ID, changes, at); err != nil {
			report.StoreErrors++
			s.metrics.IncSweepRecord(outcomeStoreErr)
			logger.Error("failed to apply patrol", "error", err)
			continue
		}

		if changes.Empty() {
			s.metrics.IncSweepRecord(outcomeUnchanged)
			continue
		}
		report.Changed++
		s.metrics.IncSweepRecord(outcomeChanged)
		logger.Info("product changed",
			"price", changes.Price,
			"status", changes.Status,
			"variants", len(changes.Variants))
	}

	report.Batch = batch.Finish()
	s.logger.Info("sweep finished",
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"changed", report.Changed,
		"duration", report.Batch.Duration)
	return report, nil
}
