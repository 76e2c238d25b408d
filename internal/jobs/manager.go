package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/halc8312/esp/internal/database"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/scraper"
)

const listLimit = 100

// Searcher runs one search scrape.
type Searcher interface {
	ScrapeSearch(ctx context.Context, req scraper.SearchRequest) (scraper.SearchResult, error)
}

// Saver merges scraped items into the product store.
type Saver interface {
	SaveScrapedItems(ctx context.Context, ownerID int64, items []models.ScrapedItem) (database.SaveReport, error)
}

type Options struct {
	Headless     bool
	PollInterval time.Duration
	// StaleAfter is how long a job may stay running before the worker
	// assumes its owner died and puts it back in the queue.
	StaleAfter   time.Duration
}

type Manager struct {
	store    Store
	searcher Searcher
	saver    Saver
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

func NewManager(store Store, searcher Searcher, saver Saver, opts Options, logger *slog.Logger) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	return &Manager{
		store:    store,
		searcher: searcher,
		saver:    saver,
		opts:     opts,
		logger:   logger.With("component", "job_manager"),
		now:      time.Now,
	}
}

// CreateJob queues a search scrape. Non-positive limits fall back to the
// search defaults.
func (m *Manager) CreateJob(ctx context.Context, ownerID int64, searchURL string, maxItems, maxScroll int) (*Job, error) {
	if searchURL == "" {
		return nil, fmt.Errorf("%w: search url is required", ErrInvalidJob)
	}
	if maxItems <= 0 {
		maxItems = scraper.DefaultMaxItems
	}
	if maxScroll <= 0 {
		maxScroll = scraper.DefaultMaxScroll
	}

	job := &Job{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		SearchURL: searchURL,
		MaxItems:  maxItems,
		MaxScroll: maxScroll,
		Status:    StatusPending,
		CreatedAt: m.now(),
	}

	if err := m.store.Insert(ctx, job); err != nil {
		return nil, err
	}

	m.logger.Info("job created", "id", job.ID, "search_url", searchURL)
	return job, nil
}

func (m *Manager) GetJob(ctx context.Context, id string) (*Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}
	return m.store.Get(ctx, id)
}

// ListJobs returns the most recent jobs first.
func (m *Manager) ListJobs(ctx context.Context) ([]*Job, error) {
	return m.store.List(ctx, listLimit)
}

// StartWorker processes pending jobs one at a time until ctx is cancelled.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started", "interval", m.opts.PollInterval)
	m.requeueStale(ctx)

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case <-ticker.C:
			for m.processNextJob(ctx) {
				if ctx.Err() != nil {
					break
				}
			}
		}
	}
}

func (m *Manager) requeueStale(ctx context.Context) {
	n, err := m.store.RequeueStale(ctx, m.now().Add(-m.opts.StaleAfter))
	if err != nil {
		m.logger.Error("failed to requeue stale jobs", "error", err)
		return
	}
	if n > 0 {
		m.logger.Warn("requeued interrupted jobs", "count", n)
	}
}

// processNextJob runs one pending job and reports whether one was found.
func (m *Manager) processNextJob(ctx context.Context) bool {
	job, err := m.store.ClaimNext(ctx, m.now())
	if err != nil {
		m.logger.Error("failed to claim job", "error", err)
		return false
	}
	if job == nil {
		return false
	}

	logger := m.logger.With("job_id", job.ID, "search_url", job.SearchURL)
	logger.Info("processing job")

	if err := m.runJob(ctx, job); err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		logger.Error("job failed", "error", err)
	} else {
		job.Status = StatusCompleted
		logger.Info("job completed", "items_found", job.ItemsFound, "items_saved", job.ItemsSaved)
	}

	completed := m.now()
	job.CompletedAt = &completed

	// The job outcome is recorded even when ctx was cancelled mid-run.
	if err := m.store.Finish(context.WithoutCancel(ctx), job); err != nil {
		logger.Error("failed to record job result", "error", err)
	}

	return true
}

var errNoItems = errors.New("no items found")

func (m *Manager) runJob(ctx context.Context, job *Job) error {
	result, err := m.searcher.ScrapeSearch(ctx, scraper.SearchRequest{
		URL:       job.SearchURL,
		MaxItems:  job.MaxItems,
		MaxScroll: job.MaxScroll,
		Headless:  m.opts.Headless,
	})
	if err != nil {
		return err
	}

	job.ItemsFound = len(result.Items)
	if job.ItemsFound == 0 {
		return errNoItems
	}

	report, err := m.saver.SaveScrapedItems(ctx, job.OwnerID, result.Items)
	job.ItemsSaved = report.Saved
	if err != nil {
		return fmt.Errorf("failed to save items: %w", err)
	}

	return nil
}
