package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halc8312/esp/internal/browser"
	"github.com/halc8312/esp/internal/database"
	"github.com/halc8312/esp/internal/jobs"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/scraper"
	"github.com/halc8312/esp/internal/site"
	"github.com/halc8312/esp/internal/sweep"
)

type Scraper interface {
	ScrapeItem(ctx context.Context, rawURL string, headless bool) (models.ScrapedItem, error)
	ScrapeSearch(ctx context.Context, req scraper.SearchRequest) (scraper.SearchResult, error)
}

type Patroller interface {
	Fetch(ctx context.Context, rawURL string, shared browser.Session) models.PatrolResult
}

type SweepRunner interface {
	Run(ctx context.Context, limit int) (sweep.Report, error)
}

type JobManager interface {
	CreateJob(ctx context.Context, ownerID int64, searchURL string, maxItems, maxScroll int) (*jobs.Job, error)
	GetJob(ctx context.Context, id string) (*jobs.Job, error)
	ListJobs(ctx context.Context) ([]*jobs.Job, error)
}

// OutboxStats reports how many change events are still undelivered.
type OutboxStats interface {
	Stats(ctx context.Context) (database.OutboxStats, error)
}

// SelectorReloader re-reads the selector override file.
type SelectorReloader interface {
	Reload() error
	Sites() []string
}

type Options struct {
	DefaultHeadless bool
	SweepLimit      int
	// Selectors is optional; without it the reload route answers 503.
	Selectors       SelectorReloader
}

const (
	outboxPendingWarn   = 1000
	outboxDeadLetterMax = 100
)

type Handlers struct {
	scraper Scraper
	patrol  Patroller
	sweeper SweepRunner
	jobs    JobManager
	outbox  OutboxStats
	opts    Options
	logger  *slog.Logger
}

// NewHandlers wires the HTTP surface. sweeper, jobs and outbox may be nil
// when the server runs without a database.
func NewHandlers(s Scraper, p Patroller, sw SweepRunner, jm JobManager, outbox OutboxStats, opts Options, logger *slog.Logger) *Handlers {
	return &Handlers{
		scraper: s,
		patrol:  p,
		sweeper: sw,
		jobs:    jm,
		outbox:  outbox,
		opts:    opts,
		logger:  logger.With("component", "api"),
	}
}

type ScrapeItemRequest struct {
	URL      string `json:"url"`
	Headless *bool  `json:"headless,omitempty"`
}

func (h *Handlers) ScrapeItem(w http.ResponseWriter, r *http.Request) {
	var req ScrapeItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	item, err := h.scraper.ScrapeItem(r.Context(), req.URL, h.headless(req.Headless))
	if err != nil {
		h.respondScrapeError(w, err)
		return
	}

	if item.Status == models.StatusError {
		h.respondError(w, http.StatusUnprocessableEntity, "no item found")
		return
	}

	h.respondJSON(w, http.StatusOK, item)
}

type ScrapeSearchRequest struct {
	URL       string `json:"url"`
	MaxItems  int    `json:"max_items"`
	MaxScroll int    `json:"max_scroll"`
	Headless  *bool  `json:"headless,omitempty"`
}

func (h *Handlers) ScrapeSearch(w http.ResponseWriter, r *http.Request) {
	var req ScrapeSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := h.scraper.ScrapeSearch(r.Context(), scraper.SearchRequest{
		URL:       req.URL,
		MaxItems:  req.MaxItems,
		MaxScroll: req.MaxScroll,
		Headless:  h.headless(req.Headless),
	})
	if err != nil {
		h.respondScrapeError(w, err)
		return
	}

	if len(result.Items) == 0 {
		h.respondError(w, http.StatusNotFound, "no items found")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

type PatrolRequest struct {
	URL string `json:"url"`
}

func (h *Handlers) Patrol(w http.ResponseWriter, r *http.Request) {
	var req PatrolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	h.respondJSON(w, http.StatusOK, h.patrol.Fetch(r.Context(), req.URL, nil))
}

type SweepRequest struct {
	Limit int `json:"limit"`
}

func (h *Handlers) Sweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		h.respondError(w, http.StatusServiceUnavailable, "sweep not configured")
		return
	}

	var req SweepRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = h.opts.SweepLimit
	}

	report, err := h.sweeper.Run(r.Context(), req.Limit)
	switch {
	case errors.Is(err, sweep.ErrAlreadyRunning):
		h.respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.respondScrapeError(w, err)
	default:
		h.respondJSON(w, http.StatusOK, report)
	}
}

type CreateJobRequest struct {
	OwnerID   int64  `json:"owner_id"`
	URL       string `json:"url"`
	MaxItems  int    `json:"max_items"`
	MaxScroll int    `json:"max_scroll"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "jobs not configured")
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req.OwnerID, req.URL, req.MaxItems, req.MaxScroll)
	if errors.Is(err, jobs.ErrInvalidJob) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, job)
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "jobs not configured")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "jobs not configured")
		return
	}

	list, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) ReloadSelectors(w http.ResponseWriter, r *http.Request) {
	if h.opts.Selectors == nil {
		h.respondError(w, http.StatusServiceUnavailable, "selector overrides not configured")
		return
	}

	if err := h.opts.Selectors.Reload(); err != nil {
		h.logger.Error("failed to reload selector overrides", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to reload selector overrides")
		return
	}

	sites := h.opts.Selectors.Sites()
	h.logger.Info("selector overrides reloaded", "sites", sites)
	h.respondJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "sites": sites})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		stats, err := h.outbox.Stats(r.Context())
		switch {
		case err != nil:
			h.logger.Warn("failed to read outbox stats", "error", err)
			health["status"] = "warning"
			health["message"] = "outbox stats unavailable"
		default:
			health["outbox"] = stats
			if stats.Pending > outboxPendingWarn {
				health["status"] = "warning"
				health["message"] = "high number of pending outbox events"
			}
			if stats.DeadLetter > outboxDeadLetterMax {
				health["status"] = "error"
				health["message"] = "high number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) headless(v *bool) bool {
	if v == nil {
		return h.opts.DefaultHeadless
	}
	return *v
}

func (h *Handlers) respondScrapeError(w http.ResponseWriter, err error) {
	var initErr *browser.SessionInitError
	switch {
	case errors.Is(err, site.ErrUnsupportedSite):
		h.respondError(w, http.StatusBadRequest, "unsupported site")
	case errors.As(err, &initErr):
		h.logger.Error("browser unavailable", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "browser unavailable")
	default:
		h.logger.Error("scrape failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "scrape failed")
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
