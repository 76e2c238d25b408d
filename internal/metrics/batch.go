package metrics

import (
	"log/slog"
	"time"

	"github.com/halc8312/esp/internal/models"
)

const (
	LowYieldThreshold = 0.5
	DegradedThreshold = 0.5
)

// Report summarises one batch of scrape or patrol attempts.
type Report struct {
	Mode          string        `json:"mode"`
	Attempted     int           `json:"attempted"`
	Succeeded     int           `json:"succeeded"`
	SuccessRate   float64       `json:"success_rate"`
	MissingTitle  int           `json:"missing_title"`
	MissingPrice  int           `json:"missing_price"`
	MissingImages int           `json:"missing_images"`
	LowYield      bool          `json:"low_yield"`
	Degraded      bool          `json:"degraded"`
	Duration      time.Duration `json:"duration_ns"`
}

// Batch accumulates outcomes for one call. It is owned by that call and is
// not safe for concurrent use.
type Batch struct {
	mode    string
	sink    *Metrics
	logger  *slog.Logger
	started time.Time

	report Report
}

func NewBatch(mode string, sink *Metrics, logger *slog.Logger) *Batch {
	return &Batch{
		mode:    mode,
		sink:    sink,
		logger:  logger,
		started: time.Now(),
		report:  Report{Mode: mode},
	}
}

// Record counts a scraped item and publishes the attempt.
func (b *Batch) Record(item models.ScrapedItem) {
	ok := item.Succeeded()
	b.count(ok)
	b.sink.IncAttempt(item.Site, b.mode, ok)
	if item.Title == "" {
		b.report.MissingTitle++
	}
	if item.Price == nil {
		b.report.MissingPrice++
	}
	if len(item.ImageURLs) == 0 {
		b.report.MissingImages++
	}
}

// RecordPatrol counts a patrol result in the report only. The patrol
// fetcher has already published the attempt.
func (b *Batch) RecordPatrol(result models.PatrolResult) {
	b.count(result.Success())
	if result.Price == nil {
		b.report.MissingPrice++
	}
}

func (b *Batch) count(ok bool) {
	b.report.Attempted++
	if ok {
		b.report.Succeeded++
	}
}

// patrolOnly reports whether the batch holds patrol results, which carry no
// images.
func (b *Batch) patrolOnly() bool {
	return b.mode == ModePatrol || b.mode == ModeSweep
}

// Finish computes the report, publishes the ratio and logs a warning when
// the yield is low.
func (b *Batch) Finish() Report {
	r := b.report
	r.Duration = time.Since(b.started)
	if r.Attempted > 0 {
		r.SuccessRate = float64(r.Succeeded) / float64(r.Attempted)
		r.LowYield = r.SuccessRate < LowYieldThreshold
		limit := DegradedThreshold * float64(r.Attempted)
		r.Degraded = float64(r.MissingTitle) > limit ||
			float64(r.MissingPrice) > limit ||
			(!b.patrolOnly() && float64(r.MissingImages) > limit)
	}

	b.sink.ObserveDuration(b.mode, r.Duration)
	if r.Attempted > 0 {
		b.sink.SetBatchSuccess(b.mode, r.SuccessRate)
	}

	if r.LowYield && b.logger != nil {
		b.logger.Warn("low scrape yield",
			"mode", b.mode,
			"success_rate", r.SuccessRate,
			"attempted", r.Attempted,
			"succeeded", r.Succeeded)
	}
	return r
}
