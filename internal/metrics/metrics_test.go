package metrics

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halc8312/esp/internal/models"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

// families renders every label value of esp_errors_total.
func families(t *testing.T, m *Metrics) []string {
	t.Helper()
	mfs, err := m.Registry.Gather()
	require.NoError(t, err)
	var out []string
	for _, mf := range mfs {
		if mf.GetName() != "esp_errors_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				out = append(out, l.GetValue())
			}
		}
	}
	return out
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncAttempt("mercari", ModeItem, true)
		m.ObserveDuration(ModeItem, time.Second)
		m.IncError("timeout")
		m.IncExtractionMiss("mercari", "price")
		m.IncSweepRecord(OutcomeSuccess)
		m.SetBatchSuccess(ModeItem, 1)
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.IncAttempt("mercari", ModeItem, true)
	m.IncAttempt("mercari", ModeItem, false)
	m.IncAttempt("mercari", ModeItem, false)
	m.IncError("blocked")
	m.IncError("none")
	m.IncExtractionMiss("yahoo", "images")

	assert.Equal(t, 1.0, value(t, m.ScrapeAttempts.WithLabelValues("mercari", ModeItem, OutcomeSuccess)))
	assert.Equal(t, 2.0, value(t, m.ScrapeAttempts.WithLabelValues("mercari", ModeItem, OutcomeFailure)))
	assert.Equal(t, 1.0, value(t, m.ErrorsTotal.WithLabelValues("blocked")))
	assert.NotContains(t, families(t, m), "none")
	assert.Equal(t, 1.0, value(t, m.ExtractionMisses.WithLabelValues("yahoo", "images")))
}

func item(title string, price *int, images ...string) models.ScrapedItem {
	it := models.ScrapedItem{Site: "mercari", Title: title, Price: price, Status: models.StatusActive, ImageURLs: images}
	if title == "" {
		it.Status = models.StatusError
	}
	return it
}

func TestBatchReport(t *testing.T) {
	tests := []struct {
		name         string
		items        []models.ScrapedItem
		wantRate     float64
		wantLowYield bool
		wantDegraded bool
	}{
		{
			name: "healthy",
			items: []models.ScrapedItem{
				item("a", models.IntPtr(100), "https://x/1.jpg"),
				item("b", models.IntPtr(200), "https://x/2.jpg"),
			},
			wantRate: 1,
		},
		{
			name: "half failed is not low yield",
			items: []models.ScrapedItem{
				item("a", models.IntPtr(100), "https://x/1.jpg"),
				item("", nil),
			},
			wantRate: 0.5,
		},
		{
			name: "mostly failed",
			items: []models.ScrapedItem{
				item("a", models.IntPtr(100), "https://x/1.jpg"),
				item("", nil),
				item("", nil),
			},
			wantRate:     1.0 / 3.0,
			wantLowYield: true,
			wantDegraded: true,
		},
		{
			name: "titles but no prices",
			items: []models.ScrapedItem{
				item("a", nil, "https://x/1.jpg"),
				item("b", nil, "https://x/2.jpg"),
				item("c", models.IntPtr(1), "https://x/3.jpg"),
			},
			wantRate:     1,
			wantDegraded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBatch(ModeSearch, New(), nil)
			for _, it := range tt.items {
				b.Record(it)
			}
			r := b.Finish()

			assert.Equal(t, len(tt.items), r.Attempted)
			assert.InDelta(t, tt.wantRate, r.SuccessRate, 1e-9)
			assert.Equal(t, tt.wantLowYield, r.LowYield)
			assert.Equal(t, tt.wantDegraded, r.Degraded)
		})
	}
}

func TestBatchEmpty(t *testing.T) {
	r := NewBatch(ModeSearch, nil, nil).Finish()
	assert.Zero(t, r.Attempted)
	assert.False(t, r.LowYield)
	assert.False(t, r.Degraded)
}

func TestBatchLogsLowYield(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := New()

	b := NewBatch(ModeSweep, m, logger)
	b.RecordPatrol(models.PatrolFailure("https://item.fril.jp/a", "timeout"))
	b.RecordPatrol(models.PatrolFailure("https://item.fril.jp/b", "timeout"))
	r := b.Finish()

	assert.True(t, r.LowYield)
	assert.Contains(t, buf.String(), "low scrape yield")
	assert.Equal(t, 0.0, value(t, m.BatchSuccess.WithLabelValues(ModeSweep)))
}

func TestBatchPatrolLeavesAttemptsToFetcher(t *testing.T) {
	m := New()

	b := NewBatch(ModeSweep, m, nil)
	b.RecordPatrol(models.PatrolFailure("https://item.fril.jp/a", "timeout"))
	b.RecordPatrol(models.PatrolResult{URL: "https://item.fril.jp/b", Price: models.IntPtr(900)})
	r := b.Finish()

	assert.Equal(t, 2, r.Attempted)
	assert.Equal(t, 1, r.Succeeded)
	assert.Zero(t, testutil.CollectAndCount(m.ScrapeAttempts))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ScrapeDuration))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.BatchSuccess.WithLabelValues(ModeSweep)))
}

func TestBatchSearchPublishesAttempts(t *testing.T) {
	m := New()

	b := NewBatch(ModeSearch, m, nil)
	b.Record(item("a", models.IntPtr(100), "https://x/1.jpg"))
	b.Record(models.ErrorItem("https://jp.mercari.com/item/m2"))
	b.Finish()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapeAttempts.WithLabelValues("mercari", ModeSearch, OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapeAttempts.WithLabelValues("", ModeSearch, OutcomeFailure)))
}
