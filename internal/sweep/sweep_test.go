package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halc8312/esp/internal/browser/browsertest"
	"github.com/halc8312/esp/internal/metrics"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/patrol"
	"github.com/halc8312/esp/internal/site"
)

type memStore struct {
	mu       sync.Mutex
	products map[int64]*models.TrackedProduct
	touched  []int64
	applied  []int64
	applyErr error
}

func newMemStore(products ...models.TrackedProduct) *memStore {
	s := &memStore{products: make(map[int64]*models.TrackedProduct)}
	for i := range products {
		p := products[i]
		s.products[p.ID] = &p
	}
	return s
}

func (s *memStore) ListStale(_ context.Context, limit int) ([]models.TrackedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TrackedProduct, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ApplyPatrol(_ context.Context, id int64, c models.ProductChanges, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	p := s.products[id]
	if c.Price != nil {
		p.LastPrice = c.Price
	}
	if c.Status != nil {
		p.LastStatus = *c.Status
	}
	for _, vc := range c.Variants {
		for i := range p.Variants {
			if p.Variants[i].ID != vc.VariantID {
				continue
			}
			if vc.StockQty != nil {
				p.Variants[i].StockQty = *vc.StockQty
			}
			if vc.Price != nil {
				p.Variants[i].Price = vc.Price
			}
		}
	}
	p.UpdatedAt = at
	s.applied = append(s.applied, id)
	return nil
}

func (s *memStore) Touch(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id].UpdatedAt = at
	s.touched = append(s.touched, id)
	return nil
}

func (s *memStore) get(id int64) models.TrackedProduct {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.products[id]
}

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func product(id int64, price int, status models.Status) models.TrackedProduct {
	return models.TrackedProduct{
		ID:         id,
		Site:       site.SiteMercari,
		SourceURL:  fmt.Sprintf("https://jp.mercari.com/item/m%d", id),
		LastTitle:  fmt.Sprintf("item %d", id),
		LastPrice:  models.IntPtr(price),
		LastStatus: status,
		Variants: []models.StoredVariant{{
			ID: id * 10, ProductID: id, OptionValues: []string{models.DefaultVariantName},
			Price: models.IntPtr(price), StockQty: 1,
		}},
		UpdatedAt: base.Add(time.Duration(id) * time.Hour),
	}
}

func mercariPage(price int) string {
	return fmt.Sprintf(`<html><body><h1>x</h1><div data-testid="price">¥%d</div>
<button data-testid="checkout-button">購入手続きへ</button></body></html>`, price)
}

func newSweeper(store Store, web *browsertest.Site) (*Sweeper, *browsertest.Provider) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := browsertest.NewProvider(web)
	m := metrics.New()
	fetcher := patrol.New(provider, site.NewRegistry(nil), m, patrol.Options{Headless: true}, logger)
	s := New(store, fetcher, provider, m, Options{Headless: true}, logger)
	return s, provider
}

// Five products: the first two are unreachable, the rest now sell at 1500.
func staleFixture() (*memStore, *browsertest.Site) {
	store := newMemStore(
		product(1, 1000, models.StatusActive),
		product(2, 1000, models.StatusActive),
		product(3, 1000, models.StatusActive),
		product(4, 1000, models.StatusActive),
		product(5, 1000, models.StatusActive),
	)
	web := browsertest.NewSite().
		Fail("https://jp.mercari.com/item/m1", errors.New("net::ERR_TIMED_OUT")).
		Fail("https://jp.mercari.com/item/m2", errors.New("net::ERR_TIMED_OUT"))
	for id := 3; id <= 5; id++ {
		web.Page(fmt.Sprintf("https://jp.mercari.com/item/m%d", id), mercariPage(1500))
	}
	return store, web
}

func TestRunProcessesOldestFirst(t *testing.T) {
	store, web := staleFixture()
	s, provider := newSweeper(store, web)
	now := base.Add(100 * time.Hour)
	s.now = func() time.Time { return now }

	report, err := s.Run(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Changed)

	for id := int64(1); id <= 3; id++ {
		assert.Equal(t, now, store.get(id).UpdatedAt, "product %d", id)
	}
	assert.Equal(t, 1000, *store.get(1).LastPrice)
	assert.Equal(t, 1000, *store.get(2).LastPrice)
	assert.Equal(t, 1500, *store.get(3).LastPrice)

	for id := int64(4); id <= 5; id++ {
		p := store.get(id)
		assert.Equal(t, 1000, *p.LastPrice, "product %d", id)
		assert.Equal(t, base.Add(time.Duration(id)*time.Hour), p.UpdatedAt)
	}

	assert.ElementsMatch(t, []int64{1, 2}, store.touched)
	assert.Equal(t, []int64{3}, store.applied)
	assert.Equal(t, 1, provider.Opened())
	assert.Equal(t, 1, provider.Closed())
}

func sampleCount(t *testing.T, h *prometheus.HistogramVec, mode string) uint64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, h.WithLabelValues(mode).(prometheus.Metric).Write(&out))
	return out.GetHistogram().GetSampleCount()
}

func TestRunCountsEachPatrolOnce(t *testing.T) {
	store, web := staleFixture()
	s, _ := newSweeper(store, web)

	_, err := s.Run(context.Background(), 3)
	require.NoError(t, err)

	m := s.metrics
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScrapeAttempts.WithLabelValues("mercari", metrics.ModePatrol, metrics.OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapeAttempts.WithLabelValues("mercari", metrics.ModePatrol, metrics.OutcomeSuccess)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ScrapeAttempts))

	assert.Equal(t, uint64(3), sampleCount(t, m.ScrapeDuration, metrics.ModePatrol))
	assert.Equal(t, uint64(1), sampleCount(t, m.ScrapeDuration, metrics.ModeSweep))
	assert.InDelta(t, 1.0/3, testutil.ToFloat64(m.BatchSuccess.WithLabelValues(metrics.ModeSweep)), 1e-9)
}

func TestRunUpdatesEverySuccess(t *testing.T) {
	store, web := staleFixture()
	s, _ := newSweeper(store, web)
	now := base.Add(100 * time.Hour)
	s.now = func() time.Time { return now }

	report, err := s.Run(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Processed)

	for id := int64(1); id <= 5; id++ {
		p := store.get(id)
		assert.Equal(t, now, p.UpdatedAt)
		if id <= 2 {
			assert.Equal(t, 1000, *p.LastPrice)
			continue
		}
		assert.Equal(t, 1500, *p.LastPrice)
		assert.Equal(t, 1500, *p.Variants[0].Price)
	}

	// Every product now shares the same timestamp, so the next pass starts from the lowest id.
	next, err := store.ListStale(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next[0].ID)
}

func TestRunKeepsSoldWhenStatusUnobserved(t *testing.T) {
	sold := product(1, 800, models.StatusSold)
	sold.Site = site.SiteRakuma
	sold.SourceURL = "https://item.fril.jp/abc"
	store := newMemStore(sold)
	web := browsertest.NewSite().Page(sold.SourceURL, `<html><body><p>読み込み中</p></body></html>`)

	s, _ := newSweeper(store, web)
	report, err := s.Run(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, report.Changed)
	p := store.get(1)
	assert.Equal(t, models.StatusSold, p.LastStatus)
	assert.Equal(t, 800, *p.LastPrice)
	assert.True(t, p.UpdatedAt.After(base.Add(time.Hour)))
}

func TestRunEmptyStoreOpensNoSession(t *testing.T) {
	s, provider := newSweeper(newMemStore(), browsertest.NewSite())

	report, err := s.Run(context.Background(), 15)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Zero(t, provider.Opened())
}

func TestRunSessionInitFailure(t *testing.T) {
	store, web := staleFixture()
	s, provider := newSweeper(store, web)
	provider.OpenErr = errors.New("browser missing")

	_, err := s.Run(context.Background(), 3)
	require.Error(t, err)
	assert.Empty(t, store.touched)
	assert.Empty(t, store.applied)
}

func TestRunStoreErrorDoesNotAbortBatch(t *testing.T) {
	store, web := staleFixture()
	store.applyErr = errors.New("deadlock detected")
	s, _ := newSweeper(store, web)

	report, err := s.Run(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 3, report.StoreErrors)
	assert.Len(t, store.touched, 2)
}

func TestRunDoesNotOverlap(t *testing.T) {
	store, web := staleFixture()
	s, _ := newSweeper(store, web)

	s.running.Lock()
	_, err := s.Run(context.Background(), 3)
	s.running.Unlock()

	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Empty(t, store.touched)
}

type countingRunner struct {
	mu    sync.Mutex
	calls int
	limit int
}

func (r *countingRunner) Run(_ context.Context, limit int) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.limit = limit
	return Report{}, nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestSchedulerRunsOnStartAndOnTick(t *testing.T) {
	runner := &countingRunner{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := NewScheduler(runner, 20*time.Millisecond, 7, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runner.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 7, runner.limit)
}
