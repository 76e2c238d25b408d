package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/halc8312/esp/internal/database"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/scraper"
)

type memStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]*Job{}}
}

func (s *memStore) Insert(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) List(_ context.Context, limit int) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*Job{}
	for _, job := range s.jobs {
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ClaimNext(_ context.Context, at time.Time) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *Job
	for _, job := range s.jobs {
		if job.Status == StatusPending && (next == nil || job.CreatedAt.Before(next.CreatedAt)) {
			next = job
		}
	}
	if next == nil {
		return nil, nil
	}
	next.Status = StatusRunning
	next.StartedAt = &at
	cp := *next
	return &cp, nil
}

func (s *memStore) Finish(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) RequeueStale(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if job.Status == StatusRunning && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			job.Status = StatusPending
			job.StartedAt = nil
			n++
		}
	}
	return n, nil
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) ScrapeSearch(ctx context.Context, req scraper.SearchRequest) (scraper.SearchResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(scraper.SearchResult), args.Error(1)
}

type MockSaver struct {
	mock.Mock
}

func (m *MockSaver) SaveScrapedItems(ctx context.Context, ownerID int64, items []models.ScrapedItem) (database.SaveReport, error) {
	args := m.Called(ctx, ownerID, items)
	return args.Get(0).(database.SaveReport), args.Error(1)
}

func newTestManager(store Store, searcher Searcher, saver Saver) *Manager {
	m := NewManager(store, searcher, saver, Options{Headless: true, PollInterval: 20 * time.Millisecond}, slog.Default())
	clock := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return m
}

func items(n int) []models.ScrapedItem {
	out := make([]models.ScrapedItem, n)
	for i := range out {
		out[i] = models.ScrapedItem{URL: "https://jp.mercari.com/item/m" + string(rune('a'+i)), Title: "item", Status: models.StatusActive}
	}
	return out
}

func TestManager_CreateJob(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := newTestManager(store, new(MockSearcher), new(MockSaver))

	job, err := m.CreateJob(ctx, 3, "https://jp.mercari.com/search?keyword=nike", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, scraper.DefaultMaxItems, job.MaxItems)
	assert.Equal(t, scraper.DefaultMaxScroll, job.MaxScroll)

	got, err := m.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.SearchURL, got.SearchURL)

	_, err = m.CreateJob(ctx, 3, "", 5, 1)
	assert.ErrorIs(t, err, ErrInvalidJob)

	_, err = m.GetJob(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrJobNotFound)

	second, err := m.CreateJob(ctx, 3, "https://fril.jp/search/nike", 5, 1)
	require.NoError(t, err)

	list, err := m.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestManager_ProcessNextJob(t *testing.T) {
	ctx := context.Background()

	t.Run("completes and records counts", func(t *testing.T) {
		store := newMemStore()
		searcher := new(MockSearcher)
		saver := new(MockSaver)
		m := newTestManager(store, searcher, saver)

		job, err := m.CreateJob(ctx, 9, "https://jp.mercari.com/search?keyword=a", 3, 2)
		require.NoError(t, err)

		found := items(3)
		searcher.On("ScrapeSearch", mock.Anything, scraper.SearchRequest{
			URL: job.SearchURL, MaxItems: 3, MaxScroll: 2, Headless: true,
		}).Return(scraper.SearchResult{Items: found}, nil)
		saver.On("SaveScrapedItems", mock.Anything, int64(9), found).Return(database.SaveReport{Saved: 2, Failed: 1}, nil)

		assert.True(t, m.processNextJob(ctx))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.Equal(t, 3, got.ItemsFound)
		assert.Equal(t, 2, got.ItemsSaved)
		assert.NotNil(t, got.StartedAt)
		assert.NotNil(t, got.CompletedAt)
		assert.Empty(t, got.Error)

		assert.False(t, m.processNextJob(ctx))
		searcher.AssertExpectations(t)
		saver.AssertExpectations(t)
	})

	t.Run("zero items fails the job", func(t *testing.T) {
		store := newMemStore()
		searcher := new(MockSearcher)
		saver := new(MockSaver)
		m := newTestManager(store, searcher, saver)

		job, err := m.CreateJob(ctx, 1, "https://jp.mercari.com/search?keyword=none", 3, 1)
		require.NoError(t, err)

		searcher.On("ScrapeSearch", mock.Anything, mock.Anything).Return(scraper.SearchResult{}, nil)

		assert.True(t, m.processNextJob(ctx))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Equal(t, "no items found", got.Error)
		saver.AssertNotCalled(t, "SaveScrapedItems", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("search error fails the job", func(t *testing.T) {
		store := newMemStore()
		searcher := new(MockSearcher)
		m := newTestManager(store, searcher, new(MockSaver))

		job, err := m.CreateJob(ctx, 1, "https://example.com/search", 3, 1)
		require.NoError(t, err)

		searcher.On("ScrapeSearch", mock.Anything, mock.Anything).
			Return(scraper.SearchResult{}, errors.New("unsupported site"))

		m.processNextJob(ctx)

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Equal(t, "unsupported site", got.Error)
	})

	t.Run("oldest pending job first", func(t *testing.T) {
		store := newMemStore()
		searcher := new(MockSearcher)
		saver := new(MockSaver)
		m := newTestManager(store, searcher, saver)

		first, err := m.CreateJob(ctx, 1, "https://fril.jp/search/first", 1, 1)
		require.NoError(t, err)
		second, err := m.CreateJob(ctx, 1, "https://fril.jp/search/second", 1, 1)
		require.NoError(t, err)

		searcher.On("ScrapeSearch", mock.Anything, mock.MatchedBy(func(req scraper.SearchRequest) bool {
			return req.URL == first.SearchURL
		})).Return(scraper.SearchResult{Items: items(1)}, nil).Once()
		saver.On("SaveScrapedItems", mock.Anything, int64(1), mock.Anything).Return(database.SaveReport{Saved: 1}, nil)

		m.processNextJob(ctx)

		got, err := store.Get(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
	})
}

func TestManager_StartWorker(t *testing.T) {
	store := newMemStore()
	searcher := new(MockSearcher)
	saver := new(MockSaver)
	m := newTestManager(store, searcher, saver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := m.CreateJob(ctx, 1, "https://fril.jp/search/nike", 1, 1)
	require.NoError(t, err)

	searcher.On("ScrapeSearch", mock.Anything, mock.Anything).Return(scraper.SearchResult{Items: items(1)}, nil)
	saver.On("SaveScrapedItems", mock.Anything, int64(1), mock.Anything).Return(database.SaveReport{Saved: 1}, nil)

	done := make(chan struct{})
	go func() {
		m.StartWorker(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), job.ID)
		return err == nil && got.Status == StatusCompleted
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestManager_StartWorkerRequeuesInterruptedJobs(t *testing.T) {
	store := newMemStore()
	searcher := new(MockSearcher)
	saver := new(MockSaver)
	m := newTestManager(store, searcher, saver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	crashedAt := time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)
	recentAt := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, &Job{
		ID: "4f1c2b9e-0000-4000-8000-000000000001", OwnerID: 1, SearchURL: "https://fril.jp/search/bag",
		MaxItems: 1, MaxScroll: 1, Status: StatusRunning, CreatedAt: crashedAt, StartedAt: &crashedAt,
	}))
	require.NoError(t, store.Insert(ctx, &Job{
		ID: "4f1c2b9e-0000-4000-8000-000000000002", OwnerID: 1, SearchURL: "https://fril.jp/search/hat",
		MaxItems: 1, MaxScroll: 1, Status: StatusRunning, CreatedAt: recentAt, StartedAt: &recentAt,
	}))

	searcher.On("ScrapeSearch", mock.Anything, mock.MatchedBy(func(req scraper.SearchRequest) bool {
		return req.URL == "https://fril.jp/search/bag"
	})).Return(scraper.SearchResult{Items: items(1)}, nil).Once()
	saver.On("SaveScrapedItems", mock.Anything, int64(1), mock.Anything).Return(database.SaveReport{Saved: 1}, nil)

	done := make(chan struct{})
	go func() {
		m.StartWorker(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), "4f1c2b9e-0000-4000-8000-000000000001")
		return err == nil && got.Status == StatusCompleted
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	fresh, err := store.Get(context.Background(), "4f1c2b9e-0000-4000-8000-000000000002")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, fresh.Status)
	searcher.AssertNumberOfCalls(t, "ScrapeSearch", 1)
}
