package database

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halc8312/esp/internal/config"
	"github.com/halc8312/esp/internal/models"
)

func TestChangeEvents(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	p := models.TrackedProduct{
		ID:         42,
		OwnerID:    7,
		Site:       "mercari",
		SourceURL:  "https://jp.mercari.com/item/m1",
		LastPrice:  models.IntPtr(1000),
		LastStatus: models.StatusActive,
	}

	t.Run("price and status", func(t *testing.T) {
		changes := models.ProductChanges{
			Price:  models.IntPtr(800),
			Status: models.StatusPtr(models.StatusSold),
		}

		events, err := changeEvents(p, changes, "stream:test", at)
		require.NoError(t, err)
		require.Len(t, events, 2)

		assert.Equal(t, EventProductPriceChanged, events[0].EventType)
		assert.Equal(t, AggregateProduct, events[0].AggregateType)
		assert.Equal(t, "42", events[0].AggregateID)
		assert.Equal(t, "stream:test", events[0].TargetStream)

		var price PriceChangedPayload
		require.NoError(t, json.Unmarshal(events[0].Payload, &price))
		assert.Equal(t, 1000, *price.PreviousPrice)
		assert.Equal(t, 800, *price.Price)
		assert.True(t, price.ObservedAt.Equal(at))

		assert.Equal(t, EventProductStatusChanged, events[1].EventType)
		var status StatusChangedPayload
		require.NoError(t, json.Unmarshal(events[1].Payload, &status))
		assert.Equal(t, models.StatusActive, status.PreviousStatus)
		assert.Equal(t, models.StatusSold, status.Status)
	})

	t.Run("variant only changes emit nothing", func(t *testing.T) {
		changes := models.ProductChanges{
			Variants: []models.VariantChange{{VariantID: 1, StockQty: models.IntPtr(0)}},
		}

		events, err := changeEvents(p, changes, "stream:test", at)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestNextRetryTime(t *testing.T) {
	now := time.Now()

	tests := []struct {
		retries int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{9, 300 * time.Second},
		{40, 300 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, nextRetryTime(now, tt.retries).Sub(now), "retries=%d", tt.retries)
	}
}

func TestOutboxRepository_InsertAndPending(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)
	aggregateID := uuid.NewString()

	t.Run("insert inside a transaction", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: AggregateProduct,
			AggregateID:   aggregateID,
			EventType:     EventProductPriceChanged,
			Payload:       json.RawMessage(`{"product_id":1,"price":500}`),
		}

		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.Insert(ctx, tx, event)
		})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, DefaultChangeStream, event.TargetStream)

		pending, err := repo.GetPending(ctx, 100)
		require.NoError(t, err)
		assert.True(t, containsEvent(pending, event.ID))
	})

	t.Run("rolled back insert is not visible", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: AggregateProduct,
			AggregateID:   aggregateID,
			EventType:     EventProductStatusChanged,
			Payload:       json.RawMessage(`{}`),
		}

		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			if err := repo.Insert(ctx, tx, event); err != nil {
				return err
			}
			return pgx.ErrTxClosed
		})
		assert.Error(t, err)

		pending, err := repo.GetPending(ctx, 100)
		require.NoError(t, err)
		assert.False(t, containsEvent(pending, event.ID))
	})
}

func TestOutboxRepository_MarkFailedDeadLetter(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)
	event := &OutboxEvent{
		AggregateType: AggregateProduct,
		AggregateID:   uuid.NewString(),
		EventType:     EventProductPriceChanged,
		Payload:       json.RawMessage(`{}`),
	}
	require.NoError(t, repo.Insert(ctx, db.pool, event))

	before, err := repo.Stats(ctx)
	require.NoError(t, err)

	for i := 0; i < MaxRetryCount; i++ {
		require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))
	}

	after, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.DeadLetter+1, after.DeadLetter)
	assert.Equal(t, before.Pending-1, after.Pending)
}

func containsEvent(events []*OutboxEvent, id uuid.UUID) bool {
	for _, e := range events {
		if e.ID == id {
			return true
		}
	}
	return false
}

// setupTestDB connects to TEST_DATABASE_URL and skips when it is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Test database not configured")
	}

	db, err := newFromDSN(context.Background(), dsn, config.DatabaseConfig{MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	return db
}
