package database

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halc8312/esp/internal/models"
)

func TestSplitOptions(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want [3]string
	}{
		{"none", nil, [3]string{}},
		{"one", []string{"Default Title"}, [3]string{"Default Title", "", ""}},
		{"three", []string{"a", "b", "c"}, [3]string{"a", "b", "c"}},
		{"folds extras", []string{"a", "b", "c", "d"}, [3]string{"a", "b", "c / d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitOptions(tt.in))
		})
	}

	assert.Equal(t, []string{"a", "b"}, joinOptions("a", "b", ""))
}

func TestRepresentativeChanges(t *testing.T) {
	stored := models.TrackedProduct{LastPrice: models.IntPtr(1000), LastStatus: models.StatusActive}

	t.Run("missing price keeps stored", func(t *testing.T) {
		c := representativeChanges(stored, models.ScrapedItem{Title: "t", Status: models.StatusActive})
		assert.True(t, c.Empty())
	})

	t.Run("price and status differ", func(t *testing.T) {
		c := representativeChanges(stored, models.ScrapedItem{
			Title:  "t",
			Price:  models.IntPtr(900),
			Status: models.StatusSold,
		})
		require.NotNil(t, c.Price)
		assert.Equal(t, 900, *c.Price)
		assert.Equal(t, 1000, *c.PreviousPrice)
		require.NotNil(t, c.Status)
		assert.Equal(t, models.StatusSold, *c.Status)
	})
}

func TestProductStore_SaveAndPatrol(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	store := NewProductStore(db, "", slog.Default())
	owner := time.Now().UnixNano()
	url := "https://jp.mercari.com/item/m" + uuid.NewString()

	items := []models.ScrapedItem{
		{
			URL:       url + "?ref=search",
			Site:      "mercari",
			Title:     "ニット",
			Price:     models.IntPtr(1200),
			Status:    models.StatusActive,
			ImageURLs: []string{"https://static.mercdn.net/a.jpg", "https://static.mercdn.net/b.jpg"},
		},
		models.ErrorItem("https://jp.mercari.com/item/broken"),
	}

	report, err := store.SaveScrapedItems(ctx, owner, items)
	require.NoError(t, err)
	assert.Equal(t, SaveReport{Saved: 1, Created: 1, Skipped: 1}, report)

	p, err := store.FindByURL(ctx, owner, url)
	require.NoError(t, err)
	assert.Equal(t, url, p.SourceURL)
	assert.Equal(t, 1200, *p.LastPrice)

	full, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, full.Variants, 1)
	assert.Equal(t, models.GenerateSKU("mercari", url, 0), full.Variants[0].SKU)
	assert.Equal(t, 1, full.Variants[0].StockQty)

	report, err = store.SaveScrapedItems(ctx, owner, items[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)

	at := time.Now().Add(time.Minute).UTC().Truncate(time.Microsecond)
	changes := models.ProductChanges{
		Status:   models.StatusPtr(models.StatusSold),
		Variants: []models.VariantChange{{VariantID: full.Variants[0].ID, StockQty: models.IntPtr(0)}},
	}
	require.NoError(t, store.ApplyPatrol(ctx, p.ID, changes, at))

	after, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSold, after.LastStatus)
	assert.Equal(t, 1200, *after.LastPrice)
	assert.Equal(t, 0, after.Variants[0].StockQty)
	assert.True(t, after.UpdatedAt.Equal(at))

	assert.ErrorIs(t, store.Touch(ctx, -1, at), ErrProductNotFound)
	_, err = store.FindByURL(ctx, owner, "https://jp.mercari.com/item/none")
	assert.ErrorIs(t, err, ErrProductNotFound)
}
