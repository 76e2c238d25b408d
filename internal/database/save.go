package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/halc8312/esp/internal/models"
)

// SaveReport summarises one SaveScrapedItems call.
type SaveReport struct {
	Saved   int `json:"saved"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// SaveScrapedItems merges full scrapes into the store, one transaction per
// item. Failed extractions are skipped so they never blank stored fields.
func (s *ProductStore) SaveScrapedItems(ctx context.Context, ownerID int64, items []models.ScrapedItem) (SaveReport, error) {
	var report SaveReport

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if !item.Succeeded() {
			report.Skipped++
			continue
		}

		created, err := s.saveItem(ctx, ownerID, item, time.Now())
		if err != nil {
			report.Failed++
			s.logger.Error("failed to save scraped item", "url", item.URL, "error", err)
			continue
		}

		report.Saved++
		if created {
			report.Created++
		}
	}

	s.logger.Info("saved scraped items",
		"owner_id", ownerID,
		"saved", report.Saved,
		"created", report.Created,
		"skipped", report.Skipped,
		"failed", report.Failed)

	return report, nil
}

func (s *ProductStore) saveItem(ctx context.Context, ownerID int64, item models.ScrapedItem, at time.Time) (bool, error) {
	created := false
	sourceURL := models.NormalizeURL(item.URL)

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		p, err := s.findByURL(ctx, tx, ownerID, sourceURL)
		switch {
		case errors.Is(err, ErrProductNotFound):
			p = &models.TrackedProduct{
				OwnerID:    ownerID,
				Site:       item.Site,
				SourceURL:  sourceURL,
				LastTitle:  item.Title,
				LastPrice:  item.Price,
				LastStatus: item.Status,
			}
			if err := s.create(ctx, tx, p); err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			events, err := changeEvents(*p, representativeChanges(*p, item), s.stream, at)
			if err != nil {
				return err
			}
			for _, event := range events {
				if err := s.outbox.Insert(ctx, tx, event); err != nil {
					return err
				}
			}
		}

		snap := &models.Snapshot{
			ProductID:   p.ID,
			ScrapedAt:   at,
			Title:       item.Title,
			Price:       item.Price,
			Status:      item.Status,
			Description: item.Description,
			ImageURLs:   item.ImageURLs,
		}
		if err := s.appendSnapshot(ctx, tx, snap); err != nil {
			return err
		}

		if err := s.updateRepresentative(ctx, tx, p.ID, item.Title, item.Price, item.Status, at); err != nil {
			return err
		}

		variants := item.Variants
		if len(variants) == 0 {
			variants = []models.Variant{models.DefaultVariant(item.Price, item.Status)}
		}
		for i, v := range variants {
			sv := &models.StoredVariant{
				ProductID:    p.ID,
				OptionValues: v.OptionValues,
				SKU:          v.SKU,
				Price:        v.Price,
				StockQty:     v.StockQty,
				Position:     i + 1,
			}
			if sv.SKU == "" {
				sv.SKU = models.GenerateSKU(p.Site, sourceURL, i)
			}
			if sv.Price == nil {
				sv.Price = item.Price
			}
			if err := s.upsertVariant(ctx, tx, sv); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to save %s: %w", sourceURL, err)
	}

	return created, nil
}

// representativeChanges reports the price and status differences between a
// stored product and a fresh full scrape.
func representativeChanges(p models.TrackedProduct, item models.ScrapedItem) models.ProductChanges {
	var changes models.ProductChanges
	if item.Price != nil && (p.LastPrice == nil || *p.LastPrice != *item.Price) {
		changes.Price = item.Price
		changes.PreviousPrice = p.LastPrice
	}
	if item.Status != "" && item.Status != p.LastStatus {
		changes.Status = models.StatusPtr(item.Status)
		changes.PreviousStatus = p.LastStatus
	}
	return changes
}
