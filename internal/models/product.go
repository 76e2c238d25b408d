package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TrackedProduct is a stored listing revisited by the staleness sweep.
type TrackedProduct struct {
	ID         int64           `json:"id"`
	OwnerID    int64           `json:"owner_id"`
	Site       string          `json:"site"`
	SourceURL  string          `json:"source_url"`
	LastTitle  string          `json:"last_title"`
	LastPrice  *int            `json:"last_price"`
	LastStatus Status          `json:"last_status"`
	Variants   []StoredVariant `json:"variants,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// StoredVariant is a persisted purchasable variant.
type StoredVariant struct {
	ID           int64    `json:"id"`
	ProductID    int64    `json:"product_id"`
	OptionValues []string `json:"option_values"`
	SKU          string   `json:"sku"`
	Price        *int     `json:"price"`
	StockQty     int      `json:"stock_qty"`
	Position     int      `json:"position"`
}

func (v StoredVariant) Name() string {
	return strings.Join(v.OptionValues, " / ")
}

// Snapshot is an immutable record of one full scrape.
type Snapshot struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	ScrapedAt   time.Time `json:"scraped_at"`
	Title       string    `json:"title"`
	Price       *int      `json:"price"`
	Status      Status    `json:"status"`
	Description string    `json:"description"`
	ImageURLs   []string  `json:"image_urls"`
}

// NormalizeURL strips the query string and fragment.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// GenerateSKU derives a stable SKU from the site and normalized URL.
// index > 0 disambiguates variants of the same listing.
func GenerateSKU(site, sourceURL string, index int) string {
	sum := md5.Sum([]byte(NormalizeURL(sourceURL)))
	prefix := strings.ToUpper(site)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	if prefix == "" {
		prefix = "ITM"
	}
	sku := prefix + "-" + hex.EncodeToString(sum[:])[:10]
	if index > 0 {
		sku = fmt.Sprintf("%s-%d", sku, index)
	}
	return sku
}
