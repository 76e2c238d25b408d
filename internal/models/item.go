package models

import "strings"

// Status is the stock state of a listing.
type Status string

const (
	StatusActive  Status = "active"
	StatusSold    Status = "sold"
	StatusUnknown Status = "unknown"
	StatusError   Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSold, StatusUnknown, StatusError:
		return true
	}
	return false
}

// DefaultVariantName is used when a listing exposes no purchasable options.
const DefaultVariantName = "Default Title"

// Variant is one purchasable option of a scraped listing.
type Variant struct {
	OptionValues []string `json:"option_values"`
	Price        *int     `json:"price,omitempty"`
	StockQty     int      `json:"stock_qty"`
	SKU          string   `json:"sku,omitempty"`
}

// Name joins the option values the way stored variants are keyed.
func (v Variant) Name() string {
	return strings.Join(v.OptionValues, " / ")
}

// ScrapedItem is the full-field result of a single item scrape.
type ScrapedItem struct {
	URL         string    `json:"url"`
	Site        string    `json:"site,omitempty"`
	Title       string    `json:"title"`
	Price       *int      `json:"price"`
	Status      Status    `json:"status"`
	Description string    `json:"description"`
	ImageURLs   []string  `json:"image_urls"`
	Variants    []Variant `json:"variants"`
}

// ErrorItem is returned when the page could not be loaded at all.
func ErrorItem(rawURL string) ScrapedItem {
	return ScrapedItem{
		URL:       NormalizeURL(rawURL),
		Status:    StatusError,
		ImageURLs: []string{},
		Variants:  []Variant{},
	}
}

// Succeeded reports whether the item counts as a successful extraction.
// An empty title is treated as a failure even when the page loaded.
func (i ScrapedItem) Succeeded() bool {
	return i.Title != "" && i.Status != StatusError
}

// DefaultVariant builds the single variant used for listings without options.
func DefaultVariant(price *int, status Status) Variant {
	qty := 0
	if status == StatusActive {
		qty = 1
	}
	return Variant{
		OptionValues: []string{DefaultVariantName},
		Price:        price,
		StockQty:     qty,
	}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
