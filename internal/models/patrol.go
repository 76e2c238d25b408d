package models

import "encoding/json"

// PatrolVariant is the per-variant stock reported by a patrol fetch.
// Nil fields mean "not observed".
type PatrolVariant struct {
	Name     string `json:"name"`
	StockQty *int   `json:"stock_qty,omitempty"`
	Price    *int   `json:"price,omitempty"`
}

// PatrolResult is the reduced-field result of a patrol fetch. A nil field
// means unchanged, never zero.
type PatrolResult struct {
	URL      string          `json:"url"`
	Price    *int            `json:"price,omitempty"`
	Status   *Status         `json:"status,omitempty"`
	Variants []PatrolVariant `json:"variants,omitempty"`
	Error    *string         `json:"error,omitempty"`
}

// PatrolFailure builds a failed result carrying msg.
func PatrolFailure(rawURL, msg string) PatrolResult {
	return PatrolResult{URL: NormalizeURL(rawURL), Error: &msg}
}

func (r PatrolResult) Success() bool {
	return r.Error == nil
}

func (r PatrolResult) MarshalJSON() ([]byte, error) {
	type alias PatrolResult
	return json.Marshal(struct {
		alias
		Success bool `json:"success"`
	}{alias(r), r.Success()})
}

// StatusPtr returns a pointer to s.
func StatusPtr(s Status) *Status {
	return &s
}
