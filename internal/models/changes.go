package models

// VariantChange is an observed change to one stored variant.
type VariantChange struct {
	VariantID int64  `json:"variant_id"`
	Name      string `json:"name"`
	StockQty  *int   `json:"stock_qty,omitempty"`
	Price     *int   `json:"price,omitempty"`
}

// ProductChanges is what a patrol observed that differs from the stored
// record. Nil fields are left untouched.
type ProductChanges struct {
	Price    *int            `json:"price,omitempty"`
	Status   *Status         `json:"status,omitempty"`
	Variants []VariantChange `json:"variants,omitempty"`

	PreviousPrice  *int   `json:"previous_price,omitempty"`
	PreviousStatus Status `json:"previous_status,omitempty"`
}

func (c ProductChanges) Empty() bool {
	return c.Price == nil && c.Status == nil && len(c.Variants) == 0
}
