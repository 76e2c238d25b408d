package sweep

import "github.com/halc8312/esp/internal/models"

// Diff compares a patrol result against the stored product. Fields the
// patrol did not observe are never part of the change set.
func Diff(p models.TrackedProduct, r models.PatrolResult) models.ProductChanges {
	var c models.ProductChanges
	if !r.Success() {
		return c
	}

	if r.Price != nil && !sameInt(r.Price, p.LastPrice) {
		c.Price = models.IntPtr(*r.Price)
		c.PreviousPrice = p.LastPrice
	}
	if r.Status != nil && *r.Status != p.LastStatus {
		c.Status = models.StatusPtr(*r.Status)
		c.PreviousStatus = p.LastStatus
	}

	byName := make(map[string]models.StoredVariant, len(p.Variants))
	for _, v := range p.Variants {
		byName[v.Name()] = v
	}

	for _, pv := range r.Variants {
		stored, ok := byName[pv.Name]
		if !ok && pv.Name == models.DefaultVariantName && len(p.Variants) == 1 {
			stored, ok = p.Variants[0], true
		}
		if !ok {
			continue
		}

		vc := models.VariantChange{VariantID: stored.ID, Name: stored.Name()}
		if pv.StockQty != nil && *pv.StockQty != stored.StockQty {
			vc.StockQty = models.IntPtr(*pv.StockQty)
		}
		if pv.Price != nil && !sameInt(pv.Price, stored.Price) {
			vc.Price = models.IntPtr(*pv.Price)
		}
		if vc.StockQty != nil || vc.Price != nil {
			c.Variants = append(c.Variants, vc)
		}
	}

	return c
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
