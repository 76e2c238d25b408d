package extract

import "strings"

// JSONLDString yields a string field of the first JSON-LD object of typ.
func JSONLDString(name, typ string, path ...string) Probe[string] {
	return Probe[string]{Name: name, Fn: func(p *Page) (string, bool) {
		for _, obj := range p.JSONLD(typ) {
			if s, ok := LookupString(obj, path...); ok {
				return s, true
			}
		}
		return "", false
	}}
}

// JSONLDOfferPrice yields offers.price of a JSON-LD Product, accepting
// single offers and offer arrays.
func JSONLDOfferPrice(name string) Probe[int] {
	return Probe[int]{Name: name, Fn: func(p *Page) (int, bool) {
		for _, obj := range p.JSONLD("Product") {
			for _, offer := range offers(obj) {
				for _, key := range []string{"price", "lowPrice"} {
					if v, ok := LookupInt(offer, key); ok {
						return v, true
					}
				}
			}
		}
		return 0, false
	}}
}

// JSONLDAvailability maps offers.availability to in-stock/out-of-stock values.
func JSONLDAvailability[T any](name string, inStock, outOfStock T) Probe[T] {
	return Probe[T]{Name: name, Fn: func(p *Page) (T, bool) {
		for _, obj := range p.JSONLD("Product") {
			for _, offer := range offers(obj) {
				a, ok := LookupString(offer, "availability")
				if !ok {
					continue
				}
				switch {
				case strings.Contains(a, "OutOfStock"), strings.Contains(a, "SoldOut"), strings.Contains(a, "Discontinued"):
					return outOfStock, true
				case strings.Contains(a, "InStock"), strings.Contains(a, "LimitedAvailability"), strings.Contains(a, "PreOrder"):
					return inStock, true
				}
			}
		}
		var zero T
		return zero, false
	}}
}

// JSONLDImages yields the image field of a JSON-LD Product.
func JSONLDImages(name string) Probe[[]string] {
	return Probe[[]string]{Name: name, Fn: func(p *Page) ([]string, bool) {
		for _, obj := range p.JSONLD("Product") {
			var urls []string
			switch t := obj["image"].(type) {
			case string:
				urls = append(urls, p.Absolute(t))
			case []any:
				for _, e := range t {
					if s, ok := e.(string); ok {
						urls = append(urls, p.Absolute(s))
					} else if u, ok := LookupString(e, "url"); ok {
						urls = append(urls, p.Absolute(u))
					}
				}
			case map[string]any:
				if u, ok := LookupString(t, "url"); ok {
					urls = append(urls, p.Absolute(u))
				}
			}
			if urls = Dedupe(urls); len(urls) > 0 {
				return urls, true
			}
		}
		return nil, false
	}}
}

// NextDataString yields a string at path inside __NEXT_DATA__.
func NextDataString(name string, path ...string) Probe[string] {
	return Probe[string]{Name: name, Fn: func(p *Page) (string, bool) {
		return LookupString(p.NextData(), path...)
	}}
}

// NextDataInt yields an integer at path inside __NEXT_DATA__.
func NextDataInt(name string, path ...string) Probe[int] {
	return Probe[int]{Name: name, Fn: func(p *Page) (int, bool) {
		return LookupInt(p.NextData(), path...)
	}}
}

func offers(product map[string]any) []any {
	switch t := product["offers"].(type) {
	case map[string]any:
		return []any{t}
	case []any:
		return t
	}
	return nil
}
