package site

import (
	"net/url"
	"strings"

	"github.com/halc8312/esp/internal/extract"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/selectors"
)

const SiteYahoo = "yahoo"

var yahooItemPaths = [][]string{
	{"props", "pageProps", "sp", "item"},
	{"props", "pageProps", "sp", "product"},
	{"props", "pageProps", "initialState", "item"},
	{"props", "pageProps", "initialState", "product"},
}

// yahooItem locates the item object inside __NEXT_DATA__.
func yahooItem(p *extract.Page) (map[string]any, bool) {
	data := p.NextData()
	for _, path := range yahooItemPaths {
		if v, ok := extract.Lookup(data, path...); ok {
			if m, ok := v.(map[string]any); ok && len(m) > 0 {
				return m, true
			}
		}
	}
	return nil, false
}

func yahooPrice(item map[string]any) (int, bool) {
	for _, key := range []string{"applicablePrice", "price"} {
		if v, ok := extract.LookupInt(item, key); ok && v > 0 {
			return v, true
		}
	}
	return 0, false
}

func YahooShopping(table *selectors.Table) *Strategy {
	o := overrides{table: table, site: SiteYahoo}

	nextTitle := extract.Func("next-data", func(p *extract.Page) (string, bool) {
		item, ok := yahooItem(p)
		if !ok {
			return "", false
		}
		return extract.LookupString(item, "name")
	})
	nextPrice := extract.Func("next-data", func(p *extract.Page) (int, bool) {
		item, ok := yahooItem(p)
		if !ok {
			return 0, false
		}
		return yahooPrice(item)
	})
	nextStatus := extract.Func("next-data", func(p *extract.Page) (models.Status, bool) {
		item, ok := yahooItem(p)
		if !ok {
			return "", false
		}
		stock, ok := item["stock"].(map[string]any)
		if !ok {
			return "", false
		}
		if sold, ok := extract.LookupBool(stock, "isSoldOut"); ok && sold {
			return models.StatusSold, true
		}
		if qty, ok := extract.LookupInt(stock, "quantity"); ok && qty <= 0 {
			return models.StatusSold, true
		}
		return models.StatusActive, true
	})
	cssPrice := o.detail("price", ".elPrice", ".mdItemPrice", ".elItemPrice", "[data-testid='item-price']", ".price")
	soldWords := []string{"在庫切れ", "売り切れ", "販売終了", "在庫がありません"}

	return &Strategy{
		Site:  SiteYahoo,
		Hosts: []string{"store.shopping.yahoo.co.jp", "shopping.yahoo.co.jp"},
		Ready: "h1, .mdItemName, .elName",
		Item: ItemExtractors{
			Title: extract.NewChain("title",
				nextTitle,
				extract.JSONLDString("jsonld", "Product", "name"),
				extract.Text("css", o.detail("title", ".mdItemName", ".elName", "[data-testid='item-name']", "h1.name", "h1.title", "h1")),
			),
			Price: extract.NewChain("price",
				nextPrice,
				extract.JSONLDOfferPrice("jsonld"),
				extract.Price("css", cssPrice),
				extract.TextPrice("yen-suffix", yenSuffixRe),
			),
			Status: extract.NewChain("status",
				nextStatus,
				extract.JSONLDAvailability("jsonld", models.StatusActive, models.StatusSold),
				extract.TextContains("sold-text", soldWords, models.StatusSold),
				activeDefault(),
			),
			Description: extract.NewChain("description",
				extract.Func("next-data", func(p *extract.Page) (string, bool) {
					item, ok := yahooItem(p)
					if !ok {
						return "", false
					}
					for _, key := range []string{"caption", "explanation", "description"} {
						if s, ok := extract.LookupString(item, key); ok {
							return s, true
						}
					}
					return "", false
				}),
				extract.Text("css", o.detail("description", ".mdItemDescription", ".item_exp", ".explanation", "#item-info", ".elItemInfo")),
				extract.Meta("meta", "description"),
			),
			Images: extract.NewChain("images",
				extract.Func("next-data", yahooImages),
				extract.Images("css", o.detail("images", ".mdItemImage img", ".elItemImage img", "ul.elItemImage > li > img", ".libItemImage img", "#item-image img")),
				extract.JSONLDImages("jsonld"),
			),
			Variants: extract.NewChain("variants",
				extract.Func("next-data", func(p *extract.Page) ([]models.Variant, bool) {
					item, ok := yahooItem(p)
					if !ok {
						return nil, false
					}
					vs := yahooVariants(item)
					return vs, len(vs) > 0
				}),
			),
		},
		Patrol: PatrolExtractors{
			Price: extract.NewChain("price",
				nextPrice,
				extract.Price("css", o.patrol("price", ".elPrice", ".mdItemPrice")),
				extract.TextPrice("yen-suffix", yenSuffixRe),
			),
			Status: extract.NewChain("status",
				nextStatus,
				extract.TextContains("sold-text", soldWords, models.StatusSold),
			),
			Variants: extract.NewChain("variants",
				extract.Func("next-data", func(p *extract.Page) ([]models.PatrolVariant, bool) {
					item, ok := yahooItem(p)
					if !ok {
						return nil, false
					}
					var out []models.PatrolVariant
					for _, v := range yahooVariants(item) {
						out = append(out, models.PatrolVariant{Name: v.Name(), StockQty: models.IntPtr(v.StockQty), Price: v.Price})
					}
					return out, len(out) > 0
				}),
			),
		},
		Search: SearchRules{
			Links:  o.search("links", "li.LoopList__item a", ".Item__title a", "a[href*='store.shopping.yahoo.co.jp']"),
			Accept: func(u *url.URL) bool { return strings.HasSuffix(u.Path, ".html") },
			Next:   o.search("next", "a.elNext", "a:contains('次へ')", "a:has-text('次へ')"),
		},
	}
}

// yahooVariants expands the two-axis or one-axis stock tables. Two-axis
// variants are named "first / second".
func yahooVariants(item map[string]any) []models.Variant {
	base, _ := yahooPrice(item)
	price := func(choice any) *int {
		if v, ok := extract.LookupInt(choice, "price"); ok && v > 0 {
			return models.IntPtr(v)
		}
		if base > 0 {
			return models.IntPtr(base)
		}
		return nil
	}
	qty := func(choice any) int {
		v, _ := extract.LookupInt(choice, "stock", "quantity")
		return v
	}

	var out []models.Variant
	if first, ok := extract.LookupSlice(item, "stockTableTwoAxis", "firstOption", "choiceList"); ok {
		for _, c1 := range first {
			name1, ok := extract.LookupString(c1, "choiceName")
			if !ok {
				continue
			}
			second, _ := extract.LookupSlice(c1, "secondOption", "choiceList")
			for _, c2 := range second {
				name2, ok := extract.LookupString(c2, "choiceName")
				if !ok {
					continue
				}
				out = append(out, models.Variant{OptionValues: []string{name1, name2}, Price: price(c2), StockQty: qty(c2)})
			}
		}
		return out
	}

	if first, ok := extract.LookupSlice(item, "stockTableOneAxis", "firstOption", "choiceList"); ok {
		for _, c := range first {
			name, ok := extract.LookupString(c, "choiceName")
			if !ok {
				continue
			}
			out = append(out, models.Variant{OptionValues: []string{name}, Price: price(c), StockQty: qty(c)})
		}
	}
	return out
}

func yahooImages(p *extract.Page) ([]string, bool) {
	item, ok := yahooItem(p)
	if !ok {
		return nil, false
	}
	list, ok := extract.LookupSlice(item, "images", "list")
	if !ok {
		list, ok = extract.LookupSlice(item, "images")
	}
	if !ok {
		return nil, false
	}
	var urls []string
	for _, e := range list {
		if s, ok := e.(string); ok {
			urls = append(urls, p.Absolute(s))
			continue
		}
		for _, key := range []string{"src", "url", "large"} {
			if s, ok := extract.LookupString(e, key); ok {
				urls = append(urls, p.Absolute(s))
				break
			}
		}
	}
	urls = extract.Dedupe(urls)
	return urls, len(urls) > 0
}
