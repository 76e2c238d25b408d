package site

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/halc8312/esp/internal/extract"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/selectors"
)

const SiteMercari = "mercari"

var mercariHosts = []string{"jp.mercari.com", "mercari.com", "mercari-shops.com"}

var mercariDescriptionEnds = []string{"商品の情報", "商品情報", "商品の特徴", "出品者", "コメント ("}

// Mercari returns the item strategy and the shops product strategy.
func Mercari(table *selectors.Table) []*Strategy {
	return []*Strategy{mercariItem(table), mercariShops(table), mercariShopsLegacy(table)}
}

func mercariItem(table *selectors.Table) *Strategy {
	o := overrides{table: table, site: SiteMercari}

	return &Strategy{
		Site:       SiteMercari,
		Hosts:      mercariHosts,
		PathPrefix: "",
		Ready:      "h1",
		Item: ItemExtractors{
			Title: extract.NewChain("title",
				extract.JSONLDString("jsonld", "Product", "name"),
				extract.Text("css", o.detail("title", "[data-testid='name'] h1", "h1")),
				titleFromMeta("meta", "- メルカリ", "by メルカリ"),
			),
			Price: mercariPrice(o.detail("price", "[data-testid='price']", "[data-testid='product-price']")),
			Status: extract.NewChain("status",
				extract.JSONLDAvailability("jsonld", models.StatusActive, models.StatusSold),
				soldIf("sold-button", o.detail("sold_button", "[data-testid='checkout-button']", "button"), "売り切れ"),
				extract.Contains("buy-button", o.detail("buy_button", "[data-testid='checkout-button']", "button"), []string{"購入手続きへ"}, models.StatusActive),
				extract.TextContains("sold-text", []string{"売り切れました"}, models.StatusSold),
				activeDefault(),
			),
			Description: extract.NewChain("description",
				extract.JSONLDString("jsonld", "Product", "description"),
				extract.Text("css", o.detail("description", "[data-testid='description']", "pre[data-testid='description']")),
				textBetween("text", "商品の説明", mercariDescriptionEnds...),
			),
			Images: extract.NewChain("images",
				extract.Images("css", o.detail("images",
					"img[src*='static.mercdn.net'][src*='/item/'][src*='/photos/']",
					"[data-testid^='image-'] img",
				)),
				extract.JSONLDImages("jsonld"),
				extract.Func("meta", metaImage),
			),
			Variants: extract.NewChain[[]models.Variant]("variants"),
		},
		Patrol: PatrolExtractors{
			Price: mercariPrice(o.patrol("price", "[data-testid='price']")),
			Status: extract.NewChain("status",
				extract.JSONLDAvailability("jsonld", models.StatusActive, models.StatusSold),
				soldIf("sold-button", o.patrol("sold_button", "[data-testid='checkout-button']", "button"), "売り切れ"),
				extract.TextContains("sold-text", []string{"売り切れました"}, models.StatusSold),
				extract.Contains("buy-button", o.patrol("buy_button", "[data-testid='checkout-button']", "button"), []string{"購入手続きへ"}, models.StatusActive),
			),
			Variants: extract.NewChain[[]models.PatrolVariant]("variants"),
		},
		Search: SearchRules{
			Links:  o.search("links", "a[href*='/item/']", "a[href*='/shops/product/']"),
			Accept: pathHasPrefix("/item/", "/shops/product/"),
		},
	}
}

func mercariShops(table *selectors.Table) *Strategy {
	o := overrides{table: table, site: SiteMercari}
	labels := o.detail("variation_label", "[data-testid='variation-label']")

	return &Strategy{
		Site:       SiteMercari,
		Hosts:      []string{"jp.mercari.com", "mercari.com"},
		PathPrefix: "/shops/product/",
		Ready:      "[data-testid='product-name'], h1",
		Item: ItemExtractors{
			Title: extract.NewChain("title",
				extract.JSONLDString("jsonld", "Product", "name"),
				extract.Text("css", o.detail("shops_title", "[data-testid='product-name']", "h1")),
				titleFromMeta("meta", "- メルカリ", "by メルカリ"),
			),
			Price: mercariPrice(o.detail("shops_price", "[data-testid='product-price']", "[data-testid='price']")),
			Status: extract.NewChain("status",
				extract.JSONLDAvailability("jsonld", models.StatusActive, models.StatusSold),
				extract.Func("variants", func(p *extract.Page) (models.Status, bool) {
					vs := mercariVariants(p, labels)
					if len(vs) == 0 {
						return "", false
					}
					for _, v := range vs {
						if v.StockQty > 0 {
							return models.StatusActive, true
						}
					}
					return models.StatusSold, true
				}),
				soldIf("sold-button", o.detail("sold_button", "[data-testid='checkout-button']", "button"), "売り切れ"),
				activeDefault(),
			),
			Description: extract.NewChain("description",
				extract.JSONLDString("jsonld", "Product", "description"),
				extract.Text("css", o.detail("shops_description", "[data-testid='product-description']", "[data-testid='description']")),
				textBetween("text", "商品の説明", mercariDescriptionEnds...),
			),
			Images: extract.NewChain("images",
				extract.JSONLDImages("jsonld"),
				extract.Images("css", o.detail("shops_images", "img[src*='mercari-shops-static']", "[data-testid='product-image'] img")),
				extract.Func("meta", metaImage),
			),
			Variants: extract.NewChain("variants",
				extract.Func("labels", func(p *extract.Page) ([]models.Variant, bool) {
					vs := mercariVariants(p, labels)
					return vs, len(vs) > 0
				}),
			),
		},
		Patrol: PatrolExtractors{
			Price: mercariPrice(o.patrol("shops_price", "[data-testid='product-price']", "[data-testid='price']")),
			Status: extract.NewChain("status",
				extract.JSONLDAvailability("jsonld", models.StatusActive, models.StatusSold),
				soldIf("sold-button", o.patrol("sold_button", "[data-testid='checkout-button']", "button"), "売り切れ"),
			),
			Variants: extract.NewChain("variants",
				extract.Func("labels", func(p *extract.Page) ([]models.PatrolVariant, bool) {
					vs := mercariVariants(p, labels)
					out := make([]models.PatrolVariant, 0, len(vs))
					for _, v := range vs {
						out = append(out, models.PatrolVariant{Name: v.Name(), StockQty: models.IntPtr(v.StockQty)})
					}
					return out, len(out) > 0
				}),
			),
		},
		Search: SearchRules{
			Links:  o.search("links", "a[href*='/shops/product/']"),
			Accept: pathHasPrefix("/shops/product/"),
		},
	}
}

// mercariShopsLegacy serves product links on the standalone shops domain.
func mercariShopsLegacy(table *selectors.Table) *Strategy {
	s := mercariShops(table)
	s.Hosts = []string{"mercari-shops.com"}
	s.PathPrefix = "/products/"
	s.Search.Links = overrides{table: table, site: SiteMercari}.search("links", "a[href*='/products/']")
	s.Search.Accept = pathHasPrefix("/products/")
	return s
}

func mercariPrice(sels extract.Selectors) extract.Chain[int] {
	return extract.NewChain("price",
		extract.JSONLDOfferPrice("jsonld"),
		extract.Price("css", sels),
		extract.TextPrice("yen-prefix", yenPrefixRe),
		extract.TextPrice("yen-suffix", yenSuffixRe),
	)
}

// mercariVariants reads variation chips. A chip is out of stock when it is
// disabled or labelled 売り切れ.
func mercariVariants(p *extract.Page, labels extract.Selectors) []models.Variant {
	var out []models.Variant
	for _, sel := range labels() {
		p.Doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			name := strings.TrimSpace(strings.ReplaceAll(strings.Join(strings.Fields(s.Text()), " "), "売り切れ", ""))
			if name == "" {
				return
			}
			class, _ := s.Attr("class")
			_, disabled := s.Attr("disabled")
			aria, _ := s.Attr("aria-disabled")
			html, _ := s.Html()
			sold := disabled || aria == "true" || strings.Contains(class, "disabled") || strings.Contains(html, "売り切れ")
			qty := 1
			if sold {
				qty = 0
			}
			out = append(out, models.Variant{OptionValues: []string{name}, StockQty: qty})
		})
		if len(out) > 0 {
			return out
		}
	}
	return out
}

func metaImage(p *extract.Page) ([]string, bool) {
	v, ok := extract.Meta("og:image", "og:image").Fn(p)
	if !ok {
		return nil, false
	}
	return []string{p.Absolute(v)}, true
}
