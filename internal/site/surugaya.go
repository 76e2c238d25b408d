package site

import (
	"strings"

	"github.com/halc8312/esp/internal/extract"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/selectors"
)

const SiteSurugaya = "surugaya"

var surugayaSoldWords = []string{"品切れ", "売り切れ", "販売終了"}

func Surugaya(table *selectors.Table) *Strategy {
	o := overrides{table: table, site: SiteSurugaya}

	price := func(sels extract.Selectors) extract.Chain[int] {
		return extract.NewChain("price",
			extract.JSONLDOfferPrice("jsonld"),
			extract.Price("css", sels),
			extract.TextPrice("tax-included", taxIncRe),
			extract.TextPrice("yen-suffix", yenSuffixRe),
		)
	}
	buy := func(sels extract.Selectors) extract.Probe[models.Status] {
		return activeIf("buy-button", sels)
	}

	return &Strategy{
		Site:  SiteSurugaya,
		Hosts: []string{"suruga-ya.jp"},
		Ready: "h1",
		Item: ItemExtractors{
			Title: extract.NewChain("title",
				extract.JSONLDString("jsonld", "Product", "name"),
				extract.Text("css", o.detail("title", "h1#item_title", "h1")),
				titleFromMeta("meta", "| 中古・新品通販の駿河屋"),
			),
			Price: price(o.detail("price", ".price_group .text-price-detail", ".price_group label", ".price_group")),
			Status: extract.NewChain("status",
				buy(o.detail("buy_button", ".btn_buy", ".cart1")),
				extract.Exists("wait-button", o.detail("sold_button", ".waitbtn"), models.StatusSold),
				extract.TextContains("sold-text", surugayaSoldWords, models.StatusSold),
				activeDefault(),
			),
			Description: extract.NewChain("description",
				extract.Text("css", o.detail("description", ".tbl_product_info", "#item_detail", ".product_description")),
				extract.Meta("meta", "description"),
			),
			Images: extract.NewChain("images",
				extract.Images("css", o.detail("images", ".is-main-image img", "#imagedetail img", ".product_zoom img")),
				extract.JSONLDImages("jsonld"),
				extract.Func("meta", metaImage),
			),
			Variants: extract.NewChain("variants",
				extract.Func("condition", func(p *extract.Page) ([]models.Variant, bool) {
					condition := surugayaCondition(p)
					if condition == "" {
						return nil, false
					}
					qty := 0
					if p.Doc.Find(".btn_buy, .cart1").Length() > 0 {
						qty = 1
					}
					return []models.Variant{{OptionValues: []string{condition}, StockQty: qty}}, true
				}),
			),
		},
		Patrol: PatrolExtractors{
			Price: price(o.patrol("price", ".price_group .text-price-detail", ".price_group label")),
			Status: extract.NewChain("status",
				buy(o.patrol("buy_button", ".btn_buy", ".cart1")),
				extract.Exists("wait-button", o.patrol("sold_button", ".waitbtn"), models.StatusSold),
				extract.TextContains("sold-text", surugayaSoldWords, models.StatusSold),
			),
			Variants: extract.NewChain[[]models.PatrolVariant]("variants"),
		},
		Search: SearchRules{
			Links:  o.search("links", ".item a[href*='/product/detail/']", "a[href*='/product/detail/']"),
			Accept: pathHasPrefix("/product/detail/", "/product/other/"),
			Next:   o.search("next", "a[rel='next']", ".next a", "a:contains('次へ')"),
		},
	}
}

// surugayaCondition reads the 中古/新品 label of the primary price block.
func surugayaCondition(p *extract.Page) string {
	label := strings.TrimSpace(p.Doc.Find(".price_group label").First().Text())
	for _, c := range []string{"中古", "新品", "予約"} {
		if strings.Contains(label, c) {
			return c
		}
	}
	return ""
}
