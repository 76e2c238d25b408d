package site

import (
	"github.com/halc8312/esp/internal/extract"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/selectors"
)

const SiteSnkrdunk = "snkrdunk"

var snkrdunkSoldWords = []string{"SOLD OUT", "売り切れ", "在庫なし"}

func Snkrdunk(table *selectors.Table) *Strategy {
	o := overrides{table: table, site: SiteSnkrdunk}

	price := func(sels extract.Selectors) extract.Chain[int] {
		return extract.NewChain("price",
			extract.JSONLDOfferPrice("jsonld"),
			extract.Price("css", sels),
			extract.TextPrice("yen-prefix", yenPrefixRe),
			extract.TextPrice("yen-suffix", yenSuffixRe),
		)
	}

	return &Strategy{
		Site:  SiteSnkrdunk,
		Hosts: []string{"snkrdunk.com"},
		Ready: "h1",
		Item: ItemExtractors{
			Title: extract.NewChain("title",
				extract.JSONLDString("jsonld", "Product", "name"),
				extract.Text("css", o.detail("title", "h1.product-name-en", "h1[class*='product-name']", "h1")),
				titleFromMeta("meta", "| スニーカーダンク", "｜スニダン"),
			),
			Price: price(o.detail("price", ".new-buy-button", "[class*='buy-button']")),
			Status: extract.NewChain("status",
				extract.JSONLDAvailability("jsonld", models.StatusActive, models.StatusSold),
				extract.TextContains("sold-text", snkrdunkSoldWords, models.StatusSold),
				activeDefault(),
			),
			Description: extract.NewChain("description",
				extract.Text("css", o.detail("description", ".item-article-text p", ".item-article-textbox", "[class*='article-text']")),
				extract.Text("info", extract.CSS(".product-info-wrapper")),
				extract.JSONLDString("jsonld", "Product", "description"),
			),
			Images: extract.NewChain("images",
				extract.Images("css", o.detail("images", ".product-img img", "[class*='product-img'] img", "img[src*='snkrdunk']"),
					"data-lazy", "data-src", "src"),
				extract.JSONLDImages("jsonld"),
			),
			Variants: extract.NewChain[[]models.Variant]("variants"),
		},
		Patrol: PatrolExtractors{
			Price: price(o.patrol("price", ".new-buy-button", "[class*='buy-button']")),
			Status: extract.NewChain("status",
				extract.JSONLDAvailability("jsonld", models.StatusActive, models.StatusSold),
				extract.TextContains("sold-text", snkrdunkSoldWords, models.StatusSold),
			),
			Variants: extract.NewChain[[]models.PatrolVariant]("variants"),
		},
		Search: SearchRules{
			Links:  o.search("links", "a[class*='productTile']", "a[href*='/products/']"),
			Accept: pathHasPrefix("/products/"),
		},
	}
}
