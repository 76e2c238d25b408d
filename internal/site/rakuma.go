package site

import (
	"net/url"
	"strings"

	"github.com/halc8312/esp/internal/extract"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/selectors"
)

const SiteRakuma = "rakuma"

var rakumaSoldWords = []string{"SOLD OUT", "売り切れ", "この商品は売り切れです"}

func Rakuma(table *selectors.Table) *Strategy {
	o := overrides{table: table, site: SiteRakuma}

	price := func(sels extract.Selectors) extract.Chain[int] {
		return extract.NewChain("price",
			extract.JSONLDOfferPrice("jsonld"),
			extract.Price("css", sels),
			extract.TextPrice("yen-prefix", yenPrefixRe),
			extract.TextPrice("yen-suffix", yenSuffixRe),
		)
	}

	return &Strategy{
		Site:  SiteRakuma,
		Hosts: []string{"item.fril.jp", "fril.jp"},
		Ready: "h1, .item__name",
		Item: ItemExtractors{
			Title: extract.NewChain("title",
				extract.JSONLDString("jsonld", "Product", "name"),
				extract.Text("css", o.detail("title", ".item__name", ".item-name", "h1")),
				titleFromMeta("meta", "| ラクマ", "- ラクマ"),
			),
			Price: price(o.detail("price", ".item__price", ".item-price", ".price", "[class*='price']")),
			Status: extract.NewChain("status",
				extract.JSONLDAvailability("jsonld", models.StatusActive, models.StatusSold),
				soldIf("sold-badge", o.detail("sold", ".item__sold", ".sold-out", "[class*='sold']", "button"), rakumaSoldWords...),
				extract.TextContains("sold-text", rakumaSoldWords, models.StatusSold),
				activeDefault(),
			),
			Description: extract.NewChain("description",
				extract.JSONLDString("jsonld", "Product", "description"),
				extract.Text("css", o.detail("description", ".item__description", ".item-description", "[class*='description']")),
				extract.Meta("meta", "description"),
			),
			Images: extract.NewChain("images",
				extract.JSONLDImages("jsonld"),
				extract.Images("css", o.detail("images", ".sp-image", ".item__image img", "img[src*='img.fril.jp']")),
				extract.Func("meta", metaImage),
			),
			Variants: extract.NewChain[[]models.Variant]("variants"),
		},
		Patrol: PatrolExtractors{
			Price: price(o.patrol("price", ".item-price", ".price", "[class*='price']")),
			Status: extract.NewChain("status",
				extract.JSONLDAvailability("jsonld", models.StatusActive, models.StatusSold),
				extract.TextContains("sold-text", rakumaSoldWords, models.StatusSold),
			),
			Variants: extract.NewChain[[]models.PatrolVariant]("variants"),
		},
		Search: SearchRules{
			Links:  o.search("links", "a[href*='item.fril.jp/']", "a.link_search_image", "a[href*='/item/']"),
			Accept: func(u *url.URL) bool { return u.Hostname() == "item.fril.jp" || strings.HasPrefix(u.Path, "/item/") },
			Next:   o.search("next", "a[rel='next']", ".pagination .next a"),
		},
	}
}
