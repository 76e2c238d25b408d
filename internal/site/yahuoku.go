package site

import (
	"net/url"
	"strings"

	"github.com/halc8312/esp/internal/extract"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/selectors"
)

const SiteYahuoku = "yahuoku"

var yahuokuItemPaths = [][]string{
	{"props", "pageProps", "initialState", "item", "detail", "item"},
	{"props", "pageProps", "initialProps", "auctionItem"},
}

func yahuokuItem(p *extract.Page) (map[string]any, bool) {
	data := p.NextData()
	for _, path := range yahuokuItemPaths {
		if v, ok := extract.Lookup(data, path...); ok {
			if m, ok := v.(map[string]any); ok && len(m) > 0 {
				return m, true
			}
		}
	}
	return nil, false
}

// yahuokuPrice reads price either as a number or as {current, bid}.
func yahuokuPrice(item map[string]any) (int, bool) {
	raw, ok := item["price"]
	if !ok {
		return 0, false
	}
	if m, ok := raw.(map[string]any); ok {
		for _, key := range []string{"current", "bid"} {
			if v, ok := extract.LookupInt(m, key); ok && v > 0 {
				return v, true
			}
		}
		return 0, false
	}
	return extract.AsInt(raw)
}

func Yahuoku(table *selectors.Table) *Strategy {
	o := overrides{table: table, site: SiteYahuoku}

	nextPrice := extract.Func("next-data", func(p *extract.Page) (int, bool) {
		item, ok := yahuokuItem(p)
		if !ok {
			return 0, false
		}
		return yahuokuPrice(item)
	})
	ended := func(sels extract.Selectors) extract.Probe[models.Status] {
		return soldIf("countdown", sels, "終了")
	}
	price := func(sels extract.Selectors) extract.Chain[int] {
		return extract.NewChain("price",
			nextPrice,
			extract.Price("css", sels),
			extract.TextPrice("yen-suffix", yenSuffixRe),
		)
	}

	return &Strategy{
		Site:  SiteYahuoku,
		Hosts: []string{"auctions.yahoo.co.jp"},
		Ready: "h1, .Price__value",
		Item: ItemExtractors{
			Title: extract.NewChain("title",
				extract.Func("next-data", func(p *extract.Page) (string, bool) {
					item, ok := yahuokuItem(p)
					if !ok {
						return "", false
					}
					return extract.LookupString(item, "title")
				}),
				extract.Text("css", o.detail("title", "h1.ProductTitle__text", "h1")),
				titleFromMeta("meta", " - Yahoo!オークション"),
			),
			Price: price(o.detail("price", ".Price__value", ".Price--current .Price__value")),
			Status: extract.NewChain("status",
				ended(o.detail("countdown", ".CountDown__time")),
				extract.TextContains("closed-text", []string{"このオークションは終了しています"}, models.StatusSold),
				activeDefault(),
			),
			Description: extract.NewChain("description",
				extract.Text("css", o.detail("description", "#ProductDescription", ".ProductExplanation__commentBody")),
				textBetween("heading", "商品説明", "支払い、配送", "注意事項"),
			),
			Images: extract.NewChain("images",
				extract.Func("css", func(p *extract.Page) ([]string, bool) {
					imgs, ok := extract.Images("css", o.detail("images", ".slick-slide img", ".ProductImage__image img")).Fn(p)
					if !ok {
						return nil, false
					}
					out := imgs[:0]
					for _, src := range imgs {
						if !strings.Contains(strings.ToLower(src), "placeholder") {
							out = append(out, src)
						}
					}
					return out, len(out) > 0
				}),
				extract.Func("meta", metaImage),
			),
			Variants: extract.NewChain[[]models.Variant]("variants"),
		},
		Patrol: PatrolExtractors{
			Price: price(o.patrol("price", ".Price__value")),
			Status: extract.NewChain("status",
				ended(o.patrol("countdown", ".CountDown__time")),
				extract.TextContains("closed-text", []string{"このオークションは終了しています"}, models.StatusSold),
			),
			Variants: extract.NewChain[[]models.PatrolVariant]("variants"),
		},
		Search: SearchRules{
			Links:  o.search("links", ".Product__titleLink", "a[href*='/auction/']"),
			Accept: func(u *url.URL) bool { return strings.Contains(u.Path, "/auction/") },
			Next:   o.search("next", ".Pager__list--next a", "a:contains('次へ')"),
		},
	}
}
