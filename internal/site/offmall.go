package site

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/halc8312/esp/internal/extract"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/selectors"
)

const SiteOffmall = "offmall"

func Offmall(table *selectors.Table) *Strategy {
	o := overrides{table: table, site: SiteOffmall}

	price := func(sels extract.Selectors) extract.Chain[int] {
		return extract.NewChain("price",
			extract.JSONLDOfferPrice("jsonld"),
			extract.Price("css", sels),
			extract.TextPrice("yen-suffix", yenSuffixRe),
		)
	}
	cart := func(sels extract.Selectors) extract.Probe[models.Status] {
		return extract.Func("cart-button", func(p *extract.Page) (models.Status, bool) {
			var (
				status models.Status
				found  bool
			)
			for _, sel := range sels() {
				p.Doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
					found = true
					_, disabled := s.Attr("disabled")
					if disabled || s.HasClass("is-disabled") || s.HasClass("disabled") {
						status = models.StatusSold
					} else {
						status = models.StatusActive
					}
					return false
				})
				if found {
					return status, true
				}
			}
			return "", false
		})
	}

	return &Strategy{
		Site:  SiteOffmall,
		Hosts: []string{"netmall.hardoff.co.jp"},
		Ready: ".product-detail-name, h1",
		Item: ItemExtractors{
			Title: extract.NewChain("title",
				extract.JSONLDString("jsonld", "Product", "name"),
				extract.Text("css", o.detail("title", ".product-detail-name h1", "h1")),
			),
			Price: price(o.detail("price", ".product-detail-price__main", ".product-detail-price")),
			Status: extract.NewChain("status",
				extract.JSONLDAvailability("jsonld", models.StatusActive, models.StatusSold),
				cart(o.detail("cart_button", ".cart-add-button")),
				extract.TextContains("sold-text", []string{"SOLD OUT", "売り切れ"}, models.StatusSold),
				activeDefault(),
			),
			Description: extract.NewChain("description",
				extract.JSONLDString("jsonld", "Product", "description"),
				extract.Func("spec-list", offmallSpecs),
				extract.Meta("meta", "description"),
			),
			Images: extract.NewChain("images",
				extract.JSONLDImages("jsonld"),
				extract.Images("css", o.detail("images", ".product-detail-image-main img", ".product-detail-image-sub__button img")),
			),
			Variants: extract.NewChain[[]models.Variant]("variants"),
		},
		Patrol: PatrolExtractors{
			Price: price(o.patrol("price", ".product-detail-price__main")),
			Status: extract.NewChain("status",
				extract.JSONLDAvailability("jsonld", models.StatusActive, models.StatusSold),
				cart(o.patrol("cart_button", ".cart-add-button")),
			),
			Variants: extract.NewChain[[]models.PatrolVariant]("variants"),
		},
		Search: SearchRules{
			Links:  o.search("links", "a[href*='/product/']"),
			Accept: pathHasPrefix("/product/"),
			Next:   o.search("next", "a[rel='next']", ".pagination__next a"),
		},
	}
}

// offmallSpecs renders the spec list as "label: value" lines.
func offmallSpecs(p *extract.Page) (string, bool) {
	labels := p.Doc.Find(".product-detail-spec-list__label")
	values := p.Doc.Find(".product-detail-spec-list__value")
	var lines []string
	labels.Each(func(i int, s *goquery.Selection) {
		if i >= values.Length() {
			return
		}
		l := extract.CleanText(s.Text())
		v := extract.CleanText(values.Eq(i).Text())
		if l != "" && v != "" {
			lines = append(lines, l+": "+v)
		}
	})
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}
