// Package site holds one extraction strategy per supported marketplace and a
// registry that picks the strategy for a URL.
package site

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/halc8312/esp/internal/extract"
	"github.com/halc8312/esp/internal/models"
)

// ItemExtractors is the full-field extractor set used by item scrapes.
type ItemExtractors struct {
	Title       extract.Chain[string]
	Price       extract.Chain[int]
	Status      extract.Chain[models.Status]
	Description extract.Chain[string]
	Images      extract.Chain[[]string]
	Variants    extract.Chain[[]models.Variant]
}

// PatrolExtractors is the reduced set used for re-checks. Status chains
// carry no terminal default so that "no marker" stays distinguishable.
type PatrolExtractors struct {
	Price    extract.Chain[int]
	Status   extract.Chain[models.Status]
	Variants extract.Chain[[]models.PatrolVariant]
}

// SearchRules describe how candidate item links are found on a listing page.
type SearchRules struct {
	Links extract.Selectors
	// Accept filters resolved link URLs down to item pages.
	Accept func(u *url.URL) bool
	// Next selects pagination controls. When empty the page is scrolled.
	Next extract.Selectors
}

// Strategy is everything needed to scrape one kind of page of one site.
type Strategy struct {
	Site       string
	Hosts      []string
	PathPrefix string
	// Ready is a selector that signals the page has rendered its content.
	Ready  string
	Item   ItemExtractors
	Patrol PatrolExtractors
	Search SearchRules
}

// MissRecorder receives extraction misses.
type MissRecorder interface {
	IncExtractionMiss(site, field string)
}

func (s *Strategy) matchesHost(host string) bool {
	for _, h := range s.Hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (s *Strategy) matchesPath(path string) bool {
	return s.PathPrefix == "" || strings.HasPrefix(path, s.PathPrefix)
}

// ExtractItem runs every item chain against p. Each field is isolated: a
// miss leaves that field empty and the others are still extracted.
func (s *Strategy) ExtractItem(p *extract.Page, logger *slog.Logger, rec MissRecorder) models.ScrapedItem {
	logger = logger.With("site", s.Site)
	miss := func(field string) {
		logger.Debug("extraction miss", "field", field, "url", p.URL)
		if rec != nil {
			rec.IncExtractionMiss(s.Site, field)
		}
	}

	item := models.ScrapedItem{
		URL:       models.NormalizeURL(p.URL),
		Site:      s.Site,
		Status:    models.StatusActive,
		ImageURLs: []string{},
		Variants:  []models.Variant{},
	}

	if r := s.Item.Title.Run(p); r.OK {
		item.Title = r.Value
	} else {
		miss("title")
	}

	if r := s.Item.Price.Run(p); r.OK {
		item.Price = models.IntPtr(r.Value)
	} else {
		miss("price")
	}

	if r := s.Item.Status.Run(p); r.OK && r.Value.Valid() {
		item.Status = r.Value
	}

	if r := s.Item.Description.Run(p); r.OK {
		item.Description = r.Value
	} else {
		miss("description")
	}

	if r := s.Item.Images.Run(p); r.OK {
		item.ImageURLs = extract.Dedupe(r.Value)
	} else {
		miss("images")
	}

	if r := s.Item.Variants.Run(p); r.OK && len(r.Value) > 0 {
		item.Variants = r.Value
		for i := range item.Variants {
			if item.Variants[i].Price == nil {
				item.Variants[i].Price = item.Price
			}
		}
	} else {
		item.Variants = []models.Variant{models.DefaultVariant(item.Price, item.Status)}
	}

	return item
}

// ExtractPatrol runs the patrol chains against p. Status is left nil when no
// marker is found and no price was read either.
func (s *Strategy) ExtractPatrol(p *extract.Page, logger *slog.Logger, rec MissRecorder) models.PatrolResult {
	logger = logger.With("site", s.Site)
	result := models.PatrolResult{URL: models.NormalizeURL(p.URL)}

	if r := s.Patrol.Price.Run(p); r.OK {
		result.Price = models.IntPtr(r.Value)
	} else {
		logger.Debug("extraction miss", "field", "price", "url", p.URL)
		if rec != nil {
			rec.IncExtractionMiss(s.Site, "price")
		}
	}

	if r := s.Patrol.Status.Run(p); r.OK && r.Value.Valid() {
		result.Status = models.StatusPtr(r.Value)
	} else if result.Price != nil {
		result.Status = models.StatusPtr(models.StatusActive)
	}

	if r := s.Patrol.Variants.Run(p); r.OK && len(r.Value) > 0 {
		result.Variants = r.Value
	} else if result.Status != nil {
		qty := 0
		if *result.Status == models.StatusActive {
			qty = 1
		}
		result.Variants = []models.PatrolVariant{{
			Name:     models.DefaultVariantName,
			StockQty: models.IntPtr(qty),
			Price:    result.Price,
		}}
	}

	return result
}

// CandidateLinks returns item URLs found on a listing page in document
// order, normalized and de-duplicated.
func (s *Strategy) CandidateLinks(p *extract.Page) []string {
	if s.Search.Links == nil {
		return nil
	}
	var out []string
	for _, sel := range s.Search.Links() {
		p.Doc.Find(sel).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			abs := p.Absolute(href)
			u, err := url.Parse(abs)
			if err != nil || u.Host == "" {
				return
			}
			if s.Search.Accept != nil && !s.Search.Accept(u) {
				return
			}
			out = append(out, models.NormalizeURL(abs))
		})
	}
	return extract.Dedupe(out)
}
