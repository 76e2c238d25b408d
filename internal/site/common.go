package site

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/halc8312/esp/internal/extract"
	"github.com/halc8312/esp/internal/models"
	"github.com/halc8312/esp/internal/selectors"
)

var (
	yenPrefixRe = regexp.MustCompile(`[¥￥]\s*([\d,]+)`)
	yenSuffixRe = regexp.MustCompile(`([\d,]+)\s*円`)
	taxIncRe    = regexp.MustCompile(`([\d,]+)\s*円\s*[\(（]税込[\)）]`)
)

// overrides binds an override table to one site.
type overrides struct {
	table *selectors.Table
	site  string
}

func (o overrides) detail(field string, defaults ...string) extract.Selectors {
	return o.table.Prefer(o.site, selectors.PageDetail, field, defaults...)
}

func (o overrides) patrol(field string, defaults ...string) extract.Selectors {
	return o.table.Prefer(o.site, selectors.PagePatrol, field, defaults...)
}

func (o overrides) search(field string, defaults ...string) extract.Selectors {
	return o.table.Prefer(o.site, selectors.PageSearch, field, defaults...)
}

func pathHasPrefix(prefixes ...string) func(u *url.URL) bool {
	return func(u *url.URL) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(u.Path, p) {
				return true
			}
		}
		return false
	}
}

func activeDefault() extract.Probe[models.Status] {
	return extract.Const("loaded", models.StatusActive)
}

func soldIf(name string, sels extract.Selectors, words ...string) extract.Probe[models.Status] {
	return extract.Contains(name, sels, words, models.StatusSold)
}

func activeIf(name string, sels extract.Selectors) extract.Probe[models.Status] {
	return extract.Exists(name, sels, models.StatusActive)
}

// titleFromMeta strips the site suffix commonly appended to og:title.
func titleFromMeta(name string, suffixes ...string) extract.Probe[string] {
	meta := extract.Meta(name, "og:title")
	return extract.Func(name, func(p *extract.Page) (string, bool) {
		t, ok := meta.Fn(p)
		if !ok {
			return "", false
		}
		for _, s := range suffixes {
			t = strings.TrimSpace(strings.TrimSuffix(t, s))
		}
		return t, t != ""
	})
}

// textBetween extracts page text after start and before the earliest of ends.
func textBetween(name, start string, ends ...string) extract.Probe[string] {
	return extract.Func(name, func(p *extract.Page) (string, bool) {
		text := p.Text()
		i := strings.Index(text, start)
		if i < 0 {
			return "", false
		}
		after := text[i+len(start):]
		cut := len(after)
		for _, e := range ends {
			if j := strings.Index(after, e); j >= 0 && j < cut {
				cut = j
			}
		}
		out := strings.TrimSpace(after[:cut])
		return out, out != ""
	})
}
