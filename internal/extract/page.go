package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is an immutable snapshot of a loaded document.
type Page struct {
	URL string
	Doc *goquery.Document

	base *url.URL

	text       *string
	nextData   any
	nextParsed bool
	ld         []map[string]any
	ldParsed   bool
}

func NewPage(rawURL, html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	base, _ := url.Parse(rawURL)
	return &Page{URL: rawURL, Doc: doc, base: base}, nil
}

// Text is the visible body text with scripts removed and whitespace
// collapsed.
func (p *Page) Text() string {
	if p.text != nil {
		return *p.text
	}
	body := p.Doc.Find("body").Clone()
	if body.Length() == 0 {
		body = p.Doc.Selection.Clone()
	}
	body.Find("script, style, noscript, template").Remove()
	t := strings.Join(strings.Fields(body.Text()), " ")
	p.text = &t
	return t
}

// Title returns the document <title>.
func (p *Page) Title() string {
	return strings.TrimSpace(p.Doc.Find("title").First().Text())
}

// Absolute resolves href against the page URL.
func (p *Page) Absolute(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || p.base == nil {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return p.base.Scheme + ":" + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return p.base.ResolveReference(ref).String()
}

// NextData returns the decoded __NEXT_DATA__ payload, or nil.
func (p *Page) NextData() any {
	if p.nextParsed {
		return p.nextData
	}
	p.nextParsed = true

	raw := strings.TrimSpace(p.Doc.Find("script#__NEXT_DATA__").First().Text())
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		p.nextData = v
	}
	return p.nextData
}

// JSONLD returns every ld+json object whose @type equals typ. @graph
// containers and top-level arrays are flattened.
func (p *Page) JSONLD(typ string) []map[string]any {
	if !p.ldParsed {
		p.ldParsed = true
		p.Doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
			var v any
			if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &v); err != nil {
				return
			}
			p.ld = append(p.ld, flattenLD(v)...)
		})
	}

	var out []map[string]any
	for _, obj := range p.ld {
		if ldTypeIs(obj["@type"], typ) {
			out = append(out, obj)
		}
	}
	return out
}

func flattenLD(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, e := range t {
			out = append(out, flattenLD(e)...)
		}
		return out
	case map[string]any:
		if g, ok := t["@graph"]; ok {
			return flattenLD(g)
		}
		return []map[string]any{t}
	}
	return nil
}

func ldTypeIs(v any, typ string) bool {
	switch t := v.(type) {
	case string:
		return t == typ
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s == typ {
				return true
			}
		}
	}
	return false
}

// Dedupe drops empty and repeated strings, keeping first occurrence order.
func Dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
