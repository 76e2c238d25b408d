package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors yields CSS selectors to try in order. It is evaluated on every
// run so override tables can change without rebuilding chains.
type Selectors func() []string

// CSS returns a fixed selector list.
func CSS(sel ...string) Selectors {
	return func() []string { return sel }
}

func each(sels Selectors, fn func(s *goquery.Selection) bool, doc *goquery.Document) {
	if sels == nil {
		return
	}
	for _, sel := range sels() {
		found := false
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if fn(s) {
				found = true
				return false
			}
			return true
		})
		if found {
			return
		}
	}
}

// Text yields the first non-empty element text among sels.
func Text(name string, sels Selectors) Probe[string] {
	return Probe[string]{Name: name, Fn: func(p *Page) (string, bool) {
		var out string
		each(sels, func(s *goquery.Selection) bool {
			out = CleanText(s.Text())
			return out != ""
		}, p.Doc)
		return out, out != ""
	}}
}

// Attr yields the first non-empty attribute value among sels.
func Attr(name string, sels Selectors, attr string) Probe[string] {
	return Probe[string]{Name: name, Fn: func(p *Page) (string, bool) {
		var out string
		each(sels, func(s *goquery.Selection) bool {
			v, _ := s.Attr(attr)
			out = strings.TrimSpace(v)
			return out != ""
		}, p.Doc)
		return out, out != ""
	}}
}

// Meta yields a <meta property|name=key> content value.
func Meta(name, key string) Probe[string] {
	return Attr(name, CSS(`meta[property="`+key+`"]`, `meta[name="`+key+`"]`), "content")
}

// Price yields the first element text among sels that parses as a price.
// The content attribute is checked before the text.
func Price(name string, sels Selectors) Probe[int] {
	return Probe[int]{Name: name, Fn: func(p *Page) (int, bool) {
		var (
			out int
			ok  bool
		)
		each(sels, func(s *goquery.Selection) bool {
			if c, has := s.Attr("content"); has {
				if out, ok = ParsePriceValue(c); ok {
					return true
				}
			}
			out, ok = ParsePriceValue(s.Text())
			return ok
		}, p.Doc)
		return out, ok
	}}
}

// TextPrice parses a price from the first submatch of re over page text.
func TextPrice(name string, re *regexp.Regexp) Probe[int] {
	return Probe[int]{Name: name, Fn: func(p *Page) (int, bool) {
		m := re.FindStringSubmatch(p.Text())
		if m == nil {
			return 0, false
		}
		s := m[0]
		if len(m) > 1 {
			s = m[1]
		}
		return ParsePriceValue(s)
	}}
}

// TextMatch yields the first submatch of re over page text.
func TextMatch(name string, re *regexp.Regexp) Probe[string] {
	return Probe[string]{Name: name, Fn: func(p *Page) (string, bool) {
		m := re.FindStringSubmatch(p.Text())
		if m == nil {
			return "", false
		}
		s := m[0]
		if len(m) > 1 {
			s = m[1]
		}
		s = CleanText(s)
		return s, s != ""
	}}
}

// Images collects image URLs from the elements matched by the first
// selector that yields any, reading the first present attribute of attrs.
func Images(name string, sels Selectors, attrs ...string) Probe[[]string] {
	if len(attrs) == 0 {
		attrs = []string{"src", "data-src", "data-original"}
	}
	return Probe[[]string]{Name: name, Fn: func(p *Page) ([]string, bool) {
		if sels == nil {
			return nil, false
		}
		for _, sel := range sels() {
			var urls []string
			p.Doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
				for _, a := range attrs {
					if v, ok := s.Attr(a); ok && isImageURL(v) {
						urls = append(urls, p.Absolute(firstSrcset(v)))
						return
					}
				}
			})
			if urls = Dedupe(urls); len(urls) > 0 {
				return urls, true
			}
		}
		return nil, false
	}}
}

// Exists yields value when any selector matches an element.
func Exists[T any](name string, sels Selectors, value T) Probe[T] {
	return Probe[T]{Name: name, Fn: func(p *Page) (T, bool) {
		found := false
		each(sels, func(*goquery.Selection) bool {
			found = true
			return true
		}, p.Doc)
		return value, found
	}}
}

// Contains yields value when any selector's text contains one of words.
func Contains[T any](name string, sels Selectors, words []string, value T) Probe[T] {
	return Probe[T]{Name: name, Fn: func(p *Page) (T, bool) {
		found := false
		each(sels, func(s *goquery.Selection) bool {
			found = containsAny(s.Text(), words)
			return found
		}, p.Doc)
		return value, found
	}}
}

// TextContains yields value when the page text contains one of words.
func TextContains[T any](name string, words []string, value T) Probe[T] {
	return Probe[T]{Name: name, Fn: func(p *Page) (T, bool) {
		return value, containsAny(p.Text(), words)
	}}
}

// Const always yields value. It is used as the terminal default of a chain.
func Const[T any](name string, value T) Probe[T] {
	return Probe[T]{Name: name, Fn: func(*Page) (T, bool) { return value, true }}
}

// Func adapts a plain function into a probe.
func Func[T any](name string, fn func(p *Page) (T, bool)) Probe[T] {
	return Probe[T]{Name: name, Fn: fn}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// CleanText collapses runs of whitespace.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isImageURL(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.HasPrefix(v, "data:")
}

func firstSrcset(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexAny(v, " ,"); i > 0 && strings.Contains(v, " ") {
		return v[:i]
	}
	return v
}
