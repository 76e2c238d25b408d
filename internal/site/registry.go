package site

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/halc8312/esp/internal/selectors"
)

var ErrUnsupportedSite = errors.New("unsupported site")

const resolveCacheSize = 1024

// Registry maps URLs to strategies. Strategies with a longer path prefix win
// over broader ones on the same host.
type Registry struct {
	strategies []*Strategy
	bySite     map[string]*Strategy
	// cache maps a lower-cased host to the strategies serving it, longest
	// path prefix first.
	cache      *lru.Cache[string, []*Strategy]
}

// NewRegistry registers every supported site, consulting overrides before the
// built-in selectors.
func NewRegistry(overrides *selectors.Table) *Registry {
	var all []*Strategy
	all = append(all, Mercari(overrides)...)
	all = append(all,
		YahooShopping(overrides),
		Rakuma(overrides),
		Surugaya(overrides),
		Offmall(overrides),
		Yahuoku(overrides),
		Snkrdunk(overrides),
	)
	return NewRegistryWith(all...)
}

func NewRegistryWith(strategies ...*Strategy) *Registry {
	sorted := make([]*Strategy, len(strategies))
	copy(sorted, strategies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].PathPrefix) > len(sorted[j].PathPrefix)
	})

	bySite := make(map[string]*Strategy)
	for _, s := range sorted {
		if cur, ok := bySite[s.Site]; !ok || len(s.PathPrefix) < len(cur.PathPrefix) {
			bySite[s.Site] = s
		}
	}

	cache, _ := lru.New[string, []*Strategy](resolveCacheSize)
	return &Registry{strategies: sorted, bySite: bySite, cache: cache}
}

// Resolve returns the strategy for rawURL.
func (r *Registry) Resolve(rawURL string) (*Strategy, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrUnsupportedSite, rawURL)
	}

	for _, s := range r.forHost(strings.ToLower(u.Hostname())) {
		if s.matchesPath(u.Path) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSite, u.Host)
}

func (r *Registry) forHost(host string) []*Strategy {
	if list, ok := r.cache.Get(host); ok {
		return list
	}
	var list []*Strategy
	for _, s := range r.strategies {
		if s.matchesHost(host) {
			list = append(list, s)
		}
	}
	r.cache.Add(host, list)
	return list
}

// ForSite returns the broadest strategy registered for a site name.
func (r *Registry) ForSite(name string) (*Strategy, error) {
	s, ok := r.bySite[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSite, name)
	}
	return s, nil
}

// Sites lists registered site names.
func (r *Registry) Sites() []string {
	out := make([]string, 0, len(r.bySite))
	for name := range r.bySite {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
