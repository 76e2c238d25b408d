package site

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry(nil)

	tests := []struct {
		name       string
		url        string
		wantSite   string
		wantPrefix string
	}{
		{"mercari item", "https://jp.mercari.com/item/m123", SiteMercari, ""},
		{"mercari shops product", "https://jp.mercari.com/shops/product/abc", SiteMercari, "/shops/product/"},
		{"mercari shops domain", "https://mercari-shops.com/products/xyz", SiteMercari, "/products/"},
		{"yahoo shopping", "https://store.shopping.yahoo.co.jp/shop/item.html", SiteYahoo, ""},
		{"rakuma", "https://item.fril.jp/abcdef", SiteRakuma, ""},
		{"surugaya with www", "https://www.suruga-ya.jp/product/detail/123", SiteSurugaya, ""},
		{"offmall", "https://netmall.hardoff.co.jp/product/1/", SiteOffmall, ""},
		{"yahuoku page host", "https://page.auctions.yahoo.co.jp/jp/auction/x1", SiteYahuoku, ""},
		{"snkrdunk", "https://snkrdunk.com/products/dd1391-100", SiteSnkrdunk, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.Resolve(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSite, s.Site)
			assert.Equal(t, tt.wantPrefix, s.PathPrefix)
		})
	}
}

func TestRegistryResolveUnsupported(t *testing.T) {
	r := NewRegistry(nil)

	for _, raw := range []string{"https://example.com/item/1", "not a url", ""} {
		_, err := r.Resolve(raw)
		assert.ErrorIs(t, err, ErrUnsupportedSite, raw)
	}
}

func TestRegistryResolveIsCached(t *testing.T) {
	r := NewRegistry(nil)

	first, err := r.Resolve("https://jp.mercari.com/shops/product/abc")
	require.NoError(t, err)
	second, err := r.Resolve("https://jp.mercari.com/shops/product/abc")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, r.cache.Len())
}

func TestRegistryCacheIsPerHost(t *testing.T) {
	r := NewRegistry(nil)

	for i := 0; i < 50; i++ {
		s, err := r.Resolve(fmt.Sprintf("https://jp.mercari.com/item/m%d", i))
		require.NoError(t, err)
		assert.Empty(t, s.PathPrefix)
	}
	shops, err := r.Resolve("https://JP.mercari.com/shops/product/abc")
	require.NoError(t, err)
	assert.Equal(t, "/shops/product/", shops.PathPrefix)

	_, err = r.Resolve("https://example.com/a")
	assert.ErrorIs(t, err, ErrUnsupportedSite)
	_, err = r.Resolve("https://example.com/b")
	assert.ErrorIs(t, err, ErrUnsupportedSite)

	assert.Equal(t, 2, r.cache.Len())
}

func TestRegistryForSite(t *testing.T) {
	r := NewRegistry(nil)

	s, err := r.ForSite(SiteMercari)
	require.NoError(t, err)
	assert.Empty(t, s.PathPrefix)

	_, err = r.ForSite("amazon")
	assert.ErrorIs(t, err, ErrUnsupportedSite)

	assert.Equal(t, []string{
		SiteMercari, SiteOffmall, SiteRakuma, SiteSnkrdunk, SiteSurugaya, SiteYahoo, SiteYahuoku,
	}, r.Sites())
}
