package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips query", "https://jp.mercari.com/item/m123?source=search", "https://jp.mercari.com/item/m123"},
		{"strips fragment", "https://www.suruga-ya.jp/product/detail/1#top", "https://www.suruga-ya.jp/product/detail/1"},
		{"unchanged", "https://fril.jp/item/abc", "https://fril.jp/item/abc"},
		{"trims space", "  https://fril.jp/item/abc?x=1 ", "https://fril.jp/item/abc"},
		{"relative", "/item/m1?x=1", "/item/m1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestGenerateSKU(t *testing.T) {
	a := GenerateSKU("mercari", "https://jp.mercari.com/item/m123?x=1", 0)
	b := GenerateSKU("mercari", "https://jp.mercari.com/item/m123", 0)

	assert.Equal(t, a, b)
	assert.Regexp(t, `^MER-[0-9a-f]{10}$`, a)
	assert.Equal(t, a+"-2", GenerateSKU("mercari", "https://jp.mercari.com/item/m123", 2))
}

func TestPatrolResultSuccess(t *testing.T) {
	ok := PatrolResult{URL: "https://x", Price: IntPtr(100)}
	assert.True(t, ok.Success())
	assert.Nil(t, ok.Error)

	failed := PatrolFailure("https://x", "navigation failed")
	assert.False(t, failed.Success())
	require.NotNil(t, failed.Error)

	data, err := json.Marshal(failed)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"success":false`)
	assert.Contains(t, string(data), `"error":"navigation failed"`)
}

func TestScrapedItemSucceeded(t *testing.T) {
	assert.False(t, ErrorItem("https://x?y=1").Succeeded())
	assert.Equal(t, "https://x", ErrorItem("https://x?y=1").URL)
	assert.False(t, ScrapedItem{Status: StatusActive}.Succeeded())
	assert.True(t, ScrapedItem{Title: "t", Status: StatusSold}.Succeeded())
}

func TestDefaultVariant(t *testing.T) {
	v := DefaultVariant(IntPtr(500), StatusActive)
	assert.Equal(t, []string{DefaultVariantName}, v.OptionValues)
	assert.Equal(t, 1, v.StockQty)
	assert.Equal(t, 0, DefaultVariant(nil, StatusSold).StockQty)
}
