package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageTextSkipsScripts(t *testing.T) {
	p := mustPage(t, `<html><body><p>hello
   world</p><script>var price = "9,999円";</script><style>.x{}</style></body></html>`)

	assert.Equal(t, "hello world", p.Text())
}

func TestPageNextData(t *testing.T) {
	p := mustPage(t, `<html><body><script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"sp":{"item":{"name":"Bag","applicablePrice":3980,"stock":{"isSoldOut":false}}}}}}
</script></body></html>`)

	name, ok := LookupString(p.NextData(), "props", "pageProps", "sp", "item", "name")
	require.True(t, ok)
	assert.Equal(t, "Bag", name)

	price, ok := LookupInt(p.NextData(), "props", "pageProps", "sp", "item", "applicablePrice")
	require.True(t, ok)
	assert.Equal(t, 3980, price)

	sold, ok := LookupBool(p.NextData(), "props", "pageProps", "sp", "item", "stock", "isSoldOut")
	require.True(t, ok)
	assert.False(t, sold)

	_, ok = Lookup(p.NextData(), "props", "missing")
	assert.False(t, ok)
}

func TestPageJSONLDGraph(t *testing.T) {
	p := mustPage(t, `<html><head>
<script type="application/ld+json">{"@graph":[{"@type":"BreadcrumbList"},{"@type":["Product"],"name":"Shoe","image":["/a.jpg",{"url":"/b.jpg"}]}]}</script>
<script type="application/ld+json">not json</script>
</head><body></body></html>`)

	products := p.JSONLD("Product")
	require.Len(t, products, 1)
	assert.Equal(t, "Shoe", products[0]["name"])

	r := NewChain("images", JSONLDImages("jsonld")).Run(p)
	require.True(t, r.OK)
	assert.Equal(t, []string{"https://shop.test/a.jpg", "https://shop.test/b.jpg"}, r.Value)
}

func TestLookupArrayIndex(t *testing.T) {
	data := map[string]any{"items": []any{map[string]any{"price": "¥500"}}}

	v, ok := LookupInt(data, "items", "0", "price")
	require.True(t, ok)
	assert.Equal(t, 500, v)

	_, ok = Lookup(data, "items", "3")
	assert.False(t, ok)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Dedupe([]string{"a", "", "b", "a"}))
}
