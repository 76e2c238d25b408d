package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var priceTokenRe = regexp.MustCompile(`\d[\d,]*`)

var fullWidthReplacer = strings.NewReplacer(
	"０", "0", "１", "1", "２", "2", "３", "3", "４", "4",
	"５", "5", "６", "6", "７", "7", "８", "8", "９", "9",
	"，", ",", "￥", "¥",
)

// ParsePrice returns the first integer-looking token of s with thousands
// separators removed. It returns nil when s holds no digits; zero is a
// valid price and is never used to mean unknown.
func ParsePrice(s string) *int {
	v, ok := ParsePriceValue(s)
	if !ok {
		return nil
	}
	return &v
}

func ParsePriceValue(s string) (int, bool) {
	s = fullWidthReplacer.Replace(s)
	token := priceTokenRe.FindString(s)
	if token == "" {
		return 0, false
	}
	v, err := strconv.Atoi(strings.ReplaceAll(token, ",", ""))
	if err != nil {
		return 0, false
	}
	return v, true
}
