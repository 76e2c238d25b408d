package extract

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Lookup walks decoded JSON by map keys and array indexes.
func Lookup(v any, path ...string) (any, bool) {
	cur := v
	for _, key := range path {
		switch t := cur.(type) {
		case map[string]any:
			next, ok := t[key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(t) {
				return nil, false
			}
			cur = t[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// LookupString returns a non-empty trimmed string at path.
func LookupString(v any, path ...string) (string, bool) {
	raw, ok := Lookup(v, path...)
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

// LookupInt returns an integer at path, accepting numbers and numeric
// strings such as "1,980".
func LookupInt(v any, path ...string) (int, bool) {
	raw, ok := Lookup(v, path...)
	if !ok {
		return 0, false
	}
	return AsInt(raw)
}

func AsInt(raw any) (int, bool) {
	switch t := raw.(type) {
	case float64:
		return int(t), true
	case json.Number:
		f, err := t.Float64()
		return int(f), err == nil
	case string:
		return ParsePriceValue(t)
	case int:
		return t, true
	}
	return 0, false
}

// LookupBool returns a boolean at path.
func LookupBool(v any, path ...string) (bool, bool) {
	raw, ok := Lookup(v, path...)
	if !ok {
		return false, false
	}
	b, ok := raw.(bool)
	return b, ok
}

// LookupSlice returns an array at path.
func LookupSlice(v any, path ...string) ([]any, bool) {
	raw, ok := Lookup(v, path...)
	if !ok {
		return nil, false
	}
	s, ok := raw.([]any)
	return s, ok && len(s) > 0
}
