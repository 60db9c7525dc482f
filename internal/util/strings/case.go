package strings

import (
	"strings"
	"unicode"
)

// words splits an identifier where its case changes and at underscores,
// keeping runs of capitals together: HTTPRequest is HTTP, Request.
func words(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	cut := func(end int) {
		if end > start {
			out = append(out, string(runes[start:end]))
		}
		start = end
	}
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			cut(i)
			start = i + 1
		case i > start && unicode.IsUpper(r):
			prev := runes[i-1]
			acronymEnd := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || acronymEnd {
				cut(i)
			}
		}
	}
	cut(len(runes))
	return out
}

// SnakeCase is the default table or column name for a type or field name:
// LineItem becomes line_item and orderID becomes order_id.
func SnakeCase(s string) string {
	return strings.ToLower(strings.Join(words(s), "_"))
}

// LowerCamel lowercases a leading run of capitals, turning an exported Go
// field name into a persistent field name (ID -> id, URLPath -> urlPath).
func LowerCamel(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n > 1 && n < len(runes) && unicode.IsLower(runes[n]) {
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
