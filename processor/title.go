package processor

import (
	"strings"

	"golang.org/x/net/html"
)

// Marketplace APIs return titles with search-term highlighting markup and a
// handful of HTML entities. entityReplacer decodes the entities the feeds
// actually emit; anything rarer passes through untouched.
var entityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// CleanTitle decodes common HTML entities, strips tags and collapses
// whitespace. Input that is not well-formed HTML degrades to a best-effort
// plain-text rendering rather than an error.
func CleanTitle(raw string) string {
	if raw == "" {
		return ""
	}

	decoded := entityReplacer.Replace(raw)
	if !strings.ContainsAny(decoded, "<>") {
		return collapseSpaces(decoded)
	}

	var sb strings.Builder
	tok := html.NewTokenizer(strings.NewReader(decoded))
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			sb.Write(tok.Text())
		}
	}
	return collapseSpaces(sb.String())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
