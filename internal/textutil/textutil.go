package textutil

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English, cases.NoLower)

// HTMLToText strips markup from article HTML and collapses whitespace,
// producing the plain text fed to the generation backend. Script and style
// contents are dropped entirely. Input that fails to parse is returned with
// whitespace collapsed, tags and all, rather than lost.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseWhitespace(html)
	}
	doc.Find("script, style, noscript").Remove()
	return collapseWhitespace(doc.Text())
}

// NormalizeTitle trims an article title and title-cases it when the source
// delivered it entirely in lower case. Mixed-case titles pass through
// untouched.
func NormalizeTitle(title string) string {
	trimmed := collapseWhitespace(title)
	if trimmed == "" {
		return ""
	}
	if trimmed == strings.ToLower(trimmed) {
		return titleCaser.String(trimmed)
	}
	return trimmed
}

// Truncate shortens s to at most limit runes, appending an ellipsis when
// anything was cut.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
