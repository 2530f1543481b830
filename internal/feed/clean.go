package feed

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MaxTitleRunes caps stored titles.
const MaxTitleRunes = 400

const minTitleRunes = 20

// stopPatterns mark navigation and promo entries that feeds mix in with news.
var stopPatterns = []string{
	"скачать приложение", "rss", "лента", "подпис", "подробнее",
	"читать далее", "подкаст", "комментарии", "о проекте", "карта сайта",
}

// GoodTitle reports whether t looks like a news headline: at least 20
// characters and free of navigation boilerplate.
func GoodTitle(t string) bool {
	tl := strings.ToLower(strings.TrimSpace(t))
	if tl == "" {
		return false
	}
	for _, p := range stopPatterns {
		if strings.Contains(tl, p) {
			return false
		}
	}
	return utf8.RuneCountInString(tl) >= minTitleRunes
}

// blockElements get a trailing space so adjacent blocks do not run together.
const blockElements = "p, div, br, li, h1, h2, h3, h4, h5, h6, tr, td, blockquote"

// CleanHTML extracts readable text from an HTML fragment. Plain text is
// returned trimmed.
func CleanHTML(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find(blockElements).AppendHtml(" ")
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
