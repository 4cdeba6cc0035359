// Package textutil holds the text normalization shared by fingerprinting,
// keyword filtering, and sentiment tokenization.
package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	wordRegex       = regexp.MustCompile(`[a-z']+`)
)

// Normalize lowercases s, trims it, and collapses whitespace runs to single
// spaces. Two strings that differ only in case or spacing normalize equal.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// CollapseSpace collapses whitespace runs to single spaces without touching
// case. Extracted field values pass through here.
func CollapseSpace(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// ContainsAny reports whether text contains at least one of the keywords,
// ignoring case and spacing. An empty keyword list matches nothing.
func ContainsAny(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	n := Normalize(text)
	for _, kw := range keywords {
		kw = Normalize(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(n, kw) {
			return true
		}
	}
	return false
}

// Tokens splits text into lowercase word tokens, dropping punctuation and
// digits.
func Tokens(text string) []string {
	return wordRegex.FindAllString(Normalize(text), -1)
}

// StripTags reduces an HTML fragment to its text: markup is dropped, script
// and style subtrees are skipped, entities are decoded, whitespace is
// collapsed. Feed descriptions arrive as fragments like this. Plain text
// passes through unchanged.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return CollapseSpace(s)
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return CollapseSpace(s)
	}

	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return CollapseSpace(b.String())
}
