// Package content holds the HTML hygiene applied to posts before they are
// stored or submitted: plain-text excerpts, paragraph formatting of bodies and
// cover image discovery.
package content

import (
	"bytes"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

const (
	// ImportExcerptLength bounds excerpts synthesised for imported posts.
	ImportExcerptLength = 150
	// SubmitExcerptLength bounds excerpts sent to the blog API.
	SubmitExcerptLength = 250
)

var (
	stripPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

	markdown = goldmark.New(goldmark.WithRendererOptions(gmhtml.WithUnsafe()))
)

// PlainText removes all markup from s. The result never contains '<'.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	text := html.UnescapeString(stripPolicy.Sanitize(s))
	text = strings.ReplaceAll(text, "<", "")
	return strings.Join(strings.Fields(text), " ")
}

// Excerpt returns at most limit runes of the plain text of s.
func Excerpt(s string, limit int) string {
	return truncate(PlainText(s), limit)
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}

// FormatBody turns a plain-text body into paragraph HTML. Bodies that already
// start with markup are returned unchanged.
func FormatBody(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || strings.HasPrefix(trimmed, "<") {
		return body
	}

	var lines []string
	for _, line := range strings.Split(trimmed, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(strings.Join(lines, "\n\n")), &buf); err != nil {
		return paragraphs(lines)
	}
	return strings.TrimSpace(buf.String())
}

func paragraphs(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>")
	}
	return b.String()
}

// FirstImage returns the src of the first <img> in an HTML fragment.
func FirstImage(fragment string) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

// CropImageURL appends the crop parameters used for generated cover fallbacks.
func CropImageURL(base string) string {
	if base == "" || strings.Contains(base, "?") {
		return base
	}
	return base + "?auto=format&fit=crop&q=80&w=2070"
}
