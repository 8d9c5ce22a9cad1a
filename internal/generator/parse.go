package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teknowguy/autopilot-backend/internal/domain"
)

// extractJSON pulls the JSON document out of model output that may be wrapped
// in a code fence or surrounded by prose.
func extractJSON(text string, open, close byte) []byte {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if json.Valid([]byte(s)) {
		return []byte(s)
	}
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return nil
	}
	return []byte(s[start : end+1])
}

func parseTrends(text string) ([]domain.Trend, error) {
	raw := extractJSON(text, '[', ']')
	if raw == nil {
		return nil, ErrMalformedOutput
	}
	var trends []domain.Trend
	if err := json.Unmarshal(raw, &trends); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	out := trends[:0]
	for _, t := range trends {
		if t.Title = strings.TrimSpace(t.Title); t.Title != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

type rawVariation struct {
	Platform domain.Platform `json:"platform"`
	Content  string          `json:"content"`
	Hashtags []string        `json:"hashtags"`
}

type rawArticle struct {
	Title       string         `json:"title"`
	Excerpt     string         `json:"excerpt"`
	FullBody    string         `json:"fullBody"`
	Content     string         `json:"content"`
	Body        string         `json:"body"`
	Article     string         `json:"article"`
	SEOKeywords []string       `json:"seoKeywords"`
	Variations  []rawVariation `json:"variations"`
}

var bodyCleaner = strings.NewReplacer("```html", "", "```HTML", "", "```", "", `\n`, "\n", `\"`, `"`)

func parseArticle(text string) (Article, error) {
	raw := extractJSON(text, '{', '}')
	if raw == nil {
		return Article{}, ErrMalformedOutput
	}
	var ra rawArticle
	if err := json.Unmarshal(raw, &ra); err != nil {
		return Article{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	body := ra.FullBody
	for _, alt := range []string{ra.Content, ra.Body, ra.Article} {
		if body != "" {
			break
		}
		body = alt
	}

	article := Article{
		Title:       strings.TrimSpace(ra.Title),
		Excerpt:     strings.TrimSpace(ra.Excerpt),
		FullBody:    strings.TrimSpace(bodyCleaner.Replace(body)),
		SEOKeywords: ra.SEOKeywords,
		Variations:  make([]domain.SocialVariation, 0, len(ra.Variations)),
	}
	if article.SEOKeywords == nil {
		article.SEOKeywords = []string{}
	}
	for _, v := range ra.Variations {
		article.Variations = append(article.Variations, domain.SocialVariation{
			Platform: v.Platform,
			Content:  strings.TrimSpace(v.Content),
			Hashtags: v.Hashtags,
			Status:   domain.VariationDraft,
		})
	}
	return article, nil
}
