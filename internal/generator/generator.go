// Package generator is the generative collaborator: trend search, article
// drafting and text rewriting.
package generator

import (
	"context"
	"errors"

	"github.com/teknowguy/autopilot-backend/internal/domain"
)

var (
	ErrUnsupported       = errors.New("operation not supported by this generator")
	ErrGeneratorDisabled = errors.New("generator is not configured")
	ErrMalformedOutput   = errors.New("intelligence formatting error")
)

// ArticleRequest carries the profile prompt seed explicitly.
type ArticleRequest struct {
	Topic       string
	Context     string
	ContentType domain.ContentType
	PromptSeed  string
}

type Article struct {
	Title       string                   `json:"title"`
	Excerpt     string                   `json:"excerpt"`
	FullBody    string                   `json:"fullBody"`
	SEOKeywords []string                 `json:"seoKeywords"`
	Variations  []domain.SocialVariation `json:"variations"`
}

type Generator interface {
	Search(ctx context.Context, promptSeed string) ([]domain.Trend, error)
	GenerateArticle(ctx context.Context, req ArticleRequest) (Article, error)
	// GenerateImage returns a data URI or remote URL.
	GenerateImage(ctx context.Context, title, promptSeed string) (string, error)
	Rewrite(ctx context.Context, text, surrounding, instruction string) (string, error)
	EditImage(ctx context.Context, imageRef, instruction string) (string, error)
}

// Disabled is used when no model is configured.
type Disabled struct{}

func (Disabled) Search(context.Context, string) ([]domain.Trend, error) {
	return nil, ErrGeneratorDisabled
}

func (Disabled) GenerateArticle(context.Context, ArticleRequest) (Article, error) {
	return Article{}, ErrGeneratorDisabled
}

func (Disabled) GenerateImage(context.Context, string, string) (string, error) {
	return "", ErrGeneratorDisabled
}

func (Disabled) Rewrite(context.Context, string, string, string) (string, error) {
	return "", ErrGeneratorDisabled
}

func (Disabled) EditImage(context.Context, string, string) (string, error) {
	return "", ErrGeneratorDisabled
}
