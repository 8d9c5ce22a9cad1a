package generator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/domain"
)

const rewriteContextLimit = 500

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration

	// ImageModel enables GenerateImage and EditImage when set.
	ImageModel string
	ImageSize  string
}

// LLM drives an OpenAI-compatible chat model through langchaingo.
type LLM struct {
	model     llms.Model
	modelName string
	images    *imageClient
	logger    *zap.SugaredLogger
}

func NewLLM(cfg Config, logger *zap.SugaredLogger) (*LLM, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	g := NewWithModel(model, cfg.Model, logger)
	if cfg.ImageModel != "" {
		g.images = newImageClient(cfg.BaseURL, cfg.APIKey, cfg.ImageModel, cfg.ImageSize, cfg.Timeout)
	}
	return g, nil
}

func NewWithModel(model llms.Model, modelName string, logger *zap.SugaredLogger) *LLM {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LLM{model: model, modelName: modelName, logger: logger}
}

func (g *LLM) complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if g.modelName != "" {
		opts = append(opts, llms.WithModel(g.modelName))
	}

	resp, err := g.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}
	return resp.Choices[0].Content, nil
}

// withRetry runs fn a second time if the first attempt fails.
func withRetry[T any](ctx context.Context, logger *zap.SugaredLogger, op string, fn func(attempt int) (T, error)) (T, error) {
	v, err := fn(0)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		return v, err
	}
	logger.Warnw("Generation failed, retrying", "op", op, "error", err)
	return fn(1)
}

const editorSystemPrompt = "You are the editorial engine of an autonomous publishing desk. Answer with JSON only when JSON is requested."

func (g *LLM) Search(ctx context.Context, promptSeed string) ([]domain.Trend, error) {
	return withRetry(ctx, g.logger, "search", func(attempt int) ([]domain.Trend, error) {
		prompt := promptSeed + " Return a JSON array of objects with title, snippet, source, and url."
		if attempt > 0 {
			prompt = fmt.Sprintf("Generate 5 trending topics matching this brief: %q. Be specific. Return a JSON array of objects with title, snippet, source, and url.", promptSeed)
		}
		text, err := g.complete(ctx, editorSystemPrompt, prompt, 0.4)
		if err != nil {
			return nil, err
		}
		return parseTrends(text)
	})
}

func (g *LLM) GenerateArticle(ctx context.Context, req ArticleRequest) (Article, error) {
	prompt := articlePrompt(req)
	return withRetry(ctx, g.logger, "article", func(int) (Article, error) {
		text, err := g.complete(ctx, editorSystemPrompt, prompt, 0.7)
		if err != nil {
			return Article{}, err
		}
		return parseArticle(text)
	})
}

func articlePrompt(req ArticleRequest) string {
	contentType := req.ContentType
	if contentType == "" {
		contentType = domain.ContentNews
	}
	integration := "Keep an authoritative, visionary tone."
	if strings.TrimSpace(req.Context) != "" {
		integration = fmt.Sprintf("Work in this internal insight: %q.", req.Context)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nTopic: %q\nType: %s\n\n", req.PromptSeed, req.Topic, contentType)
	b.WriteString("Write a hook, two or three sections under <h2> headings with HTML lists where useful, and a closing paragraph.\n")
	b.WriteString("The body is HTML only, no markdown and no images. Avoid dashes and hyphens in the prose.\n")
	b.WriteString(integration + "\n")
	b.WriteString("The excerpt is plain text with no HTML tags.\n")
	b.WriteString("Add one social variation each for LinkedIn, X and Facebook.\n\n")
	b.WriteString(`Return JSON: {"title": "", "excerpt": "", "fullBody": "<h2>...</h2><p>...</p>", "seoKeywords": [""], ` +
		`"variations": [{"platform": "LinkedIn", "content": "", "hashtags": ["#Tag"]}]}`)
	return b.String()
}

// GenerateImage returns a data URI or remote URL for a cover image. Without an
// image model it returns ErrUnsupported and callers use the profile fallback.
func (g *LLM) GenerateImage(ctx context.Context, title, promptSeed string) (string, error) {
	if g.images == nil {
		return "", ErrUnsupported
	}
	prompt := fmt.Sprintf("%s Subject: %q. Wide editorial cover photo, no text or lettering.", strings.TrimSpace(promptSeed), title)
	return withRetry(ctx, g.logger, "image", func(int) (string, error) {
		return g.images.generate(ctx, prompt)
	})
}

// Rewrite returns text unchanged when the model fails.
func (g *LLM) Rewrite(ctx context.Context, text, surrounding, instruction string) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		instruction = "Rewrite this to be more professional."
	}
	if runes := []rune(surrounding); len(runes) > rewriteContextLimit {
		surrounding = string(runes[:rewriteContextLimit])
	}
	prompt := fmt.Sprintf(
		"Rewrite this segment for a high quality editorial.\nORIGINAL TEXT: %q\nCONTEXT: %q\nINSTRUCTION: %q\n"+
			"Avoid dashes and hyphens. Keep existing HTML tags. Return only the rewritten text.",
		text, surrounding, instruction)

	out, err := g.complete(ctx, editorSystemPrompt, prompt, 0.5)
	if err != nil {
		g.logger.Warnw("Rewrite failed, keeping original", "error", err)
		return text, nil
	}
	if out = strings.TrimSpace(out); out == "" {
		return text, nil
	}
	return out, nil
}

func (g *LLM) EditImage(ctx context.Context, imageRef, instruction string) (string, error) {
	if g.images == nil {
		return "", ErrUnsupported
	}
	if strings.TrimSpace(instruction) == "" {
		instruction = "Enhance this image for an editorial cover."
	}
	return g.images.edit(ctx, imageRef, instruction)
}
