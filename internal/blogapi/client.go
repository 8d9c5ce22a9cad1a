// Package blogapi is the Remote Publisher: create, update and list posts on
// the blog API.
package blogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/content"
	"github.com/teknowguy/autopilot-backend/internal/domain"
)

const postsPath = "/api/blog/posts"

// DefaultTags are sent when a post has no SEO keywords.
var DefaultTags = []string{"Tech", "AI", "News"}

type Client struct {
	http   *resty.Client
	logger *zap.SugaredLogger
}

type Option func(*Client)

func New(baseURL string, timeout time.Duration, logger *zap.SugaredLogger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) request(ctx context.Context, apiKey string) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", strings.TrimSpace(apiKey))
}

// List fetches every post the blog knows about.
func (c *Client) List(ctx context.Context, apiKey string) ([]RemotePost, error) {
	resp, err := c.request(ctx, apiKey).Get(postsPath)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &APIError{
			Op:      "list",
			Status:  resp.StatusCode(),
			Message: fmt.Sprintf("Failed to fetch cloud repository: %d", resp.StatusCode()),
		}
	}

	posts, err := decodeList(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("list posts: malformed response: %w", err)
	}
	c.logger.Debugw("Fetched remote posts", "count", len(posts))
	return posts, nil
}

func decodeList(body []byte) ([]RemotePost, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []RemotePost{}, nil
	}
	if body[0] == '[' {
		var posts []RemotePost
		err := json.Unmarshal(body, &posts)
		return posts, err
	}

	var wrapped struct {
		Data []RemotePost `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Data == nil {
		return []RemotePost{}, nil
	}
	return wrapped.Data, nil
}

// Create publishes a post that has no remote identity yet.
func (c *Client) Create(ctx context.Context, apiKey string, post domain.Post) (Receipt, error) {
	body := newPayload(post, true)

	resp, err := c.request(ctx, apiKey).SetBody(body).Post(postsPath)
	if err != nil {
		return Receipt{}, fmt.Errorf("create post: %w", err)
	}
	if !resp.IsSuccess() {
		return Receipt{}, apiError("create", resp.StatusCode(), resp.Body(),
			fmt.Sprintf("Site API Error: %d", resp.StatusCode()))
	}

	receipt, err := decodeReceipt(resp.Body())
	if err != nil {
		return Receipt{}, err
	}
	c.logger.Infow("Created remote post", "post_id", post.ID, "external_id", receipt.ID)
	return receipt, nil
}

// decodeReceipt reads the id from either {id} or {data: {id}}.
func decodeReceipt(body []byte) (Receipt, error) {
	var envelope struct {
		ID          RemoteID `json:"id"`
		PublishedAt string   `json:"publishedAt"`
		Data        *struct {
			ID          RemoteID `json:"id"`
			PublishedAt string   `json:"publishedAt"`
		} `json:"data"`
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &envelope); err != nil {
			return Receipt{}, fmt.Errorf("%w: malformed response: %v", ErrMissingRemoteID, err)
		}
	}

	receipt := Receipt{ID: string(envelope.ID), PublishedAt: parseTime(envelope.PublishedAt)}
	if envelope.Data != nil {
		if receipt.ID == "" {
			receipt.ID = string(envelope.Data.ID)
		}
		if receipt.PublishedAt == nil {
			receipt.PublishedAt = parseTime(envelope.Data.PublishedAt)
		}
	}
	if receipt.ID == "" {
		return Receipt{}, ErrMissingRemoteID
	}
	return receipt, nil
}

// Update revises a post that already exists remotely.
func (c *Client) Update(ctx context.Context, apiKey string, post domain.Post) error {
	if post.ExternalID == "" {
		return ErrNoExternalID
	}
	body := newPayload(post, false)

	resp, err := c.request(ctx, apiKey).
		SetPathParam("externalId", post.ExternalID).
		SetBody(body).
		Put(postsPath + "/{externalId}")
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if !resp.IsSuccess() {
		return apiError("update", resp.StatusCode(), resp.Body(),
			fmt.Sprintf("Update Error: %d", resp.StatusCode()))
	}
	c.logger.Infow("Updated remote post", "post_id", post.ID, "external_id", post.ExternalID)
	return nil
}

func apiError(op string, status int, body []byte, fallback string) *APIError {
	var data struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := fallback
	if err := json.Unmarshal(body, &data); err == nil {
		switch {
		case strings.TrimSpace(data.Error) != "":
			msg = data.Error
		case strings.TrimSpace(data.Message) != "":
			msg = data.Message
		}
	}
	return &APIError{Op: op, Status: status, Message: msg}
}

func newPayload(post domain.Post, withPublishedAt bool) payload {
	excerptSource := post.Excerpt
	if strings.TrimSpace(excerptSource) == "" {
		excerptSource = post.FullBody
	}

	cover := post.ImageURL
	if cover == "" {
		cover = content.FirstImage(post.FullBody)
	}

	tags := post.SEOKeywords
	if len(tags) == 0 {
		tags = DefaultTags
	}

	p := payload{
		Title:      strings.TrimSpace(post.Title),
		Excerpt:    content.Excerpt(excerptSource, content.SubmitExcerptLength),
		Content:    content.FormatBody(post.FullBody),
		Status:     "published",
		CoverImage: cover,
		Tags:       append([]string(nil), tags...),
	}
	if withPublishedAt {
		switch {
		case post.PublishedAt != nil && !post.PublishedAt.IsZero():
			p.PublishedAt = post.PublishedAt.UTC().Format(time.RFC3339)
		case !post.ScheduledDate.IsZero():
			p.PublishedAt = post.ScheduledDate.UTC().Format(time.RFC3339)
		}
	}
	return p
}
