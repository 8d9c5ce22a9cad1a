package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultImageSize = "1536x1024"
)

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// imageClient talks to the images endpoints of an OpenAI-compatible API.
type imageClient struct {
	http  *resty.Client
	fetch *resty.Client
	model string
	size  string
}

func newImageClient(baseURL, apiKey, model, size string, timeout time.Duration) *imageClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if size == "" {
		size = defaultImageSize
	}
	return &imageClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetAuthToken(apiKey).
			SetHeader("Accept", "application/json"),
		fetch: resty.New().SetTimeout(timeout),
		model: model,
		size:  size,
	}
}

func (c *imageClient) generate(ctx context.Context, prompt string) (string, error) {
	var out imageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(imageRequest{Model: c.model, Prompt: prompt, N: 1, Size: c.size}).
		SetResult(&out).
		SetError(&out).
		Post("/images/generations")
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	return imageResult(resp, &out)
}

func (c *imageClient) edit(ctx context.Context, imageRef, prompt string) (string, error) {
	raw, err := c.load(ctx, imageRef)
	if err != nil {
		return "", err
	}

	var out imageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("image", "image.png", bytes.NewReader(raw)).
		SetFormData(map[string]string{
			"model":  c.model,
			"prompt": prompt,
			"n":      "1",
		}).
		SetResult(&out).
		SetError(&out).
		Post("/images/edits")
	if err != nil {
		return "", fmt.Errorf("edit image: %w", err)
	}
	return imageResult(resp, &out)
}

// load returns the bytes behind a data URI or a remote URL.
func (c *imageClient) load(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "data:") {
		comma := strings.IndexByte(ref, ',')
		if comma < 0 || !strings.Contains(ref[:comma], ";base64") {
			return nil, fmt.Errorf("%w: unsupported data uri", ErrMalformedOutput)
		}
		raw, err := base64.StdEncoding.DecodeString(ref[comma+1:])
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		return raw, nil
	}

	resp, err := c.fetch.R().SetContext(ctx).Get(ref)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

func imageResult(resp *resty.Response, out *imageResponse) (string, error) {
	if !resp.IsSuccess() {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("image api: %d: %s", resp.StatusCode(), out.Error.Message)
		}
		return "", fmt.Errorf("image api: status %d", resp.StatusCode())
	}
	if len(out.Data) == 0 {
		return "", fmt.Errorf("%w: no image returned", ErrMalformedOutput)
	}
	if b64 := out.Data[0].B64JSON; b64 != "" {
		return "data:image/png;base64," + b64, nil
	}
	if url := out.Data[0].URL; url != "" {
		return url, nil
	}
	return "", fmt.Errorf("%w: empty image payload", ErrMalformedOutput)
}
