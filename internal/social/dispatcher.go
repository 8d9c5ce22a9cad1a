// Package social broadcasts post variations to social platforms through the
// publishing proxy.
package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/domain"
)

var (
	ErrFacebookCredentialsMissing = errors.New("facebook credentials missing")
	ErrUnsupportedPlatform        = errors.New("platform has no dispatch uplink")
	ErrVariationNotFound          = errors.New("variation not found")
	ErrDispatchRejected           = errors.New("facebook rejected the post")
)

type Config struct {
	ProxyURL  string
	GraphURL  string
	Signature string
	Timeout   time.Duration
}

// Dispatcher posts to the Facebook Graph feed via the proxy.
type Dispatcher struct {
	cfg    Config
	http   *resty.Client
	logger *zap.SugaredLogger
}

func NewDispatcher(cfg Config, logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		cfg:    cfg,
		http:   resty.New().SetTimeout(cfg.Timeout),
		logger: logger,
	}
}

type feedRequest struct {
	Message     string `json:"message"`
	Link        string `json:"link"`
	AccessToken string `json:"access_token"`
}

// PublishToFacebook reports whether the proxy accepted the post. Transport
// failures are returned as errors; a rejected post is (false, nil).
func (d *Dispatcher) PublishToFacebook(ctx context.Context, creds domain.Credentials, text, link string) (bool, error) {
	if !creds.HasFacebook() {
		return false, ErrFacebookCredentialsMissing
	}

	message := text
	if d.cfg.Signature != "" {
		message = text + "\n\n" + d.cfg.Signature
	}
	target := fmt.Sprintf("%s/%s/feed", strings.TrimRight(d.cfg.GraphURL, "/"), strings.TrimSpace(creds.FacebookPageID))

	resp, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-proxy-api-key", strings.TrimSpace(creds.BlogAPIKey)).
		SetHeader("x-target-url", target).
		SetBody(feedRequest{
			Message:     message,
			Link:        link,
			AccessToken: strings.TrimSpace(creds.FacebookToken),
		}).
		Post(d.cfg.ProxyURL)
	if err != nil {
		return false, fmt.Errorf("facebook dispatch: %w", err)
	}
	if !resp.IsSuccess() {
		d.logger.Warnw("Facebook dispatch rejected", "status", resp.StatusCode(), "page_id", creds.FacebookPageID)
		return false, nil
	}
	return true, nil
}
