package domain

import "strings"

// Trend is a news item surfaced by the generative search.
type Trend struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
	URL     string `json:"url"`
}

type ConnectionMode string

const (
	ConnectionDirect ConnectionMode = "direct"
	ConnectionProxy  ConnectionMode = "proxy"
)

const DefaultAdobeExpressEndpoint = "https://api.adobe.io/content/v1/assets"

type Credentials struct {
	BlogAPIKey           string         `json:"blogApiKey"`
	FacebookToken        string         `json:"facebookToken,omitempty"`
	FacebookPageID       string         `json:"facebookPageId,omitempty"`
	AdobeExpressEndpoint string         `json:"adobeExpressEndpoint"`
	AutoPilotEnabled     bool           `json:"autoPilotEnabled"`
	ConnectionMode       ConnectionMode `json:"connectionMode"`
}

// DefaultCredentials seeds the credentials slot on first start.
func DefaultCredentials(blogAPIKey string) Credentials {
	return Credentials{
		BlogAPIKey:           strings.TrimSpace(blogAPIKey),
		AdobeExpressEndpoint: DefaultAdobeExpressEndpoint,
		ConnectionMode:       ConnectionDirect,
	}
}

// Masked hides secrets for display.
func (c Credentials) Masked() Credentials {
	out := c
	out.BlogAPIKey = mask(c.BlogAPIKey)
	out.FacebookToken = mask(c.FacebookToken)
	return out
}

func (c Credentials) HasFacebook() bool {
	return c.FacebookToken != "" && c.FacebookPageID != ""
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
