package blogapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrMissingRemoteID means a create succeeded remotely but the response
	// carried no usable identifier. The post needs manual reconciliation.
	ErrMissingRemoteID = errors.New("blog API response did not include a post id")
	// ErrNoExternalID is the update precondition failure.
	ErrNoExternalID = errors.New("no external ID found for this post")
)

// APIError is a non-2xx answer from the blog API. Message is what the user sees.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// RemoteID accepts the id as either a JSON string or a JSON number.
type RemoteID string

func (r *RemoteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RemoteID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = RemoteID(n.String())
	return nil
}

// Tags accepts an array of strings or a comma-separated string.
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*t = out
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*t = list
	return nil
}

// RemotePost is one item of the list endpoint.
type RemotePost struct {
	ID          RemoteID `json:"id"`
	Title       string   `json:"title"`
	Excerpt     string   `json:"excerpt"`
	Content     string   `json:"content"`
	CoverImage  string   `json:"coverImage"`
	PublishedAt string   `json:"publishedAt"`
	Tags        Tags     `json:"tags"`
}

// PublishedTime parses PublishedAt, returning nil when absent or unparseable.
func (p RemotePost) PublishedTime() *time.Time {
	return parseTime(p.PublishedAt)
}

// Receipt is what a successful create tells us.
type Receipt struct {
	ID          string
	PublishedAt *time.Time
}

type payload struct {
	Title       string   `json:"title"`
	Excerpt     string   `json:"excerpt"`
	Content     string   `json:"content"`
	Status      string   `json:"status"`
	CoverImage  string   `json:"coverImage"`
	Tags        []string `json:"tags"`
	PublishedAt string   `json:"publishedAt,omitempty"`
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
