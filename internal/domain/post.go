package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusScheduled Status = "SCHEDULED"
	StatusPublished Status = "PUBLISHED"
	StatusLive      Status = "LIVE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublished, StatusLive:
		return true
	}
	return false
}

type ContentType string

const (
	ContentNews ContentType = "News"
	ContentTip  ContentType = "Tip"
)

func (c ContentType) Valid() bool {
	return c == ContentNews || c == ContentTip
}

type Platform string

const (
	PlatformX         Platform = "X"
	PlatformLinkedIn  Platform = "LinkedIn"
	PlatformInstagram Platform = "Instagram"
	PlatformFacebook  Platform = "Facebook"
)

type VariationStatus string

const (
	VariationDraft       VariationStatus = "draft"
	VariationDispatching VariationStatus = "dispatching"
	VariationPublished   VariationStatus = "published"
	VariationFailed      VariationStatus = "failed"
)

// SocialVariation is a platform-specific spinoff of a post.
type SocialVariation struct {
	Platform Platform        `json:"platform"`
	Content  string          `json:"content"`
	Hashtags []string        `json:"hashtags,omitempty"`
	Status   VariationStatus `json:"status"`
}

// Message is the text posted to the platform: content, then hashtags.
func (v SocialVariation) Message() string {
	if len(v.Hashtags) == 0 {
		return v.Content
	}
	return v.Content + "\n\n" + strings.Join(v.Hashtags, " ")
}

// Post is the unit of content and scheduling. ExternalID is set once the blog
// API has accepted the post and selects update over create from then on.
type Post struct {
	ID            string            `json:"id"`
	ExternalID    string            `json:"externalId,omitempty"`
	Title         string            `json:"title"`
	Excerpt       string            `json:"excerpt"`
	FullBody      string            `json:"fullBody"`
	ImageURL      string            `json:"imageUrl,omitempty"`
	Category      string            `json:"category,omitempty"`
	ContentType   ContentType       `json:"contentType"`
	Status        Status            `json:"status"`
	ScheduledDate time.Time         `json:"scheduledDate"`
	PublishedAt   *time.Time        `json:"publishedAt,omitempty"`
	SEOKeywords   []string          `json:"seoKeywords"`
	Variations    []SocialVariation `json:"variations"`
	SourceURL     string            `json:"sourceUrl,omitempty"`
}

// ErrInvalidTransition is returned when an edit would move a post into a state
// only the deployment path may set.
var ErrInvalidTransition = errors.New("invalid status transition")

// DedupKey is the identity used when merging collections.
func DedupKey(p Post) string {
	if p.ExternalID != "" {
		return p.ExternalID
	}
	return p.ID
}

func (p Post) HasExternalID() bool {
	return p.ExternalID != ""
}

// IsDue reports whether the poller should deploy p at now.
func (p Post) IsDue(now time.Time) bool {
	return p.Status == StatusScheduled && !p.ScheduledDate.IsZero() && !p.ScheduledDate.After(now)
}

// DisplayDate prefers the remote publish time once known.
func (p Post) DisplayDate() time.Time {
	if p.PublishedAt != nil && !p.PublishedAt.IsZero() {
		return *p.PublishedAt
	}
	return p.ScheduledDate
}

// Clone returns a copy that shares no slices with p.
func (p Post) Clone() Post {
	out := p
	if p.SEOKeywords != nil {
		out.SEOKeywords = append([]string(nil), p.SEOKeywords...)
	}
	if p.Variations != nil {
		out.Variations = make([]SocialVariation, len(p.Variations))
		for i, v := range p.Variations {
			v.Hashtags = append([]string(nil), v.Hashtags...)
			out.Variations[i] = v
		}
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		out.PublishedAt = &t
	}
	return out
}

// CheckTransition validates an editor change from before to after.
func CheckTransition(before, after Post) error {
	if !after.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, after.Status)
	}
	if after.Status == StatusLive && before.Status != StatusLive {
		return fmt.Errorf("%w: %s -> LIVE is reserved for deployment", ErrInvalidTransition, before.Status)
	}
	if before.Status == StatusLive && after.Status == StatusScheduled && after.ScheduledDate.Equal(before.ScheduledDate) {
		return fmt.Errorf("%w: LIVE -> SCHEDULED requires a new scheduledDate", ErrInvalidTransition)
	}
	return nil
}
