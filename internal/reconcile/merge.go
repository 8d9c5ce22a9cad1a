// Package reconcile merges the blog's post list into the local store.
package reconcile

import (
	"strings"
	"time"

	"github.com/teknowguy/autopilot-backend/internal/blogapi"
	"github.com/teknowguy/autopilot-backend/internal/content"
	"github.com/teknowguy/autopilot-backend/internal/domain"
)

const (
	DefaultTitle    = "Untitled Intelligence"
	ArchiveCategory = "Cloud Archive"
)

// Merge keeps every local post that has never been published, followed by the
// remote posts. Remote records replace previously synced local copies. The
// result holds at most one post per dedup key; the first occurrence wins.
func Merge(local, remote []domain.Post) []domain.Post {
	merged := make([]domain.Post, 0, len(local)+len(remote))
	seen := make(map[string]struct{}, len(local)+len(remote))

	add := func(p domain.Post) {
		key := domain.DedupKey(p)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, p)
	}

	for _, p := range local {
		if !p.HasExternalID() {
			add(p)
		}
	}
	for _, p := range remote {
		add(p)
	}
	return merged
}

// ToPost maps a listed remote post into a LIVE local record. newID supplies an
// id when the remote one is empty.
func ToPost(r blogapi.RemotePost, now time.Time, fallbackImage string, newID func() string) domain.Post {
	id := string(r.ID)
	localID := id
	if localID == "" {
		localID = newID()
	}

	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = DefaultTitle
	}

	excerpt := content.PlainText(r.Excerpt)
	if excerpt == "" {
		excerpt = content.Excerpt(r.Content, content.ImportExcerptLength)
	}

	image := r.CoverImage
	if image == "" {
		image = fallbackImage
	}

	post := domain.Post{
		ID:            localID,
		ExternalID:    id,
		Title:         title,
		Excerpt:       excerpt,
		FullBody:      r.Content,
		ImageURL:      image,
		Category:      ArchiveCategory,
		ContentType:   domain.ContentNews,
		Status:        domain.StatusLive,
		ScheduledDate: now,
		SEOKeywords:   append([]string{}, r.Tags...),
		Variations:    []domain.SocialVariation{},
	}
	if published := r.PublishedTime(); published != nil {
		post.ScheduledDate = *published
		post.PublishedAt = published
	}
	return post
}
