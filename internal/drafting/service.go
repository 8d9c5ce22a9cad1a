// Package drafting creates and revises posts with the generator.
package drafting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/teknowguy/autopilot-backend/internal/content"
	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/gate"
	"github.com/teknowguy/autopilot-backend/internal/generator"
	"github.com/teknowguy/autopilot-backend/internal/notify"
	"github.com/teknowguy/autopilot-backend/internal/poststore"
)

const Operation = "draft"

const (
	CategoryQuickNews = "Tech News"
	CategoryBreaking  = "Breaking"
	CategoryTips      = "Pro Tips"
)

const (
	PhaseAnalyzing = "Analyzing Vectors..."
	PhaseSaving    = "Committing to mission memory..."
)

var (
	ErrEmptyTopic        = errors.New("topic is required")
	ErrSelectionNotFound = errors.New("selection not found in post body")
	ErrContentType       = errors.New("unknown content type")
)

type ComposeRequest struct {
	Topic       string             `json:"topic"`
	Context     string             `json:"context"`
	ContentType domain.ContentType `json:"contentType"`
	PublishAt   time.Time          `json:"publishAt"`
}

type Service struct {
	store    *poststore.Store
	gen      generator.Generator
	gate     *gate.Gate
	notifier *notify.Notifier
	logger   *zap.SugaredLogger
	now      func() time.Time
	newID    func() string

	searches singleflight.Group
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store *poststore.Store, gen generator.Generator, g *gate.Gate, notifier *notify.Notifier, logger *zap.SugaredLogger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Service{
		store:    store,
		gen:      gen,
		gate:     g,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RefreshTrends searches with the active profile's seed and stores the result.
// Concurrent refreshes for the same profile share one search.
func (s *Service) RefreshTrends(ctx context.Context) ([]domain.Trend, error) {
	profile := s.store.Profile()
	v, err, shared := s.searches.Do(string(profile.ID), func() (interface{}, error) {
		s.notifier.Progress(ctx, notify.Progress{Operation: "trends", Phase: "Scanning global news vectors...", Percent: 20})
		defer s.notifier.Done(ctx, "trends")

		trends, err := s.gen.Search(ctx, profile.Prompts.NewsSearch)
		if err != nil {
			return nil, err
		}
		// A profile switch during the search invalidates the result.
		if s.store.Profile().ID != profile.ID {
			return trends, nil
		}
		if err := s.store.SetTrends(ctx, trends); err != nil {
			return nil, err
		}
		return trends, nil
	})
	if err != nil {
		s.logger.Warnw("Trend refresh failed", "profile", profile.ID, "error", err)
		return nil, err
	}
	s.logger.Infow("Trends refreshed", "profile", profile.ID, "shared", shared)
	return append([]domain.Trend(nil), v.([]domain.Trend)...), nil
}

// QuickPublish drafts a post from a trend and schedules it for now, so the
// next poll tick deploys it.
func (s *Service) QuickPublish(ctx context.Context, trend domain.Trend) (domain.Post, error) {
	if strings.TrimSpace(trend.Title) == "" {
		return domain.Post{}, ErrEmptyTopic
	}
	post, err := s.draft(ctx, generator.ArticleRequest{Topic: trend.Title, ContentType: domain.ContentNews}, func(p *domain.Post) {
		if p.Title == "" {
			p.Title = trend.Title
		}
		if p.Excerpt == "" {
			p.Excerpt = trend.Snippet
		}
		p.Category = CategoryQuickNews
		p.ScheduledDate = s.now()
		p.SourceURL = trend.URL
	})
	if err != nil {
		s.notifier.Notify(ctx, notify.KindError, "Sequence Error: "+err.Error())
		return domain.Post{}, err
	}
	s.notifier.Notify(ctx, notify.KindSuccess, "News drafted successfully.")
	return post, nil
}

// Compose drafts a post on a topic scheduled at req.PublishAt.
func (s *Service) Compose(ctx context.Context, req ComposeRequest) (domain.Post, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return domain.Post{}, ErrEmptyTopic
	}
	if req.ContentType == "" {
		req.ContentType = domain.ContentNews
	}
	if !req.ContentType.Valid() {
		return domain.Post{}, fmt.Errorf("%w %q", ErrContentType, req.ContentType)
	}
	publishAt := req.PublishAt
	if publishAt.IsZero() {
		publishAt = s.now()
	}

	post, err := s.draft(ctx, generator.ArticleRequest{
		Topic:       req.Topic,
		Context:     req.Context,
		ContentType: req.ContentType,
	}, func(p *domain.Post) {
		if p.Title == "" {
			p.Title = req.Topic
		}
		p.Category = CategoryBreaking
		if req.ContentType == domain.ContentTip {
			p.Category = CategoryTips
		}
		p.ScheduledDate = publishAt.UTC()
	})
	if err != nil {
		s.notifier.Notify(ctx, notify.KindError, err.Error())
		return domain.Post{}, err
	}
	s.notifier.Notify(ctx, notify.KindSuccess, "Mission drafted and scheduled.")
	return post, nil
}

// draft holds the gate while generating, then prepends the new SCHEDULED post.
func (s *Service) draft(ctx context.Context, req generator.ArticleRequest, finish func(*domain.Post)) (domain.Post, error) {
	release, err := s.gate.TryAcquire(Operation)
	if err != nil {
		return domain.Post{}, err
	}
	defer release()
	defer s.notifier.Done(ctx, Operation)

	profile := s.store.Profile()
	req.PromptSeed = profile.Prompts.EditorialGen

	s.notifier.Progress(ctx, notify.Progress{Operation: Operation, Phase: PhaseAnalyzing, Percent: 10})
	article, err := s.gen.GenerateArticle(ctx, req)
	if err != nil {
		return domain.Post{}, fmt.Errorf("generate article: %w", err)
	}

	title := article.Title
	if title == "" {
		title = req.Topic
	}
	s.notifier.Progress(ctx, notify.Progress{Operation: Operation, Phase: "Capturing visual: " + title + "...", Percent: 60})
	image, err := s.gen.GenerateImage(ctx, title, profile.Prompts.ImageGen)
	if err != nil || image == "" {
		if err != nil && !errors.Is(err, generator.ErrUnsupported) {
			s.logger.Warnw("Image generation failed, using fallback", "error", err)
		}
		image = content.CropImageURL(profile.FallbackImage())
	}

	post := domain.Post{
		ID:          s.newID(),
		Title:       article.Title,
		Excerpt:     article.Excerpt,
		FullBody:    article.FullBody,
		ImageURL:    image,
		ContentType: req.ContentType,
		Status:      domain.StatusScheduled,
		SEOKeywords: article.SEOKeywords,
		Variations:  article.Variations,
	}
	if post.SEOKeywords == nil {
		post.SEOKeywords = []string{}
	}
	if post.Variations == nil {
		post.Variations = []domain.SocialVariation{}
	}
	finish(&post)

	s.notifier.Progress(ctx, notify.Progress{Operation: Operation, Phase: PhaseSaving, Percent: 90, PostID: post.ID})
	if err := s.store.Prepend(ctx, post); err != nil {
		return domain.Post{}, err
	}
	saved, _ := s.store.Find(post.ID)
	s.logger.Infow("Post drafted", "post_id", post.ID, "title", saved.Title, "scheduled_for", saved.ScheduledDate)
	return saved, nil
}

// Rewrite revises the body of a post. With an empty selection the whole body
// is rewritten; otherwise the first occurrence of selection is replaced.
func (s *Service) Rewrite(ctx context.Context, postID, selection, instruction string) (domain.Post, error) {
	post, ok := s.store.Find(postID)
	if !ok {
		return domain.Post{}, poststore.ErrNotFound
	}

	target := post.FullBody
	if selection != "" {
		if !strings.Contains(post.FullBody, selection) {
			return post, ErrSelectionNotFound
		}
		target = selection
		if instruction == "" {
			instruction = "Enhance details."
		}
	} else if instruction == "" {
		instruction = "Rewrite body for higher authority."
	}

	result, err := s.gen.Rewrite(ctx, target, post.FullBody, instruction)
	if err != nil {
		s.notifier.Notify(ctx, notify.KindError, "Recalibration failure.")
		return post, fmt.Errorf("rewrite: %w", err)
	}

	body := result
	if selection != "" {
		body = strings.Replace(post.FullBody, selection, result, 1)
	}

	var saved domain.Post
	err = s.store.Update(ctx, func(current []domain.Post) ([]domain.Post, error) {
		for i := range current {
			if current[i].ID == postID {
				current[i].FullBody = body
				saved = current[i].Clone()
				return current, nil
			}
		}
		return nil, poststore.ErrNotFound
	})
	if err != nil {
		s.notifier.Notify(ctx, notify.KindError, "Recalibration failure.")
		return post, err
	}
	s.notifier.Notify(ctx, notify.KindSuccess, "Segment recalibrated.")
	return saved, nil
}
