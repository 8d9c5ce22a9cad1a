package social

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/notify"
	"github.com/teknowguy/autopilot-backend/internal/poststore"
)

// Publisher is the subset of Dispatcher the service needs.
type Publisher interface {
	PublishToFacebook(ctx context.Context, creds domain.Credentials, text, link string) (bool, error)
}

type Service struct {
	store    *poststore.Store
	pub      Publisher
	notifier *notify.Notifier
	logger   *zap.SugaredLogger
}

func NewService(store *poststore.Store, pub Publisher, notifier *notify.Notifier, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, pub: pub, notifier: notifier, logger: logger}
}

// DispatchVariation sends variation index of postID and records the outcome on
// the post.
func (s *Service) DispatchVariation(ctx context.Context, postID string, index int) (domain.Post, error) {
	post, ok := s.store.Find(postID)
	if !ok {
		return domain.Post{}, poststore.ErrNotFound
	}
	if index < 0 || index >= len(post.Variations) {
		return post, fmt.Errorf("%w: index %d", ErrVariationNotFound, index)
	}
	variation := post.Variations[index]
	if variation.Platform != domain.PlatformFacebook {
		return post, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, variation.Platform)
	}

	creds := s.store.Credentials()
	if !creds.HasFacebook() {
		s.notifier.Notify(ctx, notify.KindError, "Facebook Credentials Missing")
		return post, ErrFacebookCredentialsMissing
	}

	post, err := s.setStatus(ctx, postID, index, domain.VariationDispatching)
	if err != nil {
		return post, err
	}

	ok, sendErr := s.pub.PublishToFacebook(ctx, creds, variation.Message(), post.ImageURL)
	status := domain.VariationPublished
	if sendErr != nil || !ok {
		status = domain.VariationFailed
	}

	post, err = s.setStatus(ctx, postID, index, status)
	if err != nil {
		return post, err
	}

	if status == domain.VariationFailed {
		if sendErr == nil {
			sendErr = ErrDispatchRejected
		}
		s.logger.Warnw("Variation dispatch failed", "post_id", postID, "index", index, "error", sendErr)
		s.notifier.Notify(ctx, notify.KindError, "Meta Broadcast Failed.")
		return post, sendErr
	}
	s.logger.Infow("Variation dispatched", "post_id", postID, "index", index, "platform", variation.Platform)
	s.notifier.Notify(ctx, notify.KindSuccess, "Meta Broadcast Dispatched.")
	return post, nil
}

func (s *Service) setStatus(ctx context.Context, postID string, index int, status domain.VariationStatus) (domain.Post, error) {
	var updated domain.Post
	err := s.store.Update(ctx, func(current []domain.Post) ([]domain.Post, error) {
		for i := range current {
			if current[i].ID != postID {
				continue
			}
			if index >= len(current[i].Variations) {
				return nil, fmt.Errorf("variation %d out of range", index)
			}
			current[i].Variations[index].Status = status
			updated = current[i].Clone()
			return current, nil
		}
		return nil, poststore.ErrNotFound
	})
	return updated, err
}
