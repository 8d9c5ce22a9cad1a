// Package deploy pushes a single post to the blog and records the outcome.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/blogapi"
	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/gate"
	"github.com/teknowguy/autopilot-backend/internal/notify"
	"github.com/teknowguy/autopilot-backend/internal/poststore"
)

const Operation = "deploy"

const (
	ModeCreate = "create"
	ModeUpdate = "update"
)

// User-facing messages.
const (
	PhaseUpdate     = "Syncing Revisions..."
	PhaseCreate     = "Deploying Site Protocol..."
	PhaseFinalizing = "Finalizing"

	MessageUpdated = "Intelligence Reposted Successfully."
	MessageCreated = "Initial Orchestration Live."
	MessageFailure = "Uplink Failure"
)

// Remote is the blog API surface the sequencer drives.
type Remote interface {
	Create(ctx context.Context, apiKey string, post domain.Post) (blogapi.Receipt, error)
	Update(ctx context.Context, apiKey string, post domain.Post) error
}

type Recorder interface {
	RecordDeployment(ctx context.Context, mode, outcome string, duration time.Duration)
	RecordBusySkip(ctx context.Context, operation, holder string)
}

type Sequencer struct {
	store    *poststore.Store
	remote   Remote
	gate     *gate.Gate
	notifier *notify.Notifier
	metrics  Recorder
	logger   *zap.SugaredLogger
}

func NewSequencer(store *poststore.Store, remote Remote, g *gate.Gate, notifier *notify.Notifier, metrics Recorder, logger *zap.SugaredLogger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Sequencer{
		store:    store,
		remote:   remote,
		gate:     g,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// Deploy creates or updates post on the blog. A post with an external id is
// always updated, never re-created.
//
// When the gate is held Deploy returns the input unchanged and an error
// matching gate.ErrBusy, without touching the network or notifications. On
// failure the stored post is left as it was.
func (s *Sequencer) Deploy(ctx context.Context, post domain.Post) (result domain.Post, err error) {
	release, err := s.gate.TryAcquire(Operation)
	if err != nil {
		holder, _ := s.gate.Holder()
		if s.metrics != nil {
			s.metrics.RecordBusySkip(ctx, Operation, holder.Operation)
		}
		s.logger.Debugw("Deploy skipped, gate busy", "post_id", post.ID, "holder", holder.Operation)
		return post, err
	}

	mode := ModeCreate
	phase := PhaseCreate
	if post.HasExternalID() {
		mode = ModeUpdate
		phase = PhaseUpdate
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("Deploy panicked", "post_id", post.ID, "panic", r)
			s.notifier.Notify(ctx, notify.KindError, MessageFailure)
			result, err = post, fmt.Errorf("deploy %s: panic: %v", post.ID, r)
		}
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		if s.metrics != nil {
			s.metrics.RecordDeployment(ctx, mode, outcome, time.Since(start))
		}
		s.notifier.Done(ctx, Operation)
		release()
	}()

	s.notifier.Progress(ctx, notify.Progress{Operation: Operation, Phase: phase, Percent: 10, PostID: post.ID})
	if post.Status == domain.StatusScheduled {
		s.notifier.Notify(ctx, notify.KindBridge, fmt.Sprintf("AUTO-LAUNCH: Deploying %s...", post.Title))
	}

	apiKey := s.store.Credentials().BlogAPIKey
	baseline, _ := s.store.Find(post.ID)
	deployed := post.Clone()
	deployed.Status = domain.StatusLive

	if mode == ModeUpdate {
		err = s.remote.Update(ctx, apiKey, post)
	} else {
		var receipt blogapi.Receipt
		receipt, err = s.remote.Create(ctx, apiKey, post)
		if err == nil {
			deployed.ExternalID = receipt.ID
			if receipt.PublishedAt != nil {
				t := *receipt.PublishedAt
				deployed.PublishedAt = &t
			}
		}
	}
	if err != nil {
		s.logger.Warnw("Deploy failed", "post_id", post.ID, "mode", mode, "error", err)
		s.notifier.Notify(ctx, notify.KindError, failureMessage(err))
		return post, fmt.Errorf("deploy %s: %w", post.ID, err)
	}

	s.notifier.Progress(ctx, notify.Progress{Operation: Operation, Phase: PhaseFinalizing, Percent: 80, PostID: post.ID})

	// Edits do not take the gate. The submitted copy is what the blog now
	// holds, so it wins over an edit made during the remote call.
	if current, ok := s.store.Find(post.ID); ok && !reflect.DeepEqual(current, baseline) {
		s.logger.Warnw("Post edited during deploy, keeping the deployed copy", "post_id", post.ID, "external_id", deployed.ExternalID)
	}
	replaced, err := s.store.ReplaceIfPresent(ctx, deployed)
	if err != nil {
		// The blog has the post; only the local record is stale.
		s.logger.Errorw("Deployed post could not be saved", "post_id", post.ID, "external_id", deployed.ExternalID, "error", err)
		s.notifier.Notify(ctx, notify.KindError, failureMessage(err))
		return post, fmt.Errorf("deploy %s: save: %w", post.ID, err)
	}
	if !replaced {
		s.logger.Warnw("Post removed during deploy, not restoring it", "post_id", post.ID, "external_id", deployed.ExternalID)
	}

	if mode == ModeUpdate {
		s.notifier.Notify(ctx, notify.KindSuccess, MessageUpdated)
	} else {
		s.notifier.Notify(ctx, notify.KindSuccess, MessageCreated)
	}
	s.logger.Infow("Post deployed", "post_id", post.ID, "external_id", deployed.ExternalID, "mode", mode)
	return deployed, nil
}

func failureMessage(err error) string {
	var apiErr *blogapi.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, blogapi.ErrMissingRemoteID), errors.Is(err, blogapi.ErrNoExternalID):
		return err.Error()
	default:
		return MessageFailure
	}
}
