package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/blogapi"
	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/gate"
	"github.com/teknowguy/autopilot-backend/internal/notify"
	"github.com/teknowguy/autopilot-backend/internal/poststore"
)

const Operation = "sync"

const PhaseDownload = "Downloading Cloud Repository..."

type Lister interface {
	List(ctx context.Context, apiKey string) ([]blogapi.RemotePost, error)
}

type Recorder interface {
	RecordSync(ctx context.Context, outcome string)
	RecordBusySkip(ctx context.Context, operation, holder string)
}

type Reconciler struct {
	store    *poststore.Store
	remote   Lister
	gate     *gate.Gate
	notifier *notify.Notifier
	metrics  Recorder
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func New(store *poststore.Store, remote Lister, g *gate.Gate, notifier *notify.Notifier, metrics Recorder, logger *zap.SugaredLogger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reconciler{
		store:    store,
		remote:   remote,
		gate:     g,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Sync pulls the blog's posts and merges them into the store. On any failure
// the store is left untouched.
func (r *Reconciler) Sync(ctx context.Context) ([]domain.Post, error) {
	release, err := r.gate.TryAcquire(Operation)
	if err != nil {
		holder, _ := r.gate.Holder()
		if r.metrics != nil {
			r.metrics.RecordBusySkip(ctx, Operation, holder.Operation)
		}
		return nil, err
	}
	defer release()
	defer r.notifier.Done(ctx, Operation)

	r.notifier.Progress(ctx, notify.Progress{Operation: Operation, Phase: PhaseDownload, Percent: 10})

	posts, err := r.sync(ctx)
	if err != nil {
		r.record(ctx, "failure")
		r.logger.Warnw("Cloud sync failed", "error", err)
		r.notifier.Notify(ctx, notify.KindError, "Uplink Error: "+errorMessage(err))
		return nil, err
	}
	r.record(ctx, "success")
	return posts, nil
}

func (r *Reconciler) sync(ctx context.Context) ([]domain.Post, error) {
	remote, err := r.remote.List(ctx, r.store.Credentials().BlogAPIKey)
	if err != nil {
		return nil, err
	}

	now := r.now()
	fallback := r.store.Profile().FallbackImage()
	cloud := make([]domain.Post, 0, len(remote))
	skipped := 0
	for _, rp := range remote {
		// Without a remote id the post could never be updated or matched on
		// the next sync.
		if rp.ID == "" {
			skipped++
			continue
		}
		cloud = append(cloud, ToPost(rp, now, fallback, uuid.NewString))
	}
	if skipped > 0 {
		r.logger.Warnw("Skipped remote posts without an id", "count", skipped)
	}

	r.notifier.Progress(ctx, notify.Progress{Operation: Operation, Phase: PhaseDownload, Percent: 80})

	if err := r.store.Update(ctx, func(current []domain.Post) ([]domain.Post, error) {
		return Merge(current, cloud), nil
	}); err != nil {
		return nil, fmt.Errorf("save merged posts: %w", err)
	}

	r.logger.Infow("Cloud sync complete", "remote", len(cloud))
	r.notifier.Notify(ctx, notify.KindSuccess, fmt.Sprintf("Archival memory restored: %d posts.", len(cloud)))
	return r.store.All(), nil
}

func (r *Reconciler) record(ctx context.Context, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordSync(ctx, outcome)
	}
}

func errorMessage(err error) string {
	var apiErr *blogapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
