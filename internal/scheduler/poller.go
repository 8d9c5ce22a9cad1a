// Package scheduler polls the post store and deploys scheduled posts whose
// time has come.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/gate"
)

const DefaultInterval = 30 * time.Second

type Source interface {
	All() []domain.Post
	Find(id string) (domain.Post, bool)
}

type Deployer interface {
	Deploy(ctx context.Context, post domain.Post) (domain.Post, error)
}

type Recorder interface {
	RecordPollTick(ctx context.Context, due int)
}

// TickReport summarises one pass over the store. Post ids are in store order.
type TickReport struct {
	Due      []string `json:"due"`
	Deployed []string `json:"deployed"`
	Skipped  []string `json:"skipped"`
	Failed   []string `json:"failed"`
}

type Config struct {
	Interval time.Duration
	Clock    Clock
	Metrics  Recorder
}

type Poller struct {
	posts    Source
	deployer Deployer
	clock    Clock
	interval time.Duration
	metrics  Recorder
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	engine   *cron.Cron
	cancel   context.CancelFunc
	lastTick time.Time
	last     TickReport
}

func New(posts Source, deployer Deployer, cfg Config, logger *zap.SugaredLogger) *Poller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &Poller{
		posts:    posts,
		deployer: deployer,
		clock:    cfg.Clock,
		interval: cfg.Interval,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Tick deploys every due post once, in store order. A busy gate skips the
// post until the next tick; a failed deploy never stops the pass.
func (p *Poller) Tick(ctx context.Context) (report TickReport) {
	now := p.clock.Now()
	for _, post := range p.posts.All() {
		if post.IsDue(now) {
			report.Due = append(report.Due, post.ID)
		}
	}
	if p.metrics != nil {
		p.metrics.RecordPollTick(ctx, len(report.Due))
	}

	for _, id := range report.Due {
		if ctx.Err() != nil {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		// Earlier deploys in this pass may have changed the store.
		post, ok := p.posts.Find(id)
		if !ok || !post.IsDue(now) {
			continue
		}

		err := p.deployOne(ctx, post)
		switch {
		case err == nil:
			report.Deployed = append(report.Deployed, id)
		case errors.Is(err, gate.ErrBusy):
			report.Skipped = append(report.Skipped, id)
		default:
			report.Failed = append(report.Failed, id)
			p.logger.Warnw("Scheduled deploy failed", "post_id", id, "error", err)
		}
	}

	if len(report.Due) > 0 {
		p.logger.Infow("Poll tick",
			"due", len(report.Due),
			"deployed", len(report.Deployed),
			"skipped", len(report.Skipped),
			"failed", len(report.Failed),
		)
	}

	p.mu.Lock()
	p.lastTick = now
	p.last = report
	p.mu.Unlock()
	return report
}

func (p *Poller) deployOne(ctx context.Context, post domain.Post) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deploy %s panicked: %v", post.ID, r)
		}
	}()
	_, err = p.deployer.Deploy(ctx, post)
	return err
}

// Start runs Tick on the configured interval until ctx is cancelled or Stop is
// called. Ticks that would overlap a running one are dropped.
func (p *Poller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	logger := cronLogger{p.logger}
	engine := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := engine.AddFunc(fmt.Sprintf("@every %s", p.interval), func() { p.Tick(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule poller: %w", err)
	}

	p.mu.Lock()
	if p.engine != nil {
		p.mu.Unlock()
		cancel()
		return errors.New("poller already started")
	}
	p.engine = engine
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.Infow("Starting schedule poller", "interval", p.interval.String())
	engine.Start()

	<-ctx.Done()
	<-engine.Stop().Done()

	p.mu.Lock()
	p.engine = nil
	p.cancel = nil
	p.mu.Unlock()
	p.logger.Infow("Schedule poller stopped")
	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status is reported by the status endpoint.
type Status struct {
	Running  bool          `json:"running"`
	Interval time.Duration `json:"interval"`
	LastTick *time.Time    `json:"lastTick,omitempty"`
	Last     TickReport    `json:"last"`
}

func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Status{Running: p.engine != nil, Interval: p.interval, Last: p.last}
	if !p.lastTick.IsZero() {
		t := p.lastTick
		s.LastTick = &t
	}
	return s
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
