// Package app assembles the autopilot services from configuration. Both
// binaries build through it so they share one storage namespace and one
// busy gate per process.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/api"
	"github.com/teknowguy/autopilot-backend/internal/blogapi"
	"github.com/teknowguy/autopilot-backend/internal/config"
	"github.com/teknowguy/autopilot-backend/internal/deploy"
	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/drafting"
	"github.com/teknowguy/autopilot-backend/internal/events"
	"github.com/teknowguy/autopilot-backend/internal/gate"
	"github.com/teknowguy/autopilot-backend/internal/generator"
	"github.com/teknowguy/autopilot-backend/internal/log"
	"github.com/teknowguy/autopilot-backend/internal/metrics"
	"github.com/teknowguy/autopilot-backend/internal/notify"
	"github.com/teknowguy/autopilot-backend/internal/poststore"
	"github.com/teknowguy/autopilot-backend/internal/reconcile"
	"github.com/teknowguy/autopilot-backend/internal/scheduler"
	"github.com/teknowguy/autopilot-backend/internal/social"
	"github.com/teknowguy/autopilot-backend/internal/ws"
	"github.com/teknowguy/autopilot-backend/pkg/kv"
	_ "github.com/teknowguy/autopilot-backend/pkg/kv/memory"
	_ "github.com/teknowguy/autopilot-backend/pkg/kv/postgres"
	_ "github.com/teknowguy/autopilot-backend/pkg/kv/redis"
)

type App struct {
	Config *config.Config

	KV         kv.Store
	Bus        *events.Bus
	Store      *poststore.Store
	Gate       *gate.Gate
	Notifier   *notify.Notifier
	Blog       *blogapi.Client
	Sequencer  *deploy.Sequencer
	Poller     *scheduler.Poller
	Reconciler *reconcile.Reconciler
	Drafting   *drafting.Service
	Social     *social.Service
	Hub        *ws.Hub
	SSE        *ws.SSEHandler

	Metrics        *metrics.Metrics
	MetricsHandler http.Handler

	logger *zap.SugaredLogger
}

// Build opens storage and wires every service. The caller owns Close.
func Build(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	a := &App{Config: cfg, logger: logger}

	m, handler, err := metrics.Setup("autopilot")
	if err != nil {
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}
	a.Metrics, a.MetricsHandler = m, handler

	storeLogger := log.Named(logger, "kv")
	a.KV, err = kv.NewStoreFromConfig(kv.Config{
		Backend:          kv.Backend(cfg.Storage.Backend),
		RedisURL:         cfg.Storage.RedisURL,
		PostgresDSN:      cfg.Storage.PostgresDSN,
		FallbackToMemory: cfg.Storage.FallbackToMemory,
		Logger:           storeLogger.Warnw,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	a.Store, err = poststore.Open(ctx, a.KV, poststore.Options{
		KeyPrefix:         cfg.Storage.KeyPrefix,
		DefaultBlogAPIKey: cfg.Blog.APIKey,
		Logger:            log.Named(logger, "poststore"),
	})
	if err != nil {
		a.KV.Close()
		return nil, fmt.Errorf("failed to load post store: %w", err)
	}

	a.Bus = events.NewBus(cfg.Events.RedisAddr, log.Named(logger, "events"))
	a.Store.OnChange(func(posts []domain.Post) {
		if err := a.Bus.Publish(context.Background(), events.ChannelPosts, posts); err != nil {
			logger.Warnw("Failed to publish posts snapshot", "error", err)
		}
	})

	a.Gate = gate.New()
	a.Notifier = notify.New(a.Bus, cfg.Notify.TTL, log.Named(logger, "notify"), notify.WithRecorder(m))

	a.Blog = blogapi.New(cfg.Blog.BaseURL, cfg.Blog.Timeout, log.Named(logger, "blogapi"))
	a.Sequencer = deploy.NewSequencer(a.Store, a.Blog, a.Gate, a.Notifier, m, log.Named(logger, "deploy"))
	a.Poller = scheduler.New(a.Store, a.Sequencer, scheduler.Config{
		Interval: cfg.Scheduler.Interval,
		Metrics:  m,
	}, log.Named(logger, "scheduler"))
	a.Reconciler = reconcile.New(a.Store, a.Blog, a.Gate, a.Notifier, m, log.Named(logger, "reconcile"))

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Drafting = drafting.New(a.Store, gen, a.Gate, a.Notifier, log.Named(logger, "drafting"))

	dispatcher := social.NewDispatcher(social.Config{
		ProxyURL:  cfg.Social.ProxyURL,
		GraphURL:  cfg.Social.GraphURL,
		Signature: cfg.Social.Signature,
		Timeout:   cfg.Social.Timeout,
	}, log.Named(logger, "social"))
	a.Social = social.NewService(a.Store, dispatcher, a.Notifier, log.Named(logger, "social"))

	origins := append([]string{cfg.PublicURL}, cfg.Security.CORSAllowedOrigins...)
	a.Hub = ws.NewHub(a.Bus, origins, m, log.Named(logger, "ws"))
	a.SSE = ws.NewSSEHandler(a.Bus, origins, log.Named(logger, "sse"))

	logger.Infow("Services assembled",
		"storage", cfg.Storage.Backend,
		"events_in_memory", a.Bus.InMemory(),
		"llm_enabled", cfg.LLMEnabled(),
		"posts", len(a.Store.All()),
	)
	return a, nil
}

func newGenerator(cfg *config.Config, logger *zap.SugaredLogger) (generator.Generator, error) {
	if !cfg.LLMEnabled() {
		logger.Warnw("No LLM API key configured, drafting is disabled")
		return generator.Disabled{}, nil
	}
	llm, err := generator.NewLLM(generator.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		ImageModel: cfg.LLM.ImageModel,
		ImageSize:  cfg.LLM.ImageSize,
		Timeout:    cfg.LLM.Timeout,
	}, log.Named(logger, "generator"))
	if err != nil {
		return nil, err
	}
	return llm, nil
}

// Handler builds the HTTP router with /metrics mounted.
func (a *App) Handler() http.Handler {
	h := api.NewHandler(api.Deps{
		Store:      a.Store,
		Sequencer:  a.Sequencer,
		Reconciler: a.Reconciler,
		Drafting:   a.Drafting,
		Social:     a.Social,
		Notifier:   a.Notifier,
		Gate:       a.Gate,
		Poller:     a.Poller,
		Hub:        a.Hub,
		SSE:        a.SSE,
		Checks: map[string]api.Pinger{
			"storage": a.KV,
			"events":  a.Bus,
		},
	}, log.Named(a.logger, "api"))

	router := h.Routes(api.NewMiddleware(a.logger, a.Metrics), a.Config.Security.CORSAllowedOrigins, a.Config.Security.RateLimitRPM)
	router.Handle("/metrics", a.MetricsHandler)
	return router
}

func (a *App) Close() error {
	var firstErr error
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			firstErr = err
		}
	}
	if a.KV != nil {
		if err := a.KV.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
