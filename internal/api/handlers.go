package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/blogapi"
	"github.com/teknowguy/autopilot-backend/internal/deploy"
	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/drafting"
	"github.com/teknowguy/autopilot-backend/internal/gate"
	"github.com/teknowguy/autopilot-backend/internal/generator"
	"github.com/teknowguy/autopilot-backend/internal/notify"
	"github.com/teknowguy/autopilot-backend/internal/poststore"
	"github.com/teknowguy/autopilot-backend/internal/reconcile"
	"github.com/teknowguy/autopilot-backend/internal/scheduler"
	"github.com/teknowguy/autopilot-backend/internal/social"
	"github.com/teknowguy/autopilot-backend/internal/ws"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services exposed over HTTP. Hub, SSE, Poller and the readiness
// checks are optional.
type Deps struct {
	Store      *poststore.Store
	Sequencer  *deploy.Sequencer
	Reconciler *reconcile.Reconciler
	Drafting   *drafting.Service
	Social     *social.Service
	Notifier   *notify.Notifier
	Gate       *gate.Gate
	Poller     *scheduler.Poller
	Hub        *ws.Hub
	SSE        *ws.SSEHandler
	Checks     map[string]Pinger
}

type Handler struct {
	store      *poststore.Store
	sequencer  *deploy.Sequencer
	reconciler *reconcile.Reconciler
	drafting   *drafting.Service
	social     *social.Service
	notifier   *notify.Notifier
	gate       *gate.Gate
	poller     *scheduler.Poller
	wsHub      *ws.Hub
	sseHandler *ws.SSEHandler
	checks     map[string]Pinger
	now        func() time.Time
	logger     *zap.SugaredLogger
}

func NewHandler(deps Deps, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		store:      deps.Store,
		sequencer:  deps.Sequencer,
		reconciler: deps.Reconciler,
		drafting:   deps.Drafting,
		social:     deps.Social,
		notifier:   deps.Notifier,
		gate:       deps.Gate,
		poller:     deps.Poller,
		wsHub:      deps.Hub,
		sseHandler: deps.SSE,
		checks:     deps.Checks,
		now:        time.Now,
		logger:     logger,
	}
}

// Health and ops endpoints
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warnw("Readiness check failed", "check", name, "error", err)
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", name+": "+err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// GetStatus reports the busy holder, the running progress, the live
// notification and the scheduler state.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Posts:     countPosts(h.store.All(), h.now()),
		Timestamp: h.now(),
	}
	if holder, ok := h.gate.Holder(); ok {
		resp.Busy = true
		resp.Holder = &holder
	}
	if p, ok := h.notifier.LastProgress(); ok {
		resp.Progress = &p
	}
	if n, ok := h.notifier.Current(); ok {
		resp.Notification = &n
	}
	if h.poller != nil {
		resp.Scheduler = h.poller.Status()
	}
	if h.wsHub != nil {
		resp.Clients = h.wsHub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func countPosts(posts []domain.Post, now time.Time) PostCounts {
	c := PostCounts{Total: len(posts)}
	for _, p := range posts {
		switch p.Status {
		case domain.StatusDraft:
			c.Draft++
		case domain.StatusScheduled:
			c.Scheduled++
		case domain.StatusPublished:
			c.Published++
		case domain.StatusLive:
			c.Live++
		}
		if p.IsDue(now) {
			c.Due++
		}
	}
	return c
}

func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	resp := NotificationResponse{}
	if n, ok := h.notifier.Current(); ok {
		resp.Notification = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ClearNotification(w http.ResponseWriter, r *http.Request) {
	h.notifier.Clear(r.Context())
	writeJSON(w, http.StatusOK, NotificationResponse{})
}

// WebSocket endpoint
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "websocket hub not running")
		return
	}
	h.wsHub.HandleWebSocket(w, r)
}

// SSE endpoint
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if h.sseHandler == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "event stream not configured")
		return
	}
	h.sseHandler.HandleSSE(w, r)
}

// fail maps a service error to a status and code.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("API error", "request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path, "code", code, "error", err)
	} else {
		h.logger.Infow("Request rejected", "request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path, "code", code, "error", err)
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	var apiErr *blogapi.APIError
	switch {
	case errors.Is(err, gate.ErrBusy):
		return http.StatusConflict, "BUSY"
	case errors.Is(err, poststore.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, poststore.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "INVALID_TRANSITION"
	case errors.Is(err, drafting.ErrEmptyTopic), errors.Is(err, drafting.ErrSelectionNotFound), errors.Is(err, drafting.ErrContentType):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, social.ErrFacebookCredentialsMissing):
		return http.StatusPreconditionFailed, "CREDENTIALS_MISSING"
	case errors.Is(err, social.ErrUnsupportedPlatform):
		return http.StatusBadRequest, "UNSUPPORTED_PLATFORM"
	case errors.Is(err, social.ErrVariationNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, generator.ErrGeneratorDisabled), errors.Is(err, generator.ErrUnsupported):
		return http.StatusNotImplemented, "GENERATOR_UNAVAILABLE"
	case errors.As(err, &apiErr), errors.Is(err, blogapi.ErrMissingRemoteID), errors.Is(err, blogapi.ErrNoExternalID):
		return http.StatusBadGateway, "UPSTREAM_FAILED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(dest)
}

// Utility methods
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}
