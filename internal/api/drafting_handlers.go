package api

import (
	"context"
	"net/http"

	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/drafting"
)

func (h *Handler) ListTrends(w http.ResponseWriter, r *http.Request) {
	trends := h.store.Trends()
	if trends == nil {
		trends = []domain.Trend{}
	}
	writeJSON(w, http.StatusOK, TrendListResponse{Trends: trends})
}

func (h *Handler) RefreshTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.drafting.RefreshTrends(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TrendListResponse{Trends: trends})
}

// QuickPublish drafts a post from a trend and schedules it for the next tick.
func (h *Handler) QuickPublish(w http.ResponseWriter, r *http.Request) {
	var trend domain.Trend
	if err := decodeJSON(w, r, &trend); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	post, err := h.drafting.QuickPublish(context.WithoutCancel(r.Context()), trend)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (h *Handler) Compose(w http.ResponseWriter, r *http.Request) {
	var req drafting.ComposeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	post, err := h.drafting.Compose(context.WithoutCancel(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}
