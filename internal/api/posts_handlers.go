package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/gate"
	"github.com/teknowguy/autopilot-backend/internal/notify"
	"github.com/teknowguy/autopilot-backend/internal/poststore"
)

const (
	messageSaved  = "Mission memory synchronized."
	messagePurged = "Mission purged."
)

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts := h.store.All()
	writeJSON(w, http.StatusOK, PostListResponse{Posts: posts, Count: len(posts)})
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.store.Find(chi.URLParam(r, "id"))
	if !ok {
		h.fail(w, r, poststore.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// CreatePost stores a hand-written post at the top of the collection.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var post domain.Post
	if err := decodeJSON(w, r, &post); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.Status == "" {
		post.Status = domain.StatusDraft
	}
	if post.ContentType == "" {
		post.ContentType = domain.ContentNews
	}
	if !post.ContentType.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "contentType must be News or Tip")
		return
	}
	if post.ScheduledDate.IsZero() {
		post.ScheduledDate = h.now()
	}
	// New posts reach LIVE only through deployment.
	post.ExternalID = ""
	post.PublishedAt = nil
	if err := domain.CheckTransition(domain.Post{Status: domain.StatusDraft}, post); err != nil {
		h.fail(w, r, err)
		return
	}

	// A client-supplied id may not reuse another post's id or remote id.
	if err := h.store.Prepend(r.Context(), post); err != nil {
		h.fail(w, r, err)
		return
	}
	saved, _ := h.store.Find(post.ID)
	h.notifier.Notify(r.Context(), notify.KindSuccess, messageSaved)
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var post domain.Post
	if err := decodeJSON(w, r, &post); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	post.ID = chi.URLParam(r, "id")
	if post.ContentType != "" && !post.ContentType.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "contentType must be News or Tip")
		return
	}

	saved, err := h.store.Edit(r.Context(), post)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.notifier.Notify(r.Context(), notify.KindSuccess, messageSaved)
	writeJSON(w, http.StatusOK, saved)
}

// DeletePost removes the local copy only. The remote post is left in place.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !removed {
		h.fail(w, r, poststore.ErrNotFound)
		return
	}
	h.notifier.Notify(r.Context(), notify.KindInfo, messagePurged)
	writeJSON(w, http.StatusOK, MessageResponse{Message: messagePurged})
}

// DeployPost runs the deployment sequence for one post. The sequence is
// detached from the request so a client disconnect cannot strand the gate
// mid-operation.
func (h *Handler) DeployPost(w http.ResponseWriter, r *http.Request) {
	post, ok := h.store.Find(chi.URLParam(r, "id"))
	if !ok {
		h.fail(w, r, poststore.ErrNotFound)
		return
	}

	result, err := h.sequencer.Deploy(context.WithoutCancel(r.Context()), post)
	if err != nil {
		if errors.Is(err, gate.ErrBusy) {
			h.fail(w, r, err)
			return
		}
		h.logger.Warnw("Deployment failed", "post_id", post.ID, "error", err)
		writeError(w, http.StatusBadGateway, "DEPLOY_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) SyncPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.reconciler.Sync(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, gate.ErrBusy) {
			h.fail(w, r, err)
			return
		}
		h.logger.Warnw("Cloud sync failed", "error", err)
		writeError(w, http.StatusBadGateway, "SYNC_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PostListResponse{Posts: posts, Count: len(posts)})
}

func (h *Handler) RewritePost(w http.ResponseWriter, r *http.Request) {
	var req RewriteRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
			return
		}
	}

	post, err := h.drafting.Rewrite(r.Context(), chi.URLParam(r, "id"), req.Selection, req.Instruction)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *Handler) DispatchVariation(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "variation index must be an integer")
		return
	}

	post, err := h.social.DispatchVariation(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		status, _ := classify(err)
		if status != http.StatusInternalServerError {
			h.fail(w, r, err)
			return
		}
		h.logger.Warnw("Variation dispatch failed", "post_id", post.ID, "index", index, "error", err)
		writeError(w, http.StatusBadGateway, "DISPATCH_FAILED", err.Error())
		return
	}
	resp := DispatchResponse{Post: post}
	if index < len(post.Variations) {
		resp.Variation = post.Variations[index]
	}
	writeJSON(w, http.StatusOK, resp)
}
