package api

import (
	"net/http"
	"strings"

	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/notify"
)

// GetCredentials never returns secrets in the clear.
func (h *Handler) GetCredentials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Credentials().Masked())
}

// UpdateCredentials replaces the credentials slot. Secrets echoed back in
// their masked form keep the stored value.
func (h *Handler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	var req domain.Credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	current := h.store.Credentials()
	masked := current.Masked()
	if req.BlogAPIKey == masked.BlogAPIKey {
		req.BlogAPIKey = current.BlogAPIKey
	}
	if req.FacebookToken == masked.FacebookToken {
		req.FacebookToken = current.FacebookToken
	}
	req.BlogAPIKey = strings.TrimSpace(req.BlogAPIKey)
	req.FacebookPageID = strings.TrimSpace(req.FacebookPageID)
	if req.AdobeExpressEndpoint == "" {
		req.AdobeExpressEndpoint = domain.DefaultAdobeExpressEndpoint
	}
	switch req.ConnectionMode {
	case "":
		req.ConnectionMode = domain.ConnectionDirect
	case domain.ConnectionDirect, domain.ConnectionProxy:
	default:
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "connectionMode must be direct or proxy")
		return
	}

	if err := h.store.SetCredentials(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.notifier.Notify(r.Context(), notify.KindSuccess, "Uplink credentials stored.")
	writeJSON(w, http.StatusOK, req.Masked())
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProfileResponse{
		Active:    h.store.Profile(),
		Available: domain.Profiles(),
	})
}

// UpdateProfile switches the active brand profile. Trends are reset.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	profile, ok := domain.LookupProfile(req.ID)
	if !ok {
		writeError(w, http.StatusBadRequest, "UNKNOWN_PROFILE", "unknown profile "+string(req.ID))
		return
	}

	if err := h.store.SetProfile(r.Context(), profile); err != nil {
		h.fail(w, r, err)
		return
	}
	h.notifier.Notify(r.Context(), notify.KindInfo, "Profile switched to "+profile.Name+".")
	writeJSON(w, http.StatusOK, ProfileResponse{Active: profile, Available: domain.Profiles()})
}
