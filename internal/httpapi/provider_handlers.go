package httpapi

import (
	"errors"
	"net/http"

	"warden.org/internal/sync"
)

type providerEventRequest struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	ExternalID string `json:"external_id"`
	GroupName  string `json:"group_name"`
}

// handleProviderEvents ingests identity provider lifecycle notifications.
// Deliveries are applied before the response is written, so a 200 means the
// mirror reflects the event; duplicates are acknowledged without effect.
func (a *API) handleProviderEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.listener == nil {
		writeError(w, r, http.StatusServiceUnavailable, "sync listener unavailable")
		return
	}
	var req providerEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	event := sync.Event{
		ID:         req.ID,
		Type:       sync.EventType(req.Type),
		ExternalID: req.ExternalID,
		GroupName:  req.GroupName,
	}
	if err := a.listener.Handle(r.Context(), event); err != nil {
		if errors.Is(err, sync.ErrInvalidEvent) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "event processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "applied",
	})
}
