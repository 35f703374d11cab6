package httpapi

import (
	"net/http"

	"warden.org/internal/auth"
)

// handleMe returns the caller's mirror record, enriched with the provider's
// transient representation when the provider is reachable.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.identity == nil {
		writeError(w, r, http.StatusServiceUnavailable, "identity service unavailable")
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "authentication required")
		return
	}
	user, _, err := a.identity.FindOrCreateUser(r.Context(), principal.ProviderID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "identity lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, a.identity.Enrich(r.Context(), user))
}
