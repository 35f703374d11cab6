package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"warden.org/internal/auth"
	"warden.org/internal/permission"
)

type evaluateRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Permission string `json:"permission"`
}

type createCollectionRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type setGrantRequest struct {
	GranteeKind string `json:"grantee_kind"`
	GranteeID   string `json:"grantee_id"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Collection  string `json:"collection"`
}

// handleEvaluate answers a permission check for the calling principal.
// The response is always 200 with an allowed flag; evaluation failures
// surface as allowed=false, never as an error status.
func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.evaluator == nil {
		writeError(w, r, http.StatusServiceUnavailable, "evaluator unavailable")
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "authentication required")
		return
	}
	var req evaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	target := permission.Target{EntityType: strings.TrimSpace(req.EntityType), EntityID: strings.TrimSpace(req.EntityID)}
	allowed := a.evaluator.Evaluate(r.Context(), principal, target, permission.Type(req.Permission))
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed": allowed,
	})
}

func (a *API) handleCollections(w http.ResponseWriter, r *http.Request) {
	if a.perms == nil {
		writeError(w, r, http.StatusServiceUnavailable, "permission service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		collections, err := a.perms.ListCollections(r.Context())
		if err != nil {
			handlePermissionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"collections": collections,
		})
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var req createCollectionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		col, err := a.perms.CreateCollection(r.Context(), req.Name, req.Permissions)
		if err != nil {
			handlePermissionError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/collections/%s", col.Name))
		writeJSON(w, http.StatusCreated, col)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCollectionResource(w http.ResponseWriter, r *http.Request) {
	if a.perms == nil {
		writeError(w, r, http.StatusServiceUnavailable, "permission service unavailable")
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/collections/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	col, err := a.perms.GetCollection(r.Context(), name)
	if err != nil {
		handlePermissionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

func (a *API) handleGrants(w http.ResponseWriter, r *http.Request) {
	if a.perms == nil {
		writeError(w, r, http.StatusServiceUnavailable, "permission service unavailable")
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req setGrantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		kind, ok := permission.ParseGranteeKind(req.GranteeKind)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "grantee_kind must be user or group")
			return
		}
		target := permission.Target{EntityType: strings.TrimSpace(req.EntityType), EntityID: strings.TrimSpace(req.EntityID)}
		grant, err := a.perms.SetPermission(r.Context(), kind, req.GranteeID, target, req.Collection)
		if err != nil {
			handlePermissionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, grant)
	case http.MethodGet:
		kind, granteeID, target, ok := grantQuery(w, r)
		if !ok {
			return
		}
		grant, err := a.perms.GetPermission(r.Context(), kind, granteeID, target)
		if err != nil {
			handlePermissionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, grant)
	case http.MethodDelete:
		kind, granteeID, target, ok := grantQuery(w, r)
		if !ok {
			return
		}
		if err := a.perms.DeletePermission(r.Context(), kind, granteeID, target); err != nil {
			handlePermissionError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodGet, http.MethodDelete)
	}
}

func grantQuery(w http.ResponseWriter, r *http.Request) (permission.GranteeKind, string, permission.Target, bool) {
	q := r.URL.Query()
	kind, ok := permission.ParseGranteeKind(q.Get("grantee_kind"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "grantee_kind must be user or group")
		return "", "", permission.Target{}, false
	}
	granteeID := strings.TrimSpace(q.Get("grantee_id"))
	target := permission.Target{
		EntityType: strings.TrimSpace(q.Get("entity_type")),
		EntityID:   strings.TrimSpace(q.Get("entity_id")),
	}
	if granteeID == "" || target.IsZero() {
		writeError(w, r, http.StatusBadRequest, "grantee_id, entity_type and entity_id are required")
		return "", "", permission.Target{}, false
	}
	return kind, granteeID, target, true
}

// handleTargetResource serves /v1/targets/{type}/{id}/grants: listing the
// grants on an entity and removing them all when the entity is deleted in
// its owning store.
func (a *API) handleTargetResource(w http.ResponseWriter, r *http.Request) {
	if a.perms == nil {
		writeError(w, r, http.StatusServiceUnavailable, "permission service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/targets/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[2] != "grants" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	target := permission.Target{EntityType: parts[0], EntityID: parts[1]}

	switch r.Method {
	case http.MethodGet:
		grants, err := a.perms.ListTargetGrants(r.Context(), target)
		if err != nil {
			handlePermissionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"grants": grants,
		})
	case http.MethodDelete:
		removed, err := a.perms.RemoveTargetPermissions(r.Context(), target)
		if err != nil {
			handlePermissionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"removed": removed,
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}
