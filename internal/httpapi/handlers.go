package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"warden.org/internal/identity"
	"warden.org/internal/obs"
	"warden.org/internal/permission"
	"warden.org/internal/sync"
)

// ReadyProbe reports whether the service can take traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	perms     *permission.Service
	evaluator *permission.Evaluator
	identity  *identity.Service
	listener  *sync.Listener
}

// Option wires optional services into the API.
type Option func(*API)

// WithPermissionService attaches collection and grant administration.
func WithPermissionService(svc *permission.Service) Option {
	return func(a *API) { a.perms = svc }
}

// WithEvaluator attaches the permission evaluator.
func WithEvaluator(ev *permission.Evaluator) Option {
	return func(a *API) { a.evaluator = ev }
}

// WithIdentityService attaches the identity mirror.
func WithIdentityService(svc *identity.Service) Option {
	return func(a *API) { a.identity = svc }
}

// WithSyncListener attaches the provider event listener.
func WithSyncListener(l *sync.Listener) Option {
	return func(a *API) { a.listener = l }
}

func New(rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// evaluation
	a.mux.HandleFunc("/v1/permissions/evaluate", a.handleEvaluate)

	// collections and grants
	a.mux.HandleFunc("/v1/collections", a.handleCollections)
	a.mux.HandleFunc("/v1/collections/", a.handleCollectionResource)
	a.mux.HandleFunc("/v1/grants", a.handleGrants)
	a.mux.HandleFunc("/v1/targets/", a.handleTargetResource)

	// caller's mirror record
	a.mux.HandleFunc("/v1/users/me", a.handleMe)

	// provider lifecycle events
	a.mux.Handle("/v1/provider/events", RequireRole("sync", http.HandlerFunc(a.handleProviderEvents)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully assembled http.Handler: metrics around
// authentication around the route mux.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "warden-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "warden-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handlePermissionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, permission.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, permission.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, permission.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "permission operation failed")
	}
}
