package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kilupskalvis/accmove/internal/aps"
	"github.com/kilupskalvis/accmove/internal/core"
	"github.com/kilupskalvis/accmove/internal/models"
)

// TokenIssuer supplies the signed-in user's current credential. The auth
// token source implements it; the proxy never sees the refresh token.
type TokenIssuer interface {
	Token(ctx context.Context) (*models.Credential, error)
}

// Config holds configurable limits for the proxy.
type Config struct {
	MaxRequestBody    int64  // bytes, for JSON endpoints
	RequestsPerMinute int    // per-client rate limit
	AllowedOrigin     string // CORS origin for the viewer
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRequestBody:    1 << 20, // 1MB
		RequestsPerMinute: 120,
		AllowedOrigin:     "*",
	}
}

// Deps are the collaborators the proxy serves from.
type Deps struct {
	Tokens    TokenIssuer
	Resources aps.ResourceClient
	Saver     *core.Saver
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(deps *Deps, cfg *Config, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	rl := newRateLimiter(cfg.RequestsPerMinute)
	saves := NewSaveRegistry(deps.Saver, logger)

	limited := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, rl.middleware)
	}

	mux := http.NewServeMux()

	// Health endpoint (no rate limit)
	mux.HandleFunc("GET /healthz", handleHealthz)

	// Viewer token
	mux.Handle("GET /api/v1/auth/token", limited(makeTokenHandler(deps.Tokens)))

	// Listing proxies
	mux.Handle("GET /api/v1/hubs", limited(makeHubsHandler(deps.Resources)))
	mux.Handle("GET /api/v1/hubs/{hub}/projects", limited(makeProjectsHandler(deps.Resources)))
	mux.Handle("GET /api/v1/projects/{project}/folders/{folder}/contents", limited(makeContentsHandler(deps.Resources)))

	// Saves
	mux.Handle("POST /api/v1/saves", limited(makeStartSaveHandler(saves, cfg)))
	mux.Handle("GET /api/v1/saves/{id}", limited(makeSaveStatusHandler(saves)))

	// Apply global middleware
	handler := applyMiddleware(mux,
		requestIDMiddleware,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		corsMiddleware(cfg.AllowedOrigin),
	)

	cleanup := func() {
		rl.Stop()
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// makeTokenHandler hands the viewer SDK a usable access token. The refresh
// dance stays server-side.
func makeTokenHandler(tokens TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, err := tokens.Token(r.Context())
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":   "auth_required",
				"message": "no usable session: sign in with 'accmove login'",
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": cred.AccessToken,
			"expires_in":   int(cred.TTL(time.Now()).Seconds()),
		})
	}
}

func makeHubsHandler(resources aps.ResourceClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hubs, err := resources.ListHubs(r.Context())
		if err != nil {
			writeUpstreamError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, hubs)
	}
}

func makeProjectsHandler(resources aps.ResourceClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := resources.ListProjects(r.Context(), r.PathValue("hub"))
		if err != nil {
			writeUpstreamError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, projects)
	}
}

func makeContentsHandler(resources aps.ResourceClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := resources.ListFolderContents(r.Context(), r.PathValue("project"), r.PathValue("folder"))
		if err != nil {
			writeUpstreamError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// saveRequest is the body of POST /api/v1/saves.
type saveRequest struct {
	ProjectID string       `json:"project_id"`
	ItemID    string       `json:"item_id"`
	Name      string       `json:"name,omitempty"`
	Changes   []saveChange `json:"changes"`
}

type saveChange struct {
	ElementID   int64           `json:"element_id"`
	ElementKey  string          `json:"element_key"`
	ElementName string          `json:"element_name,omitempty"`
	From        models.Position `json:"from"`
	To          models.Position `json:"to"`
}

func makeStartSaveHandler(saves *SaveRegistry, cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveRequest
		if err := readJSON(r, cfg.MaxRequestBody, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}
		if req.ProjectID == "" || req.ItemID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "project_id and item_id are required"})
			return
		}
		if len(req.Changes) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "changes must not be empty"})
			return
		}

		now := time.Now().UTC()
		changes := make([]*models.PendingChange, len(req.Changes))
		for i, ch := range req.Changes {
			changes[i] = &models.PendingChange{
				ElementID:        ch.ElementID,
				ElementKey:       ch.ElementKey,
				ElementName:      ch.ElementName,
				OriginalPosition: ch.From,
				NewPosition:      ch.To,
				RecordedAt:       now,
			}
		}

		// Reject the whole batch up front so the caller gets a 400 with
		// the problems instead of a failed background save.
		if err := core.ValidateChanges(changes); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_changes", "message": err.Error()})
			return
		}

		opts := core.SaveOptions{
			ProjectID: aps.NormalizeProjectID(req.ProjectID),
			ItemID:    req.ItemID,
			Name:      req.Name,
		}
		id, err := saves.Start(changes, opts)
		if err != nil {
			if errors.Is(err, core.ErrSaveInProgress) {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "save_in_progress", "message": err.Error()})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"save_id": id})
	}
}

func makeSaveStatusHandler(saves *SaveRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, ok := saves.Get(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "no such save"})
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// writeUpstreamError maps a vendor API failure onto the proxy response.
func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case aps.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": err.Error()})
	case aps.IsPermissionDenied(err):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden", "message": err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream_error", "message": err.Error()})
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
