// Package api provides the REST handlers around the chat transport:
// health, tool-server listing, catalogs, and registry management.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mcpchat/mcpchat/internal/catalog"
	"github.com/mcpchat/mcpchat/internal/registry"
	"github.com/mcpchat/mcpchat/internal/transport"
)

// maxRequestBodySize caps JSON request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler serves the server-management REST surface.
type Handler struct {
	reg     *registry.Registry
	lister  catalog.ToolLister
	tracker *transport.Tracker
}

// NewHandler creates a new Handler.
func NewHandler(reg *registry.Registry, lister catalog.ToolLister, tracker *transport.Tracker) *Handler {
	return &Handler{reg: reg, lister: lister, tracker: tracker}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers the REST routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/servers", h.ListServers)
	r.Get("/servers/{name}/tools", h.ServerTools)
	r.Get("/servers/{name}/auth-status", h.ServerAuthStatus)
	r.Post("/quick-add-server", h.QuickAddServer)
	r.Delete("/servers/{name}", h.RemoveServer)
}

// Health reports backend liveness and the number of live chat sessions.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"active_sessions": h.tracker.Count(),
	})
}

// ListServers returns every registered tool server.
func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.reg.List())
}

// ServerTools returns the tool catalog of one server. This is a one-off
// resolver call for the UI; session caches are not involved.
func (h *Handler) ServerTools(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	srv, err := h.reg.Get(name)
	if err != nil {
		Error(w, http.StatusNotFound, "server not found")
		return
	}

	tools, err := h.lister.ListTools(r.Context(), srv)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrMalformedCatalog):
			Error(w, http.StatusBadGateway, "server returned a malformed catalog")
		default:
			Error(w, http.StatusServiceUnavailable, "failed to reach server")
		}
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

// ServerAuthStatus reports how a server authenticates, mirroring what the
// UI shows next to each entry.
func (h *Handler) ServerAuthStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	srv, err := h.reg.Get(name)
	if err != nil {
		Error(w, http.StatusNotFound, "server not found")
		return
	}

	switch {
	case srv.IsComposio():
		JSON(w, http.StatusOK, map[string]interface{}{"authenticated": true, "type": "composio"})
	case srv.AuthToken != "":
		JSON(w, http.StatusOK, map[string]interface{}{"authenticated": true, "type": "token"})
	default:
		JSON(w, http.StatusOK, map[string]interface{}{
			"authenticated": false,
			"message":       "No authentication configured",
		})
	}
}

type quickAddRequest struct {
	Input     string `json:"input"`
	AuthToken string `json:"auth_token"`
}

// QuickAddServer registers a remote server from a bare endpoint URL.
func (h *Handler) QuickAddServer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req quickAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Input == "" {
		Error(w, http.StatusBadRequest, "input is required")
		return
	}

	srv, err := h.reg.QuickAdd(req.Input, req.AuthToken)
	if err != nil {
		if errors.Is(err, registry.ErrExists) {
			Error(w, http.StatusConflict, err.Error())
			return
		}
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	JSON(w, http.StatusCreated, srv)
}

// RemoveServer unregisters a server.
func (h *Handler) RemoveServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.reg.Remove(name); err != nil {
		Error(w, http.StatusNotFound, "server not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
