package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mcpchat/mcpchat/internal/catalog"
	"github.com/mcpchat/mcpchat/internal/chat"
	"github.com/mcpchat/mcpchat/internal/registry"
	"github.com/mcpchat/mcpchat/internal/transport"
)

// stubLister serves a fixed catalog or a fixed error.
type stubLister struct {
	tools []chat.ToolDefinition
	err   error
}

func (s *stubLister) ListTools(ctx context.Context, server chat.ToolServer) ([]chat.ToolDefinition, error) {
	return s.tools, s.err
}

func newTestHandler(t *testing.T, lister catalog.ToolLister) (*Handler, *registry.Registry, http.Handler) {
	t.Helper()
	reg := registry.New()
	h := NewHandler(reg, lister, transport.NewTracker())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return h, reg, r
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusNotFound, "not found")

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["error"] != "not found" {
		t.Errorf("Expected error message, got %v", got)
	}
}

func TestHealth(t *testing.T) {
	_, _, router := newTestHandler(t, &stubLister{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", got["status"])
	}
	if got["active_sessions"] != float64(0) {
		t.Errorf("Expected 0 active sessions, got %v", got["active_sessions"])
	}
}

func TestListServers(t *testing.T) {
	_, reg, router := newTestHandler(t, &stubLister{})
	if err := reg.Add(chat.ToolServer{Name: "github", Endpoint: "https://example.com/mcp"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers", nil))

	var got []chat.ToolServer
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got) != 1 || got[0].Name != "github" {
		t.Errorf("Unexpected server list: %v", got)
	}
}

func TestServerTools(t *testing.T) {
	lister := &stubLister{tools: []chat.ToolDefinition{{Name: "list_issues", Description: "List issues"}}}
	_, reg, router := newTestHandler(t, lister)
	if err := reg.Add(chat.ToolServer{Name: "github", Endpoint: "https://example.com/mcp"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers/github/tools", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var got struct {
		Tools []chat.ToolDefinition `json:"tools"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got.Tools) != 1 || got.Tools[0].Name != "list_issues" {
		t.Errorf("Unexpected tools: %v", got.Tools)
	}
}

func TestServerToolsNotFound(t *testing.T) {
	_, _, router := newTestHandler(t, &stubLister{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers/missing/tools", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestServerToolsUnreachable(t *testing.T) {
	lister := &stubLister{err: catalog.ErrUnreachable}
	_, reg, router := newTestHandler(t, lister)
	if err := reg.Add(chat.ToolServer{Name: "down", Endpoint: "https://example.com/mcp"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers/down/tools", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestServerToolsMalformed(t *testing.T) {
	lister := &stubLister{err: errors.Join(catalog.ErrMalformedCatalog, errors.New("bad json"))}
	_, reg, router := newTestHandler(t, lister)
	if err := reg.Add(chat.ToolServer{Name: "broken", Endpoint: "https://example.com/mcp"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers/broken/tools", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", w.Code)
	}
}

func TestServerAuthStatus(t *testing.T) {
	_, reg, router := newTestHandler(t, &stubLister{})
	servers := []chat.ToolServer{
		{Name: "gh", Endpoint: "https://mcp.composio.dev/github/mcp"},
		{Name: "internal", Endpoint: "https://tools.example.com/mcp", AuthToken: "tok"},
		{Name: "open", Endpoint: "https://open.example.com/mcp"},
	}
	for _, srv := range servers {
		if err := reg.Add(srv); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	cases := []struct {
		name          string
		authenticated bool
		authType      string
	}{
		{"gh", true, "composio"},
		{"internal", true, "token"},
		{"open", false, ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/servers/"+tc.name+"/auth-status", nil))

		var got map[string]interface{}
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("Failed to decode response for %s: %v", tc.name, err)
		}
		if got["authenticated"] != tc.authenticated {
			t.Errorf("%s: expected authenticated=%v, got %v", tc.name, tc.authenticated, got["authenticated"])
		}
		if tc.authType != "" && got["type"] != tc.authType {
			t.Errorf("%s: expected type=%s, got %v", tc.name, tc.authType, got["type"])
		}
	}
}

func TestQuickAddServer(t *testing.T) {
	_, reg, router := newTestHandler(t, &stubLister{})

	body := bytes.NewBufferString(`{"input":"https://tools.example.com/mcp","auth_token":"tok"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/quick-add-server", body))

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if _, err := reg.Get("tools.example.com"); err != nil {
		t.Errorf("Expected server to be registered: %v", err)
	}

	// Registering the same endpoint again conflicts.
	body = bytes.NewBufferString(`{"input":"https://tools.example.com/mcp"}`)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/quick-add-server", body))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", w.Code)
	}
}

func TestQuickAddServerBadRequest(t *testing.T) {
	_, _, router := newTestHandler(t, &stubLister{})

	cases := []string{`not json`, `{"input":""}`}
	for _, body := range cases {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/quick-add-server", bytes.NewBufferString(body)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %q, got %d", body, w.Code)
		}
	}
}

func TestRemoveServer(t *testing.T) {
	_, reg, router := newTestHandler(t, &stubLister{})
	if err := reg.Add(chat.ToolServer{Name: "github", Endpoint: "https://example.com/mcp"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/servers/github", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/servers/github", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for second delete, got %d", w.Code)
	}
}
