package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcpchat/mcpchat/internal/chat"
	"github.com/mcpchat/mcpchat/internal/mcprpc"
)

func TestListTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"tools":[
			{"name":"list_issues","description":"List repository issues","inputSchema":{"type":"object"}},
			{"name":"create_issue","description":"Create an issue","inputSchema":{"type":"object"}}
		]}}`))
	}))
	defer srv.Close()

	resolver := NewResolver(mcprpc.NewClient())
	tools, err := resolver.ListTools(context.Background(), chat.ToolServer{Name: "github", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("Expected 2 tools, got %d", len(tools))
	}
	if tools[0].Name != "list_issues" {
		t.Errorf("Expected list_issues, got %s", tools[0].Name)
	}
	if tools[1].Description != "Create an issue" {
		t.Errorf("Unexpected description: %s", tools[1].Description)
	}
}

func TestListToolsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately, so dialing fails

	resolver := NewResolver(mcprpc.NewClient())
	_, err := resolver.ListTools(context.Background(), chat.ToolServer{Name: "down", Endpoint: srv.URL})
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("Expected ErrUnreachable, got %v", err)
	}
}

func TestListToolsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`garbage`))
	}))
	defer srv.Close()

	resolver := NewResolver(mcprpc.NewClient())
	_, err := resolver.ListTools(context.Background(), chat.ToolServer{Name: "broken", Endpoint: srv.URL})
	if !errors.Is(err, ErrMalformedCatalog) {
		t.Errorf("Expected ErrMalformedCatalog, got %v", err)
	}
}
