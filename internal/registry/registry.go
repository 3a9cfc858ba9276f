// Package registry tracks the remote tool servers a deployment knows about.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/mcpchat/mcpchat/internal/chat"
)

var (
	// ErrNotFound is returned when a server identifier is unknown.
	ErrNotFound = errors.New("tool server not found")
	// ErrExists is returned when adding a server whose name is taken.
	ErrExists = errors.New("tool server already registered")
)

// Registry is the in-memory set of known tool servers, seeded from a TOML
// file at startup. Selection state is per-session and does not live here.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]chat.ToolServer
}

// fileFormat mirrors the on-disk registry:
//
//	[servers.composio-github]
//	endpoint = "https://mcp.composio.dev/github/mcp?customerId=mcp"
//	auth_token = "..."
type fileFormat struct {
	Servers map[string]serverEntry `toml:"servers"`
}

type serverEntry struct {
	Endpoint  string            `toml:"endpoint"`
	AuthToken string            `toml:"auth_token"`
	Headers   map[string]string `toml:"headers"`
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{servers: make(map[string]chat.ToolServer)}
}

// LoadFile creates a registry seeded from the TOML file at path. A missing
// file yields an empty registry; a malformed file is an error.
func LoadFile(path string) (*Registry, error) {
	r := New()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No server registry file, starting empty", "path", path)
			return r, nil
		}
		return nil, fmt.Errorf("read registry file %s: %w", path, err)
	}

	var f fileFormat
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", path, err)
	}

	for name, entry := range f.Servers {
		r.servers[name] = chat.ToolServer{
			Name:      name,
			Kind:      chat.ServerKindRemote,
			Endpoint:  entry.Endpoint,
			AuthToken: entry.AuthToken,
			Headers:   entry.Headers,
		}
	}
	slog.Info("Server registry loaded", "path", path, "servers", len(r.servers))
	return r, nil
}

// Get returns the server registered under name.
func (r *Registry) Get(name string) (chat.ToolServer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	srv, ok := r.servers[name]
	if !ok {
		return chat.ToolServer{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return srv, nil
}

// List returns all registered servers ordered by name.
func (r *Registry) List() []chat.ToolServer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chat.ToolServer, 0, len(r.servers))
	for _, srv := range r.servers {
		out = append(out, srv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Add registers a new remote server.
func (r *Registry) Add(srv chat.ToolServer) error {
	if srv.Name == "" {
		return errors.New("server name is empty")
	}
	if srv.Endpoint == "" {
		return errors.New("server endpoint is empty")
	}
	srv.Kind = chat.ServerKindRemote

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.servers[srv.Name]; exists {
		return fmt.Errorf("%w: %s", ErrExists, srv.Name)
	}
	r.servers[srv.Name] = srv
	slog.Info("Tool server registered", "server", srv.Name, "endpoint", srv.Endpoint)
	return nil
}

// Remove unregisters a server by name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.servers[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.servers, name)
	slog.Info("Tool server removed", "server", name)
	return nil
}

// QuickAdd registers a server from a bare endpoint URL, deriving a name from
// the hostname when none is given.
func (r *Registry) QuickAdd(rawURL, authToken string) (chat.ToolServer, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return chat.ToolServer{}, fmt.Errorf("invalid server URL %q", rawURL)
	}

	name := parsed.Hostname()
	if name == "" {
		name = "remote-server"
	}
	name = strings.TrimSuffix(name, ".")

	srv := chat.ToolServer{
		Name:      name,
		Kind:      chat.ServerKindRemote,
		Endpoint:  rawURL,
		AuthToken: authToken,
	}
	if err := r.Add(srv); err != nil {
		return chat.ToolServer{}, err
	}
	return srv, nil
}
