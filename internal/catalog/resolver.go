// Package catalog resolves tool servers to their callable tool definitions.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcpchat/mcpchat/internal/chat"
	"github.com/mcpchat/mcpchat/internal/mcprpc"
)

var (
	// ErrUnreachable is returned when the tool server cannot be reached or
	// refuses to serve its catalog.
	ErrUnreachable = errors.New("tool server unreachable")
	// ErrMalformedCatalog is returned when the server answered but the
	// response could not be parsed into tool definitions.
	ErrMalformedCatalog = errors.New("malformed tool catalog")
)

// ToolLister lists the tools offered by a server.
type ToolLister interface {
	ListTools(ctx context.Context, server chat.ToolServer) ([]chat.ToolDefinition, error)
}

// Resolver queries remote tool servers for their catalogs over JSON-RPC.
// Calls are idempotent and side-effect free; caching is the caller's job.
type Resolver struct {
	rpc *mcprpc.Client
}

// NewResolver creates a resolver backed by the given RPC client.
func NewResolver(rpc *mcprpc.Client) *Resolver {
	return &Resolver{rpc: rpc}
}

// listResult is the JSON-RPC tools/list result shape.
type listResult struct {
	Tools []chat.ToolDefinition `json:"tools"`
}

// ListTools fetches the tool catalog of a single server.
func (r *Resolver) ListTools(ctx context.Context, server chat.ToolServer) ([]chat.ToolDefinition, error) {
	result, err := r.rpc.Call(ctx, server, "tools/list", nil)
	if err != nil {
		if errors.Is(err, mcprpc.ErrBadPayload) {
			return nil, fmt.Errorf("%w from %s: %w", ErrMalformedCatalog, server.Name, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, server.Name, err)
	}

	var parsed listResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("%w from %s: %w", ErrMalformedCatalog, server.Name, err)
	}

	slog.Debug("Tool catalog resolved", "server", server.Name, "tools", len(parsed.Tools))
	return parsed.Tools, nil
}
