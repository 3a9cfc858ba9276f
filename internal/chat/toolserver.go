package chat

import (
	"encoding/json"
	"strings"
)

// ServerKind distinguishes locally spawned tool servers from remote HTTP
// endpoints. Only remote servers have an execution path here; the local kind
// survives in the model for listings produced by older registries.
type ServerKind string

const (
	ServerKindLocal  ServerKind = "local"
	ServerKindRemote ServerKind = "remote"
)

// ToolServer is a reference to an external tool-providing endpoint.
type ToolServer struct {
	Name      string            `json:"name"`
	Kind      ServerKind        `json:"type"`
	Endpoint  string            `json:"endpoint,omitempty"`
	AuthToken string            `json:"-"`
	Headers   map[string]string `json:"-"`
}

// IsComposio reports whether the endpoint belongs to the Composio broker,
// which authenticates via a customerId query parameter and answers with
// server-sent events instead of plain JSON.
func (s ToolServer) IsComposio() bool {
	return strings.Contains(s.Endpoint, "composio")
}

// ToolDefinition is one callable operation of a ToolServer. InputSchema is
// kept opaque; it is only interpreted at the provider boundary.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}
