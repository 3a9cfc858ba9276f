// Package transport carries JSON frames between the UI and the session
// orchestrator over a persistent WebSocket, on both ends of the wire.
package transport

import (
	"encoding/json"

	"github.com/mcpchat/mcpchat/internal/chat"
)

// FrameType discriminates the frame vocabulary shared by UI and backend.
// Receivers ignore unknown types rather than treating them as fatal.
type FrameType string

const (
	FrameConnected  FrameType = "connected"
	FrameMessage    FrameType = "message"
	FrameToolCall   FrameType = "tool_call"
	FrameToolResult FrameType = "tool_result"
	FrameError      FrameType = "error"
	FrameStatus     FrameType = "status"
	FramePing       FrameType = "ping"
	FramePong       FrameType = "pong"
)

// Frame is one JSON message on the wire. Fields are populated according to
// the type; TurnID keys every frame of a turn to its accumulator on the UI
// side so interleaved turns stay distinguishable.
type Frame struct {
	Type   FrameType `json:"type"`
	TurnID string    `json:"turn_id,omitempty"`

	// message
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`

	// tool_call / tool_result
	Server    string          `json:"server,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`

	// error / status
	Message string `json:"message,omitempty"`

	// connected
	Servers []chat.ToolServer `json:"servers,omitempty"`

	// inbound user turn
	AvailableServers []string `json:"available_servers,omitempty"`
}
