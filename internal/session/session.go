// Package session drives one chat turn end-to-end: completion rounds, tool
// fan-out, result folding, and transcript bookkeeping.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mcpchat/mcpchat/internal/catalog"
	"github.com/mcpchat/mcpchat/internal/chat"
)

// Session is the live state of one client connection. The transcript is
// append-only for the lifetime of the connection, and the tool catalog cache
// is owned here so repeat selections reuse earlier fetches. Turns are
// processed strictly sequentially; the transport queues any user message
// that arrives mid-turn.
type Session struct {
	ID string

	mu         sync.Mutex
	transcript []chat.Message
	catalog    *catalog.Cache
}

// New creates a session with its own catalog cache.
func New(lister catalog.ToolLister) *Session {
	return &Session{
		ID:      uuid.NewString(),
		catalog: catalog.NewCache(lister),
	}
}

// Append adds a message to the transcript and returns its index.
func (s *Session) Append(msg chat.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, msg)
	return len(s.transcript) - 1
}

// resolveCalls attaches resolved tool calls back onto the transcript entry
// they originated from. Only the call results change; the message itself is
// never reordered or rewritten.
func (s *Session) resolveCalls(index int, calls []chat.ToolCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.transcript) {
		return
	}
	s.transcript[index].ToolCalls = calls
}

// Transcript returns a copy of the transcript so far.
func (s *Session) Transcript() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Catalog returns the session-owned tool definition cache.
func (s *Session) Catalog() *catalog.Cache {
	return s.catalog
}

// TurnRequest is one user turn: the new message plus the tool servers the
// client has selected for it. Selection travels with the request so the
// orchestrator's behavior is a function of its inputs, not of shared state.
type TurnRequest struct {
	TurnID  string
	Message string
	Servers []chat.ToolServer
}

// Emitter receives the frames a turn produces, in order. The transport layer
// implements it over the WebSocket; tests implement it over a slice.
type Emitter interface {
	EmitStatus(turnID, message string)
	EmitToolCall(turnID string, call chat.ToolCall)
	EmitToolResult(turnID string, call chat.ToolCall)
	EmitAssistant(turnID string, msg chat.Message)
	EmitError(turnID, message string)
}
