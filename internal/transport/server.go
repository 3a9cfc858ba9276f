package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mcpchat/mcpchat/internal/catalog"
	"github.com/mcpchat/mcpchat/internal/chat"
	"github.com/mcpchat/mcpchat/internal/registry"
	"github.com/mcpchat/mcpchat/internal/session"
)

// WebSocketHandler upgrades /ws/chat connections and runs one session per
// connection. Turns are processed sequentially on the read loop, so a user
// message arriving mid-turn waits in the socket buffer until the running
// turn finishes.
type WebSocketHandler struct {
	reg           *registry.Registry
	orch          *session.Orchestrator
	lister        catalog.ToolLister
	tracker       *Tracker
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates the chat WebSocket handler.
func NewWebSocketHandler(reg *registry.Registry, orch *session.Orchestrator, lister catalog.ToolLister, tracker *Tracker, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		reg:           reg,
		orch:          orch,
		lister:        lister,
		tracker:       tracker,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsEmitter writes outbound frames for one connection. Writes are
// serialized; the orchestrator fans tool calls out concurrently but frame
// emission happens from the turn goroutine only, so the mutex just guards
// against pings from the read loop.
type wsEmitter struct {
	ctx  context.Context
	conn *websocket.Conn
	mu   sync.Mutex
}

func (e *wsEmitter) send(frame Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal frame", "type", frame.Type, "error", err)
		return
	}
	if err := e.conn.Write(e.ctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "type", frame.Type, "error", err)
	}
}

func (e *wsEmitter) EmitStatus(turnID, message string) {
	e.send(Frame{Type: FrameStatus, TurnID: turnID, Message: message})
}

func (e *wsEmitter) EmitToolCall(turnID string, call chat.ToolCall) {
	e.send(Frame{
		Type:      FrameToolCall,
		TurnID:    turnID,
		Server:    call.Server,
		Tool:      call.Tool,
		Arguments: call.Arguments,
	})
}

func (e *wsEmitter) EmitToolResult(turnID string, call chat.ToolCall) {
	frame := Frame{
		Type:   FrameToolResult,
		TurnID: turnID,
		Server: call.Server,
		Tool:   call.Tool,
		Result: call.Result,
	}
	if call.Err != "" {
		frame.Result = json.RawMessage(call.ResultContent())
	}
	e.send(frame)
}

func (e *wsEmitter) EmitAssistant(turnID string, msg chat.Message) {
	e.send(Frame{Type: FrameMessage, TurnID: turnID, Role: string(msg.Role), Content: msg.Content})
}

func (e *wsEmitter) EmitError(turnID, message string) {
	e.send(Frame{Type: FrameError, TurnID: turnID, Message: message})
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := session.New(h.lister)
	h.tracker.Register(sess.ID, ws)
	defer h.tracker.Unregister(sess.ID, ws)

	emitter := &wsEmitter{ctx: ctx, conn: ws}
	emitter.send(Frame{Type: FrameConnected, Servers: h.reg.List()})

	slog.Info("Chat connection opened", "session_id", sess.ID, "ip", r.RemoteAddr)
	h.readLoop(ctx, ws, sess, emitter)
	slog.Info("Chat connection closed", "session_id", sess.ID)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sess *session.Session, emitter *wsEmitter) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sess.ID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "session_id", sess.ID, "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			emitter.EmitError("", "invalid frame")
			continue
		}

		switch frame.Type {
		case FrameMessage:
			if frame.Content == "" {
				emitter.EmitError("", "message content is required")
				continue
			}
			req := session.TurnRequest{
				TurnID:  uuid.NewString(),
				Message: frame.Content,
				Servers: h.resolveServers(frame.AvailableServers),
			}
			// Runs on the read loop: turns are strictly sequential per
			// session, and a failed turn leaves the session usable.
			if err := h.orch.RunTurn(ctx, sess, req, emitter); err != nil {
				slog.Warn("Turn failed", "session_id", sess.ID, "turn_id", req.TurnID, "error", err)
			}
		case FramePing:
			emitter.send(Frame{Type: FramePong})
		default:
			// Unknown frame types are ignored, not fatal.
			slog.Debug("Ignoring frame", "type", frame.Type, "session_id", sess.ID)
		}
	}
}

// resolveServers maps selected identifiers to registry entries. Stale names
// are dropped here; the dispatcher still guards each call against servers
// deselected between rounds.
func (h *WebSocketHandler) resolveServers(names []string) []chat.ToolServer {
	var servers []chat.ToolServer
	for _, name := range names {
		srv, err := h.reg.Get(name)
		if err != nil {
			slog.Warn("Selected server not in registry", "server", name)
			continue
		}
		servers = append(servers, srv)
	}
	return servers
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
