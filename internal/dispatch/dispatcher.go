// Package dispatch invokes tools on remote tool servers.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcpchat/mcpchat/internal/chat"
	"github.com/mcpchat/mcpchat/internal/mcprpc"
)

var (
	// ErrServerNotSelected guards against tool calls referencing servers the
	// session has not opted in for this turn.
	ErrServerNotSelected = errors.New("tool server not selected")
	// ErrTimeout is returned when the tool server does not answer within the
	// configured wait. The in-flight request is cancelled, not abandoned.
	ErrTimeout = errors.New("tool invocation timed out")
)

// ExecutionError carries the failure description of a non-success response
// from the tool server.
type ExecutionError struct {
	Server  string
	Tool    string
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s on %s failed: %s", e.Tool, e.Server, e.Message)
}

// Invoker dispatches a single tool call. The selected set holds the servers
// the current turn has opted in, keyed by server name.
type Invoker interface {
	Invoke(ctx context.Context, call chat.ToolCall, selected map[string]chat.ToolServer) (json.RawMessage, error)
}

// Dispatcher executes tool calls against remote servers over JSON-RPC.
// Aside from the network call it is effect-free; whatever the tool does is
// owned by the remote server.
type Dispatcher struct {
	rpc     *mcprpc.Client
	timeout time.Duration
}

// NewDispatcher creates a dispatcher with a per-call timeout.
func NewDispatcher(rpc *mcprpc.Client, timeout time.Duration) *Dispatcher {
	return &Dispatcher{rpc: rpc, timeout: timeout}
}

// callParams is the JSON-RPC tools/call parameter shape. Arguments pass
// through verbatim.
type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Invoke runs one tool call and returns the raw result payload.
func (d *Dispatcher) Invoke(ctx context.Context, call chat.ToolCall, selected map[string]chat.ToolServer) (json.RawMessage, error) {
	server, ok := selected[call.Server]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotSelected, call.Server)
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	result, err := d.rpc.Call(ctx, server, "tools/call", callParams{Name: call.Tool, Arguments: args})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s on %s after %s", ErrTimeout, call.Tool, call.Server, d.timeout)
		}
		var rpcErr *mcprpc.RPCError
		if errors.As(err, &rpcErr) {
			return nil, &ExecutionError{Server: call.Server, Tool: call.Tool, Message: rpcErr.Message}
		}
		return nil, &ExecutionError{Server: call.Server, Tool: call.Tool, Message: err.Error()}
	}

	slog.Debug("Tool invoked", "server", call.Server, "tool", call.Tool, "duration", time.Since(start))
	if len(result) == 0 {
		result = json.RawMessage(`{}`)
	}
	return result, nil
}
