// Package mcprpc implements the JSON-RPC 2.0 over HTTP client used to talk
// to remote MCP tool servers.
package mcprpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mcpchat/mcpchat/internal/chat"
)

// ErrBadPayload marks responses that arrived but could not be decoded as
// JSON-RPC. Callers use it to tell a garbled catalog from a dead endpoint.
var ErrBadPayload = errors.New("malformed rpc payload")

// request is a JSON-RPC 2.0 request envelope.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

// response is a JSON-RPC 2.0 response envelope.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object returned by a tool server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client posts JSON-RPC requests to tool-server endpoints.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a client. Per-call deadlines come from the context, so
// the underlying http.Client carries no timeout of its own.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

// Call posts a single JSON-RPC request to the server endpoint and returns
// the raw result. A JSON-RPC error object is returned as *RPCError; any
// transport or decode failure is returned wrapped.
func (c *Client) Call(ctx context.Context, server chat.ToolServer, method string, params any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range server.Headers {
		req.Header.Set(k, v)
	}
	// Composio endpoints carry their credential in the URL and answer with
	// SSE; everything else gets a bearer token when one is configured.
	if server.IsComposio() {
		req.Header.Set("Accept", "application/json, text/event-stream")
	} else if server.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+server.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, server.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("call %s on %s: unexpected status %d", method, server.Name, resp.StatusCode)
	}

	var rpcResp response
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		rpcResp, err = decodeSSE(resp.Body)
	} else {
		err = json.NewDecoder(resp.Body).Decode(&rpcResp)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s response from %s: %w: %w", method, server.Name, ErrBadPayload, err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// decodeSSE extracts the first JSON-RPC payload from a server-sent-events
// body, the framing Composio uses for its MCP endpoints.
func decodeSSE(body interface{ Read([]byte) (int, error) }) (response, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			data, ok = strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
		}
		var rpcResp response
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &rpcResp); err != nil {
			continue
		}
		return rpcResp, nil
	}
	if err := scanner.Err(); err != nil {
		return response{}, fmt.Errorf("read event stream: %w", err)
	}
	return response{}, fmt.Errorf("no JSON payload in event stream")
}
