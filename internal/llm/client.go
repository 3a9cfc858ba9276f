package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mcpchat/mcpchat/internal/chat"
	"github.com/mcpchat/mcpchat/internal/config"
)

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
}

// NewClient creates a completion client for the configured provider.
func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Wire types for the OpenAI chat-completions format.

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string      `json:"type"`
	Function wireToolDef `json:"function"`
}

type wireToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type completionRequest struct {
	Model     string        `json:"model"`
	Messages  []wireMessage `json:"messages"`
	Tools     []wireTool    `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			Refusal   string         `json:"refusal"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the history and tool catalog to the provider and returns
// the discriminated result. History must be non-empty and end with a user or
// tool-result message; tools may be empty for plain chat.
func (c *Client) Complete(ctx context.Context, history []chat.Message, tools []chat.ToolDefinition) (Completion, error) {
	if len(history) == 0 {
		return Completion{}, fmt.Errorf("history is empty")
	}
	if last := history[len(history)-1].Role; last != chat.RoleUser && last != chat.RoleTool {
		return Completion{}, fmt.Errorf("history must end with a user or tool-result message, got %s", last)
	}
	if c.cfg.APIKey == "" {
		return Completion{}, fmt.Errorf("%w: no API key configured", ErrProviderUnavailable)
	}

	payload := completionRequest{
		Model:     c.cfg.Model,
		Messages:  toWireMessages(history),
		Tools:     toWireTools(tools),
		MaxTokens: c.cfg.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal completion request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Completion{}, fmt.Errorf("%w: read response: %w", ErrProviderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("Completion request rejected", "status", resp.StatusCode, "model", c.cfg.Model)
		return Completion{}, fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, excerpt(raw))
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Completion{}, fmt.Errorf("%w: decode response: %w", ErrProviderUnavailable, err)
	}
	if parsed.Error != nil {
		return Completion{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, fmt.Errorf("%w: response contains no choices", ErrProviderUnavailable)
	}

	choice := parsed.Choices[0]
	if choice.Message.Refusal != "" || choice.FinishReason == "content_filter" {
		reason := choice.Message.Refusal
		if reason == "" {
			reason = "content filtered"
		}
		return Completion{}, fmt.Errorf("%w: %s", ErrModelRefused, reason)
	}

	if len(choice.Message.ToolCalls) > 0 {
		calls := make([]chat.ToolCall, 0, len(choice.Message.ToolCalls))
		for _, tc := range choice.Message.ToolCalls {
			server, tool := chat.SplitToolName(tc.Function.Name)
			id := tc.ID
			if id == "" {
				id = uuid.NewString()
			}
			args := json.RawMessage(tc.Function.Arguments)
			if !json.Valid(args) {
				// The engine occasionally emits truncated argument strings;
				// the dispatcher treats empty arguments as "{}".
				args = nil
			}
			calls = append(calls, chat.ToolCall{
				ID:        id,
				Server:    server,
				Tool:      tool,
				Arguments: args,
			})
		}
		return Completion{Kind: KindToolCalls, Calls: calls}, nil
	}

	return Completion{Kind: KindText, Content: choice.Message.Content}, nil
}

func toWireMessages(history []chat.Message) []wireMessage {
	out := make([]wireMessage, 0, len(history))
	for _, msg := range history {
		wm := wireMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   call.ID,
				Type: "function",
				Function: wireFunction{
					Name:      chat.QualifiedToolName(call.Server, call.Tool),
					Arguments: argumentsString(call.Arguments),
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []chat.ToolDefinition) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, def := range tools {
		out = append(out, wireTool{
			Type: "function",
			Function: wireToolDef{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  normalizeSchema(def.InputSchema),
			},
		})
	}
	return out
}

// normalizeSchema guarantees object schemas carry a properties field; some
// providers reject {"type":"object"} without one.
func normalizeSchema(schema json.RawMessage) json.RawMessage {
	if len(schema) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	var m map[string]any
	if err := json.Unmarshal(schema, &m); err != nil {
		return schema
	}
	if m["type"] == "object" {
		if _, ok := m["properties"]; !ok {
			m["properties"] = map[string]any{}
			if fixed, err := json.Marshal(m); err == nil {
				return fixed
			}
		}
	}
	return schema
}

func argumentsString(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	return string(args)
}

func excerpt(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}
