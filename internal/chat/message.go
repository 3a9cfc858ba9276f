// Package chat defines the conversation domain types shared by the
// catalog, completion, dispatch, and session packages.
package chat

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	// RoleTool marks a folded-back tool result entry in the history sent to
	// the completion engine.
	RoleTool Role = "tool"
)

// Message is one turn of conversation. Messages are appended to a session
// transcript in arrival order and never mutated afterwards.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID correlates a RoleTool message with the assistant tool call
	// it answers.
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewUserMessage builds a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage builds an assistant text message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// NewToolResultMessage builds the folded-back history entry for a resolved
// tool call. The result (or error description) is serialized as the content.
func NewToolResultMessage(call ToolCall) Message {
	return Message{
		Role:       RoleTool,
		Content:    call.ResultContent(),
		ToolCallID: call.ID,
		Timestamp:  time.Now(),
	}
}

// ToolCall is one invocation requested by the completion engine during a
// turn. Result and Err stay empty until the dispatcher resolves the call.
type ToolCall struct {
	ID        string          `json:"id"`
	Server    string          `json:"server"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Err       string          `json:"error,omitempty"`
}

// Resolved reports whether the call has a result or an error attached.
func (c ToolCall) Resolved() bool {
	return len(c.Result) > 0 || c.Err != ""
}

// ResultContent renders the call outcome as the string folded into history.
func (c ToolCall) ResultContent() string {
	if c.Err != "" {
		data, _ := json.Marshal(map[string]string{"error": c.Err})
		return string(data)
	}
	if len(c.Result) == 0 {
		return "{}"
	}
	return string(c.Result)
}

// toolNameSeparator joins server and tool into the namespaced name the
// completion engine sees, e.g. "github__list_issues".
const toolNameSeparator = "__"

// QualifiedToolName namespaces a tool name with its server identifier.
func QualifiedToolName(server, tool string) string {
	return server + toolNameSeparator + tool
}

// SplitToolName splits a namespaced tool name back into server and tool.
// Names without a separator map to the "unknown" server, matching how the
// protocol treats tools the engine invented.
func SplitToolName(qualified string) (server, tool string) {
	if s, t, ok := strings.Cut(qualified, toolNameSeparator); ok {
		return s, t
	}
	return "unknown", qualified
}
