// Package llm adapts an OpenAI-compatible chat-completions endpoint into
// the completion engine contract the session orchestrator consumes.
package llm

import (
	"context"
	"errors"

	"github.com/mcpchat/mcpchat/internal/chat"
)

var (
	// ErrProviderUnavailable covers missing credentials, rate limits, and
	// network failures. Terminal for the current turn; never retried here.
	ErrProviderUnavailable = errors.New("completion provider unavailable")
	// ErrModelRefused covers safety and policy refusals.
	ErrModelRefused = errors.New("model refused to answer")
)

// Kind discriminates the two completion outcomes.
type Kind string

const (
	KindText      Kind = "text"
	KindToolCalls Kind = "toolCalls"
)

// Completion is the tagged result of one engine call: either assistant text
// or a batch of tool-call requests.
type Completion struct {
	Kind    Kind
	Content string
	Calls   []chat.ToolCall
}

// Engine is the completion engine capability: given a history and a tool
// catalog, decide between answering directly and requesting tool execution.
type Engine interface {
	Complete(ctx context.Context, history []chat.Message, tools []chat.ToolDefinition) (Completion, error)
}
