package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpchat/mcpchat/internal/chat"
	"github.com/mcpchat/mcpchat/internal/dispatch"
	"github.com/mcpchat/mcpchat/internal/llm"
)

// ErrLoopLimit is the orchestrator safety valve for engines that keep
// requesting tools without ever producing text.
var ErrLoopLimit = errors.New("tool-call loop limit exceeded")

// Orchestrator runs chat turns. One instance is shared across sessions; all
// per-connection state lives in the Session.
type Orchestrator struct {
	engine    llm.Engine
	invoker   dispatch.Invoker
	maxRounds int
	log       ConversationLogger
}

// NewOrchestrator wires the completion engine and tool dispatcher together.
// A nil conversation logger disables audit logging.
func NewOrchestrator(engine llm.Engine, invoker dispatch.Invoker, maxRounds int, log ConversationLogger) *Orchestrator {
	if maxRounds <= 0 {
		maxRounds = 8
	}
	if log == nil {
		log = noopConversationLogger{}
	}
	return &Orchestrator{
		engine:    engine,
		invoker:   invoker,
		maxRounds: maxRounds,
		log:       log,
	}
}

// RunTurn processes one user message to completion: completion rounds with
// concurrent tool fan-out in between, until the engine produces text or a
// limit is hit. Failures are turn-scoped; the session stays usable.
func (o *Orchestrator) RunTurn(ctx context.Context, sess *Session, req TurnRequest, emit Emitter) error {
	userMsg := chat.NewUserMessage(req.Message)
	sess.Append(userMsg)
	o.logEvent(sess.ID, req.TurnID, "outbound", "user_message", req.Message, nil)

	selected := make(map[string]chat.ToolServer, len(req.Servers))
	for _, srv := range req.Servers {
		selected[srv.Name] = srv
	}
	defs := o.collectTools(ctx, sess, req)

	if len(defs) > 0 {
		emit.EmitStatus(req.TurnID, fmt.Sprintf("%d tools available", len(defs)))
	}

	history := sess.Transcript()

	for round := 0; round < o.maxRounds; round++ {
		completion, err := o.engine.Complete(ctx, history, defs)
		if err != nil {
			slog.Error("Completion failed", "session_id", sess.ID, "turn_id", req.TurnID, "round", round, "error", err)
			emit.EmitError(req.TurnID, err.Error())
			o.logEvent(sess.ID, req.TurnID, "inbound", "turn_error", err.Error(), nil)
			return err
		}

		if completion.Kind == llm.KindText {
			msg := chat.NewAssistantMessage(completion.Content)
			sess.Append(msg)
			emit.EmitAssistant(req.TurnID, msg)
			o.logEvent(sess.ID, req.TurnID, "inbound", "assistant_message", completion.Content, map[string]any{
				"rounds": round + 1,
			})
			return nil
		}

		// Tool-call round: record the request, fan out, await everything.
		emit.EmitStatus(req.TurnID, fmt.Sprintf("Executing %d tool(s)", len(completion.Calls)))

		assistantMsg := chat.Message{
			Role:      chat.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.Calls,
			Timestamp: time.Now(),
		}
		index := sess.Append(assistantMsg)

		for _, call := range completion.Calls {
			emit.EmitToolCall(req.TurnID, call)
			o.logEvent(sess.ID, req.TurnID, "outbound", "tool_call", call.Tool, map[string]any{
				"server":    call.Server,
				"arguments": json.RawMessage(call.Arguments),
			})
		}

		resolved := o.dispatchRound(ctx, completion.Calls, selected)
		sess.resolveCalls(index, resolved)

		history = append(history, assistantMsg)
		history[len(history)-1].ToolCalls = resolved
		for _, call := range resolved {
			emit.EmitToolResult(req.TurnID, call)
			o.logEvent(sess.ID, req.TurnID, "inbound", "tool_result", call.ResultContent(), map[string]any{
				"server": call.Server,
				"tool":   call.Tool,
				"failed": call.Err != "",
			})
			history = append(history, chat.NewToolResultMessage(call))
		}
	}

	slog.Warn("Turn hit tool-call loop limit", "session_id", sess.ID, "turn_id", req.TurnID, "rounds", o.maxRounds)
	emit.EmitError(req.TurnID, ErrLoopLimit.Error())
	o.logEvent(sess.ID, req.TurnID, "inbound", "turn_error", ErrLoopLimit.Error(), nil)
	return ErrLoopLimit
}

// collectTools resolves the catalog of every selected server through the
// session cache and namespaces the definitions so the engine can route its
// calls back. A server whose catalog cannot be fetched is skipped for this
// turn, not fatal.
func (o *Orchestrator) collectTools(ctx context.Context, sess *Session, req TurnRequest) []chat.ToolDefinition {
	var defs []chat.ToolDefinition
	for _, srv := range req.Servers {
		tools, err := sess.Catalog().Tools(ctx, srv)
		if err != nil {
			slog.Warn("Skipping server for this turn", "server", srv.Name, "error", err)
			continue
		}
		for _, tool := range tools {
			defs = append(defs, chat.ToolDefinition{
				Name:        chat.QualifiedToolName(srv.Name, tool.Name),
				Description: fmt.Sprintf("[%s] %s", srv.Name, tool.Description),
				InputSchema: tool.InputSchema,
			})
		}
	}
	return defs
}

// dispatchRound invokes every call of one round concurrently and waits for
// all of them. Results are re-attached by call identity: the returned slice
// preserves the request order regardless of completion order, and a failed
// call carries its error description instead of aborting the round.
func (o *Orchestrator) dispatchRound(ctx context.Context, calls []chat.ToolCall, selected map[string]chat.ToolServer) []chat.ToolCall {
	resolved := make([]chat.ToolCall, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call chat.ToolCall) {
			defer wg.Done()
			result, err := o.invoker.Invoke(ctx, call, selected)
			if err != nil {
				call.Err = err.Error()
			} else {
				call.Result = result
			}
			resolved[i] = call
		}(i, call)
	}
	wg.Wait()
	return resolved
}

func (o *Orchestrator) logEvent(sessionID, turnID, direction, eventType, content string, meta map[string]any) {
	o.log.Log(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		TurnID:    turnID,
		Direction: direction,
		EventType: eventType,
		Content:   content,
		Meta:      meta,
	})
}
