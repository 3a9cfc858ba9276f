package chat

import (
	"encoding/json"
	"testing"
)

func TestQualifiedToolNameRoundTrip(t *testing.T) {
	qualified := QualifiedToolName("github", "list_issues")
	if qualified != "github__list_issues" {
		t.Errorf("Expected github__list_issues, got %s", qualified)
	}

	server, tool := SplitToolName(qualified)
	if server != "github" || tool != "list_issues" {
		t.Errorf("Expected github/list_issues, got %s/%s", server, tool)
	}
}

func TestSplitToolNameWithoutSeparator(t *testing.T) {
	server, tool := SplitToolName("lonely_tool")
	if server != "unknown" {
		t.Errorf("Expected unknown server, got %s", server)
	}
	if tool != "lonely_tool" {
		t.Errorf("Expected lonely_tool, got %s", tool)
	}
}

func TestSplitToolNameKeepsTrailingSeparators(t *testing.T) {
	// Tool names may themselves contain double underscores; only the first
	// separator splits.
	server, tool := SplitToolName("slack__post__message")
	if server != "slack" || tool != "post__message" {
		t.Errorf("Expected slack/post__message, got %s/%s", server, tool)
	}
}

func TestResultContentForError(t *testing.T) {
	call := ToolCall{ID: "c1", Server: "github", Tool: "list_issues", Err: "boom"}

	var decoded map[string]string
	if err := json.Unmarshal([]byte(call.ResultContent()), &decoded); err != nil {
		t.Fatalf("ResultContent is not valid JSON: %v", err)
	}
	if decoded["error"] != "boom" {
		t.Errorf("Expected error boom, got %v", decoded)
	}
}

func TestResultContentDefaultsToEmptyObject(t *testing.T) {
	call := ToolCall{ID: "c1"}
	if got := call.ResultContent(); got != "{}" {
		t.Errorf("Expected {}, got %s", got)
	}
}

func TestResolved(t *testing.T) {
	call := ToolCall{ID: "c1"}
	if call.Resolved() {
		t.Error("Expected unresolved call")
	}
	call.Result = json.RawMessage(`{"ok":true}`)
	if !call.Resolved() {
		t.Error("Expected resolved call after result")
	}

	failed := ToolCall{ID: "c2", Err: "timeout"}
	if !failed.Resolved() {
		t.Error("Expected resolved call after error")
	}
}
