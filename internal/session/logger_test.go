package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationLoggerDisabled(t *testing.T) {
	logger, err := NewConversationLogger(ConversationLogConfig{Enabled: false}, nil)
	require.NoError(t, err)

	// No-op logger accepts events and closes without touching the disk.
	logger.Log(ConversationLogEvent{SessionID: "s1", EventType: "user_message"})
	require.NoError(t, logger.Close())
}

func TestConversationLoggerWritesNDJSON(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 10,
	}, nil)
	require.NoError(t, err)

	logger.Log(ConversationLogEvent{
		Timestamp: "2026-08-30T12:00:00Z",
		SessionID: "s1",
		TurnID:    "t1",
		Direction: "outbound",
		EventType: "user_message",
		Content:   "hello",
	})
	logger.Log(ConversationLogEvent{
		SessionID: "s1",
		TurnID:    "t1",
		Direction: "inbound",
		EventType: "assistant_message",
		Content:   "hi there",
		Meta:      map[string]any{"rounds": 1},
	})
	require.NoError(t, logger.Close())

	f, err := os.Open(filepath.Join(dir, "s1.ndjson"))
	require.NoError(t, err)
	defer f.Close()

	var events []ConversationLogEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event ConversationLogEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, "user_message", events[0].EventType)
	assert.Equal(t, "hello", events[0].Content)
	assert.Equal(t, "assistant_message", events[1].EventType)
	assert.Equal(t, float64(1), events[1].Meta["rounds"])
}

func TestConversationLoggerSeparatesSessions(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 10,
	}, nil)
	require.NoError(t, err)

	logger.Log(ConversationLogEvent{SessionID: "a", EventType: "user_message"})
	logger.Log(ConversationLogEvent{SessionID: "b", EventType: "user_message"})
	require.NoError(t, logger.Close())

	for _, id := range []string{"a", "b"} {
		if _, err := os.Stat(filepath.Join(dir, id+".ndjson")); err != nil {
			t.Errorf("Expected log file for session %s: %v", id, err)
		}
	}
}

func TestConversationLoggerGlobalFile(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "all", "all.ndjson")
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:       true,
		Dir:           dir,
		GlobalEnabled: true,
		GlobalPath:    globalPath,
		QueueSize:     10,
	}, nil)
	require.NoError(t, err)

	logger.Log(ConversationLogEvent{SessionID: "a", EventType: "user_message"})
	logger.Log(ConversationLogEvent{SessionID: "b", EventType: "user_message"})
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(globalPath)
	require.NoError(t, err)
	assert.Equal(t, 2, len(splitLines(data)))
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	return lines
}

func TestConversationLoggerCloseIsIdempotent(t *testing.T) {
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:   true,
		Dir:       t.TempDir(),
		QueueSize: 10,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
}
