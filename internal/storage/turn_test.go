package storage

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestTurnFromModelLogsCorruptMetadata(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	turn := turnFromModel(turnModel{ID: "t1", Role: "user", Content: "hi", Metadata: json.RawMessage(`{"conversation_id":`)})
	if turn.Metadata != nil {
		t.Fatalf("corrupt metadata must be dropped, got %v", turn.Metadata)
	}
	if turn.ID != "t1" || turn.Content != "hi" {
		t.Fatalf("turn fields lost: %+v", turn)
	}
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "turn_id=t1") {
		t.Fatalf("expected a warning naming the turn, got %q", buf.String())
	}

	turn = turnFromModel(turnModel{ID: "t2", Metadata: json.RawMessage(`{"conversation_id":"c1"}`)})
	if turn.Metadata["conversation_id"] != "c1" {
		t.Fatalf("valid metadata not decoded: %v", turn.Metadata)
	}
}
