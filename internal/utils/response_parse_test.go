package utils

import (
	"strings"
	"testing"
)

func strVal(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func TestParseStructuredReplyAllMarkers(t *testing.T) {
	got := ParseStructuredReply(`*waves* "hello there" (nervous)`)
	if strVal(got.Action) != "waves" {
		t.Fatalf("unexpected action: %s", strVal(got.Action))
	}
	if strVal(got.Dialogue) != "hello there" {
		t.Fatalf("unexpected dialogue: %s", strVal(got.Dialogue))
	}
	if strVal(got.Thought) != "nervous" {
		t.Fatalf("unexpected thought: %s", strVal(got.Thought))
	}
	if got.Emotion != nil {
		t.Fatalf("expected no emotion, got %q", *got.Emotion)
	}
	if got.RawContent != `*waves* "hello there" (nervous)` {
		t.Fatalf("raw content changed: %q", got.RawContent)
	}
}

func TestParseStructuredReplyPlainText(t *testing.T) {
	inputs := []string{
		"  just talking normally  ",
		"hello",
		"multi\nline reply\t",
	}
	for _, in := range inputs {
		got := ParseStructuredReply(in)
		want := strings.TrimSpace(in)
		if strVal(got.Dialogue) != want {
			t.Fatalf("input %q: expected dialogue %q, got %q", in, want, strVal(got.Dialogue))
		}
		if got.Action != nil || got.Thought != nil || got.Emotion != nil {
			t.Fatalf("input %q: expected only dialogue, got %+v", in, got)
		}
		if got.RawContent != in {
			t.Fatalf("input %q: raw content changed", in)
		}
	}
}

func TestParseStructuredReplyJoinsMatches(t *testing.T) {
	got := ParseStructuredReply(`*smiles* "Hi!" *leans closer* "Missed you."`)
	if strVal(got.Action) != "smiles leans closer" {
		t.Fatalf("unexpected action: %s", strVal(got.Action))
	}
	if strVal(got.Dialogue) != "Hi! Missed you." {
		t.Fatalf("unexpected dialogue: %s", strVal(got.Dialogue))
	}
	if got.Thought != nil {
		t.Fatalf("expected no thought, got %q", *got.Thought)
	}
}

func TestParseStructuredReplyResidualEmotion(t *testing.T) {
	got := ParseStructuredReply(`Feeling shy... "okay" *nods*`)
	if strVal(got.Emotion) != "Feeling shy..." {
		t.Fatalf("unexpected emotion: %s", strVal(got.Emotion))
	}
}

func TestParseStructuredReplyStripsQuotesInFallback(t *testing.T) {
	got := ParseStructuredReply(`"unterminated`)
	if strVal(got.Dialogue) != "unterminated" {
		t.Fatalf("unexpected dialogue: %s", strVal(got.Dialogue))
	}
}
