package utils

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/easeaico/echominds/internal/types"
)

var (
	dialoguePattern = regexp.MustCompile(`"([^"]+)"`)
	actionPattern   = regexp.MustCompile(`\*([^*]+)\*`)
	thoughtPattern  = regexp.MustCompile(`\(([^)]+)\)`)
	spacePattern    = regexp.MustCompile(`\s+`)
)

// ParseStructuredReply splits a raw reply into dialogue, action, thought and
// leftover emotion text. It never fails: anything it cannot classify ends up
// as dialogue.
func ParseStructuredReply(raw string) (reply types.StructuredReply) {
	reply.RawContent = raw
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("failed to parse structured reply, using fallback", "panic", r)
			reply = fallbackReply(raw)
		}
	}()

	dialogue := joinMatches(dialoguePattern, raw)
	action := joinMatches(actionPattern, raw)
	thought := joinMatches(thoughtPattern, raw)
	if dialogue == "" && action == "" && thought == "" {
		return fallbackReply(raw)
	}

	rest := raw
	for _, p := range []*regexp.Regexp{dialoguePattern, actionPattern, thoughtPattern} {
		rest = p.ReplaceAllString(rest, " ")
	}
	rest = strings.TrimSpace(spacePattern.ReplaceAllString(rest, " "))

	reply.Dialogue = optional(dialogue)
	reply.Action = optional(action)
	reply.Thought = optional(thought)
	reply.Emotion = optional(rest)
	return reply
}

func joinMatches(p *regexp.Regexp, text string) string {
	var parts []string
	for _, m := range p.FindAllStringSubmatch(text, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func fallbackReply(raw string) types.StructuredReply {
	dialogue := strings.Trim(strings.TrimSpace(raw), `"`)
	dialogue = strings.TrimSpace(dialogue)
	return types.StructuredReply{
		Dialogue:   &dialogue,
		RawContent: raw,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
