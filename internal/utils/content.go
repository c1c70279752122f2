// Package utils holds small text helpers shared by the engine.
package utils

import (
	"strings"

	"google.golang.org/genai"
)

// ExtractContentText concatenates the text parts of a genai content.
func ExtractContentText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// NormalizePromptText fills {{char}}/{{user}} placeholders and unescapes
// literal newline and quote sequences common in hand-written persona files.
func NormalizePromptText(text string, charName, userName string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "{{char}}", charName)
	text = strings.ReplaceAll(text, "{{user}}", userName)
	text = strings.ReplaceAll(text, "\\r\\n", "\n")
	text = strings.ReplaceAll(text, "\\n", "\n")
	text = strings.ReplaceAll(text, "\\\"", "\"")
	return text
}

// CountTokens approximates a token count by whitespace-separated words.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
