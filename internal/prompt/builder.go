package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/easeaico/echominds/internal/types"
)

const paragraphBreak = "\n\n"

// BuildOptions bounds the recent context block.
type BuildOptions struct {
	ContextItems  int
	PreviewLength int
}

// DefaultBuildOptions shows the top 3 context items, 200 characters each.
var DefaultBuildOptions = BuildOptions{ContextItems: 3, PreviewLength: 200}

// AppendFormattingGuidelines appends the fixed narrative formatting block.
func AppendFormattingGuidelines(text string) string {
	if text == "" {
		return formattingGuidelines
	}
	return text + paragraphBreak + formattingGuidelines
}

// BuildInstruction assembles one turn's instruction block: the persona text
// with memories and recent context spliced in after its first paragraph,
// followed by the formatting guidelines.
func BuildInstruction(personaPrompt string, memories []types.MemoryEntry, contextItems []types.ContextItem, opts BuildOptions) (string, error) {
	var sections []string
	if len(memories) > 0 {
		block, err := RenderMemoryBlock(memories)
		if err != nil {
			return "", err
		}
		sections = append(sections, block)
	}
	if len(contextItems) > 0 {
		block, err := RenderContextBlock(contextItems, opts)
		if err != nil {
			return "", err
		}
		sections = append(sections, block)
	}

	text := personaPrompt
	if len(sections) > 0 {
		text = SpliceAfterFirstParagraph(text, strings.Join(sections, paragraphBreak))
	}
	return AppendFormattingGuidelines(text), nil
}

// SpliceAfterFirstParagraph inserts block at the first paragraph break of
// text, or appends it when text has none.
func SpliceAfterFirstParagraph(text, block string) string {
	if text == "" {
		return block
	}
	idx := strings.Index(text, paragraphBreak)
	if idx < 0 {
		return text + paragraphBreak + block
	}
	return text[:idx] + paragraphBreak + block + text[idx:]
}

// RenderMemoryBlock lists memories with a pin marker and a type tag per line.
func RenderMemoryBlock(memories []types.MemoryEntry) (string, error) {
	var buf bytes.Buffer
	if err := memoryBlockTemplate.Execute(&buf, memories); err != nil {
		return "", fmt.Errorf("failed to render memory block: %w", err)
	}
	return buf.String(), nil
}

type contextLine struct {
	Label     string
	Preview   string
	Relevance float64
}

// RenderContextBlock lists the first opts.ContextItems items with truncated previews.
func RenderContextBlock(items []types.ContextItem, opts BuildOptions) (string, error) {
	if opts.ContextItems > 0 && len(items) > opts.ContextItems {
		items = items[:opts.ContextItems]
	}
	lines := make([]contextLine, 0, len(items))
	for _, item := range items {
		label := "User"
		if item.Role == types.RoleAssistant {
			label = "You"
		}
		lines = append(lines, contextLine{
			Label:     label,
			Preview:   preview(item.Content, opts.PreviewLength),
			Relevance: item.Relevance,
		})
	}
	var buf bytes.Buffer
	if err := contextBlockTemplate.Execute(&buf, lines); err != nil {
		return "", fmt.Errorf("failed to render context block: %w", err)
	}
	return buf.String(), nil
}

func preview(content string, limit int) string {
	content = strings.Join(strings.Fields(content), " ")
	if limit <= 0 || utf8.RuneCountInString(content) <= limit {
		return content
	}
	return string([]rune(content)[:limit]) + "..."
}
