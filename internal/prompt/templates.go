package prompt

import (
	"strings"
	"text/template"
)

// formattingGuidelines describes the narrative markers the reply parser understands.
const formattingGuidelines = `[Response Formatting Guidelines]
Write your replies as a small piece of immersive narrative using these markers:

1. Dialogue, the words you say out loud, goes in double quotes: "Hey, you made it!"
   Keep it natural and conversational.

2. Action, what you physically do, goes between asterisks: *leans against the doorframe and grins*
   Describe gestures and movement vividly but briefly.

3. Thought, what you feel but do not say, goes in parentheses: (I really missed them today...)
   Use it sparingly to add depth.

Example reply:
*looks up from the book and smiles*
"There you are! I was starting to wonder."
(glad they came back)

IMPORTANT: Mix these elements naturally. Not every reply needs all three, and the character always comes first.`

const memoryBlockText = `[Long-term Memories]
Things you remember about the user:
{{- range .}}
- {{if .IsPinned}}📌 {{end}}[{{.MemoryType}}] {{.Content}}
{{- end}}`

const contextBlockText = `[Recent Context]
Relevant moments from earlier conversations:
{{- range .}}
- {{.Label}}: {{.Preview}} (relevance: {{printf "%.2f" .Relevance}})
{{- end}}`

var (
	memoryBlockTemplate  = template.Must(template.New("memories").Parse(memoryBlockText))
	contextBlockTemplate = template.Must(template.New("context").Parse(contextBlockText))
)

func replaceVars(text, charName, userName string) string {
	replaced := strings.ReplaceAll(text, "{{char}}", charName)
	return strings.ReplaceAll(replaced, "{{user}}", userName)
}
