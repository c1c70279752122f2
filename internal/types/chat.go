package types

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryMessage is the normalized shape of a prior turn.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContextItem is a prior-conversation snippet returned by the retriever.
type ContextItem struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Relevance float64           `json:"relevance"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// GenerationParams carries the sampling settings for one generation call.
type GenerationParams struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
}

// StructuredReply is the narrative decomposition of a raw reply.
type StructuredReply struct {
	Dialogue   *string `json:"dialogue,omitempty"`
	Action     *string `json:"action,omitempty"`
	Thought    *string `json:"thought,omitempty"`
	Emotion    *string `json:"emotion,omitempty"`
	RawContent string  `json:"rawContent"`
}

// ChatRequest is one user turn.
type ChatRequest struct {
	CharacterID    string `json:"characterId"`
	UserID         string `json:"userId"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ResponseMetadata describes how a reply was produced.
type ResponseMetadata struct {
	ResponseTime float64 `json:"responseTime"`
	TokenCount   int     `json:"tokenCount"`
	Model        string  `json:"model"`
	ContextUsed  int     `json:"contextUsed"`
}

// ChatResponse is the result of one processed turn.
type ChatResponse struct {
	Response       string           `json:"response"`
	CharacterName  string           `json:"characterName"`
	ConversationID string           `json:"conversationId"`
	ContextUsed    []ContextItem    `json:"contextUsed"`
	Metadata       ResponseMetadata `json:"metadata"`
	Structured     StructuredReply  `json:"structured"`
}
