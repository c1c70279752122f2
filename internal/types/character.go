// Package types holds the domain records shared across packages.
package types

import "time"

// Character is the persisted persona record.
type Character struct {
	ID               string            `json:"id" yaml:"id"`
	Name             string            `json:"name" yaml:"name"`
	Avatar           string            `json:"avatar" yaml:"avatar"`
	Description      string            `json:"description" yaml:"description"`
	Personality      string            `json:"personality" yaml:"personality"`
	Background       string            `json:"background,omitempty" yaml:"background"`
	ExampleDialogues []DialogueExample `json:"exampleDialogues,omitempty" yaml:"exampleDialogues"`
	Greeting         string            `json:"greeting" yaml:"greeting"`
	// SystemPrompt is compiled once at creation and only rebuilt by an explicit recompile.
	SystemPrompt string     `json:"systemPrompt" yaml:"systemPrompt"`
	Axes         PolicyAxes `json:"axes" yaml:"axes"`
	CreatedAt    time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt" yaml:"updatedAt"`
}

// DialogueExample is one sample exchange used to show the persona's voice.
type DialogueExample struct {
	User      string `json:"user" yaml:"user"`
	Assistant string `json:"assistant" yaml:"assistant"`
}

// PolicyAxes are the conversation-policy inputs the persona compiler renders.
type PolicyAxes struct {
	Language          string `json:"language" yaml:"language"`
	ConversationStyle string `json:"conversationStyle" yaml:"conversationStyle"`
	RelationshipType  string `json:"relationshipType" yaml:"relationshipType"`
	RelationshipRole  string `json:"relationshipRole,omitempty" yaml:"relationshipRole"`
	RelationshipLabel string `json:"relationshipLabel,omitempty" yaml:"relationshipLabel"`
	EmotionalTone     string `json:"emotionalTone" yaml:"emotionalTone"`
	Category          string `json:"category" yaml:"category"`
	UserName          string `json:"userName,omitempty" yaml:"userName"`
	PreferredAddress  string `json:"preferredAddress,omitempty" yaml:"preferredAddress"`
	AgeRelation       string `json:"ageRelation,omitempty" yaml:"ageRelation"`
	AuthorityLevel    string `json:"authorityLevel,omitempty" yaml:"authorityLevel"`
}

const (
	// LanguageIndonesian is the primary language tag.
	LanguageIndonesian = "id"
	// LanguageEnglish is the secondary language tag.
	LanguageEnglish = "en"
)
