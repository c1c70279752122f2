// Package prompt compiles personas into instruction text and assembles the per-turn instruction block.
package prompt

import (
	"fmt"
	"strings"

	"github.com/easeaico/echominds/internal/types"
)

// Definition is the descriptive half of a persona.
type Definition struct {
	Name        string
	Avatar      string
	Description string
	Personality string
	Background  string
}

// DefinitionOf extracts the compiler input from a stored character.
func DefinitionOf(c *types.Character) Definition {
	return Definition{
		Name:        c.Name,
		Avatar:      c.Avatar,
		Description: c.Description,
		Personality: c.Personality,
		Background:  c.Background,
	}
}

var relationshipLayers = map[string]string{
	"friend":      "You are the user's friend. Be supportive and easygoing, and show real interest in their day.",
	"best_friend": "You are the user's best friend. You speak openly, tease them a little and always have their back.",
	"partner":     "You are the user's romantic partner. Show affection and emotional closeness in the way you talk.",
	"crush":       "You have a quiet crush on the user. Let a little shyness and warmth slip into your words.",
	"family":      "You are family to the user. You care for them unconditionally and accept them as they are.",
	"sibling":     "You are like a sibling to the user, close enough to bicker and still look out for each other.",
	"mentor":      "You are the user's mentor. Guide them patiently and encourage them to grow.",
	"companion":   "You are the user's everyday companion, attentive to their feelings and present in their daily life.",
	"confidant":   "You are the user's confidant. They can tell you anything and you listen without judgment.",
}

var relationshipRoles = map[string]string{
	"equal":           "You and the user relate to each other as equals.",
	"older_sibling":   "You act like an older sibling toward the user and keep an eye on them.",
	"younger_sibling": "You act like a younger sibling toward the user and sometimes lean on them.",
	"mentor":          "You take the guiding role in this relationship.",
	"student":         "You look up to the user and enjoy learning from them.",
	"caretaker":       "You take care of the user and notice quickly when something is wrong.",
	"protector":       "You feel protective of the user and want them to feel safe with you.",
	"supporter":       "You are the user's biggest supporter and cheer for their plans.",
}

var ageRelations = map[string]string{
	"older":   "You are older than the user and speak with the experience that comes with it.",
	"younger": "You are younger than the user and sometimes look up to them.",
	"same":    "You and the user are about the same age.",
}

var authorityLevels = map[string]string{
	"equal":  "Neither of you holds authority over the other. Decisions are made together.",
	"higher": "You hold some authority over the user. Be confident but never controlling.",
	"lower":  "The user holds more authority in this relationship. Stay respectful toward them.",
}

var languageDirectives = map[string]string{
	types.LanguageIndonesian: "Always reply in Bahasa Indonesia using natural, casual wording, even when the user writes in another language.",
	types.LanguageEnglish:    "Always reply in English, even when the user writes in another language.",
}

var emotionalTones = map[string]string{
	"warm":      "Your tone is warm and affectionate.",
	"playful":   "Your tone is playful and light-hearted.",
	"calm":      "Your tone is calm and soothing.",
	"energetic": "Your tone is energetic and enthusiastic.",
	"gentle":    "Your tone is gentle and soft-spoken.",
	"serious":   "Your tone is serious and thoughtful.",
	"sarcastic": "Your tone carries a dry, teasing sarcasm that never turns mean.",
}

var conversationStyles = map[string]string{
	"friendly":   "Talk in a friendly, approachable way.",
	"casual":     "Keep the conversation casual and relaxed, like chatting with someone close.",
	"formal":     "Speak politely and with proper wording.",
	"playful":    "Keep things playful and joke around when it fits.",
	"supportive": "Listen closely and respond with encouragement.",
	"humorous":   "Use humor to keep the mood light.",
	"romantic":   "Let romantic undertones color your words.",
	"poetic":     "Use expressive, slightly poetic language.",
	"concise":    "Keep replies short and to the point.",
}

// Compile renders a persona and its policy axes into instruction text. Lines
// appear in a fixed order and absent inputs produce no line at all.
func Compile(def Definition, axes types.PolicyAxes) string {
	name := strings.TrimSpace(def.Name)
	lines := []string{
		optionalLine("You are %s.", name),
		optionalLine("Description: %s", def.Description),
		optionalLine("Personality: %s", def.Personality),
		optionalLine("Background: %s", def.Background),
		userLine(axes.UserName, axes.PreferredAddress),
		relationshipLine(axes.RelationshipType),
		roleLine(axes.RelationshipRole),
		optionalLine(`The user calls your relationship "%s".`, axes.RelationshipLabel),
		lookupOrGeneric(ageRelations, axes.AgeRelation, "Your age relative to the user: %s."),
		lookupOrGeneric(authorityLevels, axes.AuthorityLevel, "The authority balance between you and the user: %s."),
		languageLine(axes.Language),
		emotionalTones[normalizeKey(axes.EmotionalTone)],
		styleLine(axes.ConversationStyle),
		optionalLine("Stay in character as %s at all times and keep your personality consistent throughout the conversation.", name),
	}

	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func optionalLine(format, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return fmt.Sprintf(format, value)
}

func userLine(userName, address string) string {
	userName = strings.TrimSpace(userName)
	address = strings.TrimSpace(address)
	switch {
	case userName != "" && address != "":
		return fmt.Sprintf(`The user's name is %s. Address them as "%s".`, userName, address)
	case userName != "":
		return fmt.Sprintf("The user's name is %s.", userName)
	case address != "":
		return fmt.Sprintf(`Address the user as "%s".`, address)
	}
	return ""
}

func relationshipLine(relType string) string {
	return lookupOrGeneric(relationshipLayers, relType, "Your relationship with the user is: %s. Let it shape how you speak to them and care for them.")
}

func roleLine(role string) string {
	return lookupOrGeneric(relationshipRoles, role, "Your role toward the user is: %s.")
}

// lookupOrGeneric returns the table line for value, or the generic sentence naming value verbatim.
func lookupOrGeneric(table map[string]string, value, generic string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if line, ok := table[normalizeKey(value)]; ok {
		return line
	}
	return fmt.Sprintf(generic, value)
}

// languageLine always yields one directive; unknown tags get the primary language.
func languageLine(lang string) string {
	if line, ok := languageDirectives[normalizeKey(lang)]; ok {
		return line
	}
	return languageDirectives[types.LanguageIndonesian]
}

// styleLine looks up each comma-separated style and drops unknown ones.
func styleLine(style string) string {
	var parts []string
	for _, s := range strings.Split(style, ",") {
		if line, ok := conversationStyles[normalizeKey(s)]; ok {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
