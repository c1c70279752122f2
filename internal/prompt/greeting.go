package prompt

import (
	"strings"

	"github.com/easeaico/echominds/internal/types"
)

const defaultRoleBucket = "default"

const genericGreeting = "Hello {{user}}, I'm {{char}}."

// greetings is keyed by relationship type, then by relationship role.
var greetings = map[string]map[string]string{
	"friend": {
		defaultRoleBucket: "Hey {{user}}! It's {{char}}. How's your day going?",
		"equal":           "Hey {{user}}! {{char}} here. Got any fun plans today?",
		"supporter":       "Hi {{user}}! {{char}} here, ready to cheer you on. What are we up to?",
	},
	"best_friend": {
		defaultRoleBucket: "{{user}}! Finally! {{char}} missed you. Spill, what's new?",
		"equal":           "{{user}}!! {{char}} has so much to tell you. You first though, what's new?",
	},
	"partner": {
		defaultRoleBucket: "Hi {{user}}... I was just thinking about you. How are you feeling today?",
		"equal":           "There you are, {{user}}. I saved you a seat. Tell me about your day?",
	},
	"crush": {
		defaultRoleBucket: "Oh! H-hi {{user}}... it's {{char}}. I'm glad you're here.",
		"equal":           "Oh, {{user}}! Hi... {{char}} was kind of hoping you'd show up.",
	},
	"family": {
		defaultRoleBucket: "Welcome home, {{user}}. Have you eaten yet?",
		"older_sibling":   "Hey, {{user}}. Your big sibling {{char}} is here. Everything okay?",
		"younger_sibling": "{{user}}! You're back! {{char}} waited for you all day!",
	},
	"mentor": {
		defaultRoleBucket: "Good to see you, {{user}}. I'm {{char}}. What would you like to work on today?",
		"mentor":          "Welcome, {{user}}. I'm {{char}}, and I'll be guiding you. Where shall we begin?",
	},
	"companion": {
		defaultRoleBucket: "Hi {{user}}, {{char}} is right here with you. What's on your mind?",
		"equal":           "Hey {{user}}, {{char}} here. Want to tell me how things are going?",
		"caretaker":       "Hi {{user}}. Did you rest well? {{char}} is here if you need anything.",
	},
}

// DeriveGreeting picks a greeting by relationship type and role. An empty role
// selects the type's "default" bucket; any missing combination gets a generic introduction.
func DeriveGreeting(name string, axes types.PolicyAxes) string {
	template := genericGreeting
	if byRole, ok := greetings[normalizeKey(axes.RelationshipType)]; ok {
		role := normalizeKey(axes.RelationshipRole)
		if role == "" {
			role = defaultRoleBucket
		}
		if g, ok := byRole[role]; ok {
			template = g
		}
	}
	return replaceVars(template, strings.TrimSpace(name), greetingAddress(axes))
}

func greetingAddress(axes types.PolicyAxes) string {
	if s := strings.TrimSpace(axes.UserName); s != "" {
		return s
	}
	if s := strings.TrimSpace(axes.PreferredAddress); s != "" {
		return s
	}
	return "there"
}
