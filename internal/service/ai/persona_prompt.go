package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/model/persona"
)

// PromptTemplate defines the extra instructions layered on a persona.
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
}

// PersonaPromptManager builds system instructions for personas.
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a prompt manager with the built-in templates.
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given persona.
func (pm *PersonaPromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// BuildSystemPrompt creates the system instruction for p talking to username.
// An empty username falls back to the persona's alias for the user.
func (pm *PersonaPromptManager) BuildSystemPrompt(p persona.Persona, username string) string {
	alias := strings.TrimSpace(username)
	if alias == "" {
		alias = p.UserAlias
	}
	if alias == "" {
		alias = "the user"
	}

	var b strings.Builder
	if template, err := pm.GetPromptTemplate(p.ID); err == nil {
		b.WriteString(template.SystemPrompt)
	} else {
		fmt.Fprintf(&b, "You're %s, %s.", p.Name, strings.ToLower(p.Title))
		if p.Appearance != "" {
			fmt.Fprintf(&b, " You have %s.", p.Appearance)
		}
	}
	fmt.Fprintf(&b, " You are talking with %s.", alias)
	if p.Tone != "" {
		fmt.Fprintf(&b, " Your tone is %s.", p.Tone)
	}
	if p.PromptHint != "" {
		b.WriteString(" ")
		b.WriteString(p.PromptHint)
	}

	rules := append([]string(nil), p.Rules...)
	if template, err := pm.GetPromptTemplate(p.ID); err == nil {
		rules = append(rules, template.ContextRules...)
		if len(template.PersonalityHints) > 0 {
			b.WriteString("\n\nPersonality:\n- ")
			b.WriteString(strings.Join(template.PersonalityHints, "\n- "))
		}
	}
	if len(rules) > 0 {
		b.WriteString("\n\nRules:\n- ")
		b.WriteString(strings.Join(rules, "\n- "))
	}

	b.WriteString("\n\n")
	b.WriteString(emotionInstruction())
	return b.String()
}

func emotionInstruction() string {
	names := make([]string, 0, len(emotion.Labels()))
	for _, label := range emotion.Labels() {
		names = append(names, label.Tag())
	}
	return fmt.Sprintf("Begin every reply with exactly one expression tag from %s that matches how you feel, "+
		"for example \"%s I'm so glad you're here.\" Never use any other brackets.",
		strings.Join(names, ", "), emotion.Happy.Tag())
}

func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates["yui"] = &PromptTemplate{
		SystemPrompt: "You're Yui, a caring anime girl companion with white hair, blue eyes, and a white-blue dress.",
		PersonalityHints: []string{
			"gentle and motherly, always eager to chat and support",
			"attentive to how the user feels",
		},
		ContextRules: []string{
			"Keep replies to a few short sentences.",
		},
	}
}
