package ai

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_persona.yaml
var defaultPersonaYAML []byte

// QuickResponse answers messages matching Pattern without calling the model.
type QuickResponse struct {
	Pattern  string `yaml:"pattern"`
	Response string `yaml:"response"`

	re *regexp.Regexp
}

// KnowledgeEntry is one FAQ item offered to the model as context.
type KnowledgeEntry struct {
	Topic    string `yaml:"topic"`
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// Persona parameterizes the assistant for one business.
type Persona struct {
	BotName            string           `yaml:"botName"`
	BusinessName       string           `yaml:"businessName"`
	ContactInfo        string           `yaml:"contactInfo"`
	EscalationTriggers []string         `yaml:"escalationTriggers"`
	QuickResponses     []QuickResponse  `yaml:"quickResponses"`
	Knowledge          []KnowledgeEntry `yaml:"knowledge"`
	SystemPrompt       string           `yaml:"systemPrompt"`
	Temperature        float32          `yaml:"temperature"`
	MaxTokens          int              `yaml:"maxTokens"`

	triggers []trigger
}

type trigger struct {
	phrase string
	re     *regexp.Regexp
}

// DefaultPersona returns the built-in GroceryBot persona.
func DefaultPersona() *Persona {
	p, err := ParsePersona(defaultPersonaYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in persona is invalid: %v", err))
	}
	return p
}

// LoadPersona reads a persona from a YAML file. An empty path returns the
// built-in persona.
func LoadPersona(path string) (*Persona, error) {
	if path == "" {
		return DefaultPersona(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return ParsePersona(data)
}

// ParsePersona decodes and compiles a persona.
func ParsePersona(data []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona: %w", err)
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Persona) compile() error {
	if strings.TrimSpace(p.BotName) == "" {
		return fmt.Errorf("persona botName is required")
	}
	for i := range p.QuickResponses {
		re, err := regexp.Compile("(?i)" + p.QuickResponses[i].Pattern)
		if err != nil {
			return fmt.Errorf("quick response %d: %w", i, err)
		}
		p.QuickResponses[i].re = re
	}
	p.triggers = make([]trigger, 0, len(p.EscalationTriggers))
	for _, t := range p.EscalationTriggers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		// Whole words only, so "sue" does not fire on "issue".
		p.triggers = append(p.triggers, trigger{
			phrase: t,
			re:     regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(t) + `\b`),
		})
	}
	return nil
}

// QuickResponse returns the canned answer for text, if any.
func (p *Persona) QuickResponse(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, q := range p.QuickResponses {
		if q.re != nil && q.re.MatchString(text) {
			return q.Response, true
		}
	}
	return "", false
}

// MatchTrigger returns the first escalation trigger found in text.
func (p *Persona) MatchTrigger(text string) (string, bool) {
	for _, t := range p.triggers {
		if t.re.MatchString(text) {
			return t.phrase, true
		}
	}
	return "", false
}

// Prompt renders the system prompt with the retrieved context.
func (p *Persona) Prompt(context string) string {
	r := strings.NewReplacer(
		"{botName}", p.BotName,
		"{businessName}", p.BusinessName,
		"{contactInfo}", p.ContactInfo,
		"{context}", context,
	)
	return r.Replace(p.SystemPrompt)
}
