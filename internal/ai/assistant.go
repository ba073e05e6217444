// Package ai answers customer messages before a human takes over. The
// Assistant applies a Persona's canned replies and escalation triggers and
// falls back to an LLM Responder whose output may ask for a human.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/real-rm/golog"
	"github.com/real-rm/supportdesk/internal/constants"
	"github.com/real-rm/supportdesk/internal/metrics"
)

// EscalationMarker is the phrase the model appends when it wants a human.
const EscalationMarker = "ESCALATE_TO_HUMAN"

// Fallback texts
const (
	MsgNotConfigured  = "I apologize, but I'm currently unable to process your request. Please try again later or speak to a human agent."
	MsgTriggerHandoff = "I understand you'd like to speak with a human agent. Let me connect you with one of our support team members right away."
	MsgMarkerSuffix   = "\n\nLet me connect you with a human agent who can better assist you."
	MsgResponderError = "I apologize, but I'm having trouble processing your request right now. Let me connect you with a human agent who can help."
)

// Escalation reasons
const (
	ReasonNotConfigured = "AI service not configured"
	ReasonLowConfidence = "AI could not confidently answer the question"
)

const knowledgeTopK = 3

// ErrNotConfigured is returned by a responder without credentials.
var ErrNotConfigured = errors.New("ai responder not configured")

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Responder produces a completion for question given a system prompt and
// history.
type Responder interface {
	Complete(ctx context.Context, systemPrompt string, history []Turn, question string) (string, error)
}

// Reply is the assistant's answer to one customer message.
type Reply struct {
	Text       string   `json:"response"`
	Escalate   bool     `json:"shouldEscalate"`
	Reason     string   `json:"escalationReason,omitempty"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
}

// Assistant is the AI first line of support.
type Assistant struct {
	persona   *Persona
	responder Responder
	logger    *golog.Logger
	timeout   time.Duration
}

// NewAssistant creates an assistant. A nil responder makes every message
// that is not a quick response escalate.
func NewAssistant(persona *Persona, responder Responder, logger *golog.Logger) *Assistant {
	if persona == nil {
		persona = DefaultPersona()
	}
	return &Assistant{
		persona:   persona,
		responder: responder,
		logger:    logger.WithGroup("ai"),
		timeout:   constants.AIResponseTimeout,
	}
}

// Persona returns the active persona.
func (a *Assistant) Persona() *Persona {
	return a.persona
}

// Configured reports whether an LLM responder is available.
func (a *Assistant) Configured() bool {
	return a.responder != nil
}

// Reply answers text. It never fails: responder errors become an escalating
// reply.
func (a *Assistant) Reply(ctx context.Context, text string, history []Turn) Reply {
	if quick, ok := a.persona.QuickResponse(text); ok {
		metrics.AIRequests.WithLabelValues("quick").Inc()
		return Reply{Text: quick, Confidence: 1, Sources: []string{}}
	}

	if phrase, ok := a.persona.MatchTrigger(text); ok {
		metrics.AIRequests.WithLabelValues("trigger").Inc()
		return Reply{
			Text:       MsgTriggerHandoff,
			Escalate:   true,
			Reason:     fmt.Sprintf("Customer requested to %s", phrase),
			Confidence: 1,
			Sources:    []string{},
		}
	}

	if a.responder == nil {
		metrics.AIRequests.WithLabelValues("not_configured").Inc()
		return Reply{Text: MsgNotConfigured, Escalate: true, Reason: ReasonNotConfigured, Sources: []string{}}
	}

	docs := a.retrieve(text)
	prompt := a.persona.Prompt(renderContext(docs))

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	start := time.Now()
	out, err := a.responder.Complete(ctx, prompt, history, text)
	metrics.AILatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AIRequests.WithLabelValues("error").Inc()
		a.logger.Warn("AI responder failed, escalating", "error", err)
		reason := "AI error: " + err.Error()
		if errors.Is(err, ErrNotConfigured) {
			reason = ReasonNotConfigured
		}
		return Reply{Text: MsgResponderError, Escalate: true, Reason: reason, Sources: []string{}}
	}
	metrics.AIRequests.WithLabelValues("ok").Inc()

	confidence := 0.4
	if len(docs) > 0 {
		confidence = 0.8
	}
	reply := Reply{
		Text:       strings.TrimSpace(strings.ReplaceAll(out, EscalationMarker, "")),
		Confidence: confidence,
		Sources:    topics(docs),
	}
	if strings.Contains(out, EscalationMarker) {
		reply.Escalate = true
		reply.Reason = ReasonLowConfidence
		reply.Text += MsgMarkerSuffix
	}
	return reply
}

// retrieve ranks knowledge entries by shared words with text.
func (a *Assistant) retrieve(text string) []KnowledgeEntry {
	query := words(text)
	if len(query) == 0 {
		return nil
	}
	type scored struct {
		entry KnowledgeEntry
		score int
	}
	var hits []scored
	for _, k := range a.persona.Knowledge {
		score := 0
		for w := range words(k.Question + " " + k.Topic) {
			if query[w] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{entry: k, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > knowledgeTopK {
		hits = hits[:knowledgeTopK]
	}
	out := make([]KnowledgeEntry, len(hits))
	for i, h := range hits {
		out[i] = h.entry
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "my": true, "i": true,
	"do": true, "does": true, "to": true, "of": true, "you": true, "how": true,
	"what": true, "can": true, "it": true, "in": true, "for": true, "and": true,
}

func words(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(w) > 1 && !stopWords[w] {
			out[w] = true
		}
		// Share the stem between "delivery" and "deliver".
		if strings.HasSuffix(w, "y") && len(w) > 4 {
			out[strings.TrimSuffix(w, "y")] = true
		}
	}
	return out
}

func renderContext(docs []KnowledgeEntry) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("Question: %s\nAnswer: %s", d.Question, d.Answer)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func topics(docs []KnowledgeEntry) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, d := range docs {
		if !seen[d.Topic] {
			seen[d.Topic] = true
			out = append(out, d.Topic)
		}
	}
	return out
}
