package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
)

// clarifyCap bounds every score when the model itself asks for clarification.
const clarifyCap = 0.49

// historyWindow is how many recent messages accompany the reference.
const historyWindow = 6

// Chatter is the chat capability the semantic matcher needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// SemanticMatcher asks an LLM which numbered candidate the reference means.
type SemanticMatcher struct {
	chat  Chatter
	model string
}

// NewSemanticMatcher creates a SemanticMatcher.
func NewSemanticMatcher(chat Chatter, model string) *SemanticMatcher {
	return &SemanticMatcher{chat: chat, model: model}
}

type matchOutput struct {
	Matches []struct {
		Index      int     `json:"index"`
		Confidence float64 `json:"confidence"`
	} `json:"matches"`
	Reasoning          string `json:"reasoning"`
	NeedsClarification bool   `json:"needs_clarification"`
}

// Match implements Matcher.
func (m *SemanticMatcher) Match(ctx context.Context, reference string, candidates []Candidate, history []engine.Message) ([]Score, string, error) {
	resp, err := m.chat.Chat(ctx, m.model, matchPrompt(reference, candidates, history), matchSchema())
	if err != nil {
		return nil, "", fmt.Errorf("semantic match: %w", err)
	}

	out, err := parseMatch(resp)
	if err != nil {
		return nil, "", err
	}

	scores := make([]Score, 0, len(out.Matches))
	for _, mt := range out.Matches {
		s := Score{Index: mt.Index - 1, Score: mt.Confidence}
		if out.NeedsClarification {
			s.Score = min(s.Score, clarifyCap)
		}
		scores = append(scores, s)
	}
	return scores, out.Reasoning, nil
}

func matchPrompt(reference string, candidates []Candidate, history []engine.Message) []engine.Message {
	var b strings.Builder
	b.WriteString("A shopper is referring to one of the products below. Decide which one they mean.\n\n")
	b.WriteString("Products:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.describe())
	}
	if len(history) > 0 {
		if len(history) > historyWindow {
			history = history[len(history)-historyWindow:]
		}
		b.WriteString("\nRecent conversation:\n")
		for _, h := range history {
			fmt.Fprintf(&b, "%s: %s\n", h.Role, h.Content)
		}
	}
	fmt.Fprintf(&b, "\nShopper's reference: %q\n\n", reference)
	b.WriteString("Score every product that could match with a confidence between 0 and 1. ")
	b.WriteString("If two products fit equally well, give them equal confidence. ")
	b.WriteString("Set needs_clarification when the reference cannot be pinned to one product.\n")
	b.WriteString(`Respond with only a JSON object: {"matches":[{"index":<product number>,"confidence":<float>}],"reasoning":"<short>","needs_clarification":<bool>}`)

	return []engine.Message{{Role: engine.RoleUser, Content: b.String()}}
}

// parseMatch extracts the JSON object from a model response. Small local
// models often wrap JSON in code fences or add prose around it.
func parseMatch(resp string) (matchOutput, error) {
	s := strings.TrimSpace(resp)
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return matchOutput{}, fmt.Errorf("no JSON object in match response")
	}

	var out matchOutput
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return matchOutput{}, fmt.Errorf("unmarshal match: %w", err)
	}
	return out, nil
}

func matchSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"matches": {
				Type: "array",
				Items: &engine.SchemaProperty{
					Type:        "object",
					Description: "index is the 1-based product number, confidence is 0.0-1.0",
				},
			},
			"reasoning":           {Type: "string"},
			"needs_clarification": {Type: "boolean"},
		},
		Required: []string{"matches"},
	}
}
