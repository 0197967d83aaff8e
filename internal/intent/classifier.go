// Package intent classifies a shopper's utterance into the closed set of
// intents the agent understands and pulls search constraints out of it.
package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/akashsateesha/Clickless-IKEA/internal/constraint"
	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
)

// DefaultTimeout bounds a single classification call.
const DefaultTimeout = 3 * time.Second

// Chatter is the chat capability the classifier needs. engine.Engine satisfies it.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Kind is the classified intent of an utterance.
type Kind string

const (
	Search         Kind = "search"
	AddToCart      Kind = "add_to_cart"
	RemoveFromCart Kind = "remove_from_cart"
	ViewCart       Kind = "view_cart"
	CartTotal      Kind = "cart_total"
	Clarification  Kind = "clarification"
	Other          Kind = "other"
)

// IsSearch reports whether k feeds the constraint merger.
func (k Kind) IsSearch() bool {
	return k == Search || k == Clarification
}

// Intent is the classifier's reading of one utterance.
type Intent struct {
	Kind        Kind                    `json:"kind"`
	Constraints []constraint.Constraint `json:"constraints,omitempty"`
	Reference   string                  `json:"reference,omitempty"`
	Query       string                  `json:"query,omitempty"`
}

// modelOutput mirrors the JSON schema sent to the model.
type modelOutput struct {
	Intent           string   `json:"intent"`
	Confidence       float64  `json:"confidence"`
	Category         string   `json:"category"`
	PriceMin         float64  `json:"price_min"`
	PriceMax         float64  `json:"price_max"`
	Colors           []string `json:"colors"`
	Features         []string `json:"features"`
	ProductReference string   `json:"product_reference"`
	SearchQuery      string   `json:"search_query"`
}

// Classifier uses an LLM to classify utterances.
type Classifier struct {
	client  Chatter
	model   string
	timeout time.Duration
}

// NewClassifier creates a Classifier using the given chat client and model name.
// A zero timeout uses DefaultTimeout.
func NewClassifier(client Chatter, model string, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Classifier{client: client, model: model, timeout: timeout}
}

// Classify returns the intent of utterance and the model's confidence in it.
// On any failure (timeout, malformed JSON, engine error) it returns Other
// with confidence 0 and no constraints; a turn never blocks on classification.
func (c *Classifier) Classify(ctx context.Context, utterance string, history []engine.Message, st State) (Intent, float64) {
	if strings.TrimSpace(utterance) == "" {
		return Intent{Kind: Other}, 0
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Chat(ctx, c.model, BuildPrompt(utterance, history, st), intentSchema())
	if err != nil {
		slog.Warn("intent classification chat failed", "error", err)
		return Intent{Kind: Other}, 0
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		slog.Warn("failed to unmarshal intent from LLM response", "error", err, "response", raw)
		return Intent{Kind: Other}, 0
	}

	in := Intent{
		Kind:      mapLabel(out.Intent),
		Reference: strings.TrimSpace(out.ProductReference),
		Query:     strings.TrimSpace(out.SearchQuery),
	}
	if in.Kind.IsSearch() || in.Kind == AddToCart {
		in.Constraints = constraintsFrom(out, utterance)
	}
	if in.Kind == AddToCart || in.Kind == RemoveFromCart {
		if in.Reference == "" {
			in.Reference = utterance
		}
	}
	if in.Kind.IsSearch() && in.Query == "" {
		in.Query = utterance
	}
	return in, clamp01(out.Confidence)
}

// mapLabel folds the model's labels onto the closed Kind set.
func mapLabel(label string) Kind {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "search", "refinement", "browse":
		return Search
	case "clarification":
		return Clarification
	case "add_to_cart", "add":
		return AddToCart
	case "remove_from_cart", "remove":
		return RemoveFromCart
	case "view_cart":
		return ViewCart
	case "cart_total", "total":
		return CartTotal
	default:
		return Other
	}
}

// constraintsFrom combines the model's entities with the deterministic
// preference parser, the model winning where both found the same kind.
func constraintsFrom(out modelOutput, utterance string) []constraint.Constraint {
	var cs []constraint.Constraint
	have := make(map[constraint.Kind]bool)
	add := func(c constraint.Constraint) {
		cs = append(cs, c)
		have[c.Kind] = true
	}

	if out.Category != "" {
		add(constraint.Categories(out.Category))
	}
	if out.PriceMin > 0 {
		add(constraint.Min(out.PriceMin))
	}
	if out.PriceMax > 0 {
		add(constraint.Max(out.PriceMax))
	}
	if len(out.Colors) > 0 {
		add(constraint.Colors(out.Colors...))
	}
	if len(out.Features) > 0 {
		add(constraint.Features(out.Features...))
	}

	for _, c := range constraint.ParsePreferences(utterance) {
		if !have[c.Kind] {
			cs = append(cs, c)
		}
	}
	return cs
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// intentSchema returns the JSON schema for structured intent output.
func intentSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"intent": {
				Type: "string",
				Enum: []string{"search", "clarification", "add_to_cart", "remove_from_cart", "view_cart", "cart_total", "greeting", "other"},
			},
			"confidence":        {Type: "number", Description: "Confidence in the intent, 0 to 1"},
			"category":          {Type: "string", Description: "Product type, e.g. office chair"},
			"price_min":         {Type: "number", Description: "Lower price bound in dollars, 0 if absent"},
			"price_max":         {Type: "number", Description: "Upper price bound in dollars, 0 if absent"},
			"colors":            {Type: "array", Items: &engine.SchemaProperty{Type: "string"}},
			"features":          {Type: "array", Items: &engine.SchemaProperty{Type: "string"}},
			"product_reference": {Type: "string", Description: "Words identifying the product for cart operations"},
			"search_query":      {Type: "string", Description: "Product words of a search request"},
		},
		Required: []string{"intent", "confidence"},
	}
}
