package composer

import (
	"fmt"
	"strings"

	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/constraint"
	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
)

const defaultMaxContextTokens = 2000

const assistantPersona = `You are a friendly IKEA shopping assistant. Answer briefly and helpfully.
You can search products, add or remove items from the shopper's cart and total the cart.
Never claim to have changed the cart; cart changes happen only through explicit requests.`

// ShoppingState is the session state a conversational reply may refer to.
type ShoppingState struct {
	Constraints constraint.Set
	Shown       []catalog.Product
	Cart        []cart.Line
}

// ConversationPrompt assembles the messages for a free-form reply: a system
// message with the persona and session state, the recent history, and the
// shopper's utterance. Injected state is kept under maxContextTokens; shown
// products are dropped from the end first. If maxContextTokens <= 0, the
// default (2000) is used.
func ConversationPrompt(utterance string, history []engine.Message, st ShoppingState, maxContextTokens int) []engine.Message {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}

	var sb strings.Builder
	sb.WriteString(assistantPersona)

	var fixed strings.Builder
	if terms := describeConstraints(st.Constraints); terms != "" {
		fixed.WriteString("\n\n[Current search]\nLooking " + terms)
	}
	if len(st.Cart) > 0 {
		fixed.WriteString("\n\n[Cart]\n")
		for _, l := range st.Cart {
			fmt.Fprintf(&fixed, "- %s x%d at %s\n", l.Name, l.Quantity, cart.FormatCents(l.UnitPrice))
		}
	}
	sb.WriteString(fixed.String())

	remaining := maxContextTokens - EstimateTokens(sb.String())
	header := "\n\n[Products shown]\n"
	var entries []string
	if len(st.Shown) > 0 {
		remaining -= EstimateTokens(header)
		for i, p := range st.Shown {
			entry := fmt.Sprintf("%d. %s\n", i+1, p.Summary())
			tokens := EstimateTokens(entry)
			if tokens > remaining {
				break
			}
			entries = append(entries, entry)
			remaining -= tokens
		}
	}
	if len(entries) > 0 {
		sb.WriteString(header)
		for _, e := range entries {
			sb.WriteString(e)
		}
	}

	msgs := make([]engine.Message, 0, len(history)+2)
	msgs = append(msgs, engine.Message{Role: engine.RoleSystem, Content: sb.String()})
	msgs = append(msgs, history...)
	msgs = append(msgs, engine.Message{Role: engine.RoleUser, Content: utterance})
	return msgs
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
