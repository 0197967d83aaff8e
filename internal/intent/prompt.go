package intent

import (
	"fmt"
	"strings"

	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
)

const systemPromptTemplate = `You are the intent classifier of a furniture shopping assistant. Analyze the shopper's message and the conversation so far. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Intents:
- "search": the shopper wants to find or browse products, or narrows an earlier search ("under $250", "in black")
- "clarification": the shopper answers a question the assistant asked about type, budget or color
- "add_to_cart": the shopper wants a product added to the cart
- "remove_from_cart": the shopper wants a product taken out of the cart
- "view_cart": the shopper wants to see the cart
- "cart_total": the shopper asks what the cart costs in total
- "greeting": hello, thanks, goodbye
- "other": anything else

Rules:
- Fill category, price_min, price_max, colors and features only with what the shopper said. Use 0 for an absent price bound.
- For add_to_cart and remove_from_cart, copy the words that identify the product into product_reference ("the black one", "the second chair", "FLINTAN").
- For search, put the product words of the request into search_query.
- confidence is how sure you are of the intent, between 0 and 1.`

// State describes what the shopper can currently see, so references like
// "the second one" can be recognised as cart operations.
type State struct {
	Shown                 []string
	Cart                  []string
	AwaitingClarification bool
}

// BuildPrompt constructs the chat messages for intent classification.
func BuildPrompt(utterance string, history []engine.Message, st State) []engine.Message {
	var sb strings.Builder
	sb.WriteString(systemPromptTemplate)

	if len(st.Shown) > 0 {
		sb.WriteString("\n\n[Products shown to the shopper]")
		for i, s := range st.Shown {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, s)
		}
	}
	if len(st.Cart) > 0 {
		fmt.Fprintf(&sb, "\n\n[Cart]\n%s", strings.Join(st.Cart, "\n"))
	}
	if st.AwaitingClarification {
		sb.WriteString("\n\nThe assistant just asked the shopper for more details about their search.")
	}

	messages := make([]engine.Message, 0, len(history)+2)
	messages = append(messages, engine.Message{Role: engine.RoleSystem, Content: sb.String()})
	messages = append(messages, history...)
	messages = append(messages, engine.Message{Role: engine.RoleUser, Content: utterance})
	return messages
}
