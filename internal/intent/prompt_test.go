package intent

import (
	"strings"
	"testing"

	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
)

func TestPromptContainsInstructions(t *testing.T) {
	messages := BuildPrompt("show me chairs", nil, State{})

	system := messages[0].Content
	for _, want := range []string{"intent classifier", "remove_from_cart", "cart_total", "product_reference"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if strings.Contains(system, "[Cart]") {
		t.Error("empty cart rendered a cart section")
	}
}

func TestPromptInjectsState(t *testing.T) {
	messages := BuildPrompt("add the second one", nil, State{
		Shown:                 []string{"MARKUS | $229.00", "FLINTAN | $139.00"},
		Cart:                  []string{"LISABO x1"},
		AwaitingClarification: true,
	})

	system := messages[0].Content
	for _, want := range []string{"2. FLINTAN | $139.00", "[Cart]\nLISABO x1", "asked the shopper for more details"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestPromptHistory(t *testing.T) {
	history := []engine.Message{
		{Role: "user", Content: "first message"},
		{Role: "assistant", Content: "first reply"},
		{Role: "user", Content: "second message"},
	}

	messages := BuildPrompt("current query", history, State{})

	// system + 3 history + 1 utterance = 5
	if len(messages) != 5 {
		t.Fatalf("got %d messages, want 5", len(messages))
	}
	if messages[1].Content != "first message" || messages[2].Content != "first reply" || messages[3].Content != "second message" {
		t.Errorf("history not preserved in order: %+v", messages[1:4])
	}
	if messages[4].Role != engine.RoleUser || messages[4].Content != "current query" {
		t.Errorf("last message = %+v", messages[4])
	}
}
