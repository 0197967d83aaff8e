package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/akashsateesha/Clickless-IKEA/internal/composer"
	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
)

// fallbackReply is used when no conversational reply can be generated.
const fallbackReply = "I'm here to help you find furniture and manage your cart. What are you looking for?"

// Chatter is the chat capability the LLM responder needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// LLMResponder generates free-form replies with a chat model.
type LLMResponder struct {
	chat             Chatter
	model            string
	maxContextTokens int
}

// NewLLMResponder creates a responder. maxContextTokens bounds the session
// state injected into the prompt; 0 uses the composer default.
func NewLLMResponder(chat Chatter, model string, maxContextTokens int) *LLMResponder {
	return &LLMResponder{chat: chat, model: model, maxContextTokens: maxContextTokens}
}

// Respond implements Responder.
func (r *LLMResponder) Respond(ctx context.Context, utterance string, history []engine.Message, st composer.ShoppingState) (string, error) {
	msgs := composer.ConversationPrompt(utterance, history, st, r.maxContextTokens)
	resp, err := r.chat.Chat(ctx, r.model, msgs, nil)
	if err != nil {
		return "", fmt.Errorf("generating reply: %w", err)
	}
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return "", errors.New("generating reply: empty response")
	}
	return resp, nil
}
