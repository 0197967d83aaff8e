// Package session holds per-session conversation state: history, search
// constraints, the last-shown candidates and the cart snapshot.
package session

import (
	"slices"
	"time"

	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/constraint"
	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
)

// MaxHistory is the number of messages kept per session. Older messages are
// dropped from the front.
const MaxHistory = 50

// Message is one entry of the conversation history.
type Message struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ActionKind is a cart mutation awaiting the shopper's confirmation.
type ActionKind string

const (
	ActionAdd    ActionKind = "add"
	ActionRemove ActionKind = "remove"
)

// Action is a confirm-tier cart mutation held until the shopper answers.
type Action struct {
	Kind      ActionKind `json:"kind"`
	ProductID string     `json:"product_id"`
	Name      string     `json:"name"`
	URL       string     `json:"url,omitempty"`
	Price     float64    `json:"price,omitempty"`
}

// Context is the full state of one shopping session. Values returned by a
// Store are private copies; mutating them has no effect until Commit.
type Context struct {
	ID                    string            `json:"id"`
	History               []Message         `json:"history,omitempty"`
	Constraints           constraint.Set    `json:"constraints,omitempty"`
	Pending               constraint.Set    `json:"pending,omitempty"`
	AwaitingClarification bool              `json:"awaiting_clarification,omitempty"`
	Candidates            []catalog.Product `json:"candidates,omitempty"`
	Cart                  []cart.Line       `json:"cart,omitempty"`
	PendingAction         *Action           `json:"pending_action,omitempty"`
	Turns                 int               `json:"turns"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// New returns an empty context for id.
func New(id string, now time.Time) Context {
	return Context{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Append adds a message to the history, trimming it to MaxHistory.
func (c *Context) Append(role, text string, at time.Time) {
	c.History = append(c.History, Message{Role: role, Text: text, At: at})
	if n := len(c.History); n > MaxHistory {
		c.History = slices.Clone(c.History[n-MaxHistory:])
	}
}

// Recent returns the last n history messages in engine form.
func (c Context) Recent(n int) []engine.Message {
	h := c.History
	if n >= 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]engine.Message, len(h))
	for i, m := range h {
		out[i] = engine.Message{Role: m.Role, Content: m.Text}
	}
	return out
}

// Clone returns a deep copy of c.
func (c Context) Clone() Context {
	out := c
	out.History = slices.Clone(c.History)
	out.Constraints = c.Constraints.Clone()
	out.Pending = c.Pending.Clone()
	out.Cart = cart.Clone(c.Cart)
	if c.Candidates != nil {
		out.Candidates = make([]catalog.Product, len(c.Candidates))
		for i, p := range c.Candidates {
			p.Features = slices.Clone(p.Features)
			out.Candidates[i] = p
		}
	}
	if c.PendingAction != nil {
		a := *c.PendingAction
		out.PendingAction = &a
	}
	return out
}
