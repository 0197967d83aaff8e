package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/composer"
	"github.com/akashsateesha/Clickless-IKEA/internal/constraint"
	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
	"github.com/akashsateesha/Clickless-IKEA/internal/intent"
	"github.com/akashsateesha/Clickless-IKEA/internal/resolver"
	"github.com/akashsateesha/Clickless-IKEA/internal/session"
)

// turn is the working state of one Idle-to-Idle cycle. sc is a private copy
// of the session; it is written back only in Respond.
type turn struct {
	utterance string
	history   []engine.Message
	sc        session.Context

	intent     intent.Intent
	confidence float64
	missing    []constraint.Dimension

	// confirmed is a pending action the shopper just agreed to.
	confirmed *session.Action
	// resolveAfterSearch sends an add with no candidates back to
	// ResolveForAdd once the seeded search has run.
	resolveAfterSearch bool
	searched           bool

	outcome composer.Outcome
	trace   []State
}

// run drives t from ClassifyIntent to Respond.
func (a *Agent) run(ctx context.Context, t *turn) {
	t.trace = append(t.trace, Idle)
	state := ClassifyIntent
	for state != Respond {
		t.trace = append(t.trace, state)
		if len(t.trace) > maxTransitions {
			slog.Error("turn exceeded transition limit", "trace", fmt.Sprint(t.trace))
			t.outcome = composer.FreeForm{Text: fallbackReply}
			break
		}
		state = a.step(ctx, t, state)
	}
	t.trace = append(t.trace, Respond)
	if t.outcome == nil {
		t.outcome = composer.FreeForm{Text: fallbackReply}
	}
}

func (a *Agent) step(ctx context.Context, t *turn, s State) State {
	switch s {
	case ClassifyIntent:
		return a.classify(ctx, t)
	case SearchProducts:
		return a.searchProducts(ctx, t)
	case ResolveForAdd:
		return a.resolveForAdd(ctx, t)
	case ResolveForRemove:
		return a.resolveForRemove(ctx, t)
	case ViewCart:
		return a.viewCart(ctx, t)
	case CartTotal:
		return a.cartTotal(t)
	case Conversational:
		return a.conversational(ctx, t)
	case RequestClarification:
		return a.requestClarification(t)
	default:
		return Respond
	}
}

func (a *Agent) classify(ctx context.Context, t *turn) State {
	if pa := t.sc.PendingAction; pa != nil {
		t.sc.PendingAction = nil
		switch parseAnswer(t.utterance) {
		case answerYes:
			t.confirmed = pa
			if pa.Kind == session.ActionRemove {
				t.intent = intent.Intent{Kind: intent.RemoveFromCart, Reference: pa.Name}
				return ResolveForRemove
			}
			t.intent = intent.Intent{Kind: intent.AddToCart, Reference: pa.Name}
			return ResolveForAdd
		case answerNo:
			t.intent = intent.Intent{Kind: intent.Other}
			t.outcome = composer.FreeForm{Text: declined(pa)}
			return Respond
		}
	}

	st := intent.State{AwaitingClarification: t.sc.AwaitingClarification}
	for _, p := range t.sc.Candidates {
		st.Shown = append(st.Shown, p.Summary())
	}
	for _, l := range t.sc.Cart {
		st.Cart = append(st.Cart, fmt.Sprintf("%s x%d", l.Name, l.Quantity))
	}

	t.intent, t.confidence = a.classifier.Classify(ctx, t.utterance, t.history, st)
	if t.intent.Kind == intent.Other && t.confidence == 0 {
		a.metrics.IncFallback("intent")
	}

	switch t.intent.Kind {
	case intent.Search, intent.Clarification:
		return SearchProducts
	case intent.AddToCart:
		return ResolveForAdd
	case intent.RemoveFromCart:
		return ResolveForRemove
	case intent.ViewCart:
		return ViewCart
	case intent.CartTotal:
		return CartTotal
	default:
		return Conversational
	}
}

func declined(pa *session.Action) string {
	if pa.Kind == session.ActionRemove {
		return fmt.Sprintf("Okay, I'll keep %s in your cart.", pa.Name)
	}
	return fmt.Sprintf("Okay, I won't add %s.", pa.Name)
}

func (a *Agent) searchProducts(ctx context.Context, t *turn) State {
	t.searched = true
	d := constraint.Apply(t.sc.Constraints, t.sc.Pending, t.sc.AwaitingClarification, t.intent.Constraints)
	if d.Clarify {
		t.sc.Pending = d.Set
		t.sc.AwaitingClarification = true
		t.missing = d.Missing
		return RequestClarification
	}

	t.sc.Constraints = d.Set
	t.sc.Pending = nil
	t.sc.AwaitingClarification = false

	query := t.intent.Query
	if query == "" {
		query = t.intent.Reference
	}
	if query == "" {
		query = t.utterance
	}

	products, err := a.searcher.Search(ctx, d.Set, query)
	if err != nil {
		slog.Error("product search failed", "query", query, "error", err)
		a.metrics.IncFallback("retrieval")
		t.outcome = composer.NoResults{Constraints: d.Set, Failed: true}
		return Respond
	}
	if len(products) == 0 {
		t.outcome = composer.NoResults{Constraints: d.Set}
		return Respond
	}

	t.sc.Candidates = products
	if t.resolveAfterSearch {
		return ResolveForAdd
	}
	t.outcome = composer.ProductList{Products: products, Constraints: d.Set}
	return Respond
}

func (a *Agent) resolveForAdd(ctx context.Context, t *turn) State {
	if pa := t.confirmed; pa != nil {
		match := resolver.Candidate{ID: pa.ProductID, Name: pa.Name, Price: pa.Price}
		return a.executeAdd(ctx, t, match, pa.URL, 1)
	}

	if len(t.sc.Candidates) == 0 {
		if !t.searched {
			t.resolveAfterSearch = true
			return SearchProducts
		}
		t.outcome = composer.Clarification{Style: composer.StyleOptions, Reference: t.intent.Reference, Ambiguous: true}
		return RequestClarification
	}

	res := a.resolver.Resolve(ctx, t.intent.Reference, resolver.FromProducts(t.sc.Candidates), t.history)
	a.noteResolution(res)

	best, ok := res.Best()
	switch {
	case ok && res.Tier() == resolver.TierExecute:
		return a.executeAdd(ctx, t, best, productURL(t.sc.Candidates, best.ID), res.Confidence)
	case ok && res.Tier() == resolver.TierConfirm:
		t.sc.PendingAction = &session.Action{
			Kind:      session.ActionAdd,
			ProductID: best.ID,
			Name:      best.Name,
			URL:       productURL(t.sc.Candidates, best.ID),
			Price:     best.Price,
		}
		t.outcome = composer.Confirmation{Op: composer.OpAdd, Match: best, Confidence: res.Confidence, Reasoning: res.Reasoning}
		return Respond
	default:
		opts := res.Matches
		if len(opts) == 0 {
			opts = resolver.FromProducts(t.sc.Candidates)
		}
		t.outcome = composer.Clarification{
			Style:      composer.StyleOptions,
			Reference:  t.intent.Reference,
			Options:    opts,
			Confidence: res.Confidence,
			Ambiguous:  res.Ambiguous,
		}
		return RequestClarification
	}
}

func (a *Agent) resolveForRemove(ctx context.Context, t *turn) State {
	if pa := t.confirmed; pa != nil {
		i := cart.Find(t.sc.Cart, pa.ProductID)
		if i < 0 {
			t.outcome = composer.CartOperation{Op: composer.OpRemove, Message: fmt.Sprintf("%s is no longer in your cart.", pa.Name), Lines: t.sc.Cart}
			return Respond
		}
		return a.executeRemove(ctx, t, t.sc.Cart[i], 1)
	}

	if len(t.sc.Cart) == 0 {
		t.outcome = composer.CartOperation{Op: composer.OpRemove, Message: "Your cart is empty, so there's nothing to remove."}
		return Respond
	}

	res := a.resolver.Resolve(ctx, t.intent.Reference, resolver.FromLines(t.sc.Cart), t.history)
	a.noteResolution(res)

	best, ok := res.Best()
	switch {
	case ok && res.Tier() == resolver.TierExecute:
		return a.executeRemove(ctx, t, t.sc.Cart[cart.Find(t.sc.Cart, best.ID)], res.Confidence)
	case ok && res.Tier() == resolver.TierConfirm:
		t.sc.PendingAction = &session.Action{Kind: session.ActionRemove, ProductID: best.ID, Name: best.Name}
		t.outcome = composer.Confirmation{Op: composer.OpRemove, Match: best, Confidence: res.Confidence, Reasoning: res.Reasoning}
		return Respond
	default:
		t.outcome = composer.Clarification{
			Style:      composer.StyleCartLines,
			Reference:  t.intent.Reference,
			Lines:      cart.Clone(t.sc.Cart),
			Confidence: res.Confidence,
			Ambiguous:  res.Ambiguous,
		}
		return RequestClarification
	}
}

func (a *Agent) noteResolution(res resolver.Result) {
	if res.Source == resolver.SourceKeyword {
		a.metrics.IncFallback("resolver")
	}
	slog.Debug("reference resolved", "source", res.Source, "confidence", res.Confidence, "ambiguous", res.Ambiguous, "matches", len(res.Matches))
}

// executeAdd calls the actuator exactly once. A failure is reported, never
// retried, and leaves the cart snapshot unchanged.
func (a *Agent) executeAdd(ctx context.Context, t *turn, match resolver.Candidate, url string, confidence float64) State {
	actx, cancel := context.WithTimeout(ctx, a.cartTimeout)
	res, err := a.cart.Add(actx, t.sc.ID, cart.Item{ProductID: match.ID, Name: match.Name, URL: url, Price: match.Price})
	cancel()

	ok := err == nil && res.Success
	a.metrics.IncActuation(string(composer.OpAdd), ok)
	if !ok {
		slog.Warn("cart add failed", "product_id", match.ID, "error", err, "message", res.Message)
		t.outcome = composer.CartOperation{
			Op:         composer.OpAdd,
			Message:    failureMessage("add", match.Name, "to", res.Message, err),
			Product:    &match,
			Lines:      cart.Clone(t.sc.Cart),
			MediaRef:   res.MediaRef,
			Confidence: confidence,
		}
		return Respond
	}

	if res.Snapshot != nil {
		t.sc.Cart = cart.Clone(res.Snapshot)
	} else if i := cart.Find(t.sc.Cart, match.ID); i >= 0 {
		t.sc.Cart[i].Quantity++
	} else {
		t.sc.Cart = append(t.sc.Cart, cart.Line{ProductID: match.ID, Name: match.Name, URL: url, Quantity: 1, UnitPrice: cart.ToCents(match.Price)})
	}
	t.outcome = composer.CartOperation{
		Op:         composer.OpAdd,
		Success:    true,
		Message:    res.Message,
		Product:    &match,
		Lines:      cart.Clone(t.sc.Cart),
		MediaRef:   res.MediaRef,
		Confidence: confidence,
	}
	return Respond
}

func (a *Agent) executeRemove(ctx context.Context, t *turn, line cart.Line, confidence float64) State {
	actx, cancel := context.WithTimeout(ctx, a.cartTimeout)
	res, err := a.cart.Remove(actx, t.sc.ID, line)
	cancel()

	match := resolver.Candidate{ID: line.ProductID, Name: line.Name, Price: float64(line.UnitPrice) / 100}
	ok := err == nil && res.Success
	a.metrics.IncActuation(string(composer.OpRemove), ok)
	if !ok {
		slog.Warn("cart remove failed", "product_id", line.ProductID, "error", err, "message", res.Message)
		t.outcome = composer.CartOperation{
			Op:         composer.OpRemove,
			Message:    failureMessage("remove", line.Name, "from", res.Message, err),
			Product:    &match,
			Lines:      cart.Clone(t.sc.Cart),
			MediaRef:   res.MediaRef,
			Confidence: confidence,
		}
		return Respond
	}

	if res.Snapshot != nil {
		t.sc.Cart = cart.Clone(res.Snapshot)
	} else if i := cart.Find(t.sc.Cart, line.ProductID); i >= 0 {
		t.sc.Cart = append(t.sc.Cart[:i:i], t.sc.Cart[i+1:]...)
	}
	t.outcome = composer.CartOperation{
		Op:         composer.OpRemove,
		Success:    true,
		Message:    res.Message,
		Product:    &match,
		Lines:      cart.Clone(t.sc.Cart),
		MediaRef:   res.MediaRef,
		Confidence: confidence,
	}
	return Respond
}

func failureMessage(verb, name, prep, msg string, err error) string {
	reason := msg
	if err != nil {
		reason = err.Error()
	}
	if reason == "" {
		reason = "the store did not confirm the change"
	}
	return fmt.Sprintf("Sorry, I couldn't %s %s %s your cart: %s.", verb, name, prep, strings.TrimRight(reason, "."))
}

func (a *Agent) viewCart(ctx context.Context, t *turn) State {
	actx, cancel := context.WithTimeout(ctx, a.cartTimeout)
	res, err := a.cart.View(actx, t.sc.ID)
	cancel()

	ok := err == nil && res.Success
	a.metrics.IncActuation(string(composer.OpView), ok)
	if !ok {
		slog.Warn("cart view failed", "error", err, "message", res.Message)
		t.outcome = composer.CartOperation{Op: composer.OpView, Message: "Sorry, I couldn't load your cart right now.", Lines: cart.Clone(t.sc.Cart)}
		return Respond
	}

	t.sc.Cart = cart.Clone(res.Snapshot)
	t.outcome = composer.CartOperation{Op: composer.OpView, Success: true, Message: res.Message, Lines: cart.Clone(t.sc.Cart), MediaRef: res.MediaRef}
	return Respond
}

func (a *Agent) cartTotal(t *turn) State {
	t.outcome = composer.CartTotal{
		Totals:  cart.Compute(t.sc.Cart, a.taxBP),
		Lines:   cart.Clone(t.sc.Cart),
		TaxRate: a.taxRate,
	}
	return Respond
}

func (a *Agent) conversational(ctx context.Context, t *turn) State {
	if a.responder == nil {
		t.outcome = composer.FreeForm{Text: fallbackReply}
		return Respond
	}

	cctx, cancel := context.WithTimeout(ctx, a.chatTimeout)
	defer cancel()
	text, err := a.responder.Respond(cctx, t.utterance, t.history, composer.ShoppingState{
		Constraints: t.sc.Constraints,
		Shown:       t.sc.Candidates,
		Cart:        t.sc.Cart,
	})
	if err != nil {
		slog.Warn("conversational reply failed", "error", err)
		a.metrics.IncFallback("chat")
		text = fallbackReply
	}
	t.outcome = composer.FreeForm{Text: text}
	return Respond
}

func (a *Agent) requestClarification(t *turn) State {
	if t.outcome == nil {
		t.outcome = composer.Clarification{Style: composer.StyleChips, Missing: t.missing}
	}
	return Respond
}

func productURL(ps []catalog.Product, id string) string {
	for _, p := range ps {
		if p.ID == id {
			return p.URL
		}
	}
	return ""
}
