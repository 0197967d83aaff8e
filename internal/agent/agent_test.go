package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/composer"
	"github.com/akashsateesha/Clickless-IKEA/internal/constraint"
	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
	"github.com/akashsateesha/Clickless-IKEA/internal/intent"
	"github.com/akashsateesha/Clickless-IKEA/internal/resolver"
	"github.com/akashsateesha/Clickless-IKEA/internal/session"
	"github.com/akashsateesha/Clickless-IKEA/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- mocks ---

type classified struct {
	in   intent.Intent
	conf float64
}

// mockClassifier answers by utterance; unknown utterances classify as Other.
type mockClassifier struct {
	byText map[string]classified
	calls  int
}

func (m *mockClassifier) Classify(_ context.Context, utterance string, _ []engine.Message, _ intent.State) (intent.Intent, float64) {
	m.calls++
	if c, ok := m.byText[utterance]; ok {
		return c.in, c.conf
	}
	return intent.Intent{Kind: intent.Other}, 0
}

type mockSearcher struct {
	mu      sync.Mutex
	results []catalog.Product
	err     error
	calls   int
	lastSet constraint.Set
}

func (m *mockSearcher) Search(_ context.Context, set constraint.Set, _ string) ([]catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastSet = set
	if m.err != nil {
		return nil, m.err
	}
	var out []catalog.Product
	for _, p := range m.results {
		lo, hasLo, hi, hasHi := set.Bounds()
		if (hasLo && p.Price < lo) || (hasHi && p.Price > hi) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// mockMatcher returns fixed scores, or an error.
type mockMatcher struct {
	scores []resolver.Score
	err    error
}

func (m *mockMatcher) Match(context.Context, string, []resolver.Candidate, []engine.Message) ([]resolver.Score, string, error) {
	return m.scores, "mock", m.err
}

// mockCart counts actuations. If block is set, Add waits for it or for ctx.
type mockCart struct {
	mu      sync.Mutex
	adds    int
	removes int
	views   int
	fail    bool
	lines   []cart.Line
	block   chan struct{}
	started chan struct{}
}

func (m *mockCart) Add(ctx context.Context, _ string, item cart.Item) (cart.Result, error) {
	if m.started != nil {
		close(m.started)
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return cart.Result{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adds++
	if m.fail {
		return cart.Result{Success: false, Message: "add button not found"}, nil
	}
	m.lines = append(m.lines, cart.Line{ProductID: item.ProductID, Name: item.Name, Quantity: 1, UnitPrice: cart.ToCents(item.Price)})
	return cart.Result{Success: true, Snapshot: cart.Clone(m.lines), MediaRef: "media/add.png"}, nil
}

func (m *mockCart) Remove(_ context.Context, _ string, line cart.Line) (cart.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes++
	if m.fail {
		return cart.Result{}, errors.New("browser crashed")
	}
	if i := cart.Find(m.lines, line.ProductID); i >= 0 {
		m.lines = append(m.lines[:i], m.lines[i+1:]...)
	}
	return cart.Result{Success: true, Snapshot: cart.Clone(m.lines)}, nil
}

func (m *mockCart) View(context.Context, string) (cart.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views++
	return cart.Result{Success: true, Snapshot: cart.Clone(m.lines)}, nil
}

type mockResponder struct {
	text string
	err  error
}

func (m *mockResponder) Respond(context.Context, string, []engine.Message, composer.ShoppingState) (string, error) {
	return m.text, m.err
}

type mockTurnLog struct {
	mu    sync.Mutex
	turns []storage.Turn
}

func (m *mockTurnLog) SaveTurn(_ context.Context, t storage.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return nil
}

// --- fixtures ---

var chairs = []catalog.Product{
	{ID: "markus", Name: "MARKUS", Price: 229, Category: "Office chairs", Color: "Black", Features: []string{"armrests"}, Available: true},
	{ID: "flintan", Name: "FLINTAN", Price: 139, Category: "Office chairs", Color: "White", Available: true},
	{ID: "hattefjall", Name: "HATTEFJÄLL", Price: 299, Category: "Office chairs", Color: "Gray", Features: []string{"armrests", "wheels"}, Available: true},
}

func search(cs ...constraint.Constraint) classified {
	return classified{in: intent.Intent{Kind: intent.Search, Constraints: cs}, conf: 0.9}
}

func add(ref string) classified {
	return classified{in: intent.Intent{Kind: intent.AddToCart, Reference: ref}, conf: 0.9}
}

func remove(ref string) classified {
	return classified{in: intent.Intent{Kind: intent.RemoveFromCart, Reference: ref}, conf: 0.9}
}

type harness struct {
	agent      *Agent
	store      *session.MemoryStore
	classifier *mockClassifier
	searcher   *mockSearcher
	matcher    *mockMatcher
	cart       *mockCart
	turnLog    *mockTurnLog
}

func newHarness(t *testing.T, byText map[string]classified) *harness {
	t.Helper()
	h := &harness{
		store:      session.NewMemoryStore(),
		classifier: &mockClassifier{byText: byText},
		searcher:   &mockSearcher{results: chairs},
		matcher:    &mockMatcher{},
		cart:       &mockCart{},
		turnLog:    &mockTurnLog{},
	}
	a, err := New(Deps{
		Sessions:   h.store,
		Classifier: h.classifier,
		Searcher:   h.searcher,
		Resolver:   resolver.New(h.matcher, time.Second),
		Cart:       h.cart,
		Responder:  &mockResponder{text: "Hello! How can I help?"},
		TurnLog:    h.turnLog,
	}, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.agent = a
	return h
}

func (h *harness) turn(t *testing.T, utterance string) composer.Reply {
	t.Helper()
	r, err := h.agent.HandleTurn(context.Background(), "s1", utterance)
	if err != nil {
		t.Fatalf("HandleTurn(%q): %v", utterance, err)
	}
	return r
}

func (h *harness) session(t *testing.T) session.Context {
	t.Helper()
	c, err := h.agent.Session(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	return c
}

// seedShown runs a non-vague search so the session has candidates.
func (h *harness) seedShown(t *testing.T) {
	t.Helper()
	h.classifier.byText["black office chair under 300"] = search(constraint.Categories("office chair"), constraint.Max(300), constraint.Colors("black"))
	if r := h.turn(t, "black office chair under 300"); r.Kind != composer.KindProducts {
		t.Fatalf("seed search reply = %+v", r)
	}
}

// --- tests ---

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}, Config{}); err == nil {
		t.Fatal("expected error for missing collaborators")
	}
}

func TestVagueQueryAsksWithoutSearching(t *testing.T) {
	h := newHarness(t, map[string]classified{
		"looking for chairs": search(constraint.Categories("chair")),
	})

	r := h.turn(t, "looking for chairs")
	if r.Kind != composer.KindClarify || r.Clarify.Style != composer.StyleChips {
		t.Fatalf("reply = %+v, want chip clarification", r)
	}
	if h.searcher.calls != 0 {
		t.Errorf("search called %d times on a vague query", h.searcher.calls)
	}
	if len(r.Clarify.Groups) != 2 {
		t.Errorf("chip groups = %d, want price and color", len(r.Clarify.Groups))
	}

	sc := h.session(t)
	if !sc.AwaitingClarification || !sc.Pending.Has(constraint.Category) {
		t.Errorf("pending clarification not recorded: %+v", sc)
	}
}

func TestClarificationAnswerSearchesWithPending(t *testing.T) {
	h := newHarness(t, map[string]classified{
		"looking for chairs": search(constraint.Categories("chair")),
		"under $200": {in: intent.Intent{Kind: intent.Clarification, Constraints: []constraint.Constraint{constraint.Max(200)}}, conf: 0.8},
	})
	h.turn(t, "looking for chairs")
	r := h.turn(t, "under $200")

	if r.Kind != composer.KindProducts {
		t.Fatalf("reply = %+v, want products", r)
	}
	if !h.searcher.lastSet.Has(constraint.Category) || !h.searcher.lastSet.Has(constraint.PriceMax) {
		t.Errorf("searched with %+v, want pending category and new price", h.searcher.lastSet)
	}
	sc := h.session(t)
	if sc.AwaitingClarification || len(sc.Pending) != 0 {
		t.Errorf("clarification state not cleared: %+v", sc)
	}
}

func TestSecondVagueTurnSearchesAnyway(t *testing.T) {
	h := newHarness(t, map[string]classified{
		"looking for chairs": search(constraint.Categories("chair")),
		"any color":          {in: intent.Intent{Kind: intent.Clarification}, conf: 0.7},
	})
	h.turn(t, "looking for chairs")
	if r := h.turn(t, "any color"); r.Kind != composer.KindProducts {
		t.Errorf("reply = %+v, want products after one clarification", r)
	}
}

func TestRefinementMergesAndSearchesAgain(t *testing.T) {
	h := newHarness(t, map[string]classified{
		"less than $250": search(constraint.Max(250)),
	})
	h.seedShown(t)
	r := h.turn(t, "less than $250")

	if h.searcher.calls != 2 {
		t.Fatalf("search calls = %d, want 2", h.searcher.calls)
	}
	set := h.searcher.lastSet
	if c, _ := set.Get(constraint.PriceMax); c.Amount != 250 {
		t.Errorf("priceMax = %v, want 250", c.Amount)
	}
	if got := set.Values(constraint.Color); len(got) != 1 || got[0] != "black" {
		t.Errorf("refinement dropped color: %+v", set)
	}
	if !set.Has(constraint.Category) {
		t.Errorf("refinement dropped category: %+v", set)
	}
	for _, p := range r.Products {
		if p.Price > 250 {
			t.Errorf("%s at %v violates the refined bound", p.Name, p.Price)
		}
	}
}

func TestNoResultsKeepsCandidates(t *testing.T) {
	h := newHarness(t, map[string]classified{
		"under $10": search(constraint.Max(10)),
	})
	h.seedShown(t)
	r := h.turn(t, "under $10")
	if r.Kind != composer.KindNoResults {
		t.Fatalf("reply = %+v, want no results", r)
	}
	if len(h.session(t).Candidates) != len(chairs) {
		t.Error("empty search replaced the candidate set")
	}
}

func TestSearchFailureIsNoResults(t *testing.T) {
	h := newHarness(t, nil)
	h.searcher.err = errors.New("index down")
	h.classifier.byText = map[string]classified{"black chair": search(constraint.Categories("chair"), constraint.Colors("black"))}

	r := h.turn(t, "black chair")
	if r.Kind != composer.KindNoResults {
		t.Errorf("reply = %+v, want no results on index failure", r)
	}
}

func TestAddTiers(t *testing.T) {
	tests := []struct {
		name      string
		scores    []resolver.Score
		wantKind  composer.Kind
		wantAdds  int
		wantTier  resolver.Tier
		wantStyle composer.ClarifyStyle
	}{
		{"execute at 0.70", []resolver.Score{{Index: 1, Score: 0.70}}, composer.KindCart, 1, resolver.TierExecute, ""},
		{"execute at 0.95", []resolver.Score{{Index: 1, Score: 0.95}}, composer.KindCart, 1, resolver.TierExecute, ""},
		{"confirm at 0.6999", []resolver.Score{{Index: 1, Score: 0.6999}}, composer.KindConfirm, 0, resolver.TierConfirm, ""},
		{"confirm at 0.50", []resolver.Score{{Index: 1, Score: 0.50}}, composer.KindConfirm, 0, resolver.TierConfirm, ""},
		{"clarify at 0.49", []resolver.Score{{Index: 1, Score: 0.49}, {Index: 0, Score: 0.2}}, composer.KindClarify, 0, resolver.TierClarify, composer.StyleOptions},
		{"tie forces confirm", []resolver.Score{{Index: 0, Score: 0.9}, {Index: 2, Score: 0.895}}, composer.KindConfirm, 0, resolver.TierConfirm, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, map[string]classified{"add the white one": add("the white one")})
			h.seedShown(t)
			h.matcher.scores = tt.scores

			r := h.turn(t, "add the white one")
			if r.Kind != tt.wantKind || r.Tier != tt.wantTier {
				t.Fatalf("reply kind=%s tier=%s, want %s/%s: %+v", r.Kind, r.Tier, tt.wantKind, tt.wantTier, r)
			}
			if h.cart.adds != tt.wantAdds {
				t.Errorf("actuator adds = %d, want %d", h.cart.adds, tt.wantAdds)
			}
			if tt.wantStyle != "" && r.Clarify.Style != tt.wantStyle {
				t.Errorf("clarify style = %s, want %s", r.Clarify.Style, tt.wantStyle)
			}
			if r.Kind == composer.KindConfirm && r.Confirm.ProductID == "" {
				t.Error("confirmation names no product")
			}
		})
	}
}

func TestAddExecuteUpdatesCart(t *testing.T) {
	h := newHarness(t, map[string]classified{"add the white one": add("the white one")})
	h.seedShown(t)
	h.matcher.scores = []resolver.Score{{Index: 1, Score: 0.92}}

	r := h.turn(t, "add the white one")
	if !r.Cart.Success || r.Cart.MediaRef != "media/add.png" {
		t.Errorf("cart view = %+v", r.Cart)
	}
	sc := h.session(t)
	if len(sc.Cart) != 1 || sc.Cart[0].ProductID != "flintan" {
		t.Errorf("session cart = %+v", sc.Cart)
	}
}

func TestClarifyListsAtMostMaxOptions(t *testing.T) {
	h := newHarness(t, map[string]classified{"add one": add("one")})
	h.agent.composer = composer.New(2)
	h.seedShown(t)
	h.matcher.scores = nil

	r := h.turn(t, "add one")
	if r.Kind != composer.KindClarify {
		t.Fatalf("reply = %+v", r)
	}
	if n := len(r.Clarify.Options); n == 0 || n > 2 {
		t.Errorf("options = %d, want 1..2", n)
	}
}

func TestActuatorFailureReportedOnceNoMutation(t *testing.T) {
	h := newHarness(t, map[string]classified{"add the white one": add("the white one")})
	h.seedShown(t)
	h.matcher.scores = []resolver.Score{{Index: 1, Score: 0.95}}
	h.cart.fail = true

	r := h.turn(t, "add the white one")
	if r.Kind != composer.KindCart || r.Cart.Success {
		t.Fatalf("reply = %+v, want failed cart operation", r)
	}
	if h.cart.adds != 1 {
		t.Errorf("actuator called %d times, want exactly 1", h.cart.adds)
	}
	sc := h.session(t)
	if len(sc.Cart) != 0 {
		t.Errorf("failed add mutated the cart: %+v", sc.Cart)
	}
	if last := sc.History[len(sc.History)-1]; last.Text != r.Text {
		t.Errorf("failure not recorded in history: %q", last.Text)
	}
}

func TestAddWithoutCandidatesSearchesFirst(t *testing.T) {
	h := newHarness(t, map[string]classified{
		"add a white office chair under $200": {in: intent.Intent{
			Kind:        intent.AddToCart,
			Reference:   "white office chair",
			Constraints: []constraint.Constraint{constraint.Categories("office chair"), constraint.Colors("white"), constraint.Max(200)},
		}, conf: 0.9},
	})
	h.matcher.scores = []resolver.Score{{Index: 0, Score: 0.9}}

	var tr *turn
	sc, _ := h.store.Get(context.Background(), "s1")
	tr = &turn{utterance: "add a white office chair under $200", sc: sc}
	h.agent.run(context.Background(), tr)

	want := []State{Idle, ClassifyIntent, ResolveForAdd, SearchProducts, ResolveForAdd, Respond}
	if len(tr.trace) != len(want) {
		t.Fatalf("trace = %v, want %v", tr.trace, want)
	}
	for i := range want {
		if tr.trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", tr.trace, want)
		}
	}
	if h.searcher.calls != 1 || h.cart.adds != 1 {
		t.Errorf("search calls = %d, adds = %d; want 1, 1", h.searcher.calls, h.cart.adds)
	}
}

func TestConfirmThenYesExecutes(t *testing.T) {
	h := newHarness(t, map[string]classified{"add the white one": add("the white one")})
	h.seedShown(t)
	h.matcher.scores = []resolver.Score{{Index: 1, Score: 0.6}}

	if r := h.turn(t, "add the white one"); r.Kind != composer.KindConfirm {
		t.Fatalf("reply = %+v, want confirmation", r)
	}
	if h.session(t).PendingAction == nil {
		t.Fatal("pending action not stored")
	}

	calls := h.classifier.calls
	r := h.turn(t, "yes")
	if r.Kind != composer.KindCart || !r.Cart.Success || h.cart.adds != 1 {
		t.Fatalf("reply = %+v, adds = %d; want executed add", r, h.cart.adds)
	}
	if h.classifier.calls != calls {
		t.Error("confirmation answer went through the classifier")
	}
	if h.session(t).PendingAction != nil {
		t.Error("pending action not cleared")
	}
}

func TestConfirmThenNoDrops(t *testing.T) {
	h := newHarness(t, map[string]classified{"add the white one": add("the white one")})
	h.seedShown(t)
	h.matcher.scores = []resolver.Score{{Index: 1, Score: 0.6}}
	h.turn(t, "add the white one")

	r := h.turn(t, "no")
	if r.Kind != composer.KindMessage || h.cart.adds != 0 {
		t.Errorf("reply = %+v, adds = %d", r, h.cart.adds)
	}
	if h.session(t).PendingAction != nil {
		t.Error("pending action survived a no")
	}
}

func TestRemoveLowConfidenceListsCartLines(t *testing.T) {
	h := newHarness(t, map[string]classified{
		"add the white one": add("the white one"),
		"remove the chair":  remove("the chair"),
	})
	h.seedShown(t)
	h.matcher.scores = []resolver.Score{{Index: 1, Score: 0.95}}
	h.turn(t, "add the white one")

	h.matcher.scores = []resolver.Score{{Index: 0, Score: 0.3}}
	r := h.turn(t, "remove the chair")
	if r.Kind != composer.KindClarify || r.Clarify.Style != composer.StyleCartLines {
		t.Fatalf("reply = %+v, want cart line clarification", r)
	}
	if len(r.Clarify.Options) != 1 || r.Clarify.Options[0].ProductID != "flintan" {
		t.Errorf("options = %+v, want the cart line", r.Clarify.Options)
	}
	if h.cart.removes != 0 {
		t.Error("low-confidence remove actuated")
	}
}

func TestRemoveExecute(t *testing.T) {
	h := newHarness(t, map[string]classified{
		"add the white one":    add("the white one"),
		"remove the white one": remove("the white one"),
	})
	h.seedShown(t)
	h.matcher.scores = []resolver.Score{{Index: 1, Score: 0.95}}
	h.turn(t, "add the white one")

	h.matcher.scores = []resolver.Score{{Index: 0, Score: 0.95}}
	r := h.turn(t, "remove the white one")
	if r.Kind != composer.KindCart || !r.Cart.Success || h.cart.removes != 1 {
		t.Fatalf("reply = %+v", r)
	}
	if len(h.session(t).Cart) != 0 {
		t.Error("cart snapshot not refreshed after remove")
	}
}

func TestRemoveEmptyCartSkipsActuator(t *testing.T) {
	h := newHarness(t, map[string]classified{"remove the chair": remove("the chair")})
	r := h.turn(t, "remove the chair")
	if r.Kind != composer.KindCart || r.Cart.Success || h.cart.removes != 0 {
		t.Errorf("reply = %+v, removes = %d", r, h.cart.removes)
	}
}

func TestCartTotal(t *testing.T) {
	h := newHarness(t, map[string]classified{
		"add the white one": add("the white one"),
		"what's my total":   {in: intent.Intent{Kind: intent.CartTotal}, conf: 0.9},
	})
	h.seedShown(t)
	h.matcher.scores = []resolver.Score{{Index: 1, Score: 0.95}}
	h.turn(t, "add the white one")

	adds, views := h.cart.adds, h.cart.views
	r := h.turn(t, "what's my total")
	if r.Kind != composer.KindTotal {
		t.Fatalf("reply = %+v", r)
	}
	if r.Totals.Subtotal != "$139.00" || r.Totals.Tax != "$11.12" || r.Totals.Total != "$150.12" {
		t.Errorf("totals = %+v", r.Totals)
	}
	if h.cart.adds != adds || h.cart.views != views {
		t.Error("cart total called the actuator")
	}
}

func TestViewCartRefreshesSnapshot(t *testing.T) {
	h := newHarness(t, map[string]classified{"show my cart": {in: intent.Intent{Kind: intent.ViewCart}, conf: 0.9}})
	h.cart.lines = []cart.Line{{ProductID: "markus", Name: "MARKUS", Quantity: 2, UnitPrice: 22900}}

	r := h.turn(t, "show my cart")
	if r.Kind != composer.KindCart || len(r.Cart.Lines) != 1 {
		t.Fatalf("reply = %+v", r)
	}
	if sc := h.session(t); len(sc.Cart) != 1 || sc.Cart[0].Quantity != 2 {
		t.Errorf("session cart = %+v", sc.Cart)
	}
}

func TestClassifierFailureIsConversational(t *testing.T) {
	h := newHarness(t, map[string]classified{})
	h.seedShown(t)
	before := h.session(t).Constraints

	r := h.turn(t, "something the classifier cannot read")
	if r.Kind != composer.KindMessage || r.Text != "Hello! How can I help?" {
		t.Errorf("reply = %+v", r)
	}
	if !h.session(t).Constraints.Equal(before) {
		t.Error("classifier failure mutated constraints")
	}
}

func TestResponderFailureFallsBack(t *testing.T) {
	h := newHarness(t, nil)
	h.agent.responder = &mockResponder{err: errors.New("model offline")}
	r := h.turn(t, "hi")
	if r.Text != fallbackReply {
		t.Errorf("Text = %q, want fallback", r.Text)
	}
}

func TestTurnRecordsHistoryAndLog(t *testing.T) {
	h := newHarness(t, nil)
	h.turn(t, "hi")
	sc := h.session(t)
	if sc.Turns != 1 || len(sc.History) != 2 || sc.History[0].Role != engine.RoleUser {
		t.Errorf("session = %+v", sc)
	}
	if len(h.turnLog.turns) != 1 || h.turnLog.turns[0].Utterance != "hi" {
		t.Errorf("turn log = %+v", h.turnLog.turns)
	}
}

func TestBusySessionRejected(t *testing.T) {
	h := newHarness(t, map[string]classified{"add the white one": add("the white one")})
	h.seedShown(t)
	h.matcher.scores = []resolver.Score{{Index: 1, Score: 0.95}}
	h.cart.block = make(chan struct{})
	h.cart.started = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.agent.HandleTurn(context.Background(), "s1", "add the white one")
		done <- err
	}()
	<-h.cart.started

	if _, err := h.agent.HandleTurn(context.Background(), "s1", "hi"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent turn err = %v, want ErrBusy", err)
	}
	if _, err := h.agent.HandleTurn(context.Background(), "s2", "hi"); err != nil {
		t.Errorf("other session blocked: %v", err)
	}

	close(h.cart.block)
	if err := <-done; err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if h.cart.adds != 1 {
		t.Errorf("adds = %d, want 1", h.cart.adds)
	}
}

func TestEndSessionAbandonsInFlightTurn(t *testing.T) {
	h := newHarness(t, map[string]classified{"add the white one": add("the white one")})
	h.seedShown(t)
	h.matcher.scores = []resolver.Score{{Index: 1, Score: 0.95}}
	h.cart.block = make(chan struct{})
	h.cart.started = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.agent.HandleTurn(context.Background(), "s1", "add the white one")
		done <- err
	}()
	<-h.cart.started

	if err := h.agent.EndSession(context.Background(), "s1"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if err := <-done; err == nil {
		t.Fatal("abandoned turn reported success")
	}

	sc := h.session(t)
	if sc.Turns != 0 || len(sc.Cart) != 0 || len(sc.Candidates) != 0 {
		t.Errorf("abandoned turn committed state: %+v", sc)
	}
}

func TestCancelledTurnDoesNotCommit(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.agent.HandleTurn(ctx, "s1", "hi"); err == nil {
		t.Fatal("expected error for cancelled turn")
	}
	if h.session(t).Turns != 0 {
		t.Error("cancelled turn committed")
	}
}

func TestSessionsIsolated(t *testing.T) {
	h := newHarness(t, nil)
	h.seedShown(t)
	other, err := h.agent.Session(context.Background(), "s2")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(other.Constraints) != 0 || len(other.Candidates) != 0 {
		t.Errorf("s2 sees s1 state: %+v", other)
	}
}

func TestLocalCartsIsolatedPerSession(t *testing.T) {
	h := newHarness(t, map[string]classified{
		"black office chair under 300": search(constraint.Categories("office chair"), constraint.Max(300), constraint.Colors("black")),
		"add the white one":            add("the white one"),
		"show my cart":                 {in: intent.Intent{Kind: intent.ViewCart}, conf: 0.9},
	})
	local := cart.NewLocalActuator()
	h.agent.cart = local
	h.matcher.scores = []resolver.Score{{Index: 1, Score: 0.92}}

	ctx := context.Background()
	say := func(sessionID, utterance string) composer.Reply {
		t.Helper()
		r, err := h.agent.HandleTurn(ctx, sessionID, utterance)
		if err != nil {
			t.Fatalf("HandleTurn(%s, %q): %v", sessionID, utterance, err)
		}
		return r
	}

	say("alice", "black office chair under 300")
	if r := say("alice", "add the white one"); !r.Cart.Success || len(r.Cart.Lines) != 1 {
		t.Fatalf("alice add = %+v", r.Cart)
	}

	r := say("bob", "show my cart")
	if r.Kind != composer.KindCart || len(r.Cart.Lines) != 0 {
		t.Errorf("bob sees lines %+v", r.Cart.Lines)
	}
	bob, err := h.agent.Session(ctx, "bob")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(bob.Cart) != 0 {
		t.Errorf("bob session cart = %+v, want empty", bob.Cart)
	}

	if r := say("alice", "show my cart"); len(r.Cart.Lines) != 1 || r.Cart.Lines[0].ProductID != "flintan" {
		t.Errorf("alice cart = %+v", r.Cart.Lines)
	}

	if err := h.agent.EndSession(ctx, "alice"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if res, _ := local.View(ctx, "alice"); len(res.Snapshot) != 0 {
		t.Errorf("ended session still has cart %+v", res.Snapshot)
	}
}

func TestEveryTurnEndsInRespond(t *testing.T) {
	h := newHarness(t, map[string]classified{
		"chairs": search(constraint.Categories("chair")),
		"add it": add("it"),
		"total":  {in: intent.Intent{Kind: intent.CartTotal}, conf: 1},
	})
	for _, u := range []string{"chairs", "add it", "total", "hello"} {
		sc, _ := h.store.Get(context.Background(), "s1")
		tr := &turn{utterance: u, sc: sc}
		h.agent.run(context.Background(), tr)
		n := 0
		for _, s := range tr.trace {
			if s == Respond {
				n++
			}
		}
		if n != 1 || tr.trace[len(tr.trace)-1] != Respond || tr.trace[0] != Idle {
			t.Errorf("%q trace = %v", u, tr.trace)
		}
		if tr.outcome == nil {
			t.Errorf("%q produced no outcome", u)
		}
	}
}

func TestParseAnswer(t *testing.T) {
	tests := map[string]answer{
		"yes":                 answerYes,
		"Yes!":                answerYes,
		"do it":               answerYes,
		"yes please add it":   answerYes,
		"no":                  answerNo,
		"Cancel.":             answerNo,
		"no, the white one":   answerNone,
		"add the black chair": answerNone,
		"":                    answerNone,
	}
	for in, want := range tests {
		if got := parseAnswer(in); got != want {
			t.Errorf("parseAnswer(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLLMResponder(t *testing.T) {
	chat := &fakeChat{resp: "  Try MARKUS.  "}
	r := NewLLMResponder(chat, "m", 0)
	got, err := r.Respond(context.Background(), "which one?", nil, composer.ShoppingState{Shown: chairs})
	if err != nil || got != "Try MARKUS." {
		t.Errorf("Respond = %q, %v", got, err)
	}
	if len(chat.got) != 2 || chat.got[0].Role != engine.RoleSystem {
		t.Errorf("prompt = %+v", chat.got)
	}

	if _, err := NewLLMResponder(&fakeChat{resp: " "}, "m", 0).Respond(context.Background(), "x", nil, composer.ShoppingState{}); err == nil {
		t.Error("expected error for empty response")
	}
}

type fakeChat struct {
	resp string
	got  []engine.Message
}

func (f *fakeChat) Chat(_ context.Context, _ string, msgs []engine.Message, _ *engine.Schema) (string, error) {
	f.got = msgs
	return f.resp, nil
}
