// Package agent runs one shopping turn at a time per session: it classifies
// the utterance, updates search constraints, retrieves and resolves products,
// drives the cart and commits the session when the reply is ready.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/composer"
	"github.com/akashsateesha/Clickless-IKEA/internal/constraint"
	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
	"github.com/akashsateesha/Clickless-IKEA/internal/intent"
	"github.com/akashsateesha/Clickless-IKEA/internal/metrics"
	"github.com/akashsateesha/Clickless-IKEA/internal/resolver"
	"github.com/akashsateesha/Clickless-IKEA/internal/session"
	"github.com/akashsateesha/Clickless-IKEA/internal/storage"
)

// ErrBusy is returned when a session already has a turn in flight.
var ErrBusy = errors.New("session is busy with another turn")

const (
	defaultTaxRate       = 0.08
	defaultCartTimeout   = 15 * time.Second
	defaultChatTimeout   = 10 * time.Second
	defaultHistoryWindow = 10
	// maxTransitions bounds a turn; a turn never needs more than a handful.
	maxTransitions = 8
)

// Classifier reads the intent of an utterance. intent.Classifier satisfies it.
type Classifier interface {
	Classify(ctx context.Context, utterance string, history []engine.Message, st intent.State) (intent.Intent, float64)
}

// Searcher runs a constrained product search. retrieval.Orchestrator satisfies it.
type Searcher interface {
	Search(ctx context.Context, set constraint.Set, freeText string) ([]catalog.Product, error)
}

// Resolver maps a product reference onto candidates. resolver.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, reference string, candidates []resolver.Candidate, history []engine.Message) resolver.Result
}

// Responder writes free-form conversational replies.
type Responder interface {
	Respond(ctx context.Context, utterance string, history []engine.Message, st composer.ShoppingState) (string, error)
}

// TurnLog records handled turns. storage.Store satisfies it.
type TurnLog interface {
	SaveTurn(ctx context.Context, t storage.Turn) error
}

// Deps are the collaborators of an Agent. Sessions, Classifier, Searcher,
// Resolver and Cart are required.
type Deps struct {
	Sessions   session.Store
	Classifier Classifier
	Searcher   Searcher
	Resolver   Resolver
	Cart       cart.Actuator
	Responder  Responder
	TurnLog    TurnLog
	Metrics    metrics.Recorder
}

// Config tunes an Agent. Zero values use the defaults.
type Config struct {
	TaxRate       float64
	MaxOptions    int
	CartTimeout   time.Duration
	ChatTimeout   time.Duration
	HistoryWindow int
}

// Agent is the shopping state machine. It is safe for concurrent use; turns
// of different sessions run in parallel, turns of one session never overlap.
type Agent struct {
	sessions   session.Store
	classifier Classifier
	searcher   Searcher
	resolver   Resolver
	cart       cart.Actuator
	responder  Responder
	turnLog    TurnLog
	metrics    metrics.Recorder
	composer   *composer.Composer

	taxRate       float64
	taxBP         int64
	cartTimeout   time.Duration
	chatTimeout   time.Duration
	historyWindow int
	now           func() time.Time

	mu       sync.Mutex
	inflight map[string]*inflightTurn
}

type inflightTurn struct {
	cancel context.CancelFunc
	// commitMu is held while the turn decides to commit, so EndSession can
	// never be overtaken by a late commit.
	commitMu sync.Mutex
}

// New creates an Agent.
func New(deps Deps, cfg Config) (*Agent, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("agent: session store is required")
	case deps.Classifier == nil:
		return nil, errors.New("agent: classifier is required")
	case deps.Searcher == nil:
		return nil, errors.New("agent: searcher is required")
	case deps.Resolver == nil:
		return nil, errors.New("agent: resolver is required")
	case deps.Cart == nil:
		return nil, errors.New("agent: cart actuator is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if cfg.TaxRate <= 0 {
		cfg.TaxRate = defaultTaxRate
	}
	if cfg.CartTimeout <= 0 {
		cfg.CartTimeout = defaultCartTimeout
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = defaultChatTimeout
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}

	return &Agent{
		sessions:      deps.Sessions,
		classifier:    deps.Classifier,
		searcher:      deps.Searcher,
		resolver:      deps.Resolver,
		cart:          deps.Cart,
		responder:     deps.Responder,
		turnLog:       deps.TurnLog,
		metrics:       deps.Metrics,
		composer:      composer.New(cfg.MaxOptions),
		taxRate:       cfg.TaxRate,
		taxBP:         cart.RateToBasisPoints(cfg.TaxRate),
		cartTimeout:   cfg.CartTimeout,
		chatTimeout:   cfg.ChatTimeout,
		historyWindow: cfg.HistoryWindow,
		now:           time.Now,
		inflight:      make(map[string]*inflightTurn),
	}, nil
}

// HandleTurn processes one utterance for a session and returns the reply.
// It returns ErrBusy if the session already has a turn in flight. The session
// is committed only when the turn completes; a cancelled turn leaves the
// stored session untouched.
func (a *Agent) HandleTurn(ctx context.Context, sessionID, utterance string) (composer.Reply, error) {
	if sessionID == "" {
		return composer.Reply{}, session.ErrNoID
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	inf := &inflightTurn{cancel: cancel}

	a.mu.Lock()
	if _, busy := a.inflight[sessionID]; busy {
		a.mu.Unlock()
		a.metrics.IncBusy()
		return composer.Reply{}, ErrBusy
	}
	a.inflight[sessionID] = inf
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.inflight, sessionID)
		a.mu.Unlock()
	}()

	start := a.now()
	sc, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return composer.Reply{}, fmt.Errorf("loading session: %w", err)
	}

	t := &turn{
		utterance: utterance,
		sc:        sc,
		history:   sc.Recent(a.historyWindow),
	}
	a.run(ctx, t)
	reply := a.composer.Compose(t.outcome)

	inf.commitMu.Lock()
	defer inf.commitMu.Unlock()
	if err := ctx.Err(); err != nil {
		slog.Info("turn abandoned before commit", "session_id", sessionID, "error", err)
		return composer.Reply{}, fmt.Errorf("turn abandoned: %w", err)
	}

	at := a.now()
	t.sc.Append(engine.RoleUser, utterance, start)
	t.sc.Append(engine.RoleAssistant, reply.Transcript(), at)
	t.sc.Turns++
	t.sc.UpdatedAt = at
	if err := a.sessions.Commit(ctx, sessionID, t.sc); err != nil {
		return composer.Reply{}, fmt.Errorf("committing session: %w", err)
	}

	a.record(ctx, sessionID, t, reply, start, at)
	return reply, nil
}

// Session returns a snapshot of the session's state.
func (a *Agent) Session(ctx context.Context, sessionID string) (session.Context, error) {
	return a.sessions.Get(ctx, sessionID)
}

// EndSession abandons any in-flight turn of the session and deletes it.
func (a *Agent) EndSession(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	inf := a.inflight[sessionID]
	a.mu.Unlock()

	if inf != nil {
		inf.cancel()
		inf.commitMu.Lock()
		defer inf.commitMu.Unlock()
	}
	if err := a.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if f, ok := a.cart.(cart.Forgetter); ok {
		f.Forget(sessionID)
	}
	slog.Info("session ended", "session_id", sessionID, "in_flight", inf != nil)
	return nil
}

// ExpireSessions deletes sessions idle for longer than ttl.
func (a *Agent) ExpireSessions(ctx context.Context, ttl time.Duration) (int, error) {
	n, err := a.sessions.Expire(ctx, a.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("expiring sessions: %w", err)
	}
	if n > 0 {
		slog.Info("expired idle sessions", "count", n)
	}
	return n, nil
}

func (a *Agent) record(ctx context.Context, sessionID string, t *turn, reply composer.Reply, start, end time.Time) {
	kind := string(t.intent.Kind)
	if kind == "" {
		kind = string(intent.Other)
	}
	a.metrics.ObserveTurn(kind, string(reply.Kind), string(reply.Tier), end.Sub(start))
	slog.Info("turn handled",
		"session_id", sessionID,
		"intent", kind,
		"reply", reply.Kind,
		"tier", reply.Tier,
		"states", len(t.trace),
		"duration_ms", end.Sub(start).Milliseconds(),
	)

	if a.turnLog == nil {
		return
	}
	err := a.turnLog.SaveTurn(ctx, storage.Turn{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		CreatedAt:  end,
		Utterance:  t.utterance,
		Intent:     kind,
		ReplyKind:  string(reply.Kind),
		Tier:       string(reply.Tier),
		Confidence: reply.Confidence,
		Reply:      reply.Text,
	})
	if err != nil {
		slog.Warn("failed to record turn", "session_id", sessionID, "error", err)
	}
}
