package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/akashsateesha/Clickless-IKEA/internal/agent"
	"github.com/akashsateesha/Clickless-IKEA/internal/composer"
	"github.com/akashsateesha/Clickless-IKEA/internal/session"
	"github.com/akashsateesha/Clickless-IKEA/internal/storage"
)

const (
	maxRequestBodySize = 64 << 10 // 64KB
	maxUtteranceRunes  = 2000
)

// Shopper runs shopping turns. agent.Agent satisfies it.
type Shopper interface {
	HandleTurn(ctx context.Context, sessionID, utterance string) (composer.Reply, error)
	Session(ctx context.Context, sessionID string) (session.Context, error)
	EndSession(ctx context.Context, sessionID string) error
}

// TurnLister reads the turn log. storage.Store satisfies it.
type TurnLister interface {
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]storage.Turn, error)
}

// Deps holds dependencies for the HTTP handler.
type Deps struct {
	Shopper Shopper
	// Turns is optional; without it the turn log route returns 404.
	Turns TurnLister
	// Token enables bearer authentication on /v1 when non-empty.
	Token string
	// Metrics is served on /metrics when non-nil.
	Metrics http.Handler
}

// TurnRequest is the body of POST /v1/sessions/{id}/turns.
type TurnRequest struct {
	Utterance string `json:"utterance"`
}

// NewHandler returns the shopping assistant's HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/sessions", handleCreateSession)
		r.Get("/sessions/{id}", handleGetSession(deps))
		r.Delete("/sessions/{id}", handleDeleteSession(deps))
		r.Post("/sessions/{id}/turns", handleTurn(deps))
		r.Get("/sessions/{id}/turns", handleListTurns(deps))
		r.Get("/sessions/{id}/ws", handleWebSocket(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleCreateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": uuid.NewString()})
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := deps.Shopper.Session(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			turnError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sc)
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Shopper.EndSession(r.Context(), chi.URLParam(r, "id")); err != nil {
			turnError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleTurn(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		utterance, err := cleanUtterance(req.Utterance)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		reply, err := deps.Shopper.HandleTurn(r.Context(), chi.URLParam(r, "id"), utterance)
		if err != nil {
			turnError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

type turnView struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Utterance  string    `json:"utterance"`
	Intent     string    `json:"intent"`
	ReplyKind  string    `json:"reply_kind"`
	Tier       string    `json:"tier,omitempty"`
	Confidence float64   `json:"confidence"`
	Reply      string    `json:"reply"`
}

func handleListTurns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Turns == nil {
			httpError(w, http.StatusNotFound, "not_found_error", "turn log is not enabled")
			return
		}
		limit := parseIntParam(r, "limit", 20, 200)
		turns, err := deps.Turns.RecentTurns(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing turns: %v", err)
			return
		}
		out := make([]turnView, len(turns))
		for i, t := range turns {
			out[i] = turnView{
				ID:         t.ID,
				CreatedAt:  t.CreatedAt,
				Utterance:  t.Utterance,
				Intent:     t.Intent,
				ReplyKind:  t.ReplyKind,
				Tier:       t.Tier,
				Confidence: t.Confidence,
				Reply:      t.Reply,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func cleanUtterance(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("utterance is required")
	}
	if n := len([]rune(s)); n > maxUtteranceRunes {
		return "", fmt.Errorf("utterance is %d characters, the limit is %d", n, maxUtteranceRunes)
	}
	return s, nil
}

// turnError maps agent errors onto HTTP statuses.
func turnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrBusy):
		httpError(w, http.StatusConflict, "session_busy", "%v", err)
	case errors.Is(err, session.ErrNoID):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusServiceUnavailable, "api_error", "turn abandoned: %v", err)
	default:
		slog.Error("turn failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return defaultVal
	}
	return min(v, maxVal)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
