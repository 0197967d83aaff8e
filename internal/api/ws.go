package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/akashsateesha/Clickless-IKEA/internal/agent"
	"github.com/akashsateesha/Clickless-IKEA/internal/composer"
)

// wsMessage is a client frame. Type is "turn" (the default) or "ping".
type wsMessage struct {
	Type      string `json:"type,omitempty"`
	Utterance string `json:"utterance,omitempty"`
}

// wsFrame is a server frame: a reply, a pong or an error.
type wsFrame struct {
	Type  string          `json:"type"`
	Reply *composer.Reply `json:"reply,omitempty"`
	Error *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// handleWebSocket runs turns for one session over a WebSocket. Frames are
// handled in order, so a connection never races itself for the session.
func handleWebSocket(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			slog.Error("failed to accept websocket", "session_id", sessionID, "error", err)
			return
		}
		defer func() {
			if err := ws.Close(websocket.StatusNormalClosure, "bye"); err != nil {
				slog.Debug("closing websocket", "session_id", sessionID, "error", err)
			}
		}()
		slog.Info("websocket connected", "session_id", sessionID, "remote", r.RemoteAddr)

		ctx := r.Context()
		for {
			var msg wsMessage
			if err := wsjson.Read(ctx, ws, &msg); err != nil {
				if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
					slog.Debug("websocket closed by client", "session_id", sessionID)
				} else {
					slog.Warn("websocket read error", "session_id", sessionID, "error", err)
				}
				return
			}

			frame := runFrame(ctx, deps.Shopper, sessionID, msg)
			if err := wsjson.Write(ctx, ws, frame); err != nil {
				slog.Warn("websocket write error", "session_id", sessionID, "error", err)
				return
			}
		}
	}
}

func runFrame(ctx context.Context, s Shopper, sessionID string, msg wsMessage) wsFrame {
	switch msg.Type {
	case "ping":
		return wsFrame{Type: "pong"}
	case "", "turn":
	default:
		return wsFrame{Type: "error", Error: &wsError{Type: "invalid_request_error", Message: "unknown frame type " + msg.Type}}
	}

	utterance, err := cleanUtterance(msg.Utterance)
	if err != nil {
		return wsFrame{Type: "error", Error: &wsError{Type: "invalid_request_error", Message: err.Error()}}
	}
	reply, err := s.HandleTurn(ctx, sessionID, utterance)
	if err != nil {
		errType := "api_error"
		if errors.Is(err, agent.ErrBusy) {
			errType = "session_busy"
		}
		return wsFrame{Type: "error", Error: &wsError{Type: errType, Message: err.Error()}}
	}
	return wsFrame{Type: "reply", Reply: &reply}
}
