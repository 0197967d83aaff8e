package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/akashsateesha/Clickless-IKEA/internal/agent"
	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
)

// NewMCPServer creates an MCP server exposing the shopping assistant as tools.
func NewMCPServer(s Shopper, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"clickless",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("clickless: a furniture shopping assistant. Send the shopper's words to `shop`; reuse the returned session_id for follow-ups."),
		server.WithRecovery(),
	)

	srv.AddTool(
		mcp.NewTool("shop",
			mcp.WithDescription("Handle one shopper utterance: search products, refine constraints, add or remove cart items, or show the cart total. Returns the structured reply as JSON."),
			mcp.WithString("utterance", mcp.Description("What the shopper said"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session to continue; omitted starts a new session")),
		),
		mcpShop(s),
	)

	srv.AddTool(
		mcp.NewTool("get_session",
			mcp.WithDescription("Return a session's search constraints, shown products and cart."),
			mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		),
		mcpGetSession(s),
	)

	return srv
}

type shopResult struct {
	SessionID string `json:"session_id"`
	Reply     any    `json:"reply"`
}

func mcpShop(s Shopper) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("utterance")
		if err != nil {
			return mcpError("utterance is required"), nil
		}
		utterance, err := cleanUtterance(raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		id := req.GetString("session_id", "")
		if id == "" {
			id = uuid.NewString()
		}

		reply, err := s.HandleTurn(ctx, id, utterance)
		if errors.Is(err, agent.ErrBusy) {
			return mcpError("session is busy with another turn; retry when it completes"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("turn failed: %v", err)), nil
		}

		b, err := json.Marshal(shopResult{SessionID: id, Reply: reply})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

type sessionSummary struct {
	SessionID   string   `json:"session_id"`
	Turns       int      `json:"turns"`
	Constraints any      `json:"constraints"`
	Shown       []string `json:"shown"`
	Cart        any      `json:"cart"`
	Subtotal    string   `json:"subtotal"`
	Awaiting    bool     `json:"awaiting_clarification"`
}

func mcpGetSession(s Shopper) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil || id == "" {
			return mcpError("session_id is required"), nil
		}
		sc, err := s.Session(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load session: %v", err)), nil
		}

		sum := sessionSummary{
			SessionID:   sc.ID,
			Turns:       sc.Turns,
			Constraints: sc.Constraints,
			Cart:        sc.Cart,
			Subtotal:    cart.FormatCents(cart.Compute(sc.Cart, 0).Subtotal),
			Awaiting:    sc.AwaitingClarification,
		}
		for _, p := range sc.Candidates {
			sum.Shown = append(sum.Shown, p.Summary())
		}
		b, err := json.Marshal(sum)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal session: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
