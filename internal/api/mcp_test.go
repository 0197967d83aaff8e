package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/akashsateesha/Clickless-IKEA/internal/agent"
	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/composer"
	"github.com/akashsateesha/Clickless-IKEA/internal/session"
)

var testTime = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	if NewMCPServer(&mockShopper{}, "test") == nil {
		t.Fatal("nil server")
	}
}

func TestMCPTool_Shop(t *testing.T) {
	s := &mockShopper{reply: composer.Reply{Kind: composer.KindTotal, Text: "Your total is $150.12."}}
	handler := mcpShop(s)

	result, err := handler(context.Background(), makeCallToolRequest("shop", map[string]any{
		"utterance":  "what's my total",
		"session_id": "abc",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var got struct {
		SessionID string         `json:"session_id"`
		Reply     composer.Reply `json:"reply"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if got.SessionID != "abc" || got.Reply.Kind != composer.KindTotal {
		t.Errorf("result = %+v", got)
	}
}

func TestMCPTool_Shop_NewSession(t *testing.T) {
	s := &mockShopper{}
	result, _ := mcpShop(s)(context.Background(), makeCallToolRequest("shop", map[string]any{"utterance": "hi"}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if len(s.calls) != 1 || len(s.calls[0].sessionID) != 36 {
		t.Errorf("calls = %+v, want a generated session ID", s.calls)
	}
}

func TestMCPTool_Shop_Errors(t *testing.T) {
	result, _ := mcpShop(&mockShopper{})(context.Background(), makeCallToolRequest("shop", map[string]any{}))
	if !result.IsError {
		t.Error("expected error for missing utterance")
	}

	result, _ = mcpShop(&mockShopper{err: agent.ErrBusy})(context.Background(), makeCallToolRequest("shop", map[string]any{"utterance": "add it", "session_id": "abc"}))
	if !result.IsError || !strings.Contains(toolText(t, result), "busy") {
		t.Errorf("busy result = %+v", result)
	}
}

func TestMCPTool_GetSession(t *testing.T) {
	sc := session.New("abc", testTime)
	sc.Candidates = []catalog.Product{{ID: "markus", Name: "MARKUS", Price: 229, Category: "Office chairs", Color: "Black"}}
	sc.Cart = []cart.Line{{ProductID: "flintan", Name: "FLINTAN", Quantity: 2, UnitPrice: 13900}}
	s := &mockShopper{sessions: map[string]session.Context{"abc": sc}}

	result, err := mcpGetSession(s)(context.Background(), makeCallToolRequest("get_session", map[string]any{"session_id": "abc"}))
	if err != nil || result.IsError {
		t.Fatalf("result = %+v, err = %v", result, err)
	}
	var got sessionSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatal(err)
	}
	if got.Subtotal != "$278.00" || len(got.Shown) != 1 || !strings.Contains(got.Shown[0], "MARKUS") {
		t.Errorf("summary = %+v", got)
	}

	result, _ = mcpGetSession(s)(context.Background(), makeCallToolRequest("get_session", map[string]any{}))
	if !result.IsError {
		t.Error("expected error for missing session_id")
	}
}
