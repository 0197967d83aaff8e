package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOllamaTestEngine(t *testing.T, h http.HandlerFunc) *OllamaEngine {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	e, err := NewOllamaEngine(srv.URL)
	if err != nil {
		t.Fatalf("NewOllamaEngine: %v", err)
	}
	return e
}

func TestOllamaEngine_Chat(t *testing.T) {
	var gotFormat json.RawMessage
	e := newOllamaTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Format json.RawMessage `json:"format"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotFormat = req.Format
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": `{"intent":"search"}`},
			"done":    true,
		})
	})

	schema := &Schema{Type: "object", Properties: map[string]SchemaProperty{"intent": {Type: "string"}}}
	result, err := e.Chat(context.Background(), "llama3.2", []Message{{Role: RoleUser, Content: "hi"}}, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result != `{"intent":"search"}` {
		t.Errorf("got %q", result)
	}
	if len(gotFormat) == 0 {
		t.Error("schema was not sent as format")
	}
}

func TestOllamaEngine_Embed(t *testing.T) {
	e := newOllamaTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.1, 0.2, 0.3}}})
	})

	vec, err := e.Embed(context.Background(), "nomic-embed-text", "black office chair")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("len(vec) = %d, want 3", len(vec))
	}
}

func TestOllamaEngine_HasModel(t *testing.T) {
	e := newOllamaTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama3.2:latest", "model": "llama3.2:latest"}},
		})
	})

	if !e.HasModel(context.Background(), "llama3.2") {
		t.Error("HasModel(llama3.2) = false, want true")
	}
	if e.HasModel(context.Background(), "mistral") {
		t.Error("HasModel(mistral) = true, want false")
	}
}

func TestOllamaEngine_IsRunning_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	e, err := NewOllamaEngine(url)
	if err != nil {
		t.Fatalf("NewOllamaEngine: %v", err)
	}
	if e.IsRunning(context.Background()) {
		t.Error("IsRunning = true for a closed server")
	}
}
