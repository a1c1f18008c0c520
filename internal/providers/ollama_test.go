package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaClient_Chat(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var received ollamaChatRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/chat" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			json.NewDecoder(r.Body).Decode(&received)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"model":             "llama3.1",
				"message":           map[string]any{"role": "assistant", "content": "local answer"},
				"done":              true,
				"prompt_eval_count": 40,
				"eval_count":        9,
			})
		}))
		defer server.Close()

		client := NewOllamaClient(OllamaConfig{BaseURL: server.URL, ContextSize: 16384})
		req := NewChatRequest("sys", "user")
		req.MaxTokens = 256

		result, err := client.Chat(context.Background(), req)
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Content != "local answer" {
			t.Errorf("Content = %q", result.Content)
		}
		if result.TotalTokens != 49 {
			t.Errorf("TotalTokens = %d, want 49", result.TotalTokens)
		}
		if received.Stream {
			t.Error("expected non-streaming request")
		}
		if got, _ := received.Options["num_ctx"].(float64); got != 16384 {
			t.Errorf("num_ctx = %v, want 16384", received.Options["num_ctx"])
		}
		if got, _ := received.Options["num_predict"].(float64); got != 256 {
			t.Errorf("num_predict = %v, want 256", received.Options["num_predict"])
		}
	})

	t.Run("missing model", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"model \"nope\" not found"}`))
		}))
		defer server.Close()

		client := NewOllamaClient(OllamaConfig{BaseURL: server.URL, DefaultModel: "nope"})
		_, err := client.Chat(context.Background(), NewChatRequest("", "hi"))
		pe, ok := AsProviderError(err)
		if !ok {
			t.Fatalf("expected *ProviderError, got %T", err)
		}
		if pe.Class != ClassBadRequest || pe.StatusCode != http.StatusNotFound {
			t.Errorf("error = %+v, want bad_request 404", pe)
		}
		if pe.Message != `model "nope" not found` {
			t.Errorf("Message = %q", pe.Message)
		}
	})

	t.Run("unreachable server", func(t *testing.T) {
		client := NewOllamaClient(OllamaConfig{BaseURL: "http://127.0.0.1:1"})
		_, err := client.Chat(context.Background(), NewChatRequest("", "hi"))
		if got := ClassOf(err); got != ClassNetwork {
			t.Errorf("ClassOf() = %q, want network", got)
		}
	})
}
