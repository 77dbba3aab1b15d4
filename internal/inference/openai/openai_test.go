package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"

	"rag-memory/internal/domain"
	"rag-memory/internal/inference/openai"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/v1/chat/completions")
		var req struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			TopP        float64 `json:"top_p"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gt.Equal(t, req.Model, "llama-3")
		gt.Equal(t, req.Temperature, 0.7)
		gt.Equal(t, req.TopP, 0.9)
		gt.A(t, req.Messages).Length(3)
		gt.Equal(t, req.Messages[0].Role, "system")
		gt.Equal(t, req.Messages[1].Role, "assistant")
		gt.Equal(t, req.Messages[2].Content, "question")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "c1",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "answer"},
			}},
		})
	}))
	defer srv.Close()

	c := openai.New(openai.Config{BaseURL: srv.URL + "/v1", Model: "llama-3"})
	out, err := c.Chat(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleAssistant, Content: "earlier"},
		{Role: domain.RoleUser, Content: "question"},
	}, domain.ChatParams{Temperature: 0.7, TopP: 0.9})
	gt.NoError(t, err)
	gt.Equal(t, out, "answer")
}

func TestChatUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"no model loaded"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := openai.New(openai.Config{BaseURL: srv.URL, Model: "m"})
	_, err := c.Chat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}}, domain.ChatParams{})
	gt.True(t, errors.Is(err, domain.ErrTransport))
}
