package claude_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"

	"rag-memory/internal/domain"
	"rag-memory/internal/inference/claude"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/v1/messages")
		var req struct {
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gt.A(t, req.System).Length(1)
		gt.Equal(t, req.System[0].Text, "sys")
		gt.A(t, req.Messages).Length(2)
		gt.Equal(t, req.Messages[0].Role, "user")
		gt.Equal(t, req.Messages[1].Role, "assistant")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"stop_reason":   "end_turn",
			"content":       []map[string]any{{"type": "text", "text": "hello"}},
			"usage":         map[string]any{"input_tokens": 1, "output_tokens": 1},
			"stop_sequence": nil,
		})
	}))
	defer srv.Close()

	c, err := claude.New(claude.Config{APIKey: "k", BaseURL: srv.URL + "/", Model: "claude-test"})
	gt.NoError(t, err)
	out, err := c.Chat(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "partial"},
	}, domain.ChatParams{Temperature: 0.7, TopP: 0.9})
	gt.NoError(t, err)
	gt.Equal(t, out, "hello")
}

func TestMissingKey(t *testing.T) {
	_, err := claude.New(claude.Config{})
	gt.True(t, errors.Is(err, domain.ErrValidation))
}
