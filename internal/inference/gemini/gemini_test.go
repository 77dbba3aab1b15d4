package gemini_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"

	"rag-memory/internal/domain"
	embgemini "rag-memory/internal/embedding/gemini"
	"rag-memory/internal/inference/gemini"
)

func newClient(t *testing.T) *gemini.Client {
	t.Helper()
	project, ok := os.LookupEnv("TEST_GEMINI_PROJECT_ID")
	if !ok {
		t.Skip("TEST_GEMINI_PROJECT_ID is not set")
	}
	location, ok := os.LookupEnv("TEST_GEMINI_LOCATION")
	if !ok {
		t.Skip("TEST_GEMINI_LOCATION is not set")
	}
	c, err := gemini.New(context.Background(), embgemini.Config{Project: project, Location: location})
	gt.NoError(t, err)
	return c
}

func TestChat(t *testing.T) {
	c := newClient(t)
	out, err := c.Chat(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "Answer with a single word."},
		{Role: domain.RoleUser, Content: "What color is the sky on a clear day?"},
	}, domain.ChatParams{Temperature: 0.1, TopP: 0.9})
	gt.NoError(t, err)
	gt.True(t, out != "")
}

func TestCountTokens(t *testing.T) {
	c := newClient(t)
	n, err := gemini.NewTokenCounter(c).CountTokens(context.Background(), "hello world")
	gt.NoError(t, err)
	gt.True(t, n > 0)
}
