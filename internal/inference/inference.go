// Package inference builds the configured chat backend.
package inference

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/config"
	"rag-memory/internal/domain"
	embgemini "rag-memory/internal/embedding/gemini"
	"rag-memory/internal/inference/claude"
	"rag-memory/internal/inference/gemini"
	"rag-memory/internal/inference/ollama"
	"rag-memory/internal/inference/openai"
)

// Client is a chat backend that can name its model.
type Client interface {
	domain.Inference
	Model() string
}

// ServiceName is the human-facing name of a backend type, used in error
// answers.
func ServiceName(typ string) string {
	switch typ {
	case "ollama":
		return "Ollama"
	case "gemini":
		return "Gemini"
	case "claude":
		return "Claude"
	}
	return "LM Studio"
}

func New(ctx context.Context, cfg config.InferenceConfig) (Client, error) {
	switch cfg.Type {
	case "", "openai":
		oc := cfg.OpenAI
		if oc == nil {
			oc = &config.OpenAIConfig{}
		}
		return openai.New(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKey:     os.Getenv(oc.APIKeyEnv),
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries: oc.MaxRetries,
		}), nil

	case "ollama":
		oc := cfg.Ollama
		if oc == nil {
			oc = &config.OllamaConfig{}
		}
		return ollama.New(oc.Host, oc.Model)

	case "gemini":
		gc := cfg.Gemini
		if gc == nil {
			gc = &config.GeminiConfig{}
		}
		var key string
		if gc.APIKeyEnv != "" {
			key = os.Getenv(gc.APIKeyEnv)
		}
		return gemini.New(ctx, embgemini.Config{
			APIKey:   key,
			Project:  gc.Project,
			Location: gc.Location,
			Model:    gc.Model,
		})

	case "claude":
		cc := cfg.Claude
		if cc == nil {
			cc = &config.ClaudeConfig{}
		}
		env := cc.APIKeyEnv
		if env == "" {
			env = "ANTHROPIC_API_KEY"
		}
		return claude.New(claude.Config{
			APIKey:    os.Getenv(env),
			Model:     cc.Model,
			MaxTokens: cc.MaxTokens,
		})
	}
	return nil, goerr.New("unknown inference type", goerr.V("type", cfg.Type))
}
