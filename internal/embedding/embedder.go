// Package embedding builds the configured embedders.
package embedding

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/config"
	"rag-memory/internal/domain"
	"rag-memory/internal/embedding/gemini"
	"rag-memory/internal/embedding/lexical"
	"rag-memory/internal/embedding/ollama"
	"rag-memory/internal/embedding/openai"
)

// New constructs the embedder described by cfg.
func New(ctx context.Context, name string, cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "", "lexical":
		dim := lexical.DefaultDimension
		if cfg.Lexical != nil {
			dim = cfg.Lexical.Dimension
		}
		return lexical.NewEmbedder(dim), nil

	case "openai":
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
			BatchSize:  oc.BatchSize,
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
		return gemini.New(ctx, gemini.Config{
			APIKey:   key,
			Project:  gc.Project,
			Location: gc.Location,
			Model:    gc.Model,
		})
	}
	return nil, goerr.New("unknown embedder type", goerr.V("name", name), goerr.V("type", cfg.Type))
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e domain.Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, goerr.Wrap(domain.ErrTransport, "embedder returned no vector", goerr.V("embedder", e.Name()))
	}
	return vecs[0], nil
}
