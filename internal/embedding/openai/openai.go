// Package openai embeds text through any OpenAI-compatible /embeddings
// endpoint (OpenAI, LM Studio, vLLM).
package openai

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"rag-memory/internal/domain"
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	BatchSize  int
}

// Embedder implements domain.Embedder on top of openai-go.
type Embedder struct {
	client    openai.Client
	model     string
	batchSize int
}

// New creates an embeddings client. An empty API key is allowed because
// local servers usually ignore it.
func New(cfg Config) *Embedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &Embedder{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "openai:" + e.model }

// Embed returns one vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(e.model),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
		})
		if err != nil {
			return nil, domain.Transport(err, "embeddings request failed", goerr.V("model", e.model))
		}
		if len(resp.Data) != len(batch) {
			return nil, goerr.Wrap(domain.ErrTransport, "embeddings count mismatch",
				goerr.V("want", len(batch)), goerr.V("got", len(resp.Data)))
		}

		vectors := make([][]float32, len(batch))
		for _, d := range resp.Data {
			idx := int(d.Index)
			if idx < 0 || idx >= len(batch) {
				return nil, goerr.Wrap(domain.ErrTransport, "embedding index out of range", goerr.V("index", idx))
			}
			vectors[idx] = toFloat32(d.Embedding)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
