package domain

import "context"

// Embedder converts text into vectors. The output dimensionality is a
// property of the model behind it.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Inference sends an ordered message sequence to a language model.
type Inference interface {
	Chat(ctx context.Context, messages []Message, params ChatParams) (string, error)
}

// ChatParams are the sampling parameters of one inference call.
type ChatParams struct {
	Temperature float64
	TopP        float64
}

// TokenCounter reports how many tokens a text costs under some tokenizer.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}
