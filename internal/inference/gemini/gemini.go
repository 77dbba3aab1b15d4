// Package gemini runs chat completions and token counting on Gemini.
package gemini

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"rag-memory/internal/domain"
	embgemini "rag-memory/internal/embedding/gemini"
)

const DefaultModel = "gemini-2.5-flash"

type Client struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg embgemini.Config) (*Client, error) {
	client, err := embgemini.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Model() string { return c.model }

// Chat sends system messages as the system instruction and the rest as
// user/model contents.
func (c *Client) Chat(ctx context.Context, messages []domain.Message, params domain.ChatParams) (string, error) {
	system, contents := convert(messages)
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(params.Temperature)),
		TopP:        genai.Ptr(float32(params.TopP)),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, "")
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", domain.Transport(err, "gemini generate failed", goerr.V("model", c.model))
	}
	return resp.Text(), nil
}

func convert(messages []domain.Message) (string, []*genai.Content) {
	var system string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return system, contents
}

// TokenCounter counts tokens with the model's own tokenizer.
type TokenCounter struct {
	client *genai.Client
	model  string
}

func NewTokenCounter(c *Client) *TokenCounter {
	return &TokenCounter{client: c.client, model: c.model}
}

func (t *TokenCounter) CountTokens(ctx context.Context, text string) (int, error) {
	resp, err := t.client.Models.CountTokens(ctx, t.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return 0, domain.Transport(err, "gemini count tokens failed", goerr.V("model", t.model))
	}
	return int(resp.TotalTokens), nil
}
