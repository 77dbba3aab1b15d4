// Package openai talks to any OpenAI-compatible chat completions endpoint,
// LM Studio included.
package openai

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"rag-memory/internal/domain"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	client openai.Client
	model  string
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:1234/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &Client{client: openai.NewClient(opts...), model: cfg.Model}
}

func (c *Client) Model() string { return c.model }

var roleMap = map[domain.Role]func(string) openai.ChatCompletionMessageParamUnion{
	domain.RoleSystem:    openai.SystemMessage[string],
	domain.RoleUser:      openai.UserMessage[string],
	domain.RoleAssistant: openai.AssistantMessage[string],
}

func (c *Client) Chat(ctx context.Context, messages []domain.Message, params domain.ChatParams) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		conv, ok := roleMap[m.Role]
		if !ok {
			return "", domain.Invalid("unsupported message role", "role", m.Role)
		}
		msgs = append(msgs, conv(m.Content))
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    msgs,
		Temperature: openai.Float(params.Temperature),
		TopP:        openai.Float(params.TopP),
	})
	if err != nil {
		return "", domain.Transport(err, "chat completion failed", goerr.V("model", c.model))
	}
	if len(resp.Choices) == 0 {
		return "", goerr.Wrap(domain.ErrTransport, "chat completion returned no choices", goerr.V("model", c.model))
	}
	return resp.Choices[0].Message.Content, nil
}
