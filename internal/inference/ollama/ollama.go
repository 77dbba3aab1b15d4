// Package ollama runs chat completions on an Ollama server.
package ollama

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/ollama/ollama/api"

	"rag-memory/internal/domain"
)

type Client struct {
	client *api.Client
	model  string
}

// New connects to host, or to OLLAMA_HOST when host is empty.
func New(host, model string) (*Client, error) {
	if model == "" {
		return nil, domain.Invalid("ollama model is required", "model", model)
	}
	var client *api.Client
	if host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create ollama client")
		}
		client = c
	} else {
		u, err := url.Parse(host)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid ollama host", goerr.V("host", host))
		}
		client = api.NewClient(u, http.DefaultClient)
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Model() string { return c.model }

func (c *Client) Chat(ctx context.Context, messages []domain.Message, params domain.ChatParams) (string, error) {
	msgs := make([]api.Message, len(messages))
	for i, m := range messages {
		msgs[i] = api.Message{Role: string(m.Role), Content: m.Content}
	}
	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": params.Temperature,
			"top_p":       params.TopP,
		},
	}

	var sb strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", domain.Transport(err, "ollama chat failed", goerr.V("model", c.model))
	}
	return sb.String(), nil
}
