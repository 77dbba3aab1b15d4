// Package ollama embeds text with a model served by Ollama.
package ollama

import (
	"context"
	"net/http"
	"net/url"

	"github.com/m-mizutani/goerr/v2"
	"github.com/ollama/ollama/api"

	"rag-memory/internal/domain"
)

type Embedder struct {
	client *api.Client
	model  string
}

// New connects to host, or to OLLAMA_HOST when host is empty.
func New(host, model string) (*Embedder, error) {
	if model == "" {
		model = "nomic-embed-text"
	}
	client, err := newClient(host)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model}, nil
}

func newClient(host string) (*api.Client, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create ollama client")
		}
		return client, nil
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid ollama host", goerr.V("host", host))
	}
	return api.NewClient(u, http.DefaultClient), nil
}

func (e *Embedder) Name() string { return "ollama:" + e.model }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, domain.Transport(err, "ollama embed failed", goerr.V("model", e.model))
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, goerr.Wrap(domain.ErrTransport, "embeddings count mismatch",
			goerr.V("want", len(texts)), goerr.V("got", len(resp.Embeddings)))
	}
	return resp.Embeddings, nil
}
