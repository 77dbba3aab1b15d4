// Package retrieval searches memory collections and fuses their hits into
// one ranked list.
//
// Scores from different collections are compared as-is even when the
// collections were embedded by different models. The spaces are not
// calibrated against each other, so an image-description hit and a text hit
// with the same score are not necessarily equally relevant.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
	"rag-memory/internal/logging"
	"rag-memory/internal/vectorstore"
)

// Target is one searchable collection and the embedder of its space.
type Target struct {
	Collection string
	Modality   domain.Kind
	Embedder   domain.Embedder
}

// Config tunes ranking. Zero TopK or Threshold in a Query fall back to the
// values here.
type Config struct {
	Targets       []Target
	TopK          int
	Threshold     float64
	Entities      []string
	FallbackScore float64
	FallbackLimit int
}

// Failure records a collection that could not be searched.
type Failure struct {
	Collection string
	Err        error
}

// Response is the fused result of one retrieval.
type Response struct {
	Results  []domain.RetrievalResult
	Failures []Failure
}

// Engine runs similarity search across the configured targets.
type Engine struct {
	store    vectorstore.Storage
	cfg      Config
	entities []*entityMatcher
}

func New(store vectorstore.Storage, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.FallbackScore == 0 {
		cfg.FallbackScore = 0.5
	}
	if cfg.FallbackLimit <= 0 {
		cfg.FallbackLimit = cfg.TopK
	}
	e := &Engine{store: store, cfg: cfg}
	for _, name := range cfg.Entities {
		if m := newEntityMatcher(name); m != nil {
			e.entities = append(e.entities, m)
		}
	}
	return e
}

// Retrieve embeds q.Text once per distinct embedder, searches every target
// and returns hits scoring at least the threshold, best first.
func (e *Engine) Retrieve(ctx context.Context, q domain.Query) (*Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, domain.Invalid("query is empty", "query", q.Text)
	}
	for _, t := range q.Filter.Tags {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	if q.TopK <= 0 {
		q.TopK = e.cfg.TopK
	}
	if q.Threshold <= 0 {
		q.Threshold = e.cfg.Threshold
	}

	resp := &Response{}
	vectors := make(map[string][]float32, len(e.cfg.Targets))
	cache := make(map[domain.Embedder][]float32)
	for _, t := range e.cfg.Targets {
		if v, ok := cache[t.Embedder]; ok {
			vectors[t.Collection] = v
			continue
		}
		vecs, err := t.Embedder.Embed(ctx, []string{q.Text})
		if err == nil && len(vecs) != 1 {
			err = goerr.Wrap(domain.ErrTransport, "embedder returned no vector")
		}
		if err != nil {
			resp.Failures = append(resp.Failures, Failure{Collection: t.Collection, Err: err})
			logging.From(ctx).Warn("failed to embed query", "collection", t.Collection, "embedder", t.Embedder.Name(), "error", err)
			continue
		}
		cache[t.Embedder] = vecs[0]
		vectors[t.Collection] = vecs[0]
	}

	results, failures := e.Search(ctx, vectors, q.Filter, q.TopK, q.Threshold)
	resp.Results = results
	resp.Failures = append(resp.Failures, failures...)

	if fb := e.fallback(ctx, q, results); len(fb) > 0 {
		resp.Results = fuse(append(resp.Results, fb...))
	}
	return resp, nil
}

// Search queries each target that has a vector in vectors. Hits below
// threshold are discarded; the rest are fused by descending score, ties
// keeping per-collection rank and target order.
func (e *Engine) Search(ctx context.Context, vectors map[string][]float32, filter domain.Filter, topK int, threshold float64) ([]domain.RetrievalResult, []Failure) {
	var (
		results  []domain.RetrievalResult
		failures []Failure
	)
	for _, t := range e.cfg.Targets {
		vec, ok := vectors[t.Collection]
		if !ok {
			continue
		}
		hits, err := e.store.Query(ctx, t.Collection, vec, topK, filter)
		if errors.Is(err, domain.ErrCollectionNotFound) {
			continue
		}
		if err != nil {
			failures = append(failures, Failure{Collection: t.Collection, Err: err})
			logging.From(ctx).Warn("collection query failed", "collection", t.Collection, "error", err)
			continue
		}
		for _, h := range hits {
			if h.Score < threshold {
				continue
			}
			text := strings.TrimSpace(h.Text())
			if text == "" {
				continue
			}
			results = append(results, toResult(h, t.Collection, h.Score, text))
		}
	}
	return fuse(results), failures
}

func fuse(results []domain.RetrievalResult) []domain.RetrievalResult {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

func toResult(h domain.Hit, collection string, score float64, text string) domain.RetrievalResult {
	filename := h.String(domain.PayloadFilename)
	if filename == "" {
		filename = "Unknown"
	}
	tag := h.String(domain.PayloadTag)
	if tag == "" {
		tag = "N/A"
	}
	return domain.RetrievalResult{
		Score:      score,
		Text:       text,
		Filename:   filename,
		Tag:        tag,
		Collection: collection,
		Project:    h.String(domain.PayloadProject),
	}
}
