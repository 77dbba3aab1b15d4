package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
	"rag-memory/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant.
type Storage struct {
	url    string
	apiKey string
	client *http.Client
	// collection name -> domain.Distance
	distances sync.Map
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

const scrollPage = 256

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Close() error { return nil }

func (s *Storage) collectionURL(name string, parts ...string) string {
	u := s.url + "/collections/" + url.PathEscape(name)
	if len(parts) > 0 {
		u += "/" + strings.Join(parts, "/")
	}
	return u
}

func (s *Storage) CollectionExists(ctx context.Context, name string) (bool, error) {
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(name), nil, nil)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) CollectionInfo(ctx context.Context, name string) (domain.CollectionInfo, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(name), nil, &resp)
	if status == http.StatusNotFound {
		return domain.CollectionInfo{}, goerr.Wrap(domain.ErrCollectionNotFound, "no such collection", goerr.V("collection", name))
	}
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	v := resp.Result.Config.Params.Vectors
	return domain.CollectionInfo{Name: name, Dimension: v.Size, Distance: domain.Distance(v.Distance)}, nil
}

func (s *Storage) CreateCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error {
	if dimension <= 0 {
		return domain.Invalid("invalid dimension", "dimension", dimension)
	}
	if distance == "" {
		distance = domain.DistanceCosine
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": string(distance),
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(name), body, nil); err != nil {
		return err
	}
	s.distances.Store(name, distance)
	return nil
}

func (s *Storage) distance(ctx context.Context, collection string) (domain.Distance, error) {
	if d, ok := s.distances.Load(collection); ok {
		return d.(domain.Distance), nil
	}
	info, err := s.CollectionInfo(ctx, collection)
	if err != nil {
		return "", err
	}
	s.distances.Store(collection, info.Distance)
	return info.Distance, nil
}

func (s *Storage) Upsert(ctx context.Context, collection string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	wire := make([]map[string]any, len(points))
	for i, p := range points {
		wire[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	body := map[string]any{"points": wire}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL(collection, "points")+"?wait=true", body, nil)
	return err
}

func (s *Storage) Query(ctx context.Context, collection string, vector []float32, topK int, filter domain.Filter) ([]domain.Hit, error) {
	if topK <= 0 {
		topK = 10
	}
	distance, err := s.distance(ctx, collection)
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL(collection, "points", "search"), req, &resp)
	if status == http.StatusNotFound {
		return nil, goerr.Wrap(domain.ErrCollectionNotFound, "no such collection", goerr.V("collection", collection))
	}
	if err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		score := r.Score
		// Qdrant reports the raw distance for Euclid; lower is closer.
		if distance == domain.DistanceEuclid {
			score = 1 / (1 + score)
		}
		hits = append(hits, domain.Hit{ID: pointID(r.ID), Score: score, Payload: r.Payload})
	}
	return hits, nil
}

func (s *Storage) Scroll(ctx context.Context, collection string, filter domain.Filter, limit int) ([]domain.Hit, error) {
	return vectorstore.Collect(limit, func(fn func(domain.Hit) bool) error {
		return s.each(ctx, collection, filter, limit, fn)
	})
}

// Each requests pages of scrollPage points and stops as soon as fn returns
// false or the server reports no further page.
func (s *Storage) Each(ctx context.Context, collection string, filter domain.Filter, fn func(domain.Hit) bool) error {
	return s.each(ctx, collection, filter, 0, fn)
}

// each shrinks the last page request so Scroll never fetches past limit.
func (s *Storage) each(ctx context.Context, collection string, filter domain.Filter, limit int, fn func(domain.Hit) bool) error {
	var (
		offset  any
		visited int
	)
	for {
		page := scrollPage
		if limit > 0 && limit-visited < page {
			page = limit - visited
		}
		req := map[string]any{
			"limit":        page,
			"with_payload": true,
			"with_vector":  false,
		}
		if f := buildFilter(filter); f != nil {
			req["filter"] = f
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					ID      any            `json:"id"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		status, err := s.do(ctx, http.MethodPost, s.collectionURL(collection, "points", "scroll"), req, &resp)
		if status == http.StatusNotFound {
			return goerr.Wrap(domain.ErrCollectionNotFound, "no such collection", goerr.V("collection", collection))
		}
		if err != nil {
			return err
		}
		for _, p := range resp.Result.Points {
			visited++
			if !fn(domain.Hit{ID: pointID(p.ID), Payload: p.Payload}) {
				return nil
			}
		}
		offset = resp.Result.NextPageOffset
		if offset == nil || len(resp.Result.Points) == 0 || (limit > 0 && visited >= limit) {
			return nil
		}
	}
}

func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	s.distances.Delete(name)
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(name), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

// buildFilter renders the filter as Qdrant "must" conditions.
func buildFilter(f domain.Filter) map[string]any {
	if f.IsZero() {
		return nil
	}
	var must []map[string]any
	switch len(f.Tags) {
	case 0:
	case 1:
		must = append(must, map[string]any{"key": domain.PayloadTag, "match": map[string]any{"value": string(f.Tags[0])}})
	default:
		tags := make([]string, len(f.Tags))
		for i, t := range f.Tags {
			tags[i] = string(t)
		}
		must = append(must, map[string]any{"key": domain.PayloadTag, "match": map[string]any{"any": tags}})
	}
	if f.Project != "" {
		must = append(must, map[string]any{"key": domain.PayloadProject, "match": map[string]any{"value": f.Project}})
	}
	return map[string]any{"must": must}
}

func pointID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// do sends body as JSON and decodes the response into out. The status code
// is returned even on failure so callers can branch on 404.
func (s *Storage) do(ctx context.Context, method, u string, body, out any) (int, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, goerr.Wrap(err, "failed to marshal qdrant request")
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to build qdrant request", goerr.V("url", u))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, domain.Transport(err, "qdrant unreachable", goerr.V("method", method), goerr.V("url", u))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, goerr.Wrap(domain.ErrTransport, "qdrant request failed",
			goerr.V("method", method), goerr.V("url", u), goerr.V("status", resp.Status), goerr.V("body", string(snippet)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, goerr.Wrap(domain.ErrTransport, "failed to decode qdrant response",
				goerr.V("url", u), goerr.V("cause", err.Error()))
		}
	}
	return resp.StatusCode, nil
}
