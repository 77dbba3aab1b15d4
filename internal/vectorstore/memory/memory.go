// Package memory is an in-process vector store using brute-force scoring.
// It backs tests and ephemeral runs.
package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
	"rag-memory/internal/vectorstore"
)

type collection struct {
	info   domain.CollectionInfo
	points []domain.Point
	index  map[string]int
}

// Storage keeps every collection in memory.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

func (s *Storage) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *Storage) CreateCollection(_ context.Context, name string, dimension int, distance domain.Distance) error {
	if dimension <= 0 {
		return domain.Invalid("invalid dimension", "dimension", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		if c.info.Dimension != dimension {
			return goerr.Wrap(domain.ErrDimensionMismatch, "collection exists with another dimension",
				goerr.V("collection", name), goerr.V("existing", c.info.Dimension), goerr.V("requested", dimension))
		}
		return nil
	}
	s.collections[name] = &collection{
		info:  domain.CollectionInfo{Name: name, Dimension: dimension, Distance: distance},
		index: make(map[string]int),
	}
	return nil
}

func (s *Storage) CollectionInfo(_ context.Context, name string) (domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return domain.CollectionInfo{}, goerr.Wrap(domain.ErrCollectionNotFound, "no such collection", goerr.V("collection", name))
	}
	return c.info, nil
}

// Upsert validates every point before storing any of them. Existing ids are
// replaced in place.
func (s *Storage) Upsert(_ context.Context, name string, points []domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return goerr.Wrap(domain.ErrCollectionNotFound, "no such collection", goerr.V("collection", name))
	}
	for _, p := range points {
		if len(p.Vector) != c.info.Dimension {
			return goerr.Wrap(domain.ErrDimensionMismatch, "vector dimension mismatch",
				goerr.V("collection", name), goerr.V("expected", c.info.Dimension), goerr.V("got", len(p.Vector)), goerr.V("id", p.ID))
		}
	}
	for _, p := range points {
		stored := domain.Point{
			ID:      p.ID,
			Vector:  append([]float32(nil), p.Vector...),
			Payload: vectorstore.ClonePayload(p.Payload),
		}
		if i, ok := c.index[p.ID]; ok {
			c.points[i] = stored
			continue
		}
		c.index[p.ID] = len(c.points)
		c.points = append(c.points, stored)
	}
	return nil
}

func (s *Storage) Query(_ context.Context, name string, vector []float32, topK int, filter domain.Filter) ([]domain.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, goerr.Wrap(domain.ErrCollectionNotFound, "no such collection", goerr.V("collection", name))
	}
	if len(vector) != c.info.Dimension {
		return nil, goerr.Wrap(domain.ErrDimensionMismatch, "query vector dimension mismatch",
			goerr.V("collection", name), goerr.V("expected", c.info.Dimension), goerr.V("got", len(vector)))
	}
	hits := make([]domain.Hit, 0, len(c.points))
	for _, p := range c.points {
		if !filter.Match(p.Payload) {
			continue
		}
		hits = append(hits, domain.Hit{
			ID:      p.ID,
			Score:   vectorstore.Score(c.info.Distance, p.Vector, vector),
			Payload: vectorstore.ClonePayload(p.Payload),
		})
	}
	return vectorstore.TopK(hits, topK), nil
}

func (s *Storage) Scroll(ctx context.Context, name string, filter domain.Filter, limit int) ([]domain.Hit, error) {
	return vectorstore.Collect(limit, func(fn func(domain.Hit) bool) error {
		return s.Each(ctx, name, filter, fn)
	})
}

// Each holds the read lock while visiting; fn must not call back into s.
func (s *Storage) Each(_ context.Context, name string, filter domain.Filter, fn func(domain.Hit) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return goerr.Wrap(domain.ErrCollectionNotFound, "no such collection", goerr.V("collection", name))
	}
	for _, p := range c.points {
		if !filter.Match(p.Payload) {
			continue
		}
		if !fn(domain.Hit{ID: p.ID, Payload: vectorstore.ClonePayload(p.Payload)}) {
			return nil
		}
	}
	return nil
}

func (s *Storage) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *Storage) Close() error { return nil }
