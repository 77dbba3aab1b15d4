// Package vectorstore defines the similarity-search backend used for memory
// records and the scoring helpers shared by the embedded implementations.
package vectorstore

import (
	"context"
	"math"
	"sort"

	"rag-memory/internal/domain"
)

// Storage persists vectors in named collections and supports similarity
// search. A collection's dimension and distance are fixed at creation.
type Storage interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error
	// CollectionInfo returns domain.ErrCollectionNotFound for unknown names.
	CollectionInfo(ctx context.Context, name string) (domain.CollectionInfo, error)
	Upsert(ctx context.Context, collection string, points []domain.Point) error
	// Query returns at most topK hits ordered by descending score.
	Query(ctx context.Context, collection string, vector []float32, topK int, filter domain.Filter) ([]domain.Hit, error)
	// Scroll returns stored points matching filter in storage order. A
	// limit <= 0 means no limit.
	Scroll(ctx context.Context, collection string, filter domain.Filter, limit int) ([]domain.Hit, error)
	// Each visits points matching filter in storage order until fn returns
	// false, fetching them incrementally.
	Each(ctx context.Context, collection string, filter domain.Filter, fn func(domain.Hit) bool) error
	DeleteCollection(ctx context.Context, name string) error
	Close() error
}

// Collect gathers up to limit hits from an Each-style visitor. A limit <= 0
// means no limit.
func Collect(limit int, each func(fn func(domain.Hit) bool) error) ([]domain.Hit, error) {
	var hits []domain.Hit
	err := each(func(h domain.Hit) bool {
		hits = append(hits, h)
		return limit <= 0 || len(hits) < limit
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// Score computes the similarity of a and b under distance. Higher is more
// similar for every metric; Euclid is mapped to 1/(1+d).
func Score(distance domain.Distance, a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	switch distance {
	case domain.DistanceDot:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return dot
	case domain.DistanceEuclid:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
}

// TopK sorts hits by descending score, keeping the input order for equal
// scores, and truncates to k.
func TopK(hits []domain.Hit, k int) []domain.Hit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// ClonePayload copies a payload so callers cannot mutate stored state.
func ClonePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
