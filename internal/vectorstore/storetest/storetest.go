// Package storetest holds behaviour checks shared by every vector store
// implementation.
package storetest

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"

	"rag-memory/internal/domain"
	"rag-memory/internal/vectorstore"
)

// Run exercises a store built by newStore. Collection names are random so
// the checks can run against a shared server.
func Run(t *testing.T, newStore func(t *testing.T) vectorstore.Storage) {
	t.Run("lifecycle", func(t *testing.T) {
		testLifecycle(t, newStore(t))
	})
	t.Run("query", func(t *testing.T) {
		testQuery(t, newStore(t))
	})
	t.Run("filters", func(t *testing.T) {
		testFilters(t, newStore(t))
	})
	t.Run("scroll", func(t *testing.T) {
		testScroll(t, newStore(t))
	})
	t.Run("upsert replaces", func(t *testing.T) {
		testUpsertReplaces(t, newStore(t))
	})
}

func newCollection(t *testing.T, s vectorstore.Storage, dim int) string {
	t.Helper()
	ctx := context.Background()
	name := "storetest_" + uuid.NewString()
	gt.NoError(t, s.CreateCollection(ctx, name, dim, domain.DistanceCosine))
	t.Cleanup(func() { _ = s.DeleteCollection(context.Background(), name) })
	return name
}

func point(vec []float32, text string, tag domain.Tag, project string) domain.Point {
	rec := domain.MemoryRecord{Text: text, Filename: text + ".txt", Tag: tag, Project: project, Kind: domain.KindText}
	return domain.Point{ID: uuid.NewString(), Vector: vec, Payload: rec.Payload()}
}

func testLifecycle(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	name := "storetest_" + uuid.NewString()

	ok, err := s.CollectionExists(ctx, name)
	gt.NoError(t, err)
	gt.False(t, ok)

	_, err = s.CollectionInfo(ctx, name)
	gt.True(t, errors.Is(err, domain.ErrCollectionNotFound))

	gt.NoError(t, s.CreateCollection(ctx, name, 3, domain.DistanceCosine))
	ok, err = s.CollectionExists(ctx, name)
	gt.NoError(t, err)
	gt.True(t, ok)

	info, err := s.CollectionInfo(ctx, name)
	gt.NoError(t, err)
	gt.Equal(t, info.Dimension, 3)
	gt.Equal(t, info.Distance, domain.DistanceCosine)

	gt.Error(t, s.Upsert(ctx, name, []domain.Point{point([]float32{1, 0}, "short", domain.TagPrivate, "")}))

	gt.NoError(t, s.DeleteCollection(ctx, name))
	ok, err = s.CollectionExists(ctx, name)
	gt.NoError(t, err)
	gt.False(t, ok)
}

func testQuery(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	name := newCollection(t, s, 2)

	gt.NoError(t, s.Upsert(ctx, name, []domain.Point{
		point([]float32{1, 0}, "east", domain.TagPrivate, ""),
		point([]float32{0.6, 0.8}, "north-east", domain.TagPrivate, ""),
		point([]float32{0, 1}, "north", domain.TagPrivate, ""),
	}))

	hits, err := s.Query(ctx, name, []float32{1, 0}, 2, domain.Filter{})
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)
	gt.Equal(t, hits[0].Text(), "east")
	gt.Equal(t, hits[1].Text(), "north-east")
	gt.True(t, hits[0].Score > hits[1].Score)
	gt.True(t, hits[0].Score > 0.99)

	again, err := s.Query(ctx, name, []float32{1, 0}, 2, domain.Filter{})
	gt.NoError(t, err)
	gt.Equal(t, again[0].ID, hits[0].ID)
	gt.Equal(t, again[1].ID, hits[1].ID)
}

func testFilters(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	name := newCollection(t, s, 2)

	gt.NoError(t, s.Upsert(ctx, name, []domain.Point{
		point([]float32{1, 0}, "private", domain.TagPrivate, ""),
		point([]float32{0.9, 0.1}, "business-acme", domain.TagBusiness, "Acme"),
		point([]float32{0.8, 0.2}, "both-acme", domain.TagBoth, "Acme"),
		point([]float32{0.7, 0.3}, "business-other", domain.TagBusiness, "Other"),
	}))

	texts := func(hits []domain.Hit) []string {
		var out []string
		for _, h := range hits {
			out = append(out, h.Text())
		}
		sort.Strings(out)
		return out
	}

	hits, err := s.Query(ctx, name, []float32{1, 0}, 10, domain.Filter{Project: "Acme"})
	gt.NoError(t, err)
	gt.Equal(t, texts(hits), []string{"both-acme", "business-acme"})

	hits, err = s.Query(ctx, name, []float32{1, 0}, 10, domain.Filter{Tags: []domain.Tag{domain.TagBusiness}})
	gt.NoError(t, err)
	gt.Equal(t, texts(hits), []string{"business-acme", "business-other"})

	hits, err = s.Query(ctx, name, []float32{1, 0}, 10, domain.Filter{
		Tags:    []domain.Tag{domain.TagBusiness, domain.TagBoth},
		Project: "Acme",
	})
	gt.NoError(t, err)
	gt.Equal(t, texts(hits), []string{"both-acme", "business-acme"})

	hits, err = s.Query(ctx, name, []float32{1, 0}, 10, domain.Filter{Project: "Nobody"})
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}

func testScroll(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	name := newCollection(t, s, 2)

	var points []domain.Point
	for i := 0; i < 5; i++ {
		tag := domain.TagPrivate
		if i%2 == 0 {
			tag = domain.TagBusiness
		}
		points = append(points, point([]float32{float32(i + 1), 1}, "p", tag, ""))
	}
	gt.NoError(t, s.Upsert(ctx, name, points))

	all, err := s.Scroll(ctx, name, domain.Filter{}, 0)
	gt.NoError(t, err)
	gt.A(t, all).Length(5)

	limited, err := s.Scroll(ctx, name, domain.Filter{}, 2)
	gt.NoError(t, err)
	gt.A(t, limited).Length(2)

	business, err := s.Scroll(ctx, name, domain.Filter{Tags: []domain.Tag{domain.TagBusiness}}, 0)
	gt.NoError(t, err)
	gt.A(t, business).Length(3)

	visited := 0
	gt.NoError(t, s.Each(ctx, name, domain.Filter{}, func(domain.Hit) bool {
		visited++
		return visited < 3
	}))
	gt.Equal(t, visited, 3)

	err = s.Each(ctx, "storetest_missing_"+uuid.NewString(), domain.Filter{}, func(domain.Hit) bool { return true })
	gt.True(t, errors.Is(err, domain.ErrCollectionNotFound))
}

func testUpsertReplaces(t *testing.T, s vectorstore.Storage) {
	ctx := context.Background()
	name := newCollection(t, s, 2)

	p := point([]float32{1, 0}, "v1", domain.TagPrivate, "")
	gt.NoError(t, s.Upsert(ctx, name, []domain.Point{p}))
	p.Payload[domain.PayloadChunk] = "v2"
	gt.NoError(t, s.Upsert(ctx, name, []domain.Point{p}))

	all, err := s.Scroll(ctx, name, domain.Filter{}, 0)
	gt.NoError(t, err)
	gt.A(t, all).Length(1)
	gt.Equal(t, all[0].Text(), "v2")
}
