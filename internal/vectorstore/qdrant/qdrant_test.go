package qdrant_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/m-mizutani/gt"

	"rag-memory/internal/domain"
	"rag-memory/internal/vectorstore"
	"rag-memory/internal/vectorstore/qdrant"
	"rag-memory/internal/vectorstore/storetest"
)

func writeCollectionInfo(w http.ResponseWriter, distance string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"result": map[string]any{"config": map[string]any{"params": map[string]any{
			"vectors": map[string]any{"size": 2, "distance": distance},
		}}},
	})
}

func TestQueryRendersMustFilter(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeCollectionInfo(w, "Cosine")
			return
		}
		gt.Equal(t, r.URL.Path, "/collections/local_memory/points/search")
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"id": "a1", "score": 0.91, "payload": map[string]any{"chunk": "hello", "tag": "B"}},
				{"id": 7, "score": 0.42, "payload": map[string]any{"summary": "a cat", "tag": "PB"}},
			},
		})
	}))
	defer srv.Close()

	s := qdrant.NewStorage(qdrant.Config{URL: srv.URL})
	hits, err := s.Query(context.Background(), "local_memory", []float32{1, 0}, 5, domain.Filter{
		Tags:    []domain.Tag{domain.TagBusiness, domain.TagBoth},
		Project: "Acme",
	})
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)
	gt.Equal(t, hits[0].ID, "a1")
	gt.Equal(t, hits[1].ID, "7")
	gt.Equal(t, hits[1].Text(), "a cat")

	must := got["filter"].(map[string]any)["must"].([]any)
	gt.A(t, must).Length(2)
	tagCond := must[0].(map[string]any)
	gt.Equal(t, tagCond["key"], any("tag"))
	gt.A(t, tagCond["match"].(map[string]any)["any"].([]any)).Length(2)
	projCond := must[1].(map[string]any)
	gt.Equal(t, projCond["match"].(map[string]any)["value"], any("Acme"))
}

func TestQueryMapsEuclidDistance(t *testing.T) {
	infoCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			infoCalls++
			writeCollectionInfo(w, "Euclid")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"id": "near", "score": 0.0, "payload": map[string]any{}},
				{"id": "far", "score": 3.0, "payload": map[string]any{}},
			},
		})
	}))
	defer srv.Close()

	s := qdrant.NewStorage(qdrant.Config{URL: srv.URL})
	ctx := context.Background()
	hits, err := s.Query(ctx, "image_memory", []float32{1, 0}, 5, domain.Filter{})
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)
	gt.Equal(t, hits[0].Score, 1.0)
	gt.Equal(t, hits[1].Score, 0.25)

	_, err = s.Query(ctx, "image_memory", []float32{1, 0}, 5, domain.Filter{})
	gt.NoError(t, err)
	gt.Equal(t, infoCalls, 1)
}

func TestQueryUnknownCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	s := qdrant.NewStorage(qdrant.Config{URL: srv.URL})
	_, err := s.Query(context.Background(), "missing", []float32{1}, 5, domain.Filter{})
	gt.True(t, errors.Is(err, domain.ErrCollectionNotFound))
}

func TestCollectionInfoNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	s := qdrant.NewStorage(qdrant.Config{URL: srv.URL})
	_, err := s.CollectionInfo(context.Background(), "missing")
	gt.True(t, errors.Is(err, domain.ErrCollectionNotFound))

	ok, err := s.CollectionExists(context.Background(), "missing")
	gt.NoError(t, err)
	gt.False(t, ok)

	gt.NoError(t, s.DeleteCollection(context.Background(), "missing"))
}

func TestScrollFollowsPages(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req map[string]any
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var next any = "p2"
		id := "first"
		if req["offset"] != nil {
			next, id = nil, "second"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"points":           []map[string]any{{"id": id, "payload": map[string]any{"chunk": id}}},
				"next_page_offset": next,
			},
		})
	}))
	defer srv.Close()

	s := qdrant.NewStorage(qdrant.Config{URL: srv.URL})
	hits, err := s.Scroll(context.Background(), "local_memory", domain.Filter{}, 0)
	gt.NoError(t, err)
	gt.Equal(t, calls, 2)
	gt.A(t, hits).Length(2)
	gt.Equal(t, hits[1].Text(), "second")
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := qdrant.NewStorage(qdrant.Config{URL: srv.URL})
	err := s.Upsert(context.Background(), "c", []domain.Point{{ID: "x", Vector: []float32{1}}})
	gt.True(t, errors.Is(err, domain.ErrTransport))
}

func TestConformance(t *testing.T) {
	u, ok := os.LookupEnv("TEST_QDRANT_URL")
	if !ok {
		t.Skip("TEST_QDRANT_URL is not set")
	}
	storetest.Run(t, func(t *testing.T) vectorstore.Storage {
		return qdrant.NewStorage(qdrant.Config{URL: u})
	})
}
