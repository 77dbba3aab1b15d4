package ingest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"rag-memory/internal/domain"
	"rag-memory/internal/embedding/lexical"
	"rag-memory/internal/ingest"
	"rag-memory/internal/vectorstore/memory"
)

type failingEmbedder struct{}

func (failingEmbedder) Name() string { return "failing" }
func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("service down")
}

func newWriter(t *testing.T) (*ingest.Writer, *memory.Storage) {
	t.Helper()
	store := memory.NewStorage()
	w := ingest.NewWriter(store, domain.DistanceCosine, map[string]domain.Embedder{
		"local_memory":         lexical.NewEmbedder(64),
		"image_summary_memory": lexical.NewEmbedder(32),
		"broken":               failingEmbedder{},
	})
	return w, store
}

func TestWriteCreatesCollectionAndPayload(t *testing.T) {
	ctx := context.Background()
	w, store := newWriter(t)

	n, err := w.Write(ctx, ingest.Source{
		Filename: "plan.txt",
		Tag:      domain.TagBusiness,
		Project:  "Acme",
		Units:    []string{"first chunk", "second chunk"},
	}, "local_memory")
	gt.NoError(t, err)
	gt.Equal(t, n, 2)

	info, err := store.CollectionInfo(ctx, "local_memory")
	gt.NoError(t, err)
	gt.Equal(t, info.Dimension, 64)
	gt.Equal(t, info.Distance, domain.DistanceCosine)

	hits, err := store.Scroll(ctx, "local_memory", domain.Filter{}, 0)
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)
	gt.Equal(t, hits[1].Payload[domain.PayloadChunk], any("second chunk"))
	gt.Equal(t, hits[1].Payload[domain.PayloadChunkIndex], any(1))
	gt.Equal(t, hits[1].Payload[domain.PayloadTag], any("B"))
	gt.Equal(t, hits[1].Payload[domain.PayloadProject], any("Acme"))
	gt.Equal(t, hits[1].ID, ingest.RecordID("local_memory", "plan.txt", 1, "second chunk"))
}

func TestWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	w, store := newWriter(t)
	src := ingest.Source{Filename: "a.md", Tag: domain.TagPrivate, Units: []string{"x y z"}}

	_, err := w.Write(ctx, src, "local_memory")
	gt.NoError(t, err)
	_, err = w.Write(ctx, src, "local_memory")
	gt.NoError(t, err)

	hits, err := store.Scroll(ctx, "local_memory", domain.Filter{}, 0)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
}

func TestWriteImageUsesSummaryKey(t *testing.T) {
	ctx := context.Background()
	w, store := newWriter(t)

	_, err := w.Write(ctx, ingest.Source{
		Filename: "cat.png", Tag: domain.TagPrivate, Kind: domain.KindImage,
		Units: []string{"a cat on a sofa"},
	}, "image_summary_memory")
	gt.NoError(t, err)

	hits, err := store.Scroll(ctx, "image_summary_memory", domain.Filter{}, 0)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].Payload[domain.PayloadSummary], any("a cat on a sofa"))
	gt.Nil(t, hits[0].Payload[domain.PayloadChunk])
	gt.Nil(t, hits[0].Payload[domain.PayloadProject])
}

func TestWriteDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	w, store := newWriter(t)
	gt.NoError(t, store.CreateCollection(ctx, "local_memory", 128, domain.DistanceCosine))

	_, err := w.Write(ctx, ingest.Source{Filename: "a.txt", Tag: domain.TagPrivate, Units: []string{"text"}}, "local_memory")
	gt.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	hits, err := store.Scroll(ctx, "local_memory", domain.Filter{}, 0)
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}

func TestWriteRejectsBeforeSideEffects(t *testing.T) {
	ctx := context.Background()
	w, store := newWriter(t)

	_, err := w.Write(ctx, ingest.Source{Filename: "a.txt", Tag: "X", Units: []string{"text"}}, "local_memory")
	gt.True(t, errors.Is(err, domain.ErrValidation))

	_, err = w.Write(ctx, ingest.Source{Filename: "a.txt", Tag: domain.TagBoth, Units: []string{"text"}}, "nope")
	gt.True(t, errors.Is(err, domain.ErrValidation))

	_, err = w.Write(ctx, ingest.Source{Filename: "a.txt", Tag: domain.TagBoth, Units: []string{"text"}}, "broken")
	gt.Error(t, err)

	for _, name := range []string{"local_memory", "broken"} {
		ok, err := store.CollectionExists(ctx, name)
		gt.NoError(t, err)
		gt.False(t, ok)
	}
}
