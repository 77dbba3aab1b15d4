package retrieval_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/m-mizutani/gt"

	"rag-memory/internal/domain"
	"rag-memory/internal/retrieval"
	"rag-memory/internal/vectorstore/memory"
)

type fakeEmbedder struct {
	name    string
	vectors map[string][]float32
	calls   int
	err     error
}

func (f *fakeEmbedder) Name() string { return f.name }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

// unit returns a 2-d vector whose cosine with (1, 0) is score.
func unit(score float64) []float32 {
	return []float32{float32(score), float32(math.Sqrt(1 - score*score))}
}

func put(t *testing.T, s *memory.Storage, collection string, dim int, id string, vec []float32, rec domain.MemoryRecord) {
	t.Helper()
	ctx := context.Background()
	gt.NoError(t, s.CreateCollection(ctx, collection, dim, domain.DistanceCosine))
	gt.NoError(t, s.Upsert(ctx, collection, []domain.Point{{ID: id, Vector: vec, Payload: rec.Payload()}}))
}

func textRec(text, filename string, tag domain.Tag, project string) domain.MemoryRecord {
	return domain.MemoryRecord{Text: text, Filename: filename, Tag: tag, Project: project, Kind: domain.KindText}
}

func newEngine(s *memory.Storage, cfg retrieval.Config, embedders ...*fakeEmbedder) *retrieval.Engine {
	if len(cfg.Targets) == 0 {
		cfg.Targets = []retrieval.Target{
			{Collection: "local_memory", Modality: domain.KindText, Embedder: embedders[0]},
			{Collection: "image_summary_memory", Modality: domain.KindImage, Embedder: embedders[len(embedders)-1]},
		}
	}
	return retrieval.New(s, cfg)
}

func TestThresholdGate(t *testing.T) {
	s := memory.NewStorage()
	put(t, s, "local_memory", 2, "hi", unit(0.9), textRec("relevant", "a.txt", domain.TagPrivate, ""))
	put(t, s, "local_memory", 2, "lo", unit(0.3), textRec("noise", "b.txt", domain.TagPrivate, ""))

	emb := &fakeEmbedder{name: "text", vectors: map[string][]float32{"question": {1, 0}}}
	e := newEngine(s, retrieval.Config{Threshold: 0.4}, emb)

	resp, err := e.Retrieve(context.Background(), domain.Query{Text: "question"})
	gt.NoError(t, err)
	gt.A(t, resp.Results).Length(1)
	gt.Equal(t, resp.Results[0].Text, "relevant")
	gt.True(t, math.Abs(resp.Results[0].Score-0.9) < 1e-6)
	gt.Equal(t, resp.Results[0].Collection, "local_memory")
	gt.A(t, resp.Failures).Length(0)
}

func TestFusionAcrossModalities(t *testing.T) {
	s := memory.NewStorage()
	ctx := context.Background()
	gt.NoError(t, s.CreateCollection(ctx, "local_memory", 2, domain.DistanceCosine))
	gt.NoError(t, s.Upsert(ctx, "local_memory", []domain.Point{
		{ID: "t1", Vector: unit(0.7), Payload: textRec("text seventy", "t.txt", domain.TagPrivate, "").Payload()},
		{ID: "t2", Vector: unit(1), Payload: textRec("text hundred", "t.txt", domain.TagPrivate, "").Payload()},
	}))
	img := domain.MemoryRecord{Text: "image hundred", Filename: "i.png", Tag: domain.TagPrivate, Kind: domain.KindImage}
	put(t, s, "image_summary_memory", 3, "i1", []float32{0, 0, 1}, img)
	img2 := domain.MemoryRecord{Text: "image eighty", Filename: "j.png", Tag: domain.TagPrivate, Kind: domain.KindImage}
	gt.NoError(t, s.Upsert(ctx, "image_summary_memory", []domain.Point{
		{ID: "i2", Vector: []float32{0, 0.6, 0.8}, Payload: img2.Payload()},
	}))

	textEmb := &fakeEmbedder{name: "text", vectors: map[string][]float32{"q": {1, 0}}}
	imageEmb := &fakeEmbedder{name: "image", vectors: map[string][]float32{"q": {0, 0, 1}}}
	e := newEngine(s, retrieval.Config{Threshold: 0.4}, textEmb, imageEmb)

	resp, err := e.Retrieve(ctx, domain.Query{Text: "q"})
	gt.NoError(t, err)
	var texts []string
	for _, r := range resp.Results {
		texts = append(texts, r.Text)
	}
	// equal scores keep collection order: text before image
	gt.Equal(t, texts, []string{"text hundred", "image hundred", "image eighty", "text seventy"})
	for i := 1; i < len(resp.Results); i++ {
		gt.True(t, resp.Results[i-1].Score >= resp.Results[i].Score)
	}

	again, err := e.Retrieve(ctx, domain.Query{Text: "q"})
	gt.NoError(t, err)
	gt.Equal(t, again.Results, resp.Results)
}

func TestEmbedsOncePerDistinctEmbedder(t *testing.T) {
	s := memory.NewStorage()
	emb := &fakeEmbedder{name: "shared", vectors: map[string][]float32{"q": {1, 0}}}
	e := newEngine(s, retrieval.Config{}, emb)

	_, err := e.Retrieve(context.Background(), domain.Query{Text: "q"})
	gt.NoError(t, err)
	gt.Equal(t, emb.calls, 1)
}

func TestProjectAndTagScoping(t *testing.T) {
	s := memory.NewStorage()
	ctx := context.Background()
	gt.NoError(t, s.CreateCollection(ctx, "local_memory", 2, domain.DistanceCosine))
	gt.NoError(t, s.Upsert(ctx, "local_memory", []domain.Point{
		{ID: "a", Vector: unit(0.95), Payload: textRec("acme plan", "a.txt", domain.TagBusiness, "Acme").Payload()},
		{ID: "b", Vector: unit(0.9), Payload: textRec("other plan", "b.txt", domain.TagBusiness, "Other").Payload()},
		{ID: "c", Vector: unit(0.85), Payload: textRec("acme diary", "c.txt", domain.TagPrivate, "Acme").Payload()},
	}))
	emb := &fakeEmbedder{name: "text", vectors: map[string][]float32{"plan": {1, 0}}}
	e := newEngine(s, retrieval.Config{Threshold: 0.4}, emb)

	resp, err := e.Retrieve(ctx, domain.Query{Text: "plan", Filter: domain.Filter{Project: "Other"}})
	gt.NoError(t, err)
	gt.A(t, resp.Results).Length(1)
	gt.Equal(t, resp.Results[0].Project, "Other")

	resp, err = e.Retrieve(ctx, domain.Query{Text: "plan", Filter: domain.Filter{
		Project: "Acme",
		Tags:    []domain.Tag{domain.TagBusiness, domain.TagBoth},
	}})
	gt.NoError(t, err)
	gt.A(t, resp.Results).Length(1)
	gt.Equal(t, resp.Results[0].Text, "acme plan")
}

func TestEntityFallback(t *testing.T) {
	newStore := func(t *testing.T) *memory.Storage {
		s := memory.NewStorage()
		ctx := context.Background()
		gt.NoError(t, s.CreateCollection(ctx, "local_memory", 2, domain.DistanceCosine))
		gt.NoError(t, s.Upsert(ctx, "local_memory", []domain.Point{
			{ID: "k", Vector: unit(0.1), Payload: textRec("Kelly approved the budget.", "notes.txt", domain.TagBusiness, "").Payload()},
			{ID: "s", Vector: unit(0.1), Payload: textRec("Skelly is a different word.", "other.txt", domain.TagBusiness, "").Payload()},
			{ID: "x", Vector: unit(0.8), Payload: textRec("Budget approvals happen monthly.", "policy.txt", domain.TagBusiness, "").Payload()},
		}))
		return s
	}
	vectors := map[string][]float32{
		"what did kelly approve": {1, 0},
		"what was approved":      {1, 0},
	}

	t.Run("appends entity matches at the fallback score", func(t *testing.T) {
		emb := &fakeEmbedder{name: "text", vectors: vectors}
		e := newEngine(newStore(t), retrieval.Config{Threshold: 0.4, Entities: []string{"Kelly", "John"}}, emb)

		resp, err := e.Retrieve(context.Background(), domain.Query{Text: "what did kelly approve"})
		gt.NoError(t, err)
		gt.A(t, resp.Results).Length(2)
		gt.Equal(t, resp.Results[0].Filename, "policy.txt")
		gt.False(t, resp.Results[0].Fallback)
		gt.Equal(t, resp.Results[1].Filename, "notes.txt")
		gt.Equal(t, resp.Results[1].Score, 0.5)
		gt.True(t, resp.Results[1].Fallback)
	})

	t.Run("not triggered without an entity in the query", func(t *testing.T) {
		emb := &fakeEmbedder{name: "text", vectors: vectors}
		e := newEngine(newStore(t), retrieval.Config{Threshold: 0.4, Entities: []string{"Kelly"}}, emb)

		resp, err := e.Retrieve(context.Background(), domain.Query{Text: "what was approved"})
		gt.NoError(t, err)
		gt.A(t, resp.Results).Length(1)
	})

	t.Run("never returns scores below the threshold", func(t *testing.T) {
		emb := &fakeEmbedder{name: "text", vectors: vectors}
		e := newEngine(newStore(t), retrieval.Config{Threshold: 0.6, Entities: []string{"Kelly"}}, emb)

		resp, err := e.Retrieve(context.Background(), domain.Query{Text: "what did kelly approve"})
		gt.NoError(t, err)
		for _, r := range resp.Results {
			gt.True(t, r.Score >= 0.6)
		}
		gt.A(t, resp.Results).Length(1)
	})
}

func TestFailuresAreCollected(t *testing.T) {
	s := memory.NewStorage()
	put(t, s, "local_memory", 2, "a", unit(0.9), textRec("kept", "a.txt", domain.TagPrivate, ""))

	textEmb := &fakeEmbedder{name: "text", vectors: map[string][]float32{"q": {1, 0}}}
	imageEmb := &fakeEmbedder{name: "image", err: errors.New("offline")}
	e := newEngine(s, retrieval.Config{Threshold: 0.4}, textEmb, imageEmb)

	resp, err := e.Retrieve(context.Background(), domain.Query{Text: "q"})
	gt.NoError(t, err)
	gt.A(t, resp.Results).Length(1)
	gt.A(t, resp.Failures).Length(1)
	gt.Equal(t, resp.Failures[0].Collection, "image_summary_memory")
}

func TestRetrieveValidation(t *testing.T) {
	e := newEngine(memory.NewStorage(), retrieval.Config{}, &fakeEmbedder{name: "text"})

	_, err := e.Retrieve(context.Background(), domain.Query{Text: "   "})
	gt.True(t, errors.Is(err, domain.ErrValidation))

	_, err = e.Retrieve(context.Background(), domain.Query{Text: "q", Filter: domain.Filter{Tags: []domain.Tag{"Z"}}})
	gt.True(t, errors.Is(err, domain.ErrValidation))
}

type countingStore struct {
	*memory.Storage
	visited int
}

func (c *countingStore) Each(ctx context.Context, collection string, filter domain.Filter, fn func(domain.Hit) bool) error {
	return c.Storage.Each(ctx, collection, filter, func(h domain.Hit) bool {
		c.visited++
		return fn(h)
	})
}

func TestEntityFallbackStopsAtLimit(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()
	gt.NoError(t, s.CreateCollection(ctx, "local_memory", 2, domain.DistanceCosine))
	var points []domain.Point
	for i, text := range []string{
		"Kelly signed the lease.",
		"Kelly booked the venue.",
		"Kelly hired a designer.",
		"Kelly moved to Lisbon.",
		"Kelly renewed the contract.",
	} {
		filename := string(rune('a'+i)) + ".txt"
		points = append(points, domain.Point{ID: filename, Vector: unit(0.1), Payload: textRec(text, filename, domain.TagPrivate, "").Payload()})
	}
	gt.NoError(t, s.Upsert(ctx, "local_memory", points))

	store := &countingStore{Storage: s}
	emb := &fakeEmbedder{name: "text", vectors: map[string][]float32{"what did kelly do": {1, 0}}}
	e := retrieval.New(store, retrieval.Config{
		Targets:       []retrieval.Target{{Collection: "local_memory", Modality: domain.KindText, Embedder: emb}},
		Threshold:     0.4,
		Entities:      []string{"Kelly"},
		FallbackLimit: 2,
	})

	resp, err := e.Retrieve(ctx, domain.Query{Text: "what did kelly do"})
	gt.NoError(t, err)
	gt.A(t, resp.Results).Length(2)
	gt.Equal(t, resp.Results[0].Filename, "a.txt")
	gt.Equal(t, resp.Results[1].Filename, "b.txt")
	gt.True(t, resp.Results[1].Fallback)
	gt.Equal(t, store.visited, 2)
}
