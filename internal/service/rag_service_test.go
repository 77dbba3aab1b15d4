package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"rag-memory/internal/chat"
	"rag-memory/internal/config"
	"rag-memory/internal/domain"
	"rag-memory/internal/ingest"
	"rag-memory/internal/service"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		Embedders: map[string]config.EmbedderConfig{
			"text":  {Type: "lexical", Lexical: &config.LexicalConfig{Dimension: 512}},
			"image": {Type: "lexical", Lexical: &config.LexicalConfig{Dimension: 512}},
		},
		Collections: []config.CollectionConfig{
			{Name: "local_memory", Modality: "text", Embedder: "text"},
			{Name: "image_summary_memory", Modality: "image", Embedder: "image"},
		},
		Chunker:     config.ChunkerConfig{Type: "paragraph", MaxLength: 512},
		VectorStore: config.VectorStoreConfig{Type: "sqlite", SQLite: &config.SQLiteConfig{Path: filepath.Join(dir, "vectors.db")}},
		Retrieval:   config.RetrievalConfig{TopK: 5, ScoreThreshold: 0.1},
		Inference:   config.InferenceConfig{Type: "openai", Temperature: 0.7, TopP: 0.9},
		Sessions: config.SessionConfig{
			Type:           "fs",
			ChatHistoryDir: filepath.Join(dir, "chat_history"),
			ProjectsDir:    filepath.Join(dir, "projects"),
		},
		Ingest: config.IngestConfig{
			ProcessingLog: filepath.Join(dir, "_processing_log.txt"),
			ProcessedDir:  filepath.Join(dir, "processed"),
		},
	}
	return cfg
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	gt.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestIngestSearchReset(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	svc, err := service.New(ctx, cfg)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	doc := writeFile(t, "notes.txt", "The lighthouse keeper logs every passing ship.\n\nStorms arrive from the west in autumn.")
	img := writeFile(t, "harbor.png", "not really an image")

	results := svc.Ingestor().IngestFiles(ctx, []ingest.FileRequest{
		{Path: doc, Tag: domain.TagPrivate, Project: "Coast"},
		{Path: img, Tag: domain.TagBoth, Description: "A lighthouse above a stormy harbor"},
	})
	gt.A(t, results).Length(2)
	gt.NoError(t, results[0].Err)
	gt.NoError(t, results[1].Err)
	gt.Equal(t, results[0].Collection, "local_memory")
	gt.Equal(t, results[1].Collection, "image_summary_memory")

	resp, err := svc.Engine().Retrieve(ctx, domain.Query{Text: "lighthouse keeper ship"})
	gt.NoError(t, err)
	gt.True(t, len(resp.Results) > 0)
	gt.Equal(t, resp.Results[0].Filename, "notes.txt")

	summary, err := svc.InspectCollection(ctx, "local_memory", domain.Filter{}, 10)
	gt.NoError(t, err)
	gt.Equal(t, summary.Info.Dimension, 512)
	gt.A(t, summary.Sample).Length(1)

	gt.NoError(t, svc.ResetCollection(ctx, "local_memory"))
	exists, err := svc.Store().CollectionExists(ctx, "local_memory")
	gt.NoError(t, err)
	gt.False(t, exists)

	err = svc.ResetCollection(ctx, "unknown")
	gt.True(t, errors.Is(err, domain.ErrCollectionNotFound))
}

func TestOrchestratorFromConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "m",
			"choices": []map[string]any{{
				"index": 0, "finish_reason": "stop",
				"message": map[string]any{"role": "assistant", "content": "Nothing stored yet."},
			}},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Inference.OpenAI = &config.OpenAIConfig{BaseURL: srv.URL, Model: "m", TimeoutSecs: 5}
	cfg.Sessions.Transcripts = true
	svc, err := service.New(ctx, cfg)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	o, err := svc.Orchestrator(ctx)
	gt.NoError(t, err)

	sess, err := svc.Sessions().Create(ctx, "")
	gt.NoError(t, err)
	ans, err := o.Respond(ctx, sess, "What do you know?", chat.ProfileNone)
	gt.NoError(t, err)
	gt.Equal(t, ans.Text, "Nothing stored yet.")

	list, err := svc.Sessions().List(ctx)
	gt.NoError(t, err)
	gt.A(t, list).Length(1)
	gt.A(t, list[0].History).Length(2)

	transcript, err := os.ReadFile(filepath.Join(cfg.Sessions.ChatHistoryDir, "chat_"+sess.ID+".log"))
	gt.NoError(t, err)
	gt.S(t, string(transcript)).Contains("] ASSISTANT: Nothing stored yet.")
}

func TestUnknownStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Type = "pinecone"
	_, err := service.New(context.Background(), cfg)
	gt.Error(t, err)
}
