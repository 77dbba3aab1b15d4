package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"rag-memory/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("TOP_K", "")
	t.Setenv("SCORE_THRESHOLD", "")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	gt.NoError(t, err)
	gt.Equal(t, cfg.Chunker.MaxLength, 512)
	gt.Equal(t, cfg.Retrieval.TopK, 10)
	gt.Equal(t, cfg.Retrieval.ScoreThreshold, 0.4)
	gt.Equal(t, cfg.Retrieval.FallbackScore, 0.5)
	gt.Equal(t, cfg.Inference.Temperature, 0.7)
	gt.Equal(t, cfg.Inference.TopP, 0.9)
	gt.A(t, cfg.Collections).Length(2)
	gt.A(t, cfg.Retrieval.Entities).Length(0)
	gt.True(t, cfg.Sessions.Transcripts)
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
embedders:
  text:
    type: openai
  clip:
    type: ollama
    ollama:
      model: clip
collections:
  - name: local_memory
    embedder: text
  - name: image_summary_memory
    modality: image
    embedder: clip
vector_store:
  type: qdrant
retrieval:
  entities: [kelly, john]
`
	gt.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("TOP_K", "3")
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("LM_API_URL", "http://lmstudio:1234/v1")

	cfg, err := config.Load(path)
	gt.NoError(t, err)
	gt.Equal(t, cfg.Retrieval.TopK, 3)
	gt.Equal(t, cfg.VectorStore.Qdrant.URL, "http://qdrant:6333")
	gt.Equal(t, cfg.Inference.OpenAI.BaseURL, "http://lmstudio:1234/v1")
	gt.Equal(t, cfg.Embedders["text"].OpenAI.Model, "text-embedding-3-small")
	gt.A(t, cfg.Retrieval.Entities).Length(2)

	text, ok := cfg.Collection("local_memory")
	gt.True(t, ok)
	gt.Equal(t, text.Modality, "text")
	img, ok := cfg.CollectionFor("image")
	gt.True(t, ok)
	gt.Equal(t, img.Name, "image_summary_memory")
}

func TestValidateRejectsUnknownEmbedder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
embedders:
  text: {type: lexical}
collections:
  - name: local_memory
    embedder: missing
`
	gt.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	_, err := config.Load(path)
	gt.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	gt.NoError(t, err)
	cfg.Retrieval.Entities = []string{"Acme"}

	gt.NoError(t, config.Save(path, cfg))
	loaded, err := config.Load(path)
	gt.NoError(t, err)
	gt.Equal(t, loaded.Retrieval.Entities, []string{"Acme"})
	gt.Equal(t, loaded.Sessions.ChatHistoryDir, cfg.Sessions.ChatHistoryDir)
}
