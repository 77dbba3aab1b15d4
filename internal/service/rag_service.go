// Package service wires every component from an AppConfig.
package service

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/chat"
	"rag-memory/internal/chunker"
	"rag-memory/internal/config"
	"rag-memory/internal/domain"
	"rag-memory/internal/embedding"
	embgemini "rag-memory/internal/embedding/gemini"
	"rag-memory/internal/extract"
	"rag-memory/internal/inference"
	"rag-memory/internal/inference/gemini"
	"rag-memory/internal/ingest"
	"rag-memory/internal/logging"
	"rag-memory/internal/retrieval"
	"rag-memory/internal/session"
	"rag-memory/internal/session/fsstore"
	"rag-memory/internal/session/gcsstore"
	"rag-memory/internal/session/s3store"
	"rag-memory/internal/summarizer"
	"rag-memory/internal/vectorstore"
	"rag-memory/internal/vectorstore/memory"
	"rag-memory/internal/vectorstore/qdrant"
	"rag-memory/internal/vectorstore/sqlite"
)

// RAGService owns the long-lived clients. Inference is built on first use so
// ingestion and search work without a chat backend.
type RAGService struct {
	cfg       *config.AppConfig
	store     vectorstore.Storage
	embedders map[string]domain.Embedder
	writer    *ingest.Writer
	ingestor  *ingest.Ingestor
	engine    *retrieval.Engine
	sessions  *session.Store
	closers   []io.Closer

	once         sync.Once
	orchestrator *chat.Orchestrator
	orchErr      error
}

func New(ctx context.Context, cfg *config.AppConfig) (*RAGService, error) {
	s := &RAGService{cfg: cfg}
	if err := s.build(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *RAGService) build(ctx context.Context) error {
	distance, err := domain.ParseDistance(s.cfg.VectorStore.Distance)
	if err != nil {
		return err
	}
	store, err := NewStorage(s.cfg.VectorStore)
	if err != nil {
		return err
	}
	s.store = store
	s.closers = append(s.closers, store)

	s.embedders = make(map[string]domain.Embedder, len(s.cfg.Embedders))
	byCollection := make(map[string]domain.Embedder, len(s.cfg.Collections))
	var targets []retrieval.Target
	for _, cc := range s.cfg.Collections {
		emb, ok := s.embedders[cc.Embedder]
		if !ok {
			ec, found := s.cfg.Embedders[cc.Embedder]
			if !found {
				return goerr.New("collection references unknown embedder", goerr.V("collection", cc.Name), goerr.V("embedder", cc.Embedder))
			}
			emb, err = embedding.New(ctx, cc.Embedder, ec)
			if err != nil {
				return err
			}
			s.embedders[cc.Embedder] = emb
		}
		byCollection[cc.Name] = emb
		targets = append(targets, retrieval.Target{
			Collection: cc.Name,
			Modality:   domain.Kind(cc.Modality),
			Embedder:   emb,
		})
	}
	s.writer = ingest.NewWriter(store, distance, byCollection)

	splitter, err := s.newSplitter(ctx)
	if err != nil {
		return err
	}
	var plog *ingest.ProcessingLog
	if s.cfg.Ingest.ProcessingLog != "" {
		plog = ingest.NewProcessingLog(s.cfg.Ingest.ProcessingLog)
	}
	textColl, _ := s.cfg.CollectionFor(string(domain.KindText))
	imageColl, _ := s.cfg.CollectionFor(string(domain.KindImage))
	s.ingestor = ingest.NewIngestor(ingest.Config{
		Writer:          s.writer,
		Registry:        extract.NewRegistry(),
		Splitter:        splitter,
		Summarizer:      summarizer.NewFrequencySummarizer(),
		Log:             plog,
		ProcessedDir:    s.cfg.Ingest.ProcessedDir,
		TextCollection:  textColl.Name,
		ImageCollection: imageColl.Name,
	})

	rc := s.cfg.Retrieval
	s.engine = retrieval.New(store, retrieval.Config{
		Targets:       targets,
		TopK:          rc.TopK,
		Threshold:     rc.ScoreThreshold,
		Entities:      rc.Entities,
		FallbackScore: rc.FallbackScore,
		FallbackLimit: rc.FallbackLimit,
	})

	backend, err := s.newSessionBackend(ctx)
	if err != nil {
		return err
	}
	s.sessions = session.NewStore(backend)

	logging.From(ctx).Debug("service ready",
		"vector_store", s.cfg.VectorStore.Type,
		"collections", len(s.cfg.Collections),
		"sessions", s.cfg.Sessions.Type)
	return nil
}

// NewStorage opens the configured vector store.
func NewStorage(cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.NewStorage(), nil
	case "sqlite":
		path := ":memory:"
		if cfg.SQLite != nil && cfg.SQLite.Path != "" {
			path = cfg.SQLite.Path
		}
		return sqlite.NewStorage(path)
	case "qdrant":
		qc := cfg.Qdrant
		if qc == nil {
			return nil, goerr.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:     qc.URL,
			APIKey:  qc.APIKey,
			Timeout: time.Duration(qc.TimeoutSecs) * time.Second,
		}), nil
	}
	return nil, goerr.New("unknown vector store", goerr.V("type", cfg.Type))
}

func (s *RAGService) newSplitter(ctx context.Context) (chunker.Splitter, error) {
	cc := s.cfg.Chunker
	switch cc.Type {
	case "", "paragraph":
		return chunker.NewParagraphChunker(cc.MaxLength), nil
	case "token":
		var counter domain.TokenCounter
		switch cc.Tokenizer {
		case "", "words":
			counter = chunker.NewWordCounter()
		case "gemini":
			gc := s.cfg.Inference.Gemini
			if gc == nil {
				gc = &config.GeminiConfig{}
			}
			var key string
			if gc.APIKeyEnv != "" {
				key = os.Getenv(gc.APIKeyEnv)
			}
			client, err := gemini.New(ctx, embgemini.Config{
				APIKey:   key,
				Project:  gc.Project,
				Location: gc.Location,
				Model:    gc.Model,
			})
			if err != nil {
				return nil, err
			}
			counter = gemini.NewTokenCounter(client)
		default:
			return nil, goerr.New("unknown tokenizer", goerr.V("tokenizer", cc.Tokenizer))
		}
		return chunker.NewTokenChunker(counter, cc.TokenLimit), nil
	}
	return nil, goerr.New("unknown chunker", goerr.V("type", cc.Type))
}

func (s *RAGService) newSessionBackend(ctx context.Context) (session.Backend, error) {
	sc := s.cfg.Sessions
	switch sc.Type {
	case "", "fs":
		return fsstore.New(sc.ChatHistoryDir, sc.ProjectsDir)
	case "s3":
		if sc.S3 == nil {
			return nil, goerr.New("s3 session config missing")
		}
		return s3store.New(ctx, s3store.Config{
			Endpoint:  sc.S3.Endpoint,
			Bucket:    sc.S3.Bucket,
			AccessKey: os.Getenv(sc.S3.AccessKeyEnv),
			SecretKey: os.Getenv(sc.S3.SecretKeyEnv),
			UseSSL:    sc.S3.UseSSL,
		})
	case "gcs":
		if sc.GCS == nil {
			return nil, goerr.New("gcs session config missing")
		}
		b, err := gcsstore.New(ctx, sc.GCS.Bucket)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, b)
		return b, nil
	}
	return nil, goerr.New("unknown session store", goerr.V("type", sc.Type))
}

func (s *RAGService) Config() *config.AppConfig { return s.cfg }

func (s *RAGService) Store() vectorstore.Storage { return s.store }

func (s *RAGService) Ingestor() *ingest.Ingestor { return s.ingestor }

func (s *RAGService) Engine() *retrieval.Engine { return s.engine }

func (s *RAGService) Sessions() *session.Store { return s.sessions }

// Orchestrator returns the dialogue orchestrator, connecting to the
// inference backend on first call.
func (s *RAGService) Orchestrator(ctx context.Context) (*chat.Orchestrator, error) {
	s.once.Do(func() {
		ic := s.cfg.Inference
		client, err := inference.New(ctx, ic)
		if err != nil {
			s.orchErr = err
			return
		}
		cc := chat.Config{
			Retriever: s.engine,
			Inference: client,
			Sessions:  s.sessions,
			Params:    domain.ChatParams{Temperature: ic.Temperature, TopP: ic.TopP},
			TopK:      s.cfg.Retrieval.TopK,
			Service:   inference.ServiceName(ic.Type),
			Model:     client.Model(),
		}
		if sc := s.cfg.Sessions; sc.Transcripts && sc.ChatHistoryDir != "" {
			cc.Transcript = chat.NewTranscript(sc.ChatHistoryDir, sc.ProjectsDir)
		}
		s.orchestrator = chat.New(cc)
	})
	return s.orchestrator, s.orchErr
}

// ResetCollection drops a configured collection. It is recreated on the
// next ingestion.
func (s *RAGService) ResetCollection(ctx context.Context, name string) error {
	if _, ok := s.cfg.Collection(name); !ok {
		return goerr.Wrap(domain.ErrCollectionNotFound, "collection is not configured", goerr.V("name", name))
	}
	return s.store.DeleteCollection(ctx, name)
}

// CollectionSummary describes a collection and a sample of its records.
type CollectionSummary struct {
	Info   domain.CollectionInfo
	Sample []domain.Hit
}

func (s *RAGService) InspectCollection(ctx context.Context, name string, filter domain.Filter, limit int) (*CollectionSummary, error) {
	info, err := s.store.CollectionInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	hits, err := s.store.Scroll(ctx, name, filter, limit)
	if err != nil {
		return nil, err
	}
	return &CollectionSummary{Info: info, Sample: hits}, nil
}

func (s *RAGService) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
