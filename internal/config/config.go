package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// OpenAIConfig holds configuration for OpenAI-compatible endpoints (OpenAI,
// LM Studio, vLLM, ...).
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
	BatchSize   int    `yaml:"batch_size"`
}

// OllamaConfig points at an Ollama server. Empty Host uses OLLAMA_HOST.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// GeminiConfig configures the Gemini API or Vertex AI backend.
type GeminiConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Project   string `yaml:"project"`
	Location  string `yaml:"location"`
	Model     string `yaml:"model"`
}

// ClaudeConfig configures the Anthropic backend.
type ClaudeConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// LexicalConfig configures the offline hashing embedder.
type LexicalConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures one embedder.
type EmbedderConfig struct {
	Type    string         `yaml:"type"`
	OpenAI  *OpenAIConfig  `yaml:"openai,omitempty"`
	Ollama  *OllamaConfig  `yaml:"ollama,omitempty"`
	Gemini  *GeminiConfig  `yaml:"gemini,omitempty"`
	Lexical *LexicalConfig `yaml:"lexical,omitempty"`
}

// CollectionConfig binds a vector collection to a modality and an embedder.
type CollectionConfig struct {
	Name     string `yaml:"name"`
	Modality string `yaml:"modality"`
	Embedder string `yaml:"embedder"`
}

// ChunkerConfig configures how extracted text is split.
type ChunkerConfig struct {
	Type       string `yaml:"type"`
	MaxLength  int    `yaml:"max_length"`
	TokenLimit int    `yaml:"token_limit"`
	Tokenizer  string `yaml:"tokenizer"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string        `yaml:"type"`
	Distance string        `yaml:"distance"`
	Qdrant   *QdrantConfig `yaml:"qdrant,omitempty"`
	SQLite   *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SQLiteConfig locates the embedded vector database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RetrievalConfig tunes ranking and the keyword fallback.
type RetrievalConfig struct {
	TopK           int      `yaml:"top_k"`
	ScoreThreshold float64  `yaml:"score_threshold"`
	Entities       []string `yaml:"entities"`
	FallbackScore  float64  `yaml:"fallback_score"`
	FallbackLimit  int      `yaml:"fallback_limit"`
}

// InferenceConfig selects the chat backend.
type InferenceConfig struct {
	Type        string        `yaml:"type"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty"`
	Ollama      *OllamaConfig `yaml:"ollama,omitempty"`
	Gemini      *GeminiConfig `yaml:"gemini,omitempty"`
	Claude      *ClaudeConfig `yaml:"claude,omitempty"`
}

// SessionConfig selects where chat sessions are persisted.
type SessionConfig struct {
	Type           string     `yaml:"type"`
	ChatHistoryDir string     `yaml:"chat_history_dir"`
	ProjectsDir    string     `yaml:"projects_dir"`
	Transcripts    bool       `yaml:"transcripts"`
	S3             *S3Config  `yaml:"s3,omitempty"`
	GCS            *GCSConfig `yaml:"gcs,omitempty"`
}

// S3Config addresses an S3-compatible bucket (MinIO, AWS).
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// GCSConfig addresses a Cloud Storage bucket.
type GCSConfig struct {
	Bucket string `yaml:"bucket"`
}

// IngestConfig controls the processing log and archiving of ingested files.
type IngestConfig struct {
	ProcessingLog string `yaml:"processing_log"`
	ProcessedDir  string `yaml:"processed_dir"`
}

// LogConfig controls diagnostics.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedders   map[string]EmbedderConfig `yaml:"embedders"`
	Collections []CollectionConfig        `yaml:"collections"`
	Chunker     ChunkerConfig             `yaml:"chunker"`
	VectorStore VectorStoreConfig         `yaml:"vector_store"`
	Retrieval   RetrievalConfig           `yaml:"retrieval"`
	Inference   InferenceConfig           `yaml:"inference"`
	Sessions    SessionConfig             `yaml:"sessions"`
	Ingest      IngestConfig              `yaml:"ingest"`
	Log         LogConfig                 `yaml:"log"`
}

// Collection returns the named collection config.
func (c *AppConfig) Collection(name string) (CollectionConfig, bool) {
	for _, cc := range c.Collections {
		if cc.Name == name {
			return cc, true
		}
	}
	return CollectionConfig{}, false
}

// CollectionFor returns the first collection with the given modality.
func (c *AppConfig) CollectionFor(modality string) (CollectionConfig, bool) {
	for _, cc := range c.Collections {
		if cc.Modality == modality {
			return cc, true
		}
	}
	return CollectionConfig{}, false
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, goerr.Wrap(err, "failed to read config", goerr.V("path", path))
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config", goerr.V("path", path))
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create config dir", goerr.V("path", path))
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write config", goerr.V("path", path))
	}
	return nil
}

// Validate checks cross references between sections.
func (c *AppConfig) Validate() error {
	if len(c.Collections) == 0 {
		return goerr.New("no collections configured")
	}
	seen := map[string]bool{}
	for _, cc := range c.Collections {
		if cc.Name == "" {
			return goerr.New("collection name is empty")
		}
		if seen[cc.Name] {
			return goerr.New("duplicate collection", goerr.V("name", cc.Name))
		}
		seen[cc.Name] = true
		if cc.Modality != "text" && cc.Modality != "image" {
			return goerr.New("invalid collection modality", goerr.V("name", cc.Name), goerr.V("modality", cc.Modality))
		}
		if _, ok := c.Embedders[cc.Embedder]; !ok {
			return goerr.New("collection references unknown embedder", goerr.V("name", cc.Name), goerr.V("embedder", cc.Embedder))
		}
	}
	if c.Retrieval.ScoreThreshold < 0 {
		return goerr.New("score_threshold must not be negative", goerr.V("value", c.Retrieval.ScoreThreshold))
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve home dir")
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "rag-data"
	}
	return filepath.Join(home, ".local", "share", "rag")
}

func defaultConfig() *AppConfig {
	data := defaultDataDir()
	cfg := &AppConfig{
		Embedders: map[string]EmbedderConfig{
			"text":  {Type: "lexical"},
			"image": {Type: "lexical"},
		},
		Collections: []CollectionConfig{
			{Name: "local_memory", Modality: "text", Embedder: "text"},
			{Name: "image_summary_memory", Modality: "image", Embedder: "image"},
		},
		Chunker:     ChunkerConfig{Type: "paragraph", MaxLength: 512},
		VectorStore: VectorStoreConfig{Type: "sqlite", Distance: "cosine", SQLite: &SQLiteConfig{Path: filepath.Join(data, "vectors.db")}},
		Inference:   InferenceConfig{Type: "openai"},
		Sessions: SessionConfig{
			Type:           "fs",
			ChatHistoryDir: filepath.Join(data, "chat_history"),
			ProjectsDir:    filepath.Join(data, "projects"),
			Transcripts:    true,
		},
		Ingest: IngestConfig{ProcessingLog: filepath.Join(data, "_processing_log.txt")},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "paragraph"
	}
	if cfg.Chunker.MaxLength == 0 {
		cfg.Chunker.MaxLength = 512
	}
	if cfg.Chunker.TokenLimit == 0 {
		cfg.Chunker.TokenLimit = 400
	}
	if cfg.Chunker.Tokenizer == "" {
		cfg.Chunker.Tokenizer = "words"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.Retrieval.ScoreThreshold == 0 {
		cfg.Retrieval.ScoreThreshold = 0.4
	}
	if cfg.Retrieval.FallbackScore == 0 {
		cfg.Retrieval.FallbackScore = 0.5
	}
	if cfg.Retrieval.FallbackLimit == 0 {
		cfg.Retrieval.FallbackLimit = cfg.Retrieval.TopK
	}
	if cfg.Inference.Type == "" {
		cfg.Inference.Type = "openai"
	}
	if cfg.Inference.Temperature == 0 {
		cfg.Inference.Temperature = 0.7
	}
	if cfg.Inference.TopP == 0 {
		cfg.Inference.TopP = 0.9
	}
	if cfg.Inference.Type == "openai" {
		if cfg.Inference.OpenAI == nil {
			cfg.Inference.OpenAI = &OpenAIConfig{}
		}
		if cfg.Inference.OpenAI.TimeoutSecs == 0 {
			cfg.Inference.OpenAI.TimeoutSecs = 60
		}
		applyOpenAIDefaults(cfg.Inference.OpenAI, "http://127.0.0.1:1234/v1", "llama-3-13b-instruct")
	}
	for name, ec := range cfg.Embedders {
		if ec.Type == "openai" {
			if ec.OpenAI == nil {
				ec.OpenAI = &OpenAIConfig{}
			}
			applyOpenAIDefaults(ec.OpenAI, "https://api.openai.com/v1", "text-embedding-3-small")
		}
		if ec.Type == "lexical" && ec.Lexical == nil {
			ec.Lexical = &LexicalConfig{Dimension: 1024}
		}
		cfg.Embedders[name] = ec
	}
	if cfg.Sessions.Type == "" {
		cfg.Sessions.Type = "fs"
	}
	for i := range cfg.Collections {
		if cfg.Collections[i].Modality == "" {
			cfg.Collections[i].Modality = "text"
		}
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, baseURL, model string) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
}

// applyEnvOverrides lets the environment (and a .env file loaded by the
// binary) win over the file.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("QDRANT_URL"); v != "" && cfg.VectorStore.Qdrant != nil {
		cfg.VectorStore.Qdrant.URL = v
	}
	if v := os.Getenv("LM_API_URL"); v != "" && cfg.Inference.OpenAI != nil {
		cfg.Inference.OpenAI.BaseURL = v
	}
	if v := os.Getenv("MODEL_NAME"); v != "" {
		setInferenceModel(&cfg.Inference, v)
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		if ec, ok := cfg.Embedders["text"]; ok {
			setEmbedderModel(&ec, v)
			cfg.Embedders["text"] = ec
		}
	}
	if v, err := strconv.Atoi(os.Getenv("TOP_K")); err == nil && v > 0 {
		cfg.Retrieval.TopK = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("SCORE_THRESHOLD"), 64); err == nil && v >= 0 {
		cfg.Retrieval.ScoreThreshold = v
	}
	if v := os.Getenv("CHAT_HISTORY_DIR"); v != "" {
		cfg.Sessions.ChatHistoryDir = v
	}
	if v := os.Getenv("PROJECTS_DIR"); v != "" {
		cfg.Sessions.ProjectsDir = v
	}
	if v := os.Getenv("PROCESSED_DIR"); v != "" {
		cfg.Ingest.ProcessedDir = v
	}
}

func setInferenceModel(ic *InferenceConfig, model string) {
	switch ic.Type {
	case "openai":
		if ic.OpenAI != nil {
			ic.OpenAI.Model = model
		}
	case "ollama":
		if ic.Ollama != nil {
			ic.Ollama.Model = model
		}
	case "gemini":
		if ic.Gemini != nil {
			ic.Gemini.Model = model
		}
	case "claude":
		if ic.Claude != nil {
			ic.Claude.Model = model
		}
	}
}

func setEmbedderModel(ec *EmbedderConfig, model string) {
	switch ec.Type {
	case "openai":
		if ec.OpenAI != nil {
			ec.OpenAI.Model = model
		}
	case "ollama":
		if ec.Ollama != nil {
			ec.Ollama.Model = model
		}
	case "gemini":
		if ec.Gemini != nil {
			ec.Gemini.Model = model
		}
	}
}
