package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/config"
	"rag-memory/internal/domain"
	"rag-memory/internal/extract"
	"rag-memory/internal/inference"
)

const checkTimeout = 30 * time.Second

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Name   string
	Detail string
	Err    error
}

func (r CheckResult) OK() bool { return r.Err == nil }

// Directories lists the local directories the configuration writes into,
// without duplicates.
func Directories(cfg *config.AppConfig) []string {
	var dirs []string
	seen := map[string]bool{}
	add := func(d string) {
		if d == "" || d == "." || seen[d] {
			return
		}
		seen[d] = true
		dirs = append(dirs, d)
	}

	if cfg.Sessions.Type == "" || cfg.Sessions.Type == "fs" || cfg.Sessions.Transcripts {
		add(cfg.Sessions.ChatHistoryDir)
		add(cfg.Sessions.ProjectsDir)
	}
	if d := cfg.Ingest.ProcessedDir; d != "" {
		add(d)
		for _, t := range []extract.FileType{extract.TypeText, extract.TypeSpreadsheet, extract.TypePresentation, extract.TypeImage} {
			add(filepath.Join(d, t.Folder()))
		}
	}
	if cfg.Ingest.ProcessingLog != "" {
		add(filepath.Dir(cfg.Ingest.ProcessingLog))
	}
	if sc := cfg.VectorStore.SQLite; cfg.VectorStore.Type == "sqlite" && sc != nil && sc.Path != "" && !strings.HasPrefix(sc.Path, ":memory:") {
		add(filepath.Dir(sc.Path))
	}
	if cfg.Log.File != "" {
		add(filepath.Dir(cfg.Log.File))
	}
	return dirs
}

// PrepareDirectories creates the missing directories and returns them.
func PrepareDirectories(cfg *config.AppConfig) ([]string, error) {
	var created []string
	for _, d := range Directories(cfg) {
		if _, err := os.Stat(d); err == nil {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return created, goerr.Wrap(err, "failed to create directory", goerr.V("dir", d))
		}
		created = append(created, d)
	}
	return created, nil
}

// CheckStore connects to the vector store and looks up the first configured
// collection. A missing collection is not a failure.
func CheckStore(ctx context.Context, cfg *config.AppConfig) CheckResult {
	res := CheckResult{Name: "vector store (" + cfg.VectorStore.Type + ")"}
	store, err := NewStorage(cfg.VectorStore)
	if err != nil {
		res.Err = err
		return res
	}
	defer store.Close()

	name := "local_memory"
	if len(cfg.Collections) > 0 {
		name = cfg.Collections[0].Name
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	exists, err := store.CollectionExists(ctx, name)
	if err != nil {
		res.Err = err
		return res
	}
	if exists {
		res.Detail = fmt.Sprintf("reachable, %s exists", name)
	} else {
		res.Detail = fmt.Sprintf("reachable, %s not created yet", name)
	}
	return res
}

// CheckInference sends a one-line prompt to the chat backend.
func CheckInference(ctx context.Context, cfg *config.AppConfig) CheckResult {
	res := CheckResult{Name: inference.ServiceName(cfg.Inference.Type)}
	client, err := inference.New(ctx, cfg.Inference)
	if err != nil {
		res.Err = err
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	reply, err := client.Chat(ctx, []domain.Message{
		{Role: domain.RoleUser, Content: "Reply with the single word OK."},
	}, domain.ChatParams{Temperature: cfg.Inference.Temperature, TopP: cfg.Inference.TopP})
	if err != nil {
		res.Err = err
		return res
	}
	res.Detail = fmt.Sprintf("model %s replied %q", client.Model(), strings.TrimSpace(reply))
	return res
}
