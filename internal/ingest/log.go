package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
)

// ProcessingLog is the append-only, human-readable record of ingested items.
type ProcessingLog struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewProcessingLog(path string) *ProcessingLog {
	return &ProcessingLog{path: path, now: time.Now}
}

// Line renders one log entry without the trailing newline.
func Line(at time.Time, filename string, tag domain.Tag, project, summary string) string {
	projectInfo := ""
	if project != "" {
		projectInfo = "Project: " + project + " | "
	}
	return fmt.Sprintf("[%s] %s | %sTag: %s | %s", at.Format("2006-01-02 15:04:05"), filename, projectInfo, tag, summary)
}

// Append writes one entry.
func (l *ProcessingLog) Append(filename string, tag domain.Tag, project, summary string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create log dir", goerr.V("path", l.path))
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open processing log", goerr.V("path", l.path))
	}
	defer f.Close()

	if _, err := f.WriteString(Line(l.now(), filename, tag, project, summary) + "\n"); err != nil {
		return goerr.Wrap(err, "failed to write processing log", goerr.V("path", l.path))
	}
	return nil
}
