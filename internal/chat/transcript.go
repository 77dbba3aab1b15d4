package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
)

// Transcript appends a plain-text record of every exchange to
// chat_<id>.log, next to where the session itself is kept: historyDir, or
// projectsDir/<project> for sessions assigned to a project.
type Transcript struct {
	historyDir  string
	projectsDir string
	mu          sync.Mutex
}

func NewTranscript(historyDir, projectsDir string) *Transcript {
	return &Transcript{historyDir: historyDir, projectsDir: projectsDir}
}

// Path is the transcript file of sess.
func (t *Transcript) Path(sess *domain.ChatSession) string {
	id := sess.ID
	if id == "" {
		id = "latest"
	}
	dir := t.historyDir
	if p := sess.ProjectName(); p != "" {
		dir = filepath.Join(t.projectsDir, p)
	}
	return filepath.Join(dir, "chat_"+id+".log")
}

func (t *Transcript) Append(sess *domain.ChatSession, user, assistant string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := t.Path(sess)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create transcript dir", goerr.V("path", path))
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open transcript", goerr.V("path", path))
	}
	defer f.Close()

	ts := at.Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(f, "[%s] USER: %s\n[%s] ASSISTANT: %s\n\n", ts, user, ts, assistant); err != nil {
		return goerr.Wrap(err, "failed to write transcript", goerr.V("path", path))
	}
	return nil
}
