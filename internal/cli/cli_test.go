package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"rag-memory/internal/domain"
)

const testConfig = `embedders:
  text:
    type: lexical
    lexical:
      dimension: 512
collections:
  - name: local_memory
    modality: text
    embedder: text
vector_store:
  type: sqlite
  sqlite:
    path: {{DIR}}/vectors.db
retrieval:
  top_k: 5
  score_threshold: 0.1
sessions:
  type: fs
  chat_history_dir: {{DIR}}/chat_history
  projects_dir: {{DIR}}/projects
ingest:
  processing_log: {{DIR}}/_processing_log.txt
log:
  level: warn
`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Reader = strings.NewReader(stdin)
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(context.Background(), append([]string{"rag"}, args...))
	return out.String(), err
}

func TestIngestAndSearch(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	gt.NoError(t, os.WriteFile(cfgPath, []byte(strings.ReplaceAll(testConfig, "{{DIR}}", dir)), 0o644))

	doc := filepath.Join(dir, "docs", "lighthouse.txt")
	gt.NoError(t, os.MkdirAll(filepath.Dir(doc), 0o755))
	gt.NoError(t, os.WriteFile(doc, []byte("The lighthouse keeper logs every passing ship.\n"), 0o644))

	// Tag is asked on stdin when not given.
	out, err := run(t, "x\nB\n", "ingest", "--config", cfgPath, filepath.Join(dir, "docs"))
	gt.NoError(t, err)
	gt.S(t, out).Contains("Please enter P, B or PB.")
	gt.S(t, out).Contains("OK\t" + doc + "\tlocal_memory\t1 records")

	out, err = run(t, "", "search", "--config", cfgPath, "--raw", "lighthouse", "keeper")
	gt.NoError(t, err)
	gt.S(t, out).Contains("lighthouse.txt\tB")

	out, err = run(t, "", "search", "--config", cfgPath, "--tag", "P", "lighthouse", "keeper")
	gt.NoError(t, err)
	gt.S(t, out).Contains("No relevant information found in memory.")

	logData, err := os.ReadFile(filepath.Join(dir, "_processing_log.txt"))
	gt.NoError(t, err)
	gt.S(t, string(logData)).Contains("lighthouse.txt | Tag: B | ")
}

func TestSessionsCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	gt.NoError(t, os.WriteFile(cfgPath, []byte(strings.ReplaceAll(testConfig, "{{DIR}}", dir)), 0o644))

	out, err := run(t, "", "sessions", "new", "--config", cfgPath, "--name", "Planning")
	gt.NoError(t, err)
	id, _, ok := strings.Cut(strings.TrimSpace(out), "\t")
	gt.True(t, ok)

	_, err = run(t, "", "sessions", "move", "--config", cfgPath, id, "Garden")
	gt.NoError(t, err)

	out, err = run(t, "", "sessions", "projects", "--config", cfgPath)
	gt.NoError(t, err)
	gt.Equal(t, strings.TrimSpace(out), "Garden")

	out, err = run(t, "", "sessions", "list", "--config", cfgPath)
	gt.NoError(t, err)
	gt.S(t, out).Contains(id + "\tPlanning\tGarden")

	_, err = run(t, "", "sessions", "move", "--config", cfgPath, id, "../escape")
	gt.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	gt.NoError(t, os.WriteFile(cfgPath, []byte(strings.ReplaceAll(testConfig, "{{DIR}}", dir)), 0o644))

	out, err := run(t, "", "check", "--config", cfgPath, "--skip-chat")
	gt.NoError(t, err)
	gt.S(t, out).Contains("CREATED\t" + filepath.Join(dir, "chat_history"))
	gt.S(t, out).Contains("OK\tvector store (sqlite)\treachable, local_memory not created yet")

	_, err = os.Stat(filepath.Join(dir, "projects"))
	gt.NoError(t, err)

	out, err = run(t, "", "check", "--config", cfgPath, "--skip-chat")
	gt.NoError(t, err)
	gt.False(t, strings.Contains(out, "CREATED"))
}

func TestBuildFilter(t *testing.T) {
	f, err := buildFilter([]string{"business", "PB"}, "Work")
	gt.NoError(t, err)
	gt.A(t, f.Tags).Length(2)
	gt.Equal(t, f.Tags[0], domain.TagBusiness)
	gt.Equal(t, f.Project, "Work")

	_, err = buildFilter([]string{"Q"}, "")
	gt.Error(t, err)
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.md", ".hidden"} {
		gt.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	paths, err := expandInputs([]string{dir, filepath.Join(dir, "*.txt")})
	gt.NoError(t, err)
	gt.A(t, paths).Length(2)
	gt.Equal(t, paths[0], filepath.Join(dir, "a.md"))
	gt.Equal(t, paths[1], filepath.Join(dir, "b.txt"))
}
