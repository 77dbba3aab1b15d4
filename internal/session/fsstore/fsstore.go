// Package fsstore keeps session records as JSON files on local disk.
//
// Layout: <historyDir>/<id>.json for the default location and
// <projectsDir>/<project>/<id>.json for project sessions.
package fsstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
	"rag-memory/internal/session"
)

const ext = ".json"

type Backend struct {
	historyDir  string
	projectsDir string
}

func New(historyDir, projectsDir string) (*Backend, error) {
	for _, dir := range []string{historyDir, projectsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create session directory", goerr.V("dir", dir))
		}
	}
	return &Backend{historyDir: historyDir, projectsDir: projectsDir}, nil
}

func (b *Backend) dir(loc session.Location) string {
	if loc.Project == "" {
		return b.historyDir
	}
	return filepath.Join(b.projectsDir, loc.Project)
}

func (b *Backend) path(loc session.Location, id string) string {
	return filepath.Join(b.dir(loc), id+ext)
}

// Write replaces the record atomically via a temp file in the same directory.
func (b *Backend) Write(_ context.Context, loc session.Location, id string, data []byte) error {
	dir := b.dir(loc)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create session directory", goerr.V("dir", dir))
	}
	tmp, err := os.CreateTemp(dir, "."+id+"-*.tmp")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp file", goerr.V("dir", dir))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to write session", goerr.V("id", id))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close temp file", goerr.V("id", id))
	}
	if err := os.Rename(tmp.Name(), b.path(loc, id)); err != nil {
		return goerr.Wrap(err, "failed to replace session file", goerr.V("id", id))
	}
	return nil
}

func (b *Backend) Read(_ context.Context, loc session.Location, id string) ([]byte, error) {
	data, err := os.ReadFile(b.path(loc, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, goerr.Wrap(domain.ErrSessionNotFound, "no session file", goerr.V("id", id), goerr.V("project", loc.Project))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read session file", goerr.V("id", id))
	}
	return data, nil
}

func (b *Backend) Delete(_ context.Context, loc session.Location, id string) error {
	err := os.Remove(b.path(loc, id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerr.Wrap(err, "failed to delete session file", goerr.V("id", id))
	}
	return nil
}

func (b *Backend) List(_ context.Context, loc session.Location) ([]string, error) {
	entries, err := os.ReadDir(b.dir(loc))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sessions", goerr.V("dir", b.dir(loc)))
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	return ids, nil
}

func (b *Backend) Projects(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.projectsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list projects", goerr.V("dir", b.projectsDir))
	}
	var projects []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			projects = append(projects, e.Name())
		}
	}
	return projects, nil
}
