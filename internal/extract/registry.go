// Package extract turns documents on disk into plain text.
package extract

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
)

// Func extracts the text of one file.
type Func func(ctx context.Context, path string) (string, error)

// Registry maps lower-case file extensions to extractors.
type Registry struct {
	byExt map[string]Func
}

// NewRegistry returns a registry with every built-in format registered.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Func)}
	r.Register(readPlain, ".txt", ".md")
	r.Register(readRTF, ".rtf")
	r.Register(readCSV, ".csv")
	r.Register(readDocx, ".docx")
	r.Register(readPptx, ".pptx")
	r.Register(readXlsx, ".xlsx")
	r.Register(readPDF, ".pdf")
	return r
}

// Register binds fn to the given extensions, replacing earlier bindings.
func (r *Registry) Register(fn Func, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = fn
	}
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extract returns the text of path. Unknown extensions fail with
// domain.ErrUnsupportedFormat.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := r.byExt[ext]
	if !ok {
		return "", goerr.Wrap(domain.ErrUnsupportedFormat, "no extractor for extension",
			goerr.V("path", path), goerr.V("ext", ext))
	}
	text, err := fn(ctx, path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to extract text", goerr.V("path", path))
	}
	return text, nil
}
