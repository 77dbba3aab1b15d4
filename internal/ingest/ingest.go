package ingest

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/chunker"
	"rag-memory/internal/domain"
	"rag-memory/internal/extract"
	"rag-memory/internal/logging"
	"rag-memory/internal/summarizer"
)

const (
	summaryChars       = 300
	defaultDescription = "No description provided."
)

// FileRequest is one file plus the tag, project and (for images)
// description the user resolved for it.
type FileRequest struct {
	Path        string
	Tag         domain.Tag
	Project     string
	Description string
}

// FileResult reports what happened to one file.
type FileResult struct {
	Path       string
	Type       extract.FileType
	Collection string
	Count      int
	MovedTo    string
	Err        error
}

// Config wires the batch ingestor.
type Config struct {
	Writer          *Writer
	Registry        *extract.Registry
	Splitter        chunker.Splitter
	Summarizer      *summarizer.FrequencySummarizer
	Log             *ProcessingLog
	ProcessedDir    string
	TextCollection  string
	ImageCollection string
}

// Ingestor classifies, extracts, chunks and writes files.
type Ingestor struct {
	cfg Config
}

func NewIngestor(cfg Config) *Ingestor {
	if cfg.Registry == nil {
		cfg.Registry = extract.NewRegistry()
	}
	if cfg.Splitter == nil {
		cfg.Splitter = chunker.NewParagraphChunker(chunker.DefaultMaxLength)
	}
	if cfg.Summarizer == nil {
		cfg.Summarizer = summarizer.NewFrequencySummarizer()
	}
	return &Ingestor{cfg: cfg}
}

// IngestFiles processes every request. A failing file is reported in its
// result and never stops the batch.
func (in *Ingestor) IngestFiles(ctx context.Context, reqs []FileRequest) []FileResult {
	results := make([]FileResult, 0, len(reqs))
	for _, req := range reqs {
		res := in.IngestFile(ctx, req)
		if res.Err != nil {
			logging.From(ctx).Warn("file skipped", "path", req.Path, "error", res.Err)
		} else {
			logging.From(ctx).Info("file ingested", "path", req.Path, "collection", res.Collection, "records", res.Count)
		}
		results = append(results, res)
	}
	return results
}

// IngestFile processes a single file.
func (in *Ingestor) IngestFile(ctx context.Context, req FileRequest) FileResult {
	res := FileResult{Path: req.Path, Type: extract.Classify(req.Path)}
	if err := req.Tag.Validate(); err != nil {
		res.Err = err
		return res
	}
	if st, err := os.Stat(req.Path); err != nil || st.IsDir() {
		res.Err = goerr.Wrap(domain.ErrValidation, "not a readable file", goerr.V("path", req.Path))
		return res
	}

	filename := filepath.Base(req.Path)
	var (
		src     = Source{Filename: filename, Tag: req.Tag, Project: req.Project}
		summary string
	)
	switch res.Type {
	case extract.TypeImage:
		desc := req.Description
		if desc == "" {
			desc = defaultDescription
		}
		src.Kind = domain.KindImage
		src.Units = []string{desc}
		res.Collection = in.cfg.ImageCollection
		summary = in.cfg.Summarizer.OneLine(desc, summaryChars)

	case extract.TypeOther:
		res.Err = goerr.Wrap(domain.ErrUnsupportedFormat, "unsupported file type", goerr.V("path", req.Path))
		return res

	default:
		text, err := in.cfg.Registry.Extract(ctx, req.Path)
		if err != nil {
			res.Err = err
			return res
		}
		chunks, err := in.cfg.Splitter.Split(ctx, text)
		if err != nil {
			res.Err = goerr.Wrap(err, "failed to chunk text", goerr.V("path", req.Path))
			return res
		}
		if len(chunks) == 0 {
			res.Err = goerr.Wrap(domain.ErrValidation, "no text extracted", goerr.V("path", req.Path))
			return res
		}
		src.Kind = domain.KindText
		src.Units = chunks
		res.Collection = in.cfg.TextCollection
		summary = in.cfg.Summarizer.OneLine(chunks[0], summaryChars)
	}

	n, err := in.cfg.Writer.Write(ctx, src, res.Collection)
	if err != nil {
		res.Err = err
		return res
	}
	res.Count = n

	if in.cfg.Log != nil {
		if err := in.cfg.Log.Append(filename, req.Tag, req.Project, summary); err != nil {
			logging.From(ctx).Warn("failed to append processing log", "error", err)
		}
	}
	if in.cfg.ProcessedDir != "" {
		dest, err := archive(req.Path, filepath.Join(in.cfg.ProcessedDir, res.Type.Folder()))
		if err != nil {
			logging.From(ctx).Warn("failed to archive file", "path", req.Path, "error", err)
		} else {
			res.MovedTo = dest
		}
	}
	return res
}

func archive(path, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", goerr.Wrap(err, "failed to create archive dir", goerr.V("dir", dir))
	}
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return "", goerr.Wrap(err, "failed to move file", goerr.V("from", path), goerr.V("to", dest))
	}
	return dest, nil
}
