// Package ingest embeds documents and image descriptions and writes them
// into vector collections.
package ingest

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
	"rag-memory/internal/logging"
	"rag-memory/internal/vectorstore"
)

// recordNamespace seeds content-derived record ids.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("rag-memory/records"))

// Source is one already-resolved unit of ingestion: the chunks of a file or
// the description of an image.
type Source struct {
	Filename string
	Tag      domain.Tag
	Project  string
	Kind     domain.Kind
	Units    []string
}

// Writer embeds sources and upserts them with provenance metadata.
type Writer struct {
	store     vectorstore.Storage
	distance  domain.Distance
	embedders map[string]domain.Embedder
}

// NewWriter binds each collection name to the embedder that encodes it.
func NewWriter(store vectorstore.Storage, distance domain.Distance, embedders map[string]domain.Embedder) *Writer {
	if distance == "" {
		distance = domain.DistanceCosine
	}
	return &Writer{store: store, distance: distance, embedders: embedders}
}

// RecordID derives a stable id so re-ingesting identical content overwrites
// instead of duplicating.
func RecordID(collection, filename string, chunkIndex int, text string) string {
	key := strings.Join([]string{collection, filename, strconv.Itoa(chunkIndex), text}, "|")
	return uuid.NewSHA1(recordNamespace, []byte(key)).String()
}

// Write stores every unit of src in collection and returns how many records
// were written. Nothing is written unless every unit embeds successfully
// and matches the collection's dimension.
func (w *Writer) Write(ctx context.Context, src Source, collection string) (int, error) {
	if err := src.Tag.Validate(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(src.Filename) == "" {
		return 0, domain.Invalid("filename is required", "filename", src.Filename)
	}
	embedder, ok := w.embedders[collection]
	if !ok {
		return 0, domain.Invalid("unknown collection", "collection", collection)
	}
	if src.Kind == "" {
		src.Kind = domain.KindText
	}

	var units []string
	for _, u := range src.Units {
		if strings.TrimSpace(u) != "" {
			units = append(units, u)
		}
	}
	if len(units) == 0 {
		return 0, nil
	}

	vectors, err := embedder.Embed(ctx, units)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to embed source", goerr.V("filename", src.Filename), goerr.V("embedder", embedder.Name()))
	}
	if len(vectors) != len(units) {
		return 0, goerr.Wrap(domain.ErrTransport, "embedder returned wrong number of vectors",
			goerr.V("want", len(units)), goerr.V("got", len(vectors)))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return 0, goerr.Wrap(domain.ErrDimensionMismatch, "embedder returned inconsistent dimensions",
				goerr.V("filename", src.Filename), goerr.V("chunk_index", i), goerr.V("expected", dim), goerr.V("got", len(v)))
		}
	}

	if err := w.ensureCollection(ctx, collection, dim); err != nil {
		return 0, err
	}

	points := make([]domain.Point, len(units))
	for i, text := range units {
		rec := domain.MemoryRecord{
			ID:         RecordID(collection, src.Filename, i, text),
			Vector:     vectors[i],
			Text:       text,
			Filename:   src.Filename,
			Tag:        src.Tag,
			Project:    src.Project,
			ChunkIndex: i,
			Kind:       src.Kind,
		}
		points[i] = domain.Point{ID: rec.ID, Vector: rec.Vector, Payload: rec.Payload()}
	}
	if err := w.store.Upsert(ctx, collection, points); err != nil {
		return 0, goerr.Wrap(err, "failed to upsert records", goerr.V("collection", collection), goerr.V("filename", src.Filename))
	}

	logging.From(ctx).Debug("records written",
		"collection", collection, "filename", src.Filename, "count", len(points), "tag", src.Tag)
	return len(points), nil
}

// ensureCollection provisions collection with dim on first use and refuses
// to write vectors of another size into an existing one.
func (w *Writer) ensureCollection(ctx context.Context, collection string, dim int) error {
	info, err := w.store.CollectionInfo(ctx, collection)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		if err := w.store.CreateCollection(ctx, collection, dim, w.distance); err != nil {
			return goerr.Wrap(err, "failed to create collection", goerr.V("collection", collection))
		}
		logging.From(ctx).Info("collection created", "collection", collection, "dimension", dim, "distance", w.distance)
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to inspect collection", goerr.V("collection", collection))
	}
	if info.Dimension != dim {
		return goerr.Wrap(domain.ErrDimensionMismatch, "embedding size differs from collection size",
			goerr.V("collection", collection), goerr.V("collection_dim", info.Dimension), goerr.V("embedding_dim", dim))
	}
	return nil
}
