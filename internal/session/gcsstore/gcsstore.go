// Package gcsstore keeps session records in a Cloud Storage bucket using the
// same key layout as s3store.
package gcsstore

import (
	"context"
	"errors"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"rag-memory/internal/domain"
	"rag-memory/internal/session"
)

const (
	historyPrefix  = "chat_history/"
	projectsPrefix = "projects/"
	ext            = ".json"
)

type Backend struct {
	bucketName string
	client     *storage.Client
}

func New(ctx context.Context, bucketName string) (*Backend, error) {
	if bucketName == "" {
		return nil, domain.Invalid("gcs bucket is required", "bucket", bucketName)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}
	return &Backend{bucketName: bucketName, client: client}, nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func prefix(loc session.Location) string {
	if loc.Project == "" {
		return historyPrefix
	}
	return projectsPrefix + loc.Project + "/"
}

func key(loc session.Location, id string) string {
	return prefix(loc) + id + ext
}

func (b *Backend) object(k string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucketName).Object(k)
}

func (b *Backend) Write(ctx context.Context, loc session.Location, id string, data []byte) error {
	k := key(loc, id)
	w := b.object(k).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return domain.Transport(err, "failed to write session", goerr.V("key", k))
	}
	if err := w.Close(); err != nil {
		return domain.Transport(err, "failed to finalize session", goerr.V("key", k))
	}
	return nil
}

func (b *Backend) Read(ctx context.Context, loc session.Location, id string) ([]byte, error) {
	k := key(loc, id)
	r, err := b.object(k).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, goerr.Wrap(domain.ErrSessionNotFound, "no session object", goerr.V("key", k))
	}
	if err != nil {
		return nil, domain.Transport(err, "failed to read from storage", goerr.V("key", k))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.Transport(err, "failed to read from storage", goerr.V("key", k))
	}
	return data, nil
}

func (b *Backend) Delete(ctx context.Context, loc session.Location, id string) error {
	k := key(loc, id)
	err := b.object(k).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return domain.Transport(err, "failed to delete session", goerr.V("key", k))
	}
	return nil
}

func (b *Backend) List(ctx context.Context, loc session.Location) ([]string, error) {
	p := prefix(loc)
	it := b.client.Bucket(b.bucketName).Objects(ctx, &storage.Query{Prefix: p, Delimiter: "/"})
	var ids []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, domain.Transport(err, "failed to list sessions", goerr.V("prefix", p))
		}
		if attrs.Prefix != "" || !strings.HasSuffix(attrs.Name, ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(attrs.Name, p), ext))
	}
	return ids, nil
}

func (b *Backend) Projects(ctx context.Context) ([]string, error) {
	it := b.client.Bucket(b.bucketName).Objects(ctx, &storage.Query{Prefix: projectsPrefix, Delimiter: "/"})
	var projects []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, domain.Transport(err, "failed to list projects")
		}
		// With a delimiter, sub-directories come back as synthetic prefix entries.
		if attrs.Prefix == "" {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(attrs.Prefix, projectsPrefix), "/")
		if name != "" {
			projects = append(projects, name)
		}
	}
	return projects, nil
}
