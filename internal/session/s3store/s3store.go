// Package s3store keeps session records in an S3-compatible bucket.
//
// Keys mirror the on-disk layout: chat_history/<id>.json and
// projects/<project>/<id>.json.
package s3store

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rag-memory/internal/domain"
	"rag-memory/internal/session"
)

const (
	historyPrefix  = "chat_history/"
	projectsPrefix = "projects/"
	ext            = ".json"
)

type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type Backend struct {
	client *minio.Client
	bucket string
}

// New connects to the endpoint and creates the bucket when missing.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, domain.Invalid("s3 endpoint and bucket are required", "endpoint", cfg.Endpoint)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create s3 client", goerr.V("endpoint", cfg.Endpoint))
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, domain.Transport(err, "failed to check bucket", goerr.V("bucket", cfg.Bucket))
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, domain.Transport(err, "failed to create bucket", goerr.V("bucket", cfg.Bucket))
		}
	}
	return &Backend{client: client, bucket: cfg.Bucket}, nil
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

func (b *Backend) Write(ctx context.Context, loc session.Location, id string, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, key(loc, id), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return domain.Transport(err, "failed to put session", goerr.V("key", key(loc, id)))
	}
	return nil
}

func (b *Backend) Read(ctx context.Context, loc session.Location, id string) ([]byte, error) {
	k := key(loc, id)
	obj, err := b.client.GetObject(ctx, b.bucket, k, minio.GetObjectOptions{})
	if err != nil {
		return nil, b.readErr(err, k)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, b.readErr(err, k)
	}
	return data, nil
}

func (b *Backend) readErr(err error, k string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return goerr.Wrap(domain.ErrSessionNotFound, "no session object", goerr.V("key", k))
	}
	return domain.Transport(err, "failed to get session", goerr.V("key", k))
}

func (b *Backend) Delete(ctx context.Context, loc session.Location, id string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key(loc, id), minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return domain.Transport(err, "failed to remove session", goerr.V("key", key(loc, id)))
	}
	return nil
}

func (b *Backend) List(ctx context.Context, loc session.Location) ([]string, error) {
	p := prefix(loc)
	var ids []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: p}) {
		if obj.Err != nil {
			return nil, domain.Transport(obj.Err, "failed to list sessions", goerr.V("prefix", p))
		}
		name := strings.TrimPrefix(obj.Key, p)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	return ids, nil
}

func (b *Backend) Projects(ctx context.Context) ([]string, error) {
	var projects []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: projectsPrefix}) {
		if obj.Err != nil {
			return nil, domain.Transport(obj.Err, "failed to list projects")
		}
		// Non-recursive listing yields common prefixes as "projects/<name>/".
		if !strings.HasSuffix(obj.Key, "/") {
			continue
		}
		if name := path.Base(strings.TrimSuffix(obj.Key, "/")); name != "" {
			projects = append(projects, name)
		}
	}
	return projects, nil
}
