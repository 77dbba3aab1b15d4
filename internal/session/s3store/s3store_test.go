package s3store_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"

	"rag-memory/internal/session"
	"rag-memory/internal/session/s3store"
)

func TestBackend(t *testing.T) {
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	bucket := os.Getenv("TEST_S3_BUCKET")
	if endpoint == "" || bucket == "" {
		t.Skip("TEST_S3_ENDPOINT and TEST_S3_BUCKET are not set")
	}

	ctx := context.Background()
	b, err := s3store.New(ctx, s3store.Config{
		Endpoint:  endpoint,
		Bucket:    bucket,
		AccessKey: os.Getenv("TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_S3_SECRET_KEY"),
		UseSSL:    os.Getenv("TEST_S3_USE_SSL") == "true",
	})
	gt.NoError(t, err)

	store := session.NewStore(b)
	project := "test-" + uuid.NewString()

	sess, err := store.Create(ctx, project)
	gt.NoError(t, err)
	t.Cleanup(func() {
		_ = b.Delete(ctx, session.Location{Project: project}, sess.ID)
		_ = b.Delete(ctx, session.Location{}, sess.ID)
	})

	loaded, err := store.Load(ctx, sess.ID)
	gt.NoError(t, err)
	gt.Equal(t, loaded.ProjectName(), project)

	gt.NoError(t, store.SetProject(ctx, sess, ""))
	ids, err := b.List(ctx, session.Location{Project: project})
	gt.NoError(t, err)
	gt.A(t, ids).Length(0)
}
