// Package store mirrors finalized uploads to object storage so the web tier
// serves layer content without reaching into ingest disks.
package store

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentops/geolayers/internal/errs"
)

var tracer = otel.Tracer("geolayers-store")

// BlobStore wraps MinIO operations with tracing
type BlobStore struct {
	client *minio.Client
	bucket string
}

// NewBlobStore initializes a new MinIO-backed blob store
func NewBlobStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*BlobStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	bs := &BlobStore{client: client, bucket: bucket}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Printf("Creating bucket: %s", bucket)
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return bs, nil
}

// UploadFile mirrors one local file to the given object key.
func (bs *BlobStore) UploadFile(ctx context.Context, key, path, contentType string) error {
	ctx, span := tracer.Start(ctx, "store.upload_file",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := bs.client.FPutObject(ctx, bs.bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		return errs.Tagf(errs.ErrIO, "upload %s: %w", key, err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return nil
}

// UploadDir mirrors a directory tree under the given key prefix, preserving
// relative paths.
func (bs *BlobStore) UploadDir(ctx context.Context, prefix, dir string) error {
	ctx, span := tracer.Start(ctx, "store.upload_dir",
		trace.WithAttributes(attribute.String("prefix", prefix)),
	)
	defer span.End()

	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := prefix + "/" + filepath.ToSlash(rel)
		if err := bs.UploadFile(ctx, key, path, ""); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return errs.Tag(errs.ErrIO, err)
	}

	span.SetAttributes(attribute.Int("objects_uploaded", count))
	return nil
}

// RemovePrefix deletes every object under the given key prefix; used for
// best-effort rollback.
func (bs *BlobStore) RemovePrefix(ctx context.Context, prefix string) error {
	ctx, span := tracer.Start(ctx, "store.remove_prefix",
		trace.WithAttributes(attribute.String("prefix", prefix)),
	)
	defer span.End()

	objects := bs.client.ListObjects(ctx, bs.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			span.RecordError(obj.Err)
			return errs.Tag(errs.ErrIO, obj.Err)
		}
		if err := bs.client.RemoveObject(ctx, bs.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			span.RecordError(err)
			return errs.Tagf(errs.ErrIO, "remove %s: %w", obj.Key, err)
		}
	}
	return nil
}
