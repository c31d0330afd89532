package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
)

// MetaContentType is the metadata key an adapter also uses as the object's
// native content type when the backend has one. "content-type" itself is a
// reserved header for S3 user metadata, hence the different name.
const MetaContentType = "media-type"

// ErrObjectNotFound is returned by S3Client implementations for a missing
// object.
var ErrObjectNotFound = errors.New("object not found")

// S3Client defines the minimal object-store interface used by the adapter.
// NewMinioClient provides the production implementation; tests inject fakes.
type S3Client interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, meta map[string]string) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, map[string]string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	HeadObject(ctx context.Context, bucket, key string) (bool, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// S3 is the StorageAdapter backed by S3 or an S3-compatible store.
type S3 struct {
	client S3Client
	bucket string
}

// NewS3 creates an S3 adapter.  client must not be nil.
func NewS3(client S3Client, defaultBucket string) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 storage: client must not be nil")
	}
	return &S3{client: client, bucket: defaultBucket}, nil
}

func (s *S3) bucketFor(key core.StorageKey) string {
	if key.Bucket != "" {
		return key.Bucket
	}
	return s.bucket
}

func (s *S3) Put(ctx context.Context, key core.StorageKey, r io.Reader, size int64, meta map[string]string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "s3.put", err)
	}
	if err := s.client.PutObject(ctx, s.bucketFor(key), key.Path, r, size, meta); err != nil {
		return apperrors.Transient("s3.put", err)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, key core.StorageKey) (io.ReadCloser, map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryStorage, "s3.get", err)
	}
	rc, meta, err := s.client.GetObject(ctx, s.bucketFor(key), key.Path)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, nil, apperrors.New(apperrors.CategoryNotFound, "s3.get",
			fmt.Errorf("%w: %s", apperrors.ErrNotFound, key.Path))
	}
	if err != nil {
		return nil, nil, apperrors.Transient("s3.get", err)
	}
	return rc, meta, nil
}

func (s *S3) Delete(ctx context.Context, key core.StorageKey) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "s3.delete", err)
	}
	if err := s.client.DeleteObject(ctx, s.bucketFor(key), key.Path); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return apperrors.Transient("s3.delete", err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, key core.StorageKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.Wrap(apperrors.CategoryStorage, "s3.exists", err)
	}
	ok, err := s.client.HeadObject(ctx, s.bucketFor(key), key.Path)
	if err != nil {
		return false, apperrors.Transient("s3.exists", err)
	}
	return ok, nil
}

func (s *S3) List(ctx context.Context, bucket, prefix string) ([]core.StorageKey, error) {
	if bucket == "" {
		bucket = s.bucket
	}
	names, err := s.client.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return nil, apperrors.Transient("s3.list", err)
	}
	keys := make([]core.StorageKey, len(names))
	for i, n := range names {
		keys[i] = core.StorageKey{Bucket: bucket, Path: n}
	}
	return keys, nil
}
