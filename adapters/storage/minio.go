package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection parameters for NewMinioClient.
type MinioConfig struct {
	Endpoint  string // host[:port]
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string // created on startup when missing
}

// MinioClient implements S3Client on top of minio-go. It works against
// MinIO and AWS S3 alike.
type MinioClient struct {
	client *minio.Client
}

// NewMinioClient connects to the endpoint and makes sure cfg.Bucket exists.
func NewMinioClient(ctx context.Context, cfg MinioConfig) (*MinioClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio: bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("minio: make bucket: %w", err)
		}
	}
	return &MinioClient{client: client}, nil
}

func (m *MinioClient) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, meta map[string]string) error {
	_, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  meta[MetaContentType],
		UserMetadata: meta,
	})
	return err
}

// GetObject stats the object before returning it so a missing key surfaces
// here instead of on the first Read.
func (m *MinioClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, map[string]string, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, translate(err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, nil, translate(err)
	}
	return obj, lowerKeys(info.UserMetadata), nil
}

func (m *MinioClient) DeleteObject(ctx context.Context, bucket, key string) error {
	return translate(m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (m *MinioClient) HeadObject(ctx context.Context, bucket, key string) (bool, error) {
	_, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if err = translate(err); err == ErrObjectNotFound {
		return false, nil
	}
	return false, err
}

func (m *MinioClient) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	var names []string
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return ErrObjectNotFound
	}
	return err
}

// lowerKeys undoes the header canonicalisation minio applies to user
// metadata on the way back.
func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}
