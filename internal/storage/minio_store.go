// internal/storage/minio_store.go
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ImageStore puts an image blob at a key with an expiry. Re-uploading the
// same key overwrites the prior object.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, expiresAt time.Time) error
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore is the S3-compatible backend for the public thumbnails. Safe
// for concurrent use; all workers share one client.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(opts Options) (*MinioStore, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Create the bucket if it does not exist yet.
	err = cli.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{})
	if err != nil {
		exists, errBucketExists := cli.BucketExists(ctx, opts.Bucket)
		if errBucketExists != nil || !exists {
			return nil, fmt.Errorf("create/check bucket %s: %w", opts.Bucket, err)
		}
	}

	log.Printf("[storage] connected to %s, bucket=%s", opts.Endpoint, opts.Bucket)

	return &MinioStore{client: cli, bucket: opts.Bucket}, nil
}

// Put uploads the image with cache metadata telling downstream caches to
// treat it as fresh only until expiresAt, i.e. until the next expected poll.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, expiresAt time.Time) error {
	maxAge := time.Until(expiresAt)
	if maxAge < 0 {
		maxAge = 0
	}

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  "image/jpeg",
			CacheControl: fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())),
			Expires:      expiresAt.UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}
