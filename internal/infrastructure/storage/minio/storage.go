package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/resilience"
)

type Storage struct {
	client   *minio.Client
	executor *resilience.Executor
}

func New(endpoint, accessKey, secretKey string, useSSL bool, executor *resilience.Executor) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init: %w", err)
	}
	return &Storage{client: client, executor: executor}, nil
}

// EnsureBucket creates bucket when it is missing.
func (s *Storage) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	slog.Info("bucket_created", "bucket", bucket)
	return nil
}

func (s *Storage) Fetch(ctx context.Context, loc domain.ObjectLocation) ([]byte, error) {
	return resilience.Call(ctx, s.executor, "minio.get", func(ctx context.Context) ([]byte, error) {
		obj, err := s.client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
		if err != nil {
			return nil, classifyFetchError(loc, err)
		}
		defer obj.Close()

		// GetObject is lazy; errors such as NoSuchKey surface on first read.
		blob, err := io.ReadAll(obj)
		if err != nil {
			return nil, classifyFetchError(loc, err)
		}
		return blob, nil
	}, resilience.ClassifyDomainError)
}

func (s *Storage) Store(ctx context.Context, loc domain.ObjectLocation, blob []byte, contentType string) error {
	return s.executor.Execute(ctx, "minio.put", func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, loc.Bucket, loc.Key, bytes.NewReader(blob), int64(len(blob)),
			minio.PutObjectOptions{ContentType: contentType})
		if err != nil {
			return classifyStoreError(loc, err)
		}
		return nil
	}, resilience.ClassifyDomainError)
}

func classifyFetchError(loc domain.ObjectLocation, err error) error {
	op := "minio get " + loc.String()
	switch code := minio.ToErrorResponse(err).Code; {
	case isNotFound(code):
		return domain.WrapError(domain.ErrSourceNotFound, op, err)
	case isQuota(code):
		return domain.WrapError(domain.ErrStorageQuotaExceeded, op, err)
	}
	return domain.WrapError(domain.ErrStorageUnavailable, op, err)
}

// classifyStoreError never reports not-found; a missing result bucket is
// treated as an unavailable store.
func classifyStoreError(loc domain.ObjectLocation, err error) error {
	op := "minio put " + loc.String()
	if isQuota(minio.ToErrorResponse(err).Code) {
		return domain.WrapError(domain.ErrStorageQuotaExceeded, op, err)
	}
	return domain.WrapError(domain.ErrStorageUnavailable, op, err)
}

func isNotFound(code string) bool {
	switch code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}

func isQuota(code string) bool {
	switch code {
	case "EntityTooLarge", "QuotaExceeded", "XMinioStorageFull", "XMinioAdminBucketQuotaExceeded":
		return true
	}
	return false
}
