package s3

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/resilience"
)

// API is the subset of the S3 client used by Storage.
type API interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

type Storage struct {
	client   API
	executor *resilience.Executor
}

func New(client API, executor *resilience.Executor) *Storage {
	return &Storage{client: client, executor: executor}
}

// NewFromConfig builds the client, switching to path-style addressing when a
// custom endpoint such as localstack is configured.
func NewFromConfig(cfg aws.Config, pathStyle bool, executor *resilience.Executor) *Storage {
	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		o.UsePathStyle = pathStyle
	})
	return New(client, executor)
}

func (s *Storage) Fetch(ctx context.Context, loc domain.ObjectLocation) ([]byte, error) {
	return resilience.Call(ctx, s.executor, "s3.get", func(ctx context.Context) ([]byte, error) {
		out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
		})
		if err != nil {
			return nil, classifyFetchError(loc, err)
		}
		defer out.Body.Close()

		blob, err := io.ReadAll(out.Body)
		if err != nil {
			return nil, domain.WrapError(domain.ErrStorageUnavailable, "s3 read "+loc.String(), err)
		}
		return blob, nil
	}, resilience.ClassifyDomainError)
}

func (s *Storage) Store(ctx context.Context, loc domain.ObjectLocation, blob []byte, contentType string) error {
	return s.executor.Execute(ctx, "s3.put", func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
			Bucket:        aws.String(loc.Bucket),
			Key:           aws.String(loc.Key),
			Body:          bytes.NewReader(blob),
			ContentLength: aws.Int64(int64(len(blob))),
			ContentType:   aws.String(contentType),
		})
		if err != nil {
			return classifyStoreError(loc, err)
		}
		return nil
	}, resilience.ClassifyDomainError)
}

func classifyFetchError(loc domain.ObjectLocation, err error) error {
	op := "s3 get " + loc.String()
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return domain.WrapError(domain.ErrSourceNotFound, op, err)
	}
	switch apiErrorCode(err) {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return domain.WrapError(domain.ErrSourceNotFound, op, err)
	}
	return domain.WrapError(domain.ErrStorageUnavailable, op, err)
}

func classifyStoreError(loc domain.ObjectLocation, err error) error {
	op := "s3 put " + loc.String()
	switch apiErrorCode(err) {
	case "EntityTooLarge", "QuotaExceeded", "InsufficientStorage":
		return domain.WrapError(domain.ErrStorageQuotaExceeded, op, err)
	}
	return domain.WrapError(domain.ErrStorageUnavailable, op, err)
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

