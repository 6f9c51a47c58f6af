package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

type apiFake struct {
	objects map[string][]byte
	getErr  error
	putErr  error
	puts    []*awss3.PutObjectInput
}

func (f *apiFake) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	blob, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(blob))}, nil
}

func (f *apiFake) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, in)
	return &awss3.PutObjectOutput{}, nil
}

func TestFetchReturnsObjectBytes(t *testing.T) {
	api := &apiFake{objects: map[string][]byte{"b/k1": []byte("hello")}}
	s := New(api, nil)

	blob, err := s.Fetch(context.Background(), domain.ObjectLocation{Bucket: "b", Key: "k1"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(blob) != "hello" {
		t.Fatalf("unexpected blob %q", blob)
	}
}

func TestFetchClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind error
	}{
		{"no such key", nil, domain.ErrSourceNotFound},
		{"no such bucket", &smithy.GenericAPIError{Code: "NoSuchBucket"}, domain.ErrSourceNotFound},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, domain.ErrStorageUnavailable},
		{"network", errors.New("connection reset"), domain.ErrStorageUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(&apiFake{objects: map[string][]byte{}, getErr: tc.err}, nil)
			_, err := s.Fetch(context.Background(), domain.ObjectLocation{Bucket: "b", Key: "k2"})
			if !domain.IsKind(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
		})
	}
}

func TestStoreWritesContentType(t *testing.T) {
	api := &apiFake{}
	s := New(api, nil)

	loc := domain.ObjectLocation{Bucket: "results", Key: "processed/c1-chunks.json"}
	if err := s.Store(context.Background(), loc, []byte("[]"), "application/json"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if len(api.puts) != 1 {
		t.Fatalf("expected one put, got %d", len(api.puts))
	}
	in := api.puts[0]
	if aws.ToString(in.Key) != loc.Key || aws.ToString(in.ContentType) != "application/json" || aws.ToInt64(in.ContentLength) != 2 {
		t.Fatalf("unexpected put input: %+v", in)
	}
}

func TestStoreClassifiesQuota(t *testing.T) {
	s := New(&apiFake{putErr: &smithy.GenericAPIError{Code: "QuotaExceeded"}}, nil)
	err := s.Store(context.Background(), domain.ObjectLocation{Bucket: "r", Key: "k"}, []byte("x"), "application/json")
	if !domain.IsKind(err, domain.ErrStorageQuotaExceeded) {
		t.Fatalf("expected ErrStorageQuotaExceeded, got %v", err)
	}

	s = New(&apiFake{putErr: &smithy.GenericAPIError{Code: "InternalError"}}, nil)
	err = s.Store(context.Background(), domain.ObjectLocation{Bucket: "r", Key: "k"}, []byte("x"), "application/json")
	if !domain.IsKind(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
