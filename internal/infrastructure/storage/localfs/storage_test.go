package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

func TestStoreThenFetch(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	loc := domain.ObjectLocation{Bucket: "results", Key: "processed/c1-chunks.json"}

	if err := s.Store(context.Background(), loc, []byte("[1]"), "application/json"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := s.Store(context.Background(), loc, []byte("[2]"), "application/json"); err != nil {
		t.Fatalf("Store() overwrite error = %v", err)
	}
	blob, err := s.Fetch(context.Background(), loc)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(blob) != "[2]" {
		t.Fatalf("expected overwritten blob, got %q", blob)
	}

	entries, err := os.ReadDir(filepath.Join(s.basePath, "results", "processed"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestFetchMissingIsSourceNotFound(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = s.Fetch(context.Background(), domain.ObjectLocation{Bucket: "b", Key: "k2"})
	if !domain.IsKind(err, domain.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = s.Fetch(context.Background(), domain.ObjectLocation{Bucket: "b", Key: "../../etc/passwd"})
	if !domain.IsKind(err, domain.ErrSourceNotFound) {
		t.Fatalf("expected traversal on fetch to be ErrSourceNotFound, got %v", err)
	}
}

func TestStoreEscapingKeyIsStorageUnavailable(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	err = s.Store(context.Background(), domain.ObjectLocation{Bucket: "b", Key: "processed/../../../x-chunks.json"}, []byte("[]"), "application/json")
	class := domain.Classify(err)
	if class.Code != domain.CodeStorageUnavailable {
		t.Fatalf("expected STORAGE_UNAVAILABLE, got %+v (%v)", class, err)
	}

	err = s.Store(context.Background(), domain.ObjectLocation{Bucket: "b"}, []byte("[]"), "application/json")
	if !domain.IsKind(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected incomplete location on store to be ErrStorageUnavailable, got %v", err)
	}
}

func TestClassifyWriteError(t *testing.T) {
	if err := classifyWriteError("write", fmt.Errorf("write: %w", syscall.ENOSPC)); !domain.IsKind(err, domain.ErrStorageQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if err := classifyWriteError("write", syscall.EIO); !domain.IsKind(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
