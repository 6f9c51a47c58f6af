package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

// Storage maps buckets to directories under basePath. It backs local
// development and tests in place of an object store.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Fetch(_ context.Context, loc domain.ObjectLocation) ([]byte, error) {
	path, err := s.path(loc, domain.ErrSourceNotFound)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrSourceNotFound, "read file", err)
		}
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "read file", err)
	}
	return blob, nil
}

// Store writes through a temp file and rename so readers never observe a partial object.
func (s *Storage) Store(_ context.Context, loc domain.ObjectLocation, blob []byte, _ string) error {
	path, err := s.path(loc, domain.ErrStorageUnavailable)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return classifyWriteError("create dir", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return classifyWriteError("create file", err)
	}
	tmp := f.Name()
	if _, err := f.Write(blob); err != nil {
		f.Close()
		os.Remove(tmp)
		return classifyWriteError("write file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return classifyWriteError("close file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return classifyWriteError("rename file", err)
	}
	return nil
}

// path resolves loc under basePath. Unresolvable locations are reported as
// kind so each side keeps its own error taxonomy.
func (s *Storage) path(loc domain.ObjectLocation, kind error) (string, error) {
	if loc.Bucket == "" || loc.Key == "" {
		return "", domain.WrapError(kind, "resolve path", fmt.Errorf("incomplete location %q", loc.String()))
	}
	rel := filepath.Join(loc.Bucket, filepath.FromSlash(loc.Key))
	if !filepath.IsLocal(rel) || strings.HasPrefix(rel, "..") {
		return "", domain.WrapError(kind, "resolve path", fmt.Errorf("location escapes storage root: %s", loc.String()))
	}
	return filepath.Join(s.basePath, rel), nil
}

func classifyWriteError(op string, err error) error {
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return domain.WrapError(domain.ErrStorageQuotaExceeded, op, err)
	}
	return domain.WrapError(domain.ErrStorageUnavailable, op, err)
}
