package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

const catastrophicCode = "STORAGE_SERVICE_CATASTROPHIC_FAILURE"

// Storage keeps uploads on the local filesystem below basePath.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

// Save writes to a temp file next to the target and renames it into place,
// so readers never see partial objects.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", mapWriteError("create object dir", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", mapWriteError("create file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return "", mapWriteError("write file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", mapWriteError("close file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", mapWriteError("commit file", err)
	}
	return "file://" + filepath.ToSlash(path), nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrAssetNotFound, "open file", err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *Storage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve object path", fmt.Errorf("path %q escapes storage root", key))
	}
	return filepath.Join(s.basePath, clean), nil
}

// mapWriteError turns a full or read-only disk into the catastrophic storage
// error so callers can fall back to the offline queue.
func mapWriteError(op string, err error) error {
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EROFS) {
		ue := domain.NewUploadError(catastrophicCode, domain.StorageDetails{})
		ue.Message = fmt.Sprintf("%s: %v", op, err)
		return ue
	}
	return fmt.Errorf("%s: %w", op, err)
}
