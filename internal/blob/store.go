package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("blob not found")

// Store persists opaque solution archives. Put returns a handle that
// Get resolves back to the original bytes.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, handle string) ([]byte, error)
}

// FSStore is a content-addressed filesystem store. The handle is the
// SHA-256 hex digest of the content, so writes of identical archives
// are idempotent and a retried submission lands on the same handle.
type FSStore struct {
	Dir      string
	MaxBytes int64
}

func NewFSStore(dir string, maxBytes int64) *FSStore {
	return &FSStore{Dir: dir, MaxBytes: maxBytes}
}

func (s *FSStore) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty archive")
	}
	if s.MaxBytes > 0 && int64(len(data)) > s.MaxBytes {
		return "", fmt.Errorf("archive exceeds %d bytes", s.MaxBytes)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	handle := hex.EncodeToString(sum[:])
	path := filepath.Join(s.Dir, handle)
	if _, err := os.Stat(path); err == nil {
		return handle, nil
	}
	// Write to a temp file first so a crash never leaves a partial blob
	// under its final handle.
	tmp, err := os.CreateTemp(s.Dir, "put-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return handle, nil
}

func (s *FSStore) Get(ctx context.Context, handle string) ([]byte, error) {
	if handle == "" || handle != filepath.Base(handle) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, handle))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}
