package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps the blob at a fixed path on disk.
type FileStore struct {
	path string
}

var _ BlobStore = (*FileStore)(nil)

// NewFileStore returns a store for path. Nothing is created until the first Put.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: path is empty")
	}
	return &FileStore{path: filepath.Clean(path)}, nil
}

// Path returns the canonical blob path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Stat(_ context.Context) (Info, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, ErrNotFound
		}
		return Info{}, err
	}
	if fi.IsDir() {
		return Info{}, errors.New("store: " + s.path + " is a directory")
	}
	return Info{ModTime: fi.ModTime(), Size: fi.Size()}, nil
}

func (s *FileStore) Get(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Put replaces the blob via WriteFileAtomic.
func (s *FileStore) Put(_ context.Context, data []byte) error {
	return WriteFileAtomic(s.path, data, 0o755, 0o644)
}
