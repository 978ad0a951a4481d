// Package store holds the single-slot blob storage behind the events cache.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no blob has been written yet.
var ErrNotFound = errors.New("store: blob not found")

// Info describes the stored blob.
type Info struct {
	ModTime time.Time
	Size    int64
}

// BlobStore holds at most one blob. Put fully replaces any previous content.
type BlobStore interface {
	Stat(ctx context.Context) (Info, error)
	Get(ctx context.Context) ([]byte, error)
	Put(ctx context.Context, data []byte) error
}

// Exists reports whether s currently holds a blob.
func Exists(ctx context.Context, s BlobStore) bool {
	_, err := s.Stat(ctx)
	return err == nil
}
