package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the blob in process memory. now stamps each Put; it
// defaults to time.Now.
type MemoryStore struct {
	mu      sync.RWMutex
	data    []byte
	modTime time.Time
	present bool
	now     func() time.Time
}

var _ BlobStore = (*MemoryStore)(nil)

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now}
}

func (s *MemoryStore) Stat(_ context.Context) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return Info{}, ErrNotFound
	}
	return Info{ModTime: s.modTime, Size: int64(len(s.data))}, nil
}

func (s *MemoryStore) Get(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return nil, ErrNotFound
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = cp
	s.modTime = s.now()
	s.present = true
	return nil
}

// setModTime overrides the recorded modification time.
func (s *MemoryStore) setModTime(t time.Time) {
	s.mu.Lock()
	s.modTime = t
	s.mu.Unlock()
}
