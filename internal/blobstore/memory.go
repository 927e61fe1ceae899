package blobstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and ephemeral dev setups.
// Failure hooks let tests inject faults at exact points in the migration
// sequence.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Optional fault injection, consulted before the real operation.
	PutErr    func(path string) error
	GetErr    func(path string) error
	ExistsErr func(path string) error
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (s *Memory) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.PutErr != nil {
		if err := s.PutErr(path); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[path] = buf
	return nil
}

func (s *Memory) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.GetErr != nil {
		if err := s.GetErr(path); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, ErrNotFound
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (s *Memory) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.ExistsErr != nil {
		if err := s.ExistsErr(path); err != nil {
			return false, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[path]
	return ok, nil
}

// Corrupt overwrites a stored object in place, bypassing Put hooks. Tests
// use it to simulate silent truncation between write and confirm.
func (s *Memory) Corrupt(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
}

// Len reports the number of stored objects.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var _ Store = (*Memory)(nil)
