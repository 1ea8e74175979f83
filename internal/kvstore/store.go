// Package kvstore provides the small key-value contract metrics persistence
// is written against, with in-memory, JSON file and SQLite backends.
package kvstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Store is a durable key-value store. Get reports false for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Open returns the backend named by kind ("memory", "file" or "sqlite")
// rooted at path. Callers should Close the result when it implements
// io.Closer.
func Open(kind, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "file":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("kvstore: file backend needs a path")
		}
		return &File{Path: path}, nil
	case "sqlite":
		return OpenSQLite(path)
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("kvstore: unknown backend %q", kind)
}

// Memory is a process-local Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}
