package blob

import (
	"context"
	"sync"
)

// Memory is an in-process Backend used by tests and single-node dev setups.
// It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Get implements Backend.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.entries[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, ContentETag(data), nil
}

// Put implements Backend. The compare and the write happen under one lock,
// which is what makes the CAS discipline of the store hold on this backend.
func (m *Memory) Put(ctx context.Context, key string, data []byte, expectedETag string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.entries[key]
	switch {
	case !exists && expectedETag != "":
		return "", ErrETagMismatch
	case exists && ContentETag(cur) != expectedETag:
		return "", ErrETagMismatch
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	m.entries[key] = cp
	return ContentETag(cp), nil
}
