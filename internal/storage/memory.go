package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process ObjectStore for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	puts    map[string]int

	failErr  error
	failLeft int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		puts:    make(map[string]int),
	}
}

func memKey(bucket, key string) string {
	return bucket + "/" + key
}

// FailNext makes the next n operations return err.
func (m *MemoryStore) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr, m.failLeft = err, n
}

func (m *MemoryStore) injected() error {
	if m.failLeft > 0 {
		m.failLeft--
		return m.failErr
	}
	return nil
}

func (m *MemoryStore) Put(_ context.Context, bucket, key string, data []byte, _ string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[memKey(bucket, key)] = buf
	m.puts[memKey(bucket, key)]++
	return nil
}

func (m *MemoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(); err != nil {
		return nil, err
	}
	data, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (m *MemoryStore) List(_ context.Context, bucket, prefix, startAfter string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	full := memKey(bucket, prefix)
	var keys []string
	for k := range m.objects {
		if !strings.HasPrefix(k, full) {
			continue
		}
		if key := strings.TrimPrefix(k, bucket+"/"); key > startAfter {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (m *MemoryStore) Ping(context.Context, string) error {
	return nil
}

// PutCount reports how many writes reached key.
func (m *MemoryStore) PutCount(bucket, key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts[memKey(bucket, key)]
}

// Len reports the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
