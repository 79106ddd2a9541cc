// internal/app/system/offline/memory.go
package offline

import (
	"context"
	"sort"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryRegistry is an in-process Registry. Entries never expire; they
// live until their partition is deleted.
type MemoryRegistry struct {
	mu         sync.RWMutex
	partitions map[string]*memoryPartition
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{partitions: make(map[string]*memoryPartition)}
}

func (m *MemoryRegistry) Open(_ context.Context, name string) (Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[name]
	if !ok {
		p = &memoryPartition{
			name:  name,
			items: gocache.New(gocache.NoExpiration, 0),
		}
		m.partitions[name] = p
	}
	return p, nil
}

func (m *MemoryRegistry) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[name]
	if !ok {
		return false, nil
	}
	delete(m.partitions, name)
	p.mu.Lock()
	p.deleted = true
	p.mu.Unlock()
	p.items.Flush()
	return true, nil
}

func (m *MemoryRegistry) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.partitions))
	for name := range m.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type memoryPartition struct {
	name  string
	mu      sync.Mutex // serialises PutAll against Put and Delete
	items   *gocache.Cache
	deleted bool
}

func memoryKey(key RequestKey) string {
	return key.Method + " " + key.URL
}

func (p *memoryPartition) Name() string { return p.name }

func (p *memoryPartition) Match(_ context.Context, key RequestKey) (Response, bool, error) {
	v, ok := p.items.Get(memoryKey(key))
	if !ok {
		return Response{}, false, nil
	}
	return v.(Response).Clone(), true, nil
}

func (p *memoryPartition) Put(_ context.Context, key RequestKey, resp Response) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted {
		return ErrPartitionDeleted
	}
	p.items.Set(memoryKey(key), resp.Clone(), gocache.NoExpiration)
	return nil
}

func (p *memoryPartition) PutAll(_ context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := CheckKey(e.Key); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted {
		return ErrPartitionDeleted
	}
	for _, e := range entries {
		p.items.Set(memoryKey(e.Key), e.Response.Clone(), gocache.NoExpiration)
	}
	return nil
}

func (p *memoryPartition) Len(_ context.Context) (int, error) {
	return p.items.ItemCount(), nil
}
