package documents

import (
	"context"
	"sort"
	"sync"

	"github.com/platinummonkey/carehub/pkg/apperr"
)

// MemoryArchive keeps documents in memory.
type MemoryArchive struct {
	mu    sync.RWMutex
	items map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryArchive creates an empty archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{items: make(map[string]memoryObject)}
}

func (a *MemoryArchive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (a *MemoryArchive) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	obj, ok := a.items[key]
	if !ok {
		return nil, apperr.NotFound("document", key)
	}
	return append([]byte(nil), obj.data...), nil
}

// Keys lists stored keys in order.
func (a *MemoryArchive) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	keys := make([]string, 0, len(a.items))
	for k := range a.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
