package roster

import (
	"context"
	"sort"
	"sync"
)

// MemoryRoster is an in-process roster for tests and dry runs.
type MemoryRoster struct {
	mu      sync.Mutex
	members map[string]map[int64]struct{}
}

// NewMemoryRoster creates an empty roster.
func NewMemoryRoster() *MemoryRoster {
	return &MemoryRoster{members: make(map[string]map[int64]struct{})}
}

func (r *MemoryRoster) Add(_ context.Context, roleGroup string, subjectID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[roleGroup] == nil {
		r.members[roleGroup] = make(map[int64]struct{})
	}
	r.members[roleGroup][subjectID] = struct{}{}
	return nil
}

func (r *MemoryRoster) Remove(_ context.Context, roleGroup string, subjectID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members[roleGroup], subjectID)
	return nil
}

func (r *MemoryRoster) List(_ context.Context, roleGroup string) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.members[roleGroup]))
	for id := range r.members[roleGroup] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
