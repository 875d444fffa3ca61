package membership

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/period"
)

// MemoryStore is an in-process Store for tests and local tooling.
type MemoryStore struct {
	mu       sync.RWMutex
	subjects map[int64]bool
	groups   map[string]RoleGroup
	records  map[int64]Record
	nextID   int64
}

// NewMemoryStore creates an empty store. Subjects must be registered with
// AddSubject before they can receive grants.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subjects: make(map[int64]bool),
		groups:   make(map[string]RoleGroup),
		records:  make(map[int64]Record),
	}
}

// AddSubject registers subject ids.
func (s *MemoryStore) AddSubject(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.subjects[id] = true
	}
}

func (s *MemoryStore) SubjectExists(_ context.Context, subjectID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subjects[subjectID], nil
}

func (s *MemoryStore) CreateRoleGroup(_ context.Context, group *RoleGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group.Name]; ok {
		return apperr.ErrInvalidTransition
	}
	s.nextID++
	group.ID = s.nextID
	group.CreatedAt = time.Now()
	s.groups[group.Name] = *group
	return nil
}

func (s *MemoryStore) GetRoleGroup(_ context.Context, name string) (*RoleGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[name]
	if !ok {
		return nil, apperr.NotFound("role group", name)
	}
	return &g, nil
}

func (s *MemoryStore) ListRoleGroups(_ context.Context) ([]RoleGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]RoleGroup, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (s *MemoryStore) DeleteRoleGroup(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[name]; !ok {
		return apperr.NotFound("role group", name)
	}
	delete(s.groups, name)
	return nil
}

func (s *MemoryStore) CreateRecord(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[record.RoleGroup]; !ok {
		return apperr.NotFound("role group", record.RoleGroup)
	}
	s.nextID++
	record.ID = s.nextID
	record.CreatedAt = time.Now()
	record.StartDate = normalise(record.StartDate)
	record.EndDate = normalise(record.EndDate)
	s.records[record.ID] = *record
	return nil
}

func (s *MemoryStore) GetRecord(_ context.Context, id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, apperr.NotFound("membership", id)
	}
	return &r, nil
}

func (s *MemoryStore) UpdateRecordDates(_ context.Context, id int64, start, end *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return apperr.NotFound("membership", id)
	}
	r.StartDate = normalise(start)
	r.EndDate = normalise(end)
	s.records[id] = r
	return nil
}

func (s *MemoryStore) DeleteRecord(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return apperr.NotFound("membership", id)
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) ListBySubject(_ context.Context, subjectID int64) ([]Record, error) {
	return s.filter(func(r Record) bool { return r.SubjectID == subjectID }), nil
}

func (s *MemoryStore) ListByRoleGroup(_ context.Context, roleGroup string) ([]Record, error) {
	return s.filter(func(r Record) bool { return r.RoleGroup == roleGroup }), nil
}

func (s *MemoryStore) filter(keep func(Record) bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalise(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return period.Ptr(*t)
}
