package store

import (
	"sync"
	"time"

	"github.com/steward-sh/steward/pkg/types"
)

// MemoryStore is an in-memory Repository used by tests and by
// single-process demos; it mirrors BoltStore's semantics without touching
// disk.
type MemoryStore struct {
	mu        sync.RWMutex
	groups    map[string]*types.Group
	versions  map[string][]int64
	instances map[string]map[string]*types.Instance // runSpecPath -> instanceID -> instance
}

// NewMemoryStore returns an empty in-memory repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:    make(map[string]*types.Group),
		versions:  make(map[string][]int64),
		instances: make(map[string]map[string]*types.Instance),
	}
}

func (s *MemoryStore) Get(path string) (*types.Group, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[path]
	return g, ok, nil
}

func (s *MemoryStore) Put(path string, group *types.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[path] = group
	s.versions[path] = append([]int64{time.Now().UnixNano()}, s.versions[path]...)
	return nil
}

func (s *MemoryStore) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, path)
	delete(s.versions, path)
	return nil
}

func (s *MemoryStore) Versions(path string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.versions[path]...), nil
}

func (s *MemoryStore) Root() (*types.Group, error) {
	g, ok, _ := s.Get("/")
	if !ok {
		return types.NewGroup("/"), nil
	}
	return g, nil
}

func (s *MemoryStore) PutInstance(runSpecPath string, instance *types.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instances[runSpecPath] == nil {
		s.instances[runSpecPath] = make(map[string]*types.Instance)
	}
	s.instances[runSpecPath][instance.ID] = instance.Clone()
	return nil
}

func (s *MemoryStore) GetInstance(runSpecPath, instanceID string) (*types.Instance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.instances[runSpecPath]
	if !ok {
		return nil, false, nil
	}
	inst, ok := m[instanceID]
	if !ok {
		return nil, false, nil
	}
	return inst.Clone(), true, nil
}

func (s *MemoryStore) ListInstances(runSpecPath string) ([]*types.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Instance
	for _, inst := range s.instances[runSpecPath] {
		out = append(out, inst.Clone())
	}
	return out, nil
}

func (s *MemoryStore) ListAllInstances() ([]*types.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Instance
	for _, m := range s.instances {
		for _, inst := range m {
			out = append(out, inst.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteInstance(runSpecPath, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.instances[runSpecPath]; ok {
		delete(m, instanceID)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Repository = (*MemoryStore)(nil)
var _ Repository = (*BoltStore)(nil)
