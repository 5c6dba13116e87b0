package machine

import (
	"context"
	"sort"
	"sync"

	"laserops/internal/apperrors"
)

// Store persists machine profiles.
type Store interface {
	Create(ctx context.Context, m *Machine) error
	Get(ctx context.Context, id string) (*Machine, error)
	Update(ctx context.Context, m *Machine) error
	List(ctx context.Context) ([]*Machine, error)
}

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	machines map[string]*Machine
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{machines: make(map[string]*Machine)}
}

func (s *MemoryStore) Create(ctx context.Context, m *Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.machines[m.ID]; exists {
		return apperrors.Conflict("machine", m.ID, "machine "+m.ID+" already exists")
	}
	cp := *m
	s.machines[m.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.machines[id]
	if !ok {
		return nil, apperrors.NotFound("machine", id)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, m *Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.machines[m.ID]; !ok {
		return apperrors.NotFound("machine", m.ID)
	}
	cp := *m
	s.machines[m.ID] = &cp
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	machines := make([]*Machine, 0, len(s.machines))
	for _, m := range s.machines {
		cp := *m
		machines = append(machines, &cp)
	}
	sort.Slice(machines, func(i, j int) bool {
		return machines[i].CreatedAt.Before(machines[j].CreatedAt)
	})
	return machines, nil
}

var _ Store = (*MemoryStore)(nil)
