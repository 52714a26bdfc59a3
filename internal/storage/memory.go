package storage

import (
	"context"
	"sync"

	"github.com/xaenox/kontify-triage/internal/models"
)

type MemoryStorage struct {
	mu    sync.RWMutex
	kv    map[string]string
	leads []*models.Lead
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		kv: make(map[string]string),
	}
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv[key] = value
	return nil
}

func (s *MemoryStorage) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.kv, key)
	return nil
}

func (s *MemoryStorage) SaveLead(ctx context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *lead
	if lead.Contact != nil {
		c := *lead.Contact
		stored.Contact = &c
	}
	s.leads = append(s.leads, &stored)
	return nil
}

func (s *MemoryStorage) RecentLeads(ctx context.Context, limit int) ([]*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = normalizeLimit(limit)
	out := make([]*models.Lead, 0, min(limit, len(s.leads)))
	for i := len(s.leads) - 1; i >= 0 && len(out) < limit; i-- {
		l := *s.leads[i]
		out = append(out, &l)
	}
	return out, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
