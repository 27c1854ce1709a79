package cache

import (
	"context"
	"sync"
	"time"

	"certverify/internal/evidence/providers"
	"certverify/pkg/platform/sentinel"
)

type entry struct {
	evidence  providers.Evidence
	expiresAt time.Time
}

// MemoryStore is the in-process Store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

// WithClock overrides the time source; used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*providers.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, sentinel.ErrNotFound
	}
	return cloneEvidence(&e.evidence), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, evidence *providers.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{evidence: *cloneEvidence(evidence), expiresAt: s.now().Add(s.ttl)}
	return nil
}

func cloneEvidence(e *providers.Evidence) *providers.Evidence {
	c := *e
	if e.Data != nil {
		c.Data = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			c.Data[k] = v
		}
	}
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
