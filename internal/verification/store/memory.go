package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"certverify/internal/verification/models"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu            sync.RWMutex
	verifications map[id.VerificationID]*models.Verification
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{verifications: make(map[id.VerificationID]*models.Verification)}
}

func (s *InMemoryStore) CreateIfNoActive(_ context.Context, v *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.verifications[v.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.verifications {
		if existing.CertificateID == v.CertificateID && existing.Status.IsActive() {
			return sentinel.ErrConflict
		}
	}
	s.verifications[v.ID] = v.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, verificationID id.VerificationID) (*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verifications[verificationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return v.Clone(), nil
}

func (s *InMemoryStore) ListByCertificate(_ context.Context, certID id.CertificateID) ([]*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Verification
	for _, v := range s.verifications {
		if v.CertificateID == certID {
			out = append(out, v.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attempt != out[j].Attempt {
			return out[i].Attempt < out[j].Attempt
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, v *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.verifications[v.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.verifications[v.ID] = v.Clone()
	return nil
}

func (s *InMemoryStore) UpdateStep(_ context.Context, verificationID id.VerificationID, index int, step models.Step, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[verificationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if index < 0 || index >= len(v.Steps) {
		return sentinel.ErrInvalidState
	}
	v.Steps[index] = step.Clone()
	v.UpdatedAt = now
	return nil
}
