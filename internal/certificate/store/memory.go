package store

import (
	"context"
	"sync"
	"time"

	"certverify/internal/certificate/models"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	certs map[id.CertificateID]*models.Certificate
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{certs: make(map[id.CertificateID]*models.Certificate)}
}

func (s *InMemoryStore) Create(_ context.Context, cert *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certs[cert.ID]; ok {
		return sentinel.ErrConflict
	}
	s.certs[cert.ID] = cert.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, certID id.CertificateID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[certID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cert.Clone(), nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, certID id.CertificateID, status models.Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[certID]
	if !ok {
		return sentinel.ErrNotFound
	}
	cert.Status = status
	cert.UpdatedAt = now
	return nil
}
