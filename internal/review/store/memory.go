package store

import (
	"context"
	"sync"
	"time"

	"certverify/internal/review/models"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	reviews map[id.ReviewID]*models.Review
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reviews: make(map[id.ReviewID]*models.Review)}
}

func (s *InMemoryStore) Create(_ context.Context, r *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[r.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.reviews {
		if existing.VerificationID == r.VerificationID && existing.IsOpen() {
			return sentinel.ErrConflict
		}
	}
	s.reviews[r.ID] = r.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, reviewID id.ReviewID) (*models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[reviewID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) FindOpenByVerification(_ context.Context, verificationID id.VerificationID) (*models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reviews {
		if r.VerificationID == verificationID && r.IsOpen() {
			return r.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) List(_ context.Context, filter models.Filter) ([]*models.Review, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	var out []*models.Review
	for _, r := range s.reviews {
		if filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()

	models.SortQueue(out)
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Assign is a compare-and-set under the store lock.
func (s *InMemoryStore) Assign(_ context.Context, reviewID id.ReviewID, verifier id.VerifierID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[reviewID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if r.Status != models.StatusPending || r.AssignedTo != nil {
		return sentinel.ErrConflict
	}
	updated := r.Clone()
	if err := updated.Assign(verifier, now); err != nil {
		return sentinel.ErrConflict
	}
	s.reviews[reviewID] = updated
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, r *models.Review, expected models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.reviews[r.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expected {
		return sentinel.ErrConflict
	}
	s.reviews[r.ID] = r.Clone()
	return nil
}
