package adapters

import (
	"context"
	"errors"
	"sync"

	reviewmodels "certverify/internal/review/models"
	reviewservice "certverify/internal/review/service"
	"certverify/internal/verification/ports"
	id "certverify/pkg/domain"
)

// ReviewQueue is the part of the review service escalation needs.
type ReviewQueue interface {
	Escalate(ctx context.Context, req reviewservice.EscalationRequest) (*reviewmodels.Review, error)
	HasOpenReview(ctx context.Context, verificationID id.VerificationID) (bool, error)
}

// ReviewEscalator implements ports.Escalator by opening a manual review
// in-process. The review service writes decisions back through the
// verification service, so the queue is bound after both exist.
type ReviewEscalator struct {
	mu    sync.RWMutex
	queue ReviewQueue
}

func NewReviewEscalator(queue ReviewQueue) *ReviewEscalator {
	return &ReviewEscalator{queue: queue}
}

// Bind sets the queue escalations go to.
func (e *ReviewEscalator) Bind(queue ReviewQueue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = queue
}

func (e *ReviewEscalator) bound() ReviewQueue {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.queue
}

// HasOpenReview is false while no queue is bound.
func (e *ReviewEscalator) HasOpenReview(ctx context.Context, verificationID id.VerificationID) (bool, error) {
	queue := e.bound()
	if queue == nil {
		return false, nil
	}
	return queue.HasOpenReview(ctx, verificationID)
}

func (e *ReviewEscalator) Escalate(ctx context.Context, req ports.EscalationRequest) error {
	queue := e.bound()
	if queue == nil {
		return errors.New("review queue not configured")
	}
	_, err := queue.Escalate(ctx, reviewservice.EscalationRequest{
		VerificationID:   req.VerificationID,
		CertificateID:    req.CertificateID,
		Confidence:       req.Confidence,
		HasCompletedStep: req.HasCompletedStep,
		MandatoryFailed:  req.MandatoryFailed,
		Reason:           req.Reason,
	})
	return err
}
