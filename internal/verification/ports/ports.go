// Package ports defines what the verification state machine needs from the
// rest of the system: certificates, evidence collectors and the review queue.
// Adapters in internal/verification/adapters bind them in-process.
package ports

import (
	"context"

	certmodels "certverify/internal/certificate/models"
	"certverify/internal/verification/models"
	id "certverify/pkg/domain"
)

// CertificatePort loads certificates and records the status projection.
type CertificatePort interface {
	Get(ctx context.Context, certID id.CertificateID) (*certmodels.Certificate, error)
	SetStatus(ctx context.Context, certID id.CertificateID, status certmodels.Status) error
}

// Collector gathers evidence for one step. Errors, including timeouts and
// unavailable collaborators, fail only that step.
type Collector interface {
	Collect(ctx context.Context, cert *certmodels.Certificate) (*models.StepOutcome, error)
}

// EscalationRequest carries what the review queue needs to prioritise an
// escalated verification.
type EscalationRequest struct {
	VerificationID   id.VerificationID
	CertificateID    id.CertificateID
	Confidence       float64
	HasCompletedStep bool
	MandatoryFailed  bool
	Reason           string
}

// Escalator routes a REQUIRES_MANUAL_REVIEW verification to human review.
type Escalator interface {
	Escalate(ctx context.Context, req EscalationRequest) error
	// HasOpenReview reports whether a review for the verification is still
	// awaiting a decision.
	HasOpenReview(ctx context.Context, verificationID id.VerificationID) (bool, error)
}
