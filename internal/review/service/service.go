package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"certverify/internal/review/metrics"
	"certverify/internal/review/models"
	vmodels "certverify/internal/verification/models"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/platform/audit"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/platform/tx"
	"certverify/pkg/requestcontext"
)

type Store interface {
	// Create inserts r. A second open review for the same verification is
	// sentinel.ErrConflict.
	Create(ctx context.Context, r *models.Review) error
	FindByID(ctx context.Context, reviewID id.ReviewID) (*models.Review, error)
	FindOpenByVerification(ctx context.Context, verificationID id.VerificationID) (*models.Review, error)
	List(ctx context.Context, filter models.Filter) ([]*models.Review, error)
	// Assign sets the assignee only while the review is PENDING and
	// unassigned; otherwise sentinel.ErrConflict.
	Assign(ctx context.Context, reviewID id.ReviewID, verifier id.VerifierID, now time.Time) error
	// Update writes r if the stored status is still expected; otherwise
	// sentinel.ErrConflict.
	Update(ctx context.Context, r *models.Review, expected models.Status) error
}

// VerificationWriter records a reviewer's verdict on the verification.
type VerificationWriter interface {
	ApplyReviewDecision(ctx context.Context, verificationID id.VerificationID, result vmodels.Result, confidenceOverride *float64) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// EscalationRequest opens a review for a verification that needs a human.
type EscalationRequest struct {
	VerificationID   id.VerificationID
	CertificateID    id.CertificateID
	Confidence       float64
	HasCompletedStep bool
	MandatoryFailed  bool
	Reason           string
}

// SubmitDecisionRequest is a reviewer's verdict.
type SubmitDecisionRequest struct {
	ReviewID           id.ReviewID
	VerifierID         id.VerifierID
	Decision           models.Decision
	Comments           string
	ConfidenceOverride *float64
}

// DecisionResult is the completed review plus the follow-up opened for
// NEEDS_MORE_INFO, if any.
type DecisionResult struct {
	Review   *models.Review `json:"review"`
	FollowUp *models.Review `json:"followUp,omitempty"`
}

type Service struct {
	store          Store
	verifications  VerificationWriter
	tx             tx.Runner
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	now            func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, verifications VerificationWriter, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:         store,
		verifications: verifications,
		tx:            runner,
		logger:        slog.New(slog.DiscardHandler),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Escalate opens a PENDING review for the verification. Escalating a
// verification that already has an open review returns that review.
func (s *Service) Escalate(ctx context.Context, req EscalationRequest) (*models.Review, error) {
	if existing, err := s.store.FindOpenByVerification(ctx, req.VerificationID); err == nil {
		return existing, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up open review")
	}

	priority := models.PriorityFor(models.PriorityInput{
		HasCompletedStep: req.HasCompletedStep,
		MandatoryFailed:  req.MandatoryFailed,
		Confidence:       req.Confidence,
	})
	r := models.NewReview(id.NewReviewID(), req.VerificationID, req.CertificateID, priority, req.Reason, nil, s.now())
	if err := s.store.Create(ctx, r); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with a concurrent escalation of the same verification.
			existing, findErr := s.store.FindOpenByVerification(ctx, req.VerificationID)
			if findErr == nil {
				return existing, nil
			}
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open review")
	}

	s.metrics.IncrementOpened(string(r.Priority), "escalation")
	s.logger.InfoContext(ctx, "review opened",
		"review_id", r.ID,
		"verification_id", r.VerificationID,
		"priority", r.Priority,
	)
	return r, nil
}

// HasOpenReview reports whether the verification is still waiting on a
// reviewer.
func (s *Service) HasOpenReview(ctx context.Context, verificationID id.VerificationID) (bool, error) {
	_, err := s.store.FindOpenByVerification(ctx, verificationID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return false, nil
	default:
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up open review")
	}
}

func (s *Service) Get(ctx context.Context, reviewID id.ReviewID) (*models.Review, error) {
	r, err := s.store.FindByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("review %s not found", reviewID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load review")
	}
	return r, nil
}

// List returns the queue ordered URGENT first, then oldest first.
func (s *Service) List(ctx context.Context, filter models.Filter) ([]*models.Review, error) {
	list, err := s.store.List(ctx, filter.Normalize())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list reviews")
	}
	return list, nil
}

// Assign claims a PENDING review for verifier. Concurrent claims have
// exactly one winner; the others get a conflict.
func (s *Service) Assign(ctx context.Context, reviewID id.ReviewID, verifier id.VerifierID) (*models.Review, error) {
	if verifier.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "verifier identity is required")
	}
	if err := s.store.Assign(ctx, reviewID, verifier, s.now()); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("review %s not found", reviewID))
		case errors.Is(err, sentinel.ErrConflict):
			s.metrics.IncrementAssignment(false)
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("review %s is not available for assignment", reviewID))
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign review")
		}
	}
	s.metrics.IncrementAssignment(true)
	s.emitAudit(ctx, audit.EventReviewAssigned, reviewID, verifier, "", "")
	s.logger.InfoContext(ctx, "review assigned", "review_id", reviewID, "verifier_id", verifier)
	return s.Get(ctx, reviewID)
}

// StartReview marks an assigned review as being worked on.
func (s *Service) StartReview(ctx context.Context, reviewID id.ReviewID, verifier id.VerifierID) (*models.Review, error) {
	r, err := s.transition(ctx, reviewID, func(r *models.Review) error {
		return r.StartReview(verifier, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.EventReviewStarted, reviewID, verifier, "", "")
	return r, nil
}

// Release returns the review to the queue so another verifier can claim it.
func (s *Service) Release(ctx context.Context, reviewID id.ReviewID, verifier id.VerifierID) (*models.Review, error) {
	r, err := s.transition(ctx, reviewID, func(r *models.Review) error {
		return r.Release(verifier, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.EventReviewReleased, reviewID, verifier, "", "")
	s.logger.InfoContext(ctx, "review released", "review_id", reviewID, "verifier_id", verifier)
	return r, nil
}

func (s *Service) transition(ctx context.Context, reviewID id.ReviewID, apply func(*models.Review) error) (*models.Review, error) {
	r, err := s.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	from := r.Status
	if err := apply(r); err != nil {
		return nil, err
	}
	if err := s.update(ctx, r, from); err != nil {
		return nil, err
	}
	return r, nil
}

// SubmitDecision completes the review and writes the verdict back onto the
// verification in one unit of work. NEEDS_MORE_INFO leaves the verification
// under review and opens a linked follow-up review.
func (s *Service) SubmitDecision(ctx context.Context, req SubmitDecisionRequest) (*DecisionResult, error) {
	var result DecisionResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.Get(ctx, req.ReviewID)
		if err != nil {
			return err
		}
		from := r.Status
		if err := r.Complete(req.VerifierID, req.Decision, req.Comments, req.ConfidenceOverride, s.now()); err != nil {
			return err
		}
		if err := s.verifications.ApplyReviewDecision(ctx, r.VerificationID, req.Decision.VerificationResult(), req.ConfidenceOverride); err != nil {
			return err
		}
		if err := s.update(ctx, r, from); err != nil {
			return err
		}
		result.Review = r

		if req.Decision != models.DecisionNeedsMoreInfo {
			return nil
		}
		prev := r.ID
		follow := models.NewReview(id.NewReviewID(), r.VerificationID, r.CertificateID, r.Priority,
			followUpReason(req.Comments), &prev, s.now())
		if err := s.store.Create(ctx, follow); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to open follow-up review")
		}
		result.FollowUp = follow
		return nil
	})
	if err != nil {
		return nil, err
	}

	r := result.Review
	s.metrics.ObserveDecision(string(req.Decision), r.CompletedAt.Sub(r.CreatedAt).Seconds())
	s.emitAudit(ctx, audit.EventReviewDecided, r.ID, req.VerifierID, string(req.Decision), req.Comments)
	s.logger.InfoContext(ctx, "review decided",
		"review_id", r.ID,
		"verification_id", r.VerificationID,
		"verifier_id", req.VerifierID,
		"decision", req.Decision,
	)
	if f := result.FollowUp; f != nil {
		s.metrics.IncrementOpened(string(f.Priority), "follow_up")
		s.emitAudit(ctx, audit.EventReviewFollowUp, f.ID, req.VerifierID, "", f.Reason)
	}
	return &result, nil
}

func (s *Service) update(ctx context.Context, r *models.Review, from models.Status) error {
	if err := s.store.Update(ctx, r, from); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("review %s not found", r.ID))
		case errors.Is(err, sentinel.ErrConflict):
			return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("review %s was modified concurrently", r.ID))
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save review")
		}
	}
	return nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, reviewID id.ReviewID, verifier id.VerifierID, decision, reason string) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		SubjectType: "review",
		Subject:     reviewID.String(),
		Action:      string(event),
		Decision:    decision,
		Reason:      reason,
		ActorID:     verifier.String(),
		RequestID:   requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event, "review_id", reviewID, "error", err)
	}
}

func followUpReason(comments string) string {
	if comments == "" {
		return "more information requested"
	}
	return "more information requested: " + comments
}
