package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	certmodels "certverify/internal/certificate/models"
	"certverify/internal/verification/metrics"
	"certverify/internal/verification/models"
	"certverify/internal/verification/ports"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/platform/audit"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/requestcontext"
)

const (
	DefaultStepTimeout = 30 * time.Second
	DefaultRunTimeout  = 2 * time.Minute

	persistTimeout = 5 * time.Second

	terminalSaveRetries  = 2
	terminalSaveInterval = 200 * time.Millisecond
)

var tracer = otel.Tracer("certverify/internal/verification")

type Store interface {
	// CreateIfNoActive inserts v unless the certificate already has a
	// PENDING or IN_PROGRESS verification, in which case it returns
	// sentinel.ErrConflict. The check and insert are atomic.
	CreateIfNoActive(ctx context.Context, v *models.Verification) error
	FindByID(ctx context.Context, verificationID id.VerificationID) (*models.Verification, error)
	ListByCertificate(ctx context.Context, certID id.CertificateID) ([]*models.Verification, error)
	Update(ctx context.Context, v *models.Verification) error
	// UpdateStep persists a single step so concurrent steps never overwrite
	// each other.
	UpdateStep(ctx context.Context, verificationID id.VerificationID, index int, step models.Step, now time.Time) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	certificates   ports.CertificatePort
	collectors     map[models.StepType]ports.Collector
	escalator      ports.Escalator
	policy         models.Policy
	stepTimeout    time.Duration
	runTimeout     time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	now            func() time.Time
	saveInterval   time.Duration

	inflight sync.WaitGroup
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

// WithCollector registers the evidence collector for a step type. Steps
// without a collector are SKIPPED.
func WithCollector(step models.StepType, c ports.Collector) Option {
	return func(s *Service) {
		if c != nil {
			s.collectors[step] = c
		}
	}
}

func WithEscalator(e ports.Escalator) Option {
	return func(s *Service) {
		s.escalator = e
	}
}

func WithPolicy(p models.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithTimeouts bounds each evidence step and the whole run.
func WithTimeouts(step, run time.Duration) Option {
	return func(s *Service) {
		if step > 0 {
			s.stepTimeout = step
		}
		if run > 0 {
			s.runTimeout = run
		}
	}
}

func New(store Store, certificates ports.CertificatePort, opts ...Option) *Service {
	s := &Service{
		store:        store,
		certificates: certificates,
		collectors:   make(map[models.StepType]ports.Collector),
		policy:       models.DefaultPolicy(),
		stepTimeout:  DefaultStepTimeout,
		runTimeout:   DefaultRunTimeout,
		logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
		saveInterval: terminalSaveInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a verification of the certificate and returns it IN_PROGRESS.
// Evidence collection continues in the background.
func (s *Service) Start(ctx context.Context, certID id.CertificateID, vtype models.Type) (*models.Verification, error) {
	if vtype.Steps() == nil {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported verification type %q", vtype))
	}
	cert, err := s.certificates.Get(ctx, certID)
	if err != nil {
		return nil, err
	}
	v := models.NewVerification(id.NewVerificationID(), certID, vtype, s.policy, 1, nil, s.now())
	return s.launch(ctx, v, cert, audit.EventVerificationStarted, "start")
}

// Retry starts a new attempt after an UNVERIFIED verdict or a failed run.
// The new attempt goes through the same conditional create as Start. A run
// still waiting on a reviewer cannot be retried.
func (s *Service) Retry(ctx context.Context, verificationID id.VerificationID) (*models.Verification, error) {
	prev, err := s.Get(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if !prev.CanRetry() {
		return nil, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("verification %s cannot be retried (status %s, result %s)", prev.ID, prev.Status, prev.Result))
	}
	if prev.Result == models.ResultRequiresManualReview && s.escalator != nil {
		open, err := s.escalator.HasOpenReview(ctx, prev.ID)
		if err != nil {
			return nil, err
		}
		if open {
			return nil, dErrors.New(dErrors.CodeInvalidState,
				fmt.Sprintf("verification %s has an open manual review; submit a decision instead", prev.ID))
		}
	}
	cert, err := s.certificates.Get(ctx, prev.CertificateID)
	if err != nil {
		return nil, err
	}
	prevID := prev.ID
	v := models.NewVerification(id.NewVerificationID(), prev.CertificateID, prev.VerificationType, s.policy, prev.Attempt+1, &prevID, s.now())
	return s.launch(ctx, v, cert, audit.EventVerificationRetried, "retry")
}

func (s *Service) launch(ctx context.Context, v *models.Verification, cert *certmodels.Certificate, event audit.AuditEvent, trigger string) (*models.Verification, error) {
	if err := s.store.CreateIfNoActive(ctx, v); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("certificate %s already has a verification in progress", v.CertificateID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification")
	}

	s.project(ctx, v.CertificateID, certmodels.StatusPending)
	s.metrics.IncrementStarted(string(v.VerificationType), trigger)
	s.emitAudit(ctx, event, v.ID, string(v.VerificationType), "")
	s.logger.InfoContext(ctx, "verification started",
		"verification_id", v.ID,
		"certificate_id", v.CertificateID,
		"verification_type", v.VerificationType,
		"attempt", v.Attempt,
	)

	snapshot := v.Clone()
	s.inflight.Add(1)
	go s.run(context.WithoutCancel(ctx), v, cert)
	return snapshot, nil
}

// run collects evidence for every step concurrently, joins, aggregates and
// escalates. Steps never fail the group, so one failure cannot cancel its
// siblings.
func (s *Service) run(ctx context.Context, v *models.Verification, cert *certmodels.Certificate) {
	defer s.inflight.Done()
	s.metrics.RunStarted()
	defer s.metrics.RunFinished()

	ctx, span := tracer.Start(ctx, "verification.run")
	span.SetAttributes(
		attribute.String("verification.id", v.ID.String()),
		attribute.String("verification.type", string(v.VerificationType)),
		attribute.Int("verification.attempt", v.Attempt),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "verification run panicked", "verification_id", v.ID, "panic", r)
			span.SetStatus(codes.Error, "panic")
			s.abort(ctx, v, fmt.Sprintf("internal error during verification: %v", r))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	var g errgroup.Group
	for i := range v.Steps {
		g.Go(func() error {
			s.runStep(runCtx, v.ID, cert, i, &v.Steps[i])
			return nil
		})
	}
	_ = g.Wait()

	s.finalize(ctx, v)
	if v.Status == models.StatusFailed {
		span.SetStatus(codes.Error, v.FailureReason)
	}
}

func (s *Service) runStep(ctx context.Context, verificationID id.VerificationID, cert *certmodels.Certificate, index int, step *models.Step) {
	collector, ok := s.collectors[step.StepType]
	if !ok {
		step.Skip("no evidence collector configured", s.now())
		s.persistStep(ctx, verificationID, index, *step)
		s.metrics.ObserveStep(string(step.StepType), string(step.Status), 0)
		return
	}

	step.Start(s.now())
	s.persistStep(ctx, verificationID, index, *step)

	ctx, span := tracer.Start(ctx, "verification.step")
	span.SetAttributes(attribute.String("step.type", string(step.StepType)))
	defer span.End()

	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	start := time.Now()
	outcome, err := collect(stepCtx, collector, cert)
	stepErr := stepCtx.Err()
	cancel()

	switch {
	case err != nil:
		reason := err.Error()
		if errors.Is(stepErr, context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %s", s.stepTimeout)
			if ctx.Err() != nil {
				reason = fmt.Sprintf("verification run timed out after %s", s.runTimeout)
			}
		}
		step.Fail(reason, s.now())
		span.RecordError(err)
		span.SetStatus(codes.Error, "collection failed")
		s.logger.WarnContext(ctx, "verification step failed",
			"verification_id", verificationID,
			"step_type", step.StepType,
			"error", err,
		)
	case outcome == nil:
		step.Fail("collector returned no outcome", s.now())
	default:
		step.Complete(*outcome, s.now())
	}
	s.persistStep(ctx, verificationID, index, *step)
	s.metrics.ObserveStep(string(step.StepType), string(step.Status), time.Since(start))
}

// collect isolates a panicking collector to its own step.
func collect(ctx context.Context, c ports.Collector, cert *certmodels.Certificate) (outcome *models.StepOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evidence collector panicked: %v", r)
		}
	}()
	return c.Collect(ctx, cert)
}

func (s *Service) finalize(ctx context.Context, v *models.Verification) {
	agg := models.Aggregate(s.policy, v.VerificationType, v.Steps)
	v.Finish(agg, s.now())

	if err := s.saveTerminal(ctx, v); err != nil {
		s.logger.ErrorContext(ctx, "failed to save verification result", "verification_id", v.ID, "error", err)
		s.abort(ctx, v, "failed to save verification result: "+err.Error())
		return
	}
	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()
	s.project(persistCtx, v.CertificateID, projection(v.Result))

	s.metrics.IncrementOutcome(string(v.VerificationType), string(v.Status), string(v.Result))
	s.emitAudit(ctx, audit.EventVerificationCompleted, v.ID, string(v.Result), v.FailureReason)
	s.logger.InfoContext(ctx, "verification finished",
		"verification_id", v.ID,
		"certificate_id", v.CertificateID,
		"status", v.Status,
		"result", v.Result,
		"confidence", v.ConfidenceScore,
	)

	if s.escalationNeeded(v) {
		s.escalate(ctx, v)
	}
}

// escalate hands the verification to the review queue. A failed hand-off is
// recorded on the verification rather than retried.
func (s *Service) escalate(ctx context.Context, v *models.Verification) {
	req := ports.EscalationRequest{
		VerificationID:   v.ID,
		CertificateID:    v.CertificateID,
		Confidence:       v.ConfidenceScore,
		HasCompletedStep: v.HasCompletedStep(),
		MandatoryFailed:  v.MandatoryFailed(),
		Reason:           escalationReason(v),
	}
	err := s.escalator.Escalate(ctx, req)
	if err == nil {
		s.emitAudit(ctx, audit.EventVerificationEscalated, v.ID, string(v.Result), req.Reason)
		return
	}

	s.metrics.IncrementEscalationFailure()
	s.logger.ErrorContext(ctx, "failed to escalate verification",
		"verification_id", v.ID,
		"error", err,
	)
	v.FailureReason = joinReason(v.FailureReason, "escalation to manual review failed: "+err.Error())
	v.UpdatedAt = s.now()
	if err := s.saveTerminal(ctx, v); err != nil {
		s.logger.ErrorContext(ctx, "failed to record escalation failure", "verification_id", v.ID, "error", err)
	}
}

func (s *Service) escalationNeeded(v *models.Verification) bool {
	return v.Result == models.ResultRequiresManualReview && s.escalator != nil
}

// abort ends a run that could not be aggregated or saved normally. The
// FAILED attempt releases the certificate for Start and Retry.
func (s *Service) abort(ctx context.Context, v *models.Verification, reason string) {
	v.Finish(models.Aggregation{
		Status: models.StatusFailed,
		Result: models.ResultRequiresManualReview,
		Reason: reason,
	}, s.now())
	if err := s.saveTerminal(ctx, v); err != nil {
		s.logger.ErrorContext(ctx, "failed to save aborted verification", "verification_id", v.ID, "error", err)
		return
	}
	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()
	s.project(persistCtx, v.CertificateID, certmodels.StatusUnderReview)
	s.metrics.IncrementOutcome(string(v.VerificationType), string(v.Status), string(v.Result))
	if s.escalationNeeded(v) {
		s.escalate(ctx, v)
	}
}

// saveTerminal writes a finished verification, retrying with a fresh
// deadline per attempt.
func (s *Service) saveTerminal(ctx context.Context, v *models.Verification) error {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.saveInterval), terminalSaveRetries)
	return backoff.Retry(func() error {
		persistCtx, cancel := s.persistContext(ctx)
		defer cancel()
		err := s.store.Update(persistCtx, v)
		if err != nil {
			s.logger.WarnContext(ctx, "verification save attempt failed", "verification_id", v.ID, "error", err)
		}
		return err
	}, b)
}

func (s *Service) persistStep(ctx context.Context, verificationID id.VerificationID, index int, step models.Step) {
	persistCtx, cancel := s.persistContext(ctx)
	defer cancel()
	if err := s.store.UpdateStep(persistCtx, verificationID, index, step.Clone(), s.now()); err != nil {
		s.logger.ErrorContext(ctx, "failed to save verification step",
			"verification_id", verificationID,
			"step_type", step.StepType,
			"error", err,
		)
	}
}

// persistContext survives the run deadline so a timed-out run can still
// record its outcome.
func (s *Service) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func (s *Service) project(ctx context.Context, certID id.CertificateID, status certmodels.Status) {
	if err := s.certificates.SetStatus(ctx, certID, status); err != nil {
		s.logger.ErrorContext(ctx, "failed to project certificate status",
			"certificate_id", certID,
			"status", status,
			"error", err,
		)
	}
}

// Shutdown blocks until running verifications finish or ctx ends.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Get(ctx context.Context, verificationID id.VerificationID) (*models.Verification, error) {
	v, err := s.store.FindByID(ctx, verificationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("verification %s not found", verificationID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}
	return v, nil
}

// ListByCertificate returns every attempt for the certificate, oldest first.
func (s *Service) ListByCertificate(ctx context.Context, certID id.CertificateID) ([]*models.Verification, error) {
	if _, err := s.certificates.Get(ctx, certID); err != nil {
		return nil, err
	}
	list, err := s.store.ListByCertificate(ctx, certID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	return list, nil
}

// ApplyReviewDecision writes a reviewer's verdict back onto the verification
// and, when it is the certificate's latest attempt, the certificate
// projection. Callers running inside a transaction get both writes in it.
func (s *Service) ApplyReviewDecision(ctx context.Context, verificationID id.VerificationID, result models.Result, confidenceOverride *float64) error {
	v, err := s.Get(ctx, verificationID)
	if err != nil {
		return err
	}
	if err := v.ApplyReviewDecision(result, confidenceOverride, s.now()); err != nil {
		return err
	}
	if err := s.store.Update(ctx, v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save review decision")
	}
	latest, err := s.isLatest(ctx, v)
	if err != nil {
		return err
	}
	if latest {
		if err := s.certificates.SetStatus(ctx, v.CertificateID, projection(v.Result)); err != nil {
			return err
		}
	} else {
		s.logger.InfoContext(ctx, "review decision on superseded attempt leaves certificate status unchanged",
			"verification_id", v.ID,
			"certificate_id", v.CertificateID,
		)
	}
	s.metrics.IncrementOutcome(string(v.VerificationType), string(v.Status), string(v.Result))
	return nil
}

// isLatest reports whether v is the certificate's most recent attempt.
func (s *Service) isLatest(ctx context.Context, v *models.Verification) (bool, error) {
	list, err := s.store.ListByCertificate(ctx, v.CertificateID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	for _, other := range list {
		if other.ID != v.ID && other.CreatedAt.After(v.CreatedAt) {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, verificationID id.VerificationID, decision, reason string) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		SubjectType: "verification",
		Subject:     verificationID.String(),
		Action:      string(event),
		Decision:    decision,
		Reason:      reason,
		RequestID:   requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event, "verification_id", verificationID, "error", err)
	}
}

// projection maps a verification result onto the certificate status.
func projection(result models.Result) certmodels.Status {
	switch result {
	case models.ResultVerified:
		return certmodels.StatusVerified
	case models.ResultUnverified:
		return certmodels.StatusUnverified
	case models.ResultRequiresManualReview:
		return certmodels.StatusUnderReview
	default:
		return certmodels.StatusPending
	}
}

func escalationReason(v *models.Verification) string {
	if v.FailureReason != "" {
		return v.FailureReason
	}
	return fmt.Sprintf("confidence %.2f requires manual review", v.ConfidenceScore)
}

func joinReason(existing, extra string) string {
	if existing == "" {
		return extra
	}
	return existing + "; " + extra
}
