package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"certverify/internal/certificate/models"
	"certverify/internal/normalize"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/platform/audit"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/requestcontext"
)

const maxDataFields = 64

type Store interface {
	Create(ctx context.Context, cert *models.Certificate) error
	FindByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error)
	UpdateStatus(ctx context.Context, certID id.CertificateID, status models.Status, now time.Time) error
}

// DocumentReader exposes the effective fields of a completed document.
type DocumentReader interface {
	EffectiveFields(ctx context.Context, docID id.DocumentID) (normalize.DocumentType, map[string]string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type CreateRequest struct {
	CertificateType string
	IssuerType      string
	CertificateData map[string]string
	DocumentID      *id.DocumentID
}

type Service struct {
	store          Store
	documents      DocumentReader
	logger         *slog.Logger
	auditPublisher AuditPublisher
	now            func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
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

func New(store Store, documents DocumentReader, opts ...Option) *Service {
	s := &Service{
		store:     store,
		documents: documents,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a certificate. When a document is referenced its
// effective fields prefill the data; explicit values win.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Certificate, error) {
	certType := strings.TrimSpace(req.CertificateType)
	issuerType := strings.TrimSpace(req.IssuerType)
	if certType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "certificateType is required")
	}
	if issuerType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "issuerType is required")
	}

	data := make(map[string]string)
	if req.DocumentID != nil {
		if s.documents == nil {
			return nil, dErrors.New(dErrors.CodeValidation, "document prefill is not available")
		}
		_, fields, err := s.documents.EffectiveFields(ctx, *req.DocumentID)
		if err != nil {
			return nil, err
		}
		for k, v := range fields {
			data[k] = v
		}
	}
	for k, v := range req.CertificateData {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "certificateData keys must not be empty")
		}
		data[key] = normalize.CollapseSpaces(v)
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "certificateData is required unless documentId is given")
	}
	if len(data) > maxDataFields {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("certificateData has more than %d fields", maxDataFields))
	}

	cert := models.NewCertificate(id.NewCertificateID(), certType, issuerType, data, req.DocumentID, s.now())
	if err := s.store.Create(ctx, cert); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create certificate")
	}

	if s.auditPublisher != nil {
		if err := s.auditPublisher.Emit(ctx, audit.Event{
			SubjectType: "certificate",
			Subject:     cert.ID.String(),
			Action:      string(audit.EventCertificateCreated),
			Decision:    certType,
			RequestID:   requestcontext.RequestID(ctx),
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event", "certificate_id", cert.ID, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "certificate created",
		"certificate_id", cert.ID,
		"certificate_type", certType,
		"prefilled", req.DocumentID != nil,
	)
	return cert, nil
}

func (s *Service) Get(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	cert, err := s.store.FindByID(ctx, certID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("certificate %s not found", certID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	return cert, nil
}

// SetStatus records the projection of the latest verification.
func (s *Service) SetStatus(ctx context.Context, certID id.CertificateID, status models.Status) error {
	if err := s.store.UpdateStatus(ctx, certID, status, s.now()); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("certificate %s not found", certID))
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update certificate status")
	}
	return nil
}
