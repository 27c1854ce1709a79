package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"certverify/internal/document/extractor"
	"certverify/internal/document/metrics"
	"certverify/internal/document/models"
	"certverify/internal/matching"
	"certverify/internal/normalize"
	"certverify/internal/similarity"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/platform/audit"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/requestcontext"
)

const (
	DefaultMaxUploadBytes    = 10 << 20
	DefaultMaxPDFPages       = 5
	DefaultExtractionTimeout = 60 * time.Second

	persistTimeout       = 5 * time.Second
	terminalSaveRetries  = 2
	terminalSaveInterval = 200 * time.Millisecond
)

var tracer = otel.Tracer("certverify/internal/document")

type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	Update(ctx context.Context, doc *models.Document) error
}

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type Extractor interface {
	Extract(ctx context.Context, req extractor.Request) (*extractor.Result, error)
}

type Comparer interface {
	Compare(img1, img2 []byte) (*similarity.SignatureMatchResult, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type UploadRequest struct {
	DocumentType string
	FileName     string
	ContentType  string
	Data         []byte
}

// Service accepts uploads, runs extraction in the background and serves the
// resulting fields.
type Service struct {
	store          Store
	blobs          BlobStore
	extractor      Extractor
	comparer       Comparer
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	now            func() time.Time

	maxUploadBytes    int64
	maxPDFPages       int
	extractionTimeout time.Duration
	matchRules        []matching.Rule
	matchPolicy       matching.Policy
	saveInterval      time.Duration

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

func WithUploadLimits(maxBytes int64, maxPDFPages int) Option {
	return func(s *Service) {
		if maxBytes > 0 {
			s.maxUploadBytes = maxBytes
		}
		if maxPDFPages > 0 {
			s.maxPDFPages = maxPDFPages
		}
	}
}

func WithExtractionTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.extractionTimeout = d
		}
	}
}

// WithMatching overrides the PAN/Aadhaar rule set and status bands.
func WithMatching(rules []matching.Rule, policy matching.Policy) Option {
	return func(s *Service) {
		s.matchRules = rules
		s.matchPolicy = policy
	}
}

func WithComparer(c Comparer) Option {
	return func(s *Service) {
		s.comparer = c
	}
}

func New(store Store, blobs BlobStore, ex Extractor, opts ...Option) *Service {
	s := &Service{
		store:             store,
		blobs:             blobs,
		extractor:         ex,
		logger:            slog.New(slog.DiscardHandler),
		now:               time.Now,
		maxUploadBytes:    DefaultMaxUploadBytes,
		maxPDFPages:       DefaultMaxPDFPages,
		extractionTimeout: DefaultExtractionTimeout,
		matchRules:        matching.PANAadhaarRules(0.6, 0.4, matching.DefaultFieldThreshold),
		matchPolicy:       matching.DefaultPolicy(),
		saveInterval:      terminalSaveInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.comparer == nil {
		s.comparer = similarity.New(s.matchPolicy)
	}
	return s
}

// Upload validates the file, stores it and dispatches extraction. It returns
// as soon as the pending document is persisted.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	docType, err := normalize.ParseDocumentType(req.DocumentType)
	if err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file is empty")
	}
	if int64(len(req.Data)) > s.maxUploadBytes {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("file exceeds the %d byte upload limit", s.maxUploadBytes))
	}
	contentType, err := validateContent(req.ContentType, req.Data, s.maxPDFPages)
	if err != nil {
		return nil, err
	}

	docID := id.NewDocumentID()
	blobKey := "documents/" + docID.String()
	if err := s.blobs.Put(ctx, blobKey, req.Data, contentType); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}

	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = docID.String()
	}
	doc := models.NewDocument(docID, docType, fileName, contentType, int64(len(req.Data)), blobKey, s.now())
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
	}

	s.metrics.IncrementUpload(string(docType))
	s.emitAudit(ctx, audit.EventDocumentUploaded, docID, string(docType), "")

	s.inflight.Add(1)
	go s.process(context.WithoutCancel(ctx), doc.ID, docType, contentType, req.Data)

	return doc, nil
}

// process owns one document from pending to a terminal status. Every
// failure ends as state on the document.
func (s *Service) process(ctx context.Context, docID id.DocumentID, docType normalize.DocumentType, contentType string, data []byte) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "document processing panicked", "document_id", docID, "panic", r)
			s.failDocument(ctx, docID, fmt.Sprintf("internal error during processing: %v", r))
		}
	}()

	ctx, span := tracer.Start(ctx, "document.process")
	span.SetAttributes(
		attribute.String("document.id", docID.String()),
		attribute.String("document.type", string(docType)),
	)
	defer span.End()

	doc, err := s.store.FindByID(ctx, docID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load document for processing", "document_id", docID, "error", err)
		span.SetStatus(codes.Error, "load failed")
		return
	}
	if err := doc.StartProcessing(s.now()); err != nil {
		s.logger.WarnContext(ctx, "document not pending, skipping", "document_id", docID, "status", doc.Status)
		return
	}
	if err := s.store.Update(ctx, doc); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark document processing", "document_id", docID, "error", err)
		s.failDocument(ctx, docID, "could not start processing: "+err.Error())
		return
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.extractionTimeout)
	start := time.Now()
	result, err := s.extractor.Extract(extractCtx, extractor.Request{
		DocumentType: docType,
		ContentType:  contentType,
		Data:         data,
	})
	cancel()
	s.metrics.ObserveExtraction(time.Since(start))
	if err != nil {
		reason := "extraction failed: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("extraction timed out after %s", s.extractionTimeout)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		s.failDocument(ctx, docID, reason)
		return
	}

	fields, err := normalize.Normalize(docType, result.Fields)
	if err != nil {
		span.RecordError(err)
		s.failDocument(ctx, docID, "normalization failed: "+dErrors.Message(err))
		return
	}

	doc, err = s.store.FindByID(ctx, docID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to reload document", "document_id", docID, "error", err)
		s.failDocument(ctx, docID, "could not reload document: "+err.Error())
		return
	}
	if err := doc.Complete(fields, result.Confidence, s.now()); err != nil {
		s.failDocument(ctx, docID, "could not record extracted fields: "+dErrors.Message(err))
		return
	}
	if err := s.saveTerminal(ctx, doc); err != nil {
		s.logger.ErrorContext(ctx, "failed to save extracted fields", "document_id", docID, "error", err)
		s.failDocument(ctx, docID, "could not save extracted fields: "+err.Error())
		return
	}

	s.metrics.IncrementOutcome(string(docType), string(models.StatusCompleted))
	s.emitAudit(ctx, audit.EventDocumentProcessed, docID, string(models.StatusCompleted), "")
	s.logger.InfoContext(ctx, "document processed",
		"document_id", docID,
		"document_type", docType,
		"confidence", result.Confidence,
	)
}

func (s *Service) failDocument(ctx context.Context, docID id.DocumentID, reason string) {
	doc, err := s.store.FindByID(ctx, docID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load document to mark failed", "document_id", docID, "error", err)
		return
	}
	if err := doc.Fail(reason, s.now()); err != nil {
		s.logger.WarnContext(ctx, "document already terminal", "document_id", docID, "status", doc.Status)
		return
	}
	if err := s.saveTerminal(ctx, doc); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark document failed", "document_id", docID, "error", err)
		return
	}
	s.metrics.IncrementOutcome(string(doc.DocumentType), string(models.StatusFailed))
	s.emitAudit(ctx, audit.EventDocumentFailed, docID, string(models.StatusFailed), reason)
	s.logger.WarnContext(ctx, "document processing failed", "document_id", docID, "reason", reason)
}

// saveTerminal writes a completed or failed document, retrying with a fresh
// deadline per attempt.
func (s *Service) saveTerminal(ctx context.Context, doc *models.Document) error {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.saveInterval), terminalSaveRetries)
	return backoff.Retry(func() error {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		err := s.store.Update(persistCtx, doc)
		if err != nil {
			s.logger.WarnContext(ctx, "document save attempt failed", "document_id", doc.ID, "error", err)
		}
		return err
	}, b)
}

// Shutdown blocks until background processing drains or ctx ends.
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

func (s *Service) Get(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.store.FindByID(ctx, docID)
	if err != nil {
		return nil, translateStoreError(err, docID)
	}
	return doc, nil
}

// Data returns the extracted, corrected and effective fields of a completed document.
func (s *Service) Data(ctx context.Context, docID id.DocumentID) (*models.Data, error) {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusCompleted {
		return nil, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("document %s is %s; data is available once completed", docID, doc.Status))
	}
	return doc.DataView(), nil
}

// SubmitCorrection overlays corrected values onto the effective fields.
// Correcting the address line replaces all parsed address parts.
func (s *Service) SubmitCorrection(ctx context.Context, docID id.DocumentID, corrected map[string]string) (*models.Document, error) {
	if len(corrected) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "correctedFields must not be empty")
	}
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusCompleted {
		return nil, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("document %s is %s; corrections need a completed document", docID, doc.Status))
	}
	for key := range corrected {
		if !normalize.IsAllowedKey(doc.DocumentType, key) {
			return nil, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("field %q cannot be corrected on a %s document", key, doc.DocumentType))
		}
	}

	merged := doc.EffectiveFields().Flatten()
	if _, ok := corrected[normalize.KeyAddress]; ok {
		for key := range merged {
			if normalize.IsAddressKey(key) {
				delete(merged, key)
			}
		}
	}
	for key, value := range corrected {
		merged[key] = value
	}
	fields, err := normalize.FromMap(doc.DocumentType, merged)
	if err != nil {
		return nil, err
	}
	if err := doc.ApplyCorrection(fields, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save corrections")
	}

	s.emitAudit(ctx, audit.EventDocumentCorrected, docID, "corrected", strings.Join(sortedKeys(corrected), ","))
	return doc, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, docID id.DocumentID, decision, reason string) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		SubjectType: "document",
		Subject:     docID.String(),
		Action:      string(event),
		Decision:    decision,
		Reason:      reason,
		RequestID:   requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event, "document_id", docID, "error", err)
	}
}

func translateStoreError(err error, docID id.DocumentID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("document %s not found", docID))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
}
