package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certverify/internal/document/extractor"
	"certverify/internal/document/models"
	"certverify/internal/document/store"
	"certverify/internal/matching"
	"certverify/internal/normalize"
	"certverify/internal/similarity"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/platform/audit"
	auditpublisher "certverify/pkg/platform/audit/publisher"
	auditmemory "certverify/pkg/platform/audit/store/memory"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/testutil"
)

type memoryBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryBlobs() *memoryBlobs { return &memoryBlobs{data: map[string][]byte{}} }

func (b *memoryBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *memoryBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d, nil
}

type extractorFunc func(ctx context.Context, req extractor.Request) (*extractor.Result, error)

func (f extractorFunc) Extract(ctx context.Context, req extractor.Request) (*extractor.Result, error) {
	return f(ctx, req)
}

func fixedFields(fields map[string]string, confidence float64) extractorFunc {
	return func(context.Context, extractor.Request) (*extractor.Result, error) {
		return &extractor.Result{Fields: fields, Confidence: confidence}, nil
	}
}

type comparerFunc func(a, b []byte) (*similarity.SignatureMatchResult, error)

func (f comparerFunc) Compare(a, b []byte) (*similarity.SignatureMatchResult, error) { return f(a, b) }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	img.SetGray(3, 3, color.Gray{Y: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// flakyStore fails the next failures updates that write status.
type flakyStore struct {
	*store.InMemoryStore
	mu       sync.Mutex
	status   models.Status
	failures int
}

func (f *flakyStore) Update(ctx context.Context, doc *models.Document) error {
	f.mu.Lock()
	if doc.Status == f.status && f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("connection reset by peer")
	}
	f.mu.Unlock()
	return f.InMemoryStore.Update(ctx, doc)
}

var panFields = map[string]string{"Name": "RAHUL SHARMA", "PAN": "ABCDE1234F", "DOB": "15/08/1990"}

type DocumentServiceSuite struct {
	suite.Suite
	ctx    context.Context
	store  *store.InMemoryStore
	blobs  *memoryBlobs
	audits *auditmemory.InMemoryStore
}

func TestDocumentServiceSuite(t *testing.T) {
	suite.Run(t, new(DocumentServiceSuite))
}

func (s *DocumentServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemoryStore()
	s.blobs = newMemoryBlobs()
	s.audits = auditmemory.NewInMemoryStore()
}

func (s *DocumentServiceSuite) newService(ex Extractor, opts ...Option) *Service {
	opts = append([]Option{WithAuditPublisher(auditpublisher.NewPublisher(s.audits))}, opts...)
	return New(s.store, s.blobs, ex, opts...)
}

// uploadAndDrain uploads a PNG and waits for background processing.
func (s *DocumentServiceSuite) uploadAndDrain(svc *Service, docType string) *models.Document {
	doc, err := svc.Upload(s.ctx, UploadRequest{
		DocumentType: docType,
		FileName:     docType + ".png",
		ContentType:  "image/png",
		Data:         pngBytes(s.T()),
	})
	s.Require().NoError(err)
	s.Require().NoError(svc.Shutdown(s.ctx))
	got, err := svc.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	return got
}

func (s *DocumentServiceSuite) TestUploadProcessesInBackground() {
	release := make(chan struct{})
	var seen extractor.Request
	svc := s.newService(extractorFunc(func(_ context.Context, req extractor.Request) (*extractor.Result, error) {
		seen = req
		<-release
		return &extractor.Result{
			Fields:     map[string]string{"Name": "RAHUL  SHARMA", "PAN": "abcde 1234f", "DOB": "15/08/1990"},
			Confidence: 0.92,
		}, nil
	}))

	doc, err := svc.Upload(s.ctx, UploadRequest{DocumentType: "pan", FileName: "pan.png", ContentType: "image/png", Data: pngBytes(s.T())})
	s.Require().NoError(err)
	s.Equal(models.StatusPending, doc.Status)
	s.Nil(doc.ExtractedFields)

	_, err = svc.Data(s.ctx, doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	close(release)
	s.Require().NoError(svc.Shutdown(s.ctx))

	got, err := svc.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, got.Status)
	s.Equal(0.92, got.Confidence)
	s.Equal(normalize.PANFields{Name: "RAHUL SHARMA", PANNumber: "ABCDE1234F", DateOfBirth: "1990-08-15"}, got.ExtractedFields)
	s.Equal("image/png", seen.ContentType)
	s.Equal(normalize.DocumentTypePAN, seen.DocumentType)

	events, err := s.audits.ListBySubject(s.ctx, doc.ID.String())
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventDocumentUploaded), events[0].Action)
	s.Equal(string(audit.EventDocumentProcessed), events[1].Action)
}

func (s *DocumentServiceSuite) TestExtractorFailureMarksFailed() {
	svc := s.newService(extractorFunc(func(context.Context, extractor.Request) (*extractor.Result, error) {
		return nil, errors.New("model unavailable")
	}))

	got := s.uploadAndDrain(svc, "aadhaar")
	s.Equal(models.StatusFailed, got.Status)
	s.Contains(got.ErrorMessage, "model unavailable")
	s.Nil(got.ExtractedFields)
}

func (s *DocumentServiceSuite) TestExtractionTimeout() {
	svc := s.newService(extractorFunc(func(ctx context.Context, _ extractor.Request) (*extractor.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), WithExtractionTimeout(10*time.Millisecond))

	got := s.uploadAndDrain(svc, "pan")
	s.Equal(models.StatusFailed, got.Status)
	s.Contains(got.ErrorMessage, "timed out")
}

func (s *DocumentServiceSuite) TestExtractorPanicIsContained() {
	svc := s.newService(extractorFunc(func(context.Context, extractor.Request) (*extractor.Result, error) {
		panic("nil map")
	}))

	got := s.uploadAndDrain(svc, "pan")
	s.Equal(models.StatusFailed, got.Status)
	s.Contains(got.ErrorMessage, "nil map")
}

func (s *DocumentServiceSuite) TestStoreFailuresEndInTerminalState() {
	tests := []struct {
		name     string
		status   models.Status
		failures int
		want     models.Status
		reason   string
	}{
		{"transient failure saving fields", models.StatusCompleted, 1, models.StatusCompleted, ""},
		{"fields never saved", models.StatusCompleted, terminalSaveRetries + 1, models.StatusFailed, "could not save extracted fields"},
		{"processing mark not saved", models.StatusProcessing, 1, models.StatusFailed, "could not start processing"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			flaky := &flakyStore{InMemoryStore: store.NewInMemoryStore(), status: tt.status, failures: tt.failures}
			svc := New(flaky, s.blobs, fixedFields(panFields, 0.9))
			svc.saveInterval = time.Millisecond

			doc, err := svc.Upload(s.ctx, UploadRequest{DocumentType: "pan", ContentType: "image/png", Data: pngBytes(s.T())})
			s.Require().NoError(err)
			s.Require().NoError(svc.Shutdown(s.ctx))

			got, err := svc.Get(s.ctx, doc.ID)
			s.Require().NoError(err)
			s.Equal(tt.want, got.Status)
			if tt.reason != "" {
				s.Contains(got.ErrorMessage, tt.reason)
			}
		})
	}
}

func (s *DocumentServiceSuite) TestUploadValidation() {
	svc := s.newService(fixedFields(map[string]string{"name": "x"}, 1), WithUploadLimits(64, 5))
	img := pngBytes(s.T())

	cases := map[string]UploadRequest{
		"unknown type":     {DocumentType: "passport", ContentType: "image/png", Data: img},
		"empty body":       {DocumentType: "pan", ContentType: "image/png"},
		"too large":        {DocumentType: "pan", ContentType: "image/png", Data: bytes.Repeat([]byte{1}, 65)},
		"unsupported mime": {DocumentType: "pan", ContentType: "text/plain", Data: []byte("hello")},
		"mime mismatch":    {DocumentType: "pan", ContentType: "image/jpeg", Data: img[:60]},
		"broken pdf":       {DocumentType: "pan", ContentType: "application/pdf", Data: []byte("%PDF-1.4\nnot really")},
		"truncated image":  {DocumentType: "pan", ContentType: "image/png", Data: img[:20]},
	}
	for name, req := range cases {
		s.Run(name, func() {
			_, err := svc.Upload(s.ctx, req)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
	s.Empty(s.blobs.data)
}

func (s *DocumentServiceSuite) TestUploadRejectsOversizedImage() {
	svc := s.newService(fixedFields(panFields, 1))

	_, err := svc.Upload(s.ctx, UploadRequest{
		DocumentType: "pan",
		ContentType:  "image/png",
		Data:         testutil.PNGWithDimensions(s.T(), 12000, 12000),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
	s.Contains(dErrors.Message(err), "megapixels")
	s.Empty(s.blobs.data)
}

func (s *DocumentServiceSuite) TestSubmitCorrection() {
	svc := s.newService(fixedFields(map[string]string{
		"name":    "Asha Rao",
		"dob":     "15/08/1990",
		"gender":  "F",
		"address": "12 MG Road, Indiranagar, Bengaluru, Karnataka 560038",
	}, 0.8))
	doc := s.uploadAndDrain(svc, "aadhaar")
	s.Require().Equal(models.StatusCompleted, doc.Status)

	_, err := svc.SubmitCorrection(s.ctx, doc.ID, map[string]string{"pan_number": "ABCDE1234F"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.SubmitCorrection(s.ctx, doc.ID, map[string]string{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.SubmitCorrection(s.ctx, doc.ID, map[string]string{
		"name":    "Asha  Rao K",
		"address": "Flat 4, Lake Road, Kolkata, West Bengal 700029",
	})
	s.Require().NoError(err)

	data, err := svc.Data(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal("Asha Rao", data.ExtractedFields[normalize.KeyName])
	s.Equal("Asha Rao K", data.EffectiveFields[normalize.KeyName])
	s.Equal("1990-08-15", data.EffectiveFields[normalize.KeyDateOfBirth])
	s.Equal("700029", data.EffectiveFields[normalize.KeyAddressPincode])
	s.Equal("West Bengal", data.EffectiveFields[normalize.KeyAddressState])
	s.Equal("Kolkata", data.EffectiveFields[normalize.KeyAddressCity])
	s.NotContains(data.EffectiveFields[normalize.KeyAddressLocality], "Indiranagar")
}

func (s *DocumentServiceSuite) TestSubmitCorrectionRequiresCompleted() {
	svc := s.newService(extractorFunc(func(context.Context, extractor.Request) (*extractor.Result, error) {
		return nil, errors.New("boom")
	}))
	doc := s.uploadAndDrain(svc, "pan")

	_, err := svc.SubmitCorrection(s.ctx, doc.ID, map[string]string{"name": "A"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	_, err = svc.SubmitCorrection(s.ctx, id.NewDocumentID(), map[string]string{"name": "A"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DocumentServiceSuite) TestMatchPANAadhaar() {
	panSvc := s.newService(fixedFields(map[string]string{"name": "RAHUL SHARMA", "dob": "15/08/1990", "pan": "ABCDE1234F"}, 0.9))
	pan := s.uploadAndDrain(panSvc, "pan")
	aadhaarSvc := s.newService(fixedFields(map[string]string{"name": "Rahul Sharma", "dob": "1990-08-15"}, 0.9))
	aadhaar := s.uploadAndDrain(aadhaarSvc, "aadhaar")

	res, err := panSvc.MatchPANAadhaar(s.ctx, pan.ID, aadhaar.ID)
	s.Require().NoError(err)
	s.Equal(matching.StatusMatched, res.MatchStatus)
	s.Equal(1.0, res.MatchConfidence)

	_, err = panSvc.MatchPANAadhaar(s.ctx, aadhaar.ID, pan.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = panSvc.MatchPANAadhaar(s.ctx, pan.ID, id.NewDocumentID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DocumentServiceSuite) TestMatchPANAadhaarRequiresCompleted() {
	panSvc := s.newService(fixedFields(map[string]string{"name": "A"}, 0.9))
	pan := s.uploadAndDrain(panSvc, "pan")

	pending := models.NewDocument(id.NewDocumentID(), normalize.DocumentTypeAadhaar, "a.png", "image/png", 1, "documents/none", time.Now())
	s.Require().NoError(s.store.Create(s.ctx, pending))

	_, err := panSvc.MatchPANAadhaar(s.ctx, pan.ID, pending.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *DocumentServiceSuite) TestMatchSignatures() {
	var compared int
	svc := s.newService(fixedFields(map[string]string{"name": "A"}, 0.9),
		WithComparer(comparerFunc(func(a, b []byte) (*similarity.SignatureMatchResult, error) {
			compared++
			s.Equal(a, b)
			return &similarity.SignatureMatchResult{MatchStatus: matching.StatusMatched, MatchConfidence: 0.97}, nil
		})))
	doc1 := s.uploadAndDrain(svc, "pan")
	doc2 := s.uploadAndDrain(svc, "aadhaar")

	res, err := svc.MatchSignatures(s.ctx, doc1.ID, doc2.ID)
	s.Require().NoError(err)
	s.Equal(0.97, res.MatchConfidence)
	s.Equal(1, compared)

	pdf := models.NewDocument(id.NewDocumentID(), normalize.DocumentTypePAN, "p.pdf", "application/pdf", 1, "documents/pdf", time.Now())
	s.Require().NoError(s.store.Create(s.ctx, pdf))
	_, err = svc.MatchSignatures(s.ctx, doc1.ID, pdf.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(1, compared)
}

func TestValidateContent(t *testing.T) {
	img := pngBytes(t)

	ct, err := validateContent("image/png; charset=binary", img, 5)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	ct, err = validateContent("", img, 5)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
}
