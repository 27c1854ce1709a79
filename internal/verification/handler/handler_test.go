package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certverify/internal/verification/handler/mocks"
	"certverify/internal/verification/models"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type VerificationHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestVerificationHandlerSuite(t *testing.T) {
	suite.Run(t, new(VerificationHandlerSuite))
}

func (s *VerificationHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *VerificationHandlerSuite) TestStartAccepted() {
	certID := id.NewCertificateID()
	verificationID := id.NewVerificationID()
	s.service.EXPECT().Start(gomock.Any(), certID, models.TypeCombined).Return(&models.Verification{
		ID:               verificationID,
		CertificateID:    certID,
		VerificationType: models.TypeCombined,
		Status:           models.StatusInProgress,
		Result:           models.ResultPending,
		Attempt:          1,
	}, nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications", map[string]string{
		"certificateId":    certID.String(),
		"verificationType": "combined",
	})
	rr := testutil.DoRequest(s.router, req)

	s.Equal(http.StatusAccepted, rr.Code)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(verificationID.String(), (*resp)["id"])
	s.Equal("IN_PROGRESS", (*resp)["status"])
	s.Equal("PENDING", (*resp)["result"])
}

func (s *VerificationHandlerSuite) TestStartValidation() {
	cases := map[string]map[string]string{
		"missing certificate": {"verificationType": "DIGITAL"},
		"bad certificate":     {"certificateId": "abc", "verificationType": "DIGITAL"},
		"unknown type":        {"certificateId": id.NewCertificateID().String(), "verificationType": "BIOMETRIC"},
	}
	for name, body := range cases {
		s.Run(name, func() {
			rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications", body))
			testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
		})
	}
}

func (s *VerificationHandlerSuite) TestStartConflict() {
	certID := id.NewCertificateID()
	s.service.EXPECT().Start(gomock.Any(), certID, models.TypePortal).
		Return(nil, dErrors.New(dErrors.CodeConflict, "certificate already has a verification in progress"))

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications", map[string]string{
		"certificateId":    certID.String(),
		"verificationType": "PORTAL",
	}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeConflict))
}

func (s *VerificationHandlerSuite) TestGet() {
	verificationID := id.NewVerificationID()
	s.service.EXPECT().Get(gomock.Any(), verificationID).Return(&models.Verification{
		ID:     verificationID,
		Status: models.StatusCompleted,
		Result: models.ResultVerified,
		Steps: []models.Step{
			{StepType: models.StepSignatureCheck, Status: models.StepCompleted, Confidence: 0.9, Mandatory: true},
		},
	}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/verifications/"+verificationID.String(), nil))

	s.Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	steps, ok := (*resp)["steps"].([]any)
	s.Require().True(ok)
	s.Require().Len(steps, 1)
	s.Equal("SIGNATURE_CHECK", steps[0].(map[string]any)["stepType"])
}

func (s *VerificationHandlerSuite) TestGetInvalidID() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/verifications/not-a-uuid", nil))
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *VerificationHandlerSuite) TestRetryInvalidState() {
	verificationID := id.NewVerificationID()
	s.service.EXPECT().Retry(gomock.Any(), verificationID).
		Return(nil, dErrors.New(dErrors.CodeInvalidState, "verification cannot be retried"))

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/"+verificationID.String()+"/retry", nil))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeInvalidState))
}

func (s *VerificationHandlerSuite) TestRetryAccepted() {
	verificationID := id.NewVerificationID()
	s.service.EXPECT().Retry(gomock.Any(), verificationID).Return(&models.Verification{
		ID:                id.NewVerificationID(),
		Attempt:           2,
		PreviousAttemptID: &verificationID,
		Status:            models.StatusInProgress,
	}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/verifications/"+verificationID.String()+"/retry", nil))

	s.Equal(http.StatusAccepted, rr.Code)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(verificationID.String(), (*resp)["previousAttemptId"])
	s.EqualValues(2, (*resp)["attempt"])
}

func (s *VerificationHandlerSuite) TestListByCertificateEmpty() {
	certID := id.NewCertificateID()
	s.service.EXPECT().ListByCertificate(gomock.Any(), certID).Return(nil, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/certificates/"+certID.String()+"/verifications", nil))

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"verifications": []}`, rr.Body.String())
}
