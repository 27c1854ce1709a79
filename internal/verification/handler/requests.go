package handler

import (
	"strings"

	"certverify/internal/verification/models"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
)

type StartRequest struct {
	CertificateID    string `json:"certificateId"`
	VerificationType string `json:"verificationType"`

	certificateID    id.CertificateID
	verificationType models.Type
}

func (r *StartRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.CertificateID) == "" {
		return dErrors.New(dErrors.CodeValidation, "certificateId is required")
	}
	certID, err := id.ParseCertificateID(strings.TrimSpace(r.CertificateID))
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "certificateId must be a certificate id")
	}
	vtype, err := models.ParseType(r.VerificationType)
	if err != nil {
		return err
	}
	r.certificateID = certID
	r.verificationType = vtype
	return nil
}

type ListResponse struct {
	Verifications []*models.Verification `json:"verifications"`
}
