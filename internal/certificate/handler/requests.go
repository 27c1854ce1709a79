package handler

import (
	"strings"

	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
)

type CreateRequest struct {
	CertificateType string            `json:"certificateType"`
	IssuerType      string            `json:"issuerType"`
	CertificateData map[string]string `json:"certificateData"`
	DocumentID      string            `json:"documentId,omitempty"`

	documentID *id.DocumentID
}

func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.CertificateType) > 64 || len(r.IssuerType) > 64 {
		return dErrors.New(dErrors.CodeValidation, "certificateType and issuerType must be at most 64 characters")
	}
	r.CertificateType = strings.TrimSpace(r.CertificateType)
	r.IssuerType = strings.TrimSpace(r.IssuerType)
	if r.CertificateType == "" {
		return dErrors.New(dErrors.CodeValidation, "certificateType is required")
	}
	if r.IssuerType == "" {
		return dErrors.New(dErrors.CodeValidation, "issuerType is required")
	}
	if raw := strings.TrimSpace(r.DocumentID); raw != "" {
		docID, err := id.ParseDocumentID(raw)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "documentId must be a document id")
		}
		r.documentID = &docID
	}
	return nil
}
