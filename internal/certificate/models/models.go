package models

import (
	"maps"
	"time"

	id "certverify/pkg/domain"
)

// Status is a projection of the latest verification's result.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusVerified    Status = "VERIFIED"
	StatusUnverified  Status = "UNVERIFIED"
	StatusUnderReview Status = "UNDER_REVIEW"
)

// Certificate is an educational or identity certificate submitted for
// verification. CertificateData holds the claimed values the evidence
// sources are checked against.
type Certificate struct {
	ID              id.CertificateID  `json:"id"`
	CertificateType string            `json:"certificateType"`
	IssuerType      string            `json:"issuerType"`
	CertificateData map[string]string `json:"certificateData"`
	DocumentID      *id.DocumentID    `json:"documentId,omitempty"`
	Status          Status            `json:"status"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

func NewCertificate(certID id.CertificateID, certType, issuerType string, data map[string]string, docID *id.DocumentID, now time.Time) *Certificate {
	return &Certificate{
		ID:              certID,
		CertificateType: certType,
		IssuerType:      issuerType,
		CertificateData: data,
		DocumentID:      docID,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (c *Certificate) Clone() *Certificate {
	if c == nil {
		return nil
	}
	cp := *c
	cp.CertificateData = maps.Clone(c.CertificateData)
	if c.DocumentID != nil {
		docID := *c.DocumentID
		cp.DocumentID = &docID
	}
	return &cp
}
