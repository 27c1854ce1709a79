package handler

import (
	"time"

	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
)

type CorrectionRequest struct {
	CorrectedFields map[string]string `json:"correctedFields"`
}

func (r *CorrectionRequest) Validate() error {
	if r == nil || len(r.CorrectedFields) == 0 {
		return dErrors.New(dErrors.CodeValidation, "correctedFields is required")
	}
	return nil
}

type PANAadhaarMatchRequest struct {
	PanID     string `json:"panId"`
	AadhaarID string `json:"aadhaarId"`

	panID     id.DocumentID
	aadhaarID id.DocumentID
}

func (r *PANAadhaarMatchRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.panID, err = id.ParseDocumentID(r.PanID); err != nil {
		return dErrors.New(dErrors.CodeValidation, "panId must be a document id")
	}
	if r.aadhaarID, err = id.ParseDocumentID(r.AadhaarID); err != nil {
		return dErrors.New(dErrors.CodeValidation, "aadhaarId must be a document id")
	}
	return nil
}

type SignatureMatchRequest struct {
	Document1 string `json:"document1"`
	Document2 string `json:"document2"`

	doc1 id.DocumentID
	doc2 id.DocumentID
}

func (r *SignatureMatchRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.doc1, err = id.ParseDocumentID(r.Document1); err != nil {
		return dErrors.New(dErrors.CodeValidation, "document1 must be a document id")
	}
	if r.doc2, err = id.ParseDocumentID(r.Document2); err != nil {
		return dErrors.New(dErrors.CodeValidation, "document2 must be a document id")
	}
	return nil
}

type UploadResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type CorrectionResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}
