package models

import (
	"fmt"
	"time"

	"certverify/internal/normalize"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
)

// Status is the lifecycle of an uploaded document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo encodes pending -> processing -> completed|failed.
// A pending document may also fail directly.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusProcessing || target == StatusFailed
	case StatusProcessing:
		return target == StatusCompleted || target == StatusFailed
	default:
		return false
	}
}

// Document is an uploaded identity document and its extraction outcome.
//
// Invariants:
//   - ExtractedFields is set iff Status is completed
//   - failed is terminal; a retry is a new upload
//   - CorrectedFields only exists on completed documents
type Document struct {
	ID              id.DocumentID          `json:"id"`
	DocumentType    normalize.DocumentType `json:"documentType"`
	Status          Status                 `json:"status"`
	FileName        string                 `json:"fileName"`
	ContentType     string                 `json:"contentType"`
	SizeBytes       int64                  `json:"sizeBytes"`
	BlobKey         string                 `json:"-"`
	ExtractedFields normalize.Fields       `json:"-"`
	CorrectedFields normalize.Fields       `json:"-"`
	Confidence      float64                `json:"confidence"`
	ErrorMessage    string                 `json:"errorMessage,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func NewDocument(docID id.DocumentID, docType normalize.DocumentType, fileName, contentType string, size int64, blobKey string, now time.Time) *Document {
	return &Document{
		ID:           docID,
		DocumentType: docType,
		Status:       StatusPending,
		FileName:     fileName,
		ContentType:  contentType,
		SizeBytes:    size,
		BlobKey:      blobKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (d *Document) transition(target Status, now time.Time) error {
	if !d.Status.CanTransitionTo(target) {
		return dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("document cannot move from %s to %s", d.Status, target))
	}
	d.Status = target
	d.UpdatedAt = now
	return nil
}

func (d *Document) StartProcessing(now time.Time) error {
	return d.transition(StatusProcessing, now)
}

// Complete records the normalized fields. The fields must belong to the
// document's type.
func (d *Document) Complete(fields normalize.Fields, confidence float64, now time.Time) error {
	if fields == nil || fields.DocumentType() != d.DocumentType {
		return dErrors.New(dErrors.CodeInvariantViolation, "extracted fields do not match document type")
	}
	if err := d.transition(StatusCompleted, now); err != nil {
		return err
	}
	d.ExtractedFields = fields
	d.Confidence = confidence
	d.ErrorMessage = ""
	return nil
}

func (d *Document) Fail(reason string, now time.Time) error {
	if err := d.transition(StatusFailed, now); err != nil {
		return err
	}
	d.ExtractedFields = nil
	d.ErrorMessage = reason
	return nil
}

// ApplyCorrection replaces the corrected view. Extraction output is kept.
func (d *Document) ApplyCorrection(fields normalize.Fields, now time.Time) error {
	if d.Status != StatusCompleted {
		return dErrors.New(dErrors.CodeInvalidState, "corrections are only accepted for completed documents")
	}
	if fields == nil || fields.DocumentType() != d.DocumentType {
		return dErrors.New(dErrors.CodeInvariantViolation, "corrected fields do not match document type")
	}
	d.CorrectedFields = fields
	d.UpdatedAt = now
	return nil
}

// EffectiveFields prefers human corrections over extraction output.
func (d *Document) EffectiveFields() normalize.Fields {
	if d.CorrectedFields != nil {
		return d.CorrectedFields
	}
	return d.ExtractedFields
}

func (d *Document) IsImage() bool {
	return d.ContentType != "application/pdf"
}

// Clone returns a copy safe to hand across goroutines. Fields values are
// immutable value types so a shallow copy suffices.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// Data is the read model for a completed document's fields.
type Data struct {
	ID              id.DocumentID          `json:"id"`
	DocumentType    normalize.DocumentType `json:"documentType"`
	ExtractedFields map[string]string      `json:"extractedFields"`
	CorrectedFields map[string]string      `json:"correctedFields,omitempty"`
	EffectiveFields map[string]string      `json:"effectiveFields"`
	Confidence      float64                `json:"confidence"`
}

// DataView renders the flattened field views. Callers check the status first.
func (d *Document) DataView() *Data {
	data := &Data{
		ID:           d.ID,
		DocumentType: d.DocumentType,
		Confidence:   d.Confidence,
	}
	if d.ExtractedFields != nil {
		data.ExtractedFields = d.ExtractedFields.Flatten()
	}
	if d.CorrectedFields != nil {
		data.CorrectedFields = d.CorrectedFields.Flatten()
	}
	if eff := d.EffectiveFields(); eff != nil {
		data.EffectiveFields = eff.Flatten()
	}
	return data
}
