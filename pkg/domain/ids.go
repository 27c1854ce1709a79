// Package domain holds identifier primitives shared across modules.
//
// Each entity gets its own UUID-backed type so a DocumentID can never be
// passed where a CertificateID is expected. Parsing happens once at the
// trust boundary (HTTP handlers, store scans).
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "certverify/pkg/domain-errors"
)

type (
	DocumentID     uuid.UUID
	CertificateID  uuid.UUID
	VerificationID uuid.UUID
	ReviewID       uuid.UUID
)

// VerifierID is the opaque subject of an authenticated verifier.
type VerifierID string

const maxVerifierIDLength = 128

func NewDocumentID() DocumentID         { return DocumentID(uuid.New()) }
func NewCertificateID() CertificateID   { return CertificateID(uuid.New()) }
func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }
func NewReviewID() ReviewID             { return ReviewID(uuid.New()) }

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document id")
	return DocumentID(u), err
}

func ParseCertificateID(s string) (CertificateID, error) {
	u, err := parseUUID(s, "certificate id")
	return CertificateID(u), err
}

func ParseVerificationID(s string) (VerificationID, error) {
	u, err := parseUUID(s, "verification id")
	return VerificationID(u), err
}

func ParseReviewID(s string) (ReviewID, error) {
	u, err := parseUUID(s, "review id")
	return ReviewID(u), err
}

// ParseVerifierID trims and bounds a verifier subject.
func ParseVerifierID(s string) (VerifierID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "verifier id is required")
	}
	if len(s) > maxVerifierIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "verifier id is too long")
	}
	return VerifierID(s), nil
}

func parseUUID(s, label string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must not be nil")
	}
	return u, nil
}

func (id DocumentID) String() string     { return uuid.UUID(id).String() }
func (id CertificateID) String() string  { return uuid.UUID(id).String() }
func (id VerificationID) String() string { return uuid.UUID(id).String() }
func (id ReviewID) String() string       { return uuid.UUID(id).String() }
func (id VerifierID) String() string     { return string(id) }

func (id DocumentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CertificateID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id VerificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ReviewID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id VerifierID) IsNil() bool     { return id == "" }

func (id DocumentID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id CertificateID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id VerificationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ReviewID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }

func (id *DocumentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *CertificateID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *VerificationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *ReviewID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
