package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certverify/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseDocumentID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseDocumentID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseDocumentID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseDocumentID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, DocumentID(validUUID), id)
	})
}

func TestTypeDistinction(t *testing.T) {
	documentID := NewDocumentID()
	certificateID := NewCertificateID()

	// var _ DocumentID = certificateID // compile error

	assert.NotEqual(t, uuid.UUID(documentID), uuid.UUID(certificateID))
}

func TestParseID_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE documents;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVerificationID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errDoc := ParseDocumentID(validUUID)
		_, errCert := ParseCertificateID(validUUID)
		_, errVer := ParseVerificationID(validUUID)
		_, errRev := ParseReviewID(validUUID)

		require.NoError(t, errDoc)
		require.NoError(t, errCert)
		require.NoError(t, errVer)
		require.NoError(t, errRev)
	})

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errDoc := ParseDocumentID(input)
			_, errCert := ParseCertificateID(input)
			_, errVer := ParseVerificationID(input)
			_, errRev := ParseReviewID(input)

			require.Error(t, errDoc)
			require.Error(t, errCert)
			require.Error(t, errVer)
			require.Error(t, errRev)
		})
	}
}

func TestParseVerifierID(t *testing.T) {
	id, err := ParseVerifierID("  reviewer-7 ")
	require.NoError(t, err)
	assert.Equal(t, VerifierID("reviewer-7"), id)

	_, err = ParseVerifierID(" ")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = ParseVerifierID(strings.Repeat("v", 129))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestIDTextRoundTrip(t *testing.T) {
	id := NewReviewID()
	b, err := id.MarshalText()
	require.NoError(t, err)

	var parsed ReviewID
	require.NoError(t, parsed.UnmarshalText(b))
	assert.Equal(t, id, parsed)
	assert.False(t, parsed.IsNil())
}
