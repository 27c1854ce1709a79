package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certverify/pkg/domain-errors"
)

func TestNormalize_Aadhaar(t *testing.T) {
	raw := map[string]string{
		"Name":           "  Rahul   Sharma ",
		"DOB":            "15/08/1990",
		"gender":         "m",
		"aadhaar_number": "1234 5678 9012",
		"address":        "12 Lake Road, Ballygunge, Kolkata, West Bengal - 700019",
		"confidence":     "0.93",
	}

	fields, err := Normalize(DocumentTypeAadhaar, raw)
	require.NoError(t, err)

	aadhaar, ok := fields.(AadhaarFields)
	require.True(t, ok)
	assert.Equal(t, "Rahul Sharma", aadhaar.Name)
	assert.Equal(t, "1990-08-15", aadhaar.DateOfBirth)
	assert.Equal(t, "MALE", aadhaar.Gender)
	assert.Equal(t, "123456789012", aadhaar.AadhaarNumber)
	assert.Equal(t, "700019", aadhaar.Address.Pincode)
	assert.Equal(t, "West Bengal", aadhaar.Address.State)

	flat := fields.Flatten()
	assert.Equal(t, "Rahul Sharma", flat[KeyName])
	assert.Equal(t, "700019", flat[KeyAddressPincode])
	assert.NotContains(t, flat, "confidence")
}

func TestNormalize_PAN(t *testing.T) {
	fields, err := Normalize(DocumentTypePAN, map[string]string{
		"full_name":     "RAHUL SHARMA",
		"fathers_name":  "SURESH SHARMA",
		"date_of_birth": "15-08-1990",
		"PAN":           "abcde 1234 f",
	})
	require.NoError(t, err)

	pan := fields.(PANFields)
	assert.Equal(t, "ABCDE1234F", pan.PANNumber)
	assert.Equal(t, "1990-08-15", pan.DateOfBirth)
	assert.Equal(t, "SURESH SHARMA", pan.FatherName)
	assert.Equal(t, DocumentTypePAN, fields.DocumentType())
}

func TestNormalize_UnknownType(t *testing.T) {
	_, err := Normalize(DocumentType("passport"), map[string]string{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := map[string]string{"name": "A One", "full_name": "B Two", "holder_name": "C Three"}
	first, err := Normalize(DocumentTypePAN, raw)
	require.NoError(t, err)
	for range 20 {
		again, err := Normalize(DocumentTypePAN, raw)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFromMap_RoundTrip(t *testing.T) {
	original, err := Normalize(DocumentTypeAadhaar, map[string]string{
		"name":    "Asha Rao",
		"dob":     "01/01/1985",
		"address": "Koregaon Park, Pune, Maharashtra 411001",
	})
	require.NoError(t, err)

	rebuilt, err := FromMap(DocumentTypeAadhaar, original.Flatten())
	require.NoError(t, err)
	assert.Equal(t, original.Flatten(), rebuilt.Flatten())
}

func TestFromMap_AddressPartsWin(t *testing.T) {
	fields, err := FromMap(DocumentTypeAadhaar, map[string]string{
		KeyAddress:     "Koregaon Park, Pune, Maharashtra 411001",
		KeyAddressCity: "Mumbai",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mumbai", fields.(AadhaarFields).Address.City)
}

func TestAllowedKeys(t *testing.T) {
	assert.True(t, IsAllowedKey(DocumentTypeAadhaar, KeyAddressCity))
	assert.False(t, IsAllowedKey(DocumentTypePAN, KeyAddress))
	assert.True(t, IsAllowedKey(DocumentTypePAN, KeyFatherName))
	assert.Nil(t, AllowedKeys(DocumentType("x")))
}

func TestParseDocumentType(t *testing.T) {
	dt, err := ParseDocumentType(" PAN ")
	require.NoError(t, err)
	assert.Equal(t, DocumentTypePAN, dt)

	_, err = ParseDocumentType("voter")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
