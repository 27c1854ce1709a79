package normalize

import (
	"fmt"
	"strings"

	dErrors "certverify/pkg/domain-errors"
)

// DocumentType is the closed set of identity documents the pipeline understands.
type DocumentType string

const (
	DocumentTypeAadhaar DocumentType = "aadhaar"
	DocumentTypePAN     DocumentType = "pan"
)

func ParseDocumentType(s string) (DocumentType, error) {
	switch DocumentType(strings.ToLower(strings.TrimSpace(s))) {
	case DocumentTypeAadhaar:
		return DocumentTypeAadhaar, nil
	case DocumentTypePAN:
		return DocumentTypePAN, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported document type %q", s))
	}
}

// Canonical flattened keys.
const (
	KeyName          = "name"
	KeyDateOfBirth   = "date_of_birth"
	KeyGender        = "gender"
	KeyAadhaarNumber = "aadhaar_number"
	KeyAddress       = "address"
	KeyFatherName    = "father_name"
	KeyPANNumber     = "pan_number"

	KeyAddressHouse    = "address.house"
	KeyAddressStreet   = "address.street"
	KeyAddressLocality = "address.locality"
	KeyAddressCity     = "address.city"
	KeyAddressState    = "address.state"
	KeyAddressPincode  = "address.pincode"
)

var addressKeys = []string{
	KeyAddressHouse, KeyAddressStreet, KeyAddressLocality,
	KeyAddressCity, KeyAddressState, KeyAddressPincode,
}

// Fields is the normalized content of one document. The set of
// implementations is closed: AadhaarFields and PANFields.
type Fields interface {
	DocumentType() DocumentType
	// Flatten renders the fields as canonical key/value pairs. Empty values are omitted.
	Flatten() map[string]string
	sealed()
}

type AadhaarFields struct {
	Name          string  `json:"name"`
	DateOfBirth   string  `json:"dateOfBirth"`
	Gender        string  `json:"gender"`
	AadhaarNumber string  `json:"aadhaarNumber"`
	Address       Address `json:"address"`
	RawAddress    string  `json:"rawAddress,omitempty"`
}

type PANFields struct {
	Name        string `json:"name"`
	FatherName  string `json:"fatherName"`
	DateOfBirth string `json:"dateOfBirth"`
	PANNumber   string `json:"panNumber"`
}

func (AadhaarFields) DocumentType() DocumentType { return DocumentTypeAadhaar }
func (PANFields) DocumentType() DocumentType     { return DocumentTypePAN }
func (AadhaarFields) sealed()                    {}
func (PANFields) sealed()                        {}

func (f AadhaarFields) Flatten() map[string]string {
	out := map[string]string{}
	put(out, KeyName, f.Name)
	put(out, KeyDateOfBirth, f.DateOfBirth)
	put(out, KeyGender, f.Gender)
	put(out, KeyAadhaarNumber, f.AadhaarNumber)
	raw := f.RawAddress
	if raw == "" {
		raw = f.Address.String()
	}
	put(out, KeyAddress, raw)
	put(out, KeyAddressHouse, f.Address.House)
	put(out, KeyAddressStreet, f.Address.Street)
	put(out, KeyAddressLocality, f.Address.Locality)
	put(out, KeyAddressCity, f.Address.City)
	put(out, KeyAddressState, f.Address.State)
	put(out, KeyAddressPincode, f.Address.Pincode)
	return out
}

func (f PANFields) Flatten() map[string]string {
	out := map[string]string{}
	put(out, KeyName, f.Name)
	put(out, KeyFatherName, f.FatherName)
	put(out, KeyDateOfBirth, f.DateOfBirth)
	put(out, KeyPANNumber, f.PANNumber)
	return out
}

func put(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// AllowedKeys lists the canonical keys a correction may set for docType.
func AllowedKeys(docType DocumentType) []string {
	switch docType {
	case DocumentTypeAadhaar:
		return append([]string{KeyName, KeyDateOfBirth, KeyGender, KeyAadhaarNumber, KeyAddress}, addressKeys...)
	case DocumentTypePAN:
		return []string{KeyName, KeyFatherName, KeyDateOfBirth, KeyPANNumber}
	default:
		return nil
	}
}

// IsAllowedKey reports whether key is correctable for docType.
func IsAllowedKey(docType DocumentType, key string) bool {
	for _, k := range AllowedKeys(docType) {
		if k == key {
			return true
		}
	}
	return false
}

// IsAddressKey reports whether key is one of the address.* sub-keys.
func IsAddressKey(key string) bool {
	for _, k := range addressKeys {
		if k == key {
			return true
		}
	}
	return false
}
