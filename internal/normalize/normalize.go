// Package normalize turns raw extractor output into canonical, typed document
// fields. Every function here is pure.
package normalize

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	dErrors "certverify/pkg/domain-errors"
)

// rawKeyAliases maps squashed extractor key spellings to canonical keys.
var rawKeyAliases = map[string]string{
	"name":          KeyName,
	"fullname":      KeyName,
	"holdername":    KeyName,
	"dob":           KeyDateOfBirth,
	"dateofbirth":   KeyDateOfBirth,
	"birthdate":     KeyDateOfBirth,
	"gender":        KeyGender,
	"sex":           KeyGender,
	"aadhaarnumber": KeyAadhaarNumber,
	"aadhaar":       KeyAadhaarNumber,
	"aadharnumber":  KeyAadhaarNumber,
	"uid":           KeyAadhaarNumber,
	"address":       KeyAddress,
	"fathername":    KeyFatherName,
	"fathersname":   KeyFatherName,
	"pannumber":     KeyPANNumber,
	"pan":           KeyPANNumber,
	"panno":         KeyPANNumber,
}

// Normalize maps raw extractor output onto the document's field layout.
// Unknown keys are ignored. The only error is an unknown document type.
func Normalize(docType DocumentType, raw map[string]string) (Fields, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	canon := make(map[string]string, len(raw))
	for _, k := range keys {
		key, ok := rawKeyAliases[squashKey(k)]
		if !ok || strings.TrimSpace(raw[k]) == "" {
			continue
		}
		if _, seen := canon[key]; !seen {
			canon[key] = raw[k]
		}
	}
	return build(docType, canon)
}

// FromMap rebuilds Fields from their flattened form. Address sub-keys, when
// present, take precedence over re-parsing the address line.
func FromMap(docType DocumentType, flat map[string]string) (Fields, error) {
	return build(docType, flat)
}

func build(docType DocumentType, m map[string]string) (Fields, error) {
	switch docType {
	case DocumentTypeAadhaar:
		f := AadhaarFields{
			Name:          CollapseSpaces(m[KeyName]),
			DateOfBirth:   ConvertDate(CollapseSpaces(m[KeyDateOfBirth])),
			Gender:        normalizeGender(m[KeyGender]),
			AadhaarNumber: IdentityNumber(m[KeyAadhaarNumber]),
			RawAddress:    CollapseSpaces(m[KeyAddress]),
		}
		if hasAddressParts(m) {
			f.Address = Address{
				House:    CollapseSpaces(m[KeyAddressHouse]),
				Street:   CollapseSpaces(m[KeyAddressStreet]),
				Locality: CollapseSpaces(m[KeyAddressLocality]),
				City:     CollapseSpaces(m[KeyAddressCity]),
				State:    CollapseSpaces(m[KeyAddressState]),
				Pincode:  IdentityNumber(m[KeyAddressPincode]),
			}
		} else {
			f.Address = ParseAddress(f.RawAddress)
		}
		return f, nil
	case DocumentTypePAN:
		return PANFields{
			Name:        CollapseSpaces(m[KeyName]),
			FatherName:  CollapseSpaces(m[KeyFatherName]),
			DateOfBirth: ConvertDate(CollapseSpaces(m[KeyDateOfBirth])),
			PANNumber:   IdentityNumber(m[KeyPANNumber]),
		}, nil
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported document type %q", docType))
	}
}

func hasAddressParts(m map[string]string) bool {
	for _, k := range addressKeys {
		if strings.TrimSpace(m[k]) != "" {
			return true
		}
	}
	return false
}

// CollapseSpaces trims s and folds internal whitespace runs to one space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IdentityNumber strips whitespace and hyphens and upper-cases the rest.
func IdentityNumber(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

func normalizeGender(s string) string {
	g := strings.ToUpper(CollapseSpaces(s))
	switch g {
	case "M":
		return "MALE"
	case "F":
		return "FEMALE"
	case "T":
		return "TRANSGENDER"
	}
	return g
}

func squashKey(k string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, k)
}
