package httpprovider

import (
	"time"

	"certverify/internal/evidence/providers"
)

const digitalVersion = "v1.0.0"

// NewDigitalProvider builds the signature/QR validator client.
func NewDigitalProvider(id, baseURL, apiKey string, timeout time.Duration) *Provider {
	caps := providers.Capabilities{
		Protocol: providers.ProtocolHTTP,
		Type:     providers.ProviderTypeDigital,
		Version:  digitalVersion,
		Fields: []providers.FieldCapability{
			{FieldName: "valid", Available: true},
			{FieldName: "signer", Available: true},
			{FieldName: "signature_algorithm", Available: true},
			{FieldName: "qr_valid", Available: true},
		},
		Filters: []string{"certificate_id", "certificate_type", "issuer_type", "certificate_number"},
	}
	return newProvider(id, baseURL, "/validate", apiKey, timeout, caps, parseDigitalResponse)
}

type digitalResponse struct {
	Valid              bool     `json:"valid"`
	Confidence         *float64 `json:"confidence"`
	Signer             string   `json:"signer"`
	SignatureAlgorithm string   `json:"signature_algorithm"`
	QRValid            *bool    `json:"qr_valid"`
	Reason             string   `json:"reason"`
	CheckedAt          string   `json:"checked_at"`
}

func parseDigitalResponse(status int, body []byte) (*providers.Evidence, error) {
	if err := checkStatus(status, body); err != nil {
		return nil, err
	}
	var resp digitalResponse
	if err := decodeBody(body, &resp); err != nil {
		return nil, err
	}

	confidence := 0.0
	switch {
	case resp.Confidence != nil:
		confidence = clamp01(*resp.Confidence)
	case resp.Valid:
		confidence = 1.0
	}

	data := map[string]any{
		"valid":  resp.Valid,
		"signer": resp.Signer,
	}
	if resp.SignatureAlgorithm != "" {
		data["signature_algorithm"] = resp.SignatureAlgorithm
	}
	if resp.QRValid != nil {
		data["qr_valid"] = *resp.QRValid
	}
	if resp.Reason != "" {
		data["reason"] = resp.Reason
	}
	return &providers.Evidence{
		ProviderType: providers.ProviderTypeDigital,
		Confidence:   confidence,
		Data:         data,
		CheckedAt:    parseCheckedAt(resp.CheckedAt),
	}, nil
}
