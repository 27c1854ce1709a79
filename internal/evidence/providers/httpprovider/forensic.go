package httpprovider

import (
	"time"

	"certverify/internal/evidence/providers"
)

const forensicVersion = "v1.0.0"

// NewForensicProvider builds the tampering risk analysis client. Evidence
// confidence is 1 - riskScore.
func NewForensicProvider(id, baseURL, apiKey string, timeout time.Duration) *Provider {
	caps := providers.Capabilities{
		Protocol: providers.ProtocolHTTP,
		Type:     providers.ProviderTypeForensic,
		Version:  forensicVersion,
		Fields: []providers.FieldCapability{
			{FieldName: "risk_score", Available: true},
			{FieldName: "indicators", Available: true},
			{FieldName: "model_version", Available: true},
		},
		Filters: []string{"certificate_id", "document_id", "certificate_type"},
	}
	return newProvider(id, baseURL, "/analyze", apiKey, timeout, caps, parseForensicResponse)
}

type forensicResponse struct {
	RiskScore    *float64 `json:"risk_score"`
	Indicators   []string `json:"indicators"`
	ModelVersion string   `json:"model_version"`
	CheckedAt    string   `json:"checked_at"`
}

func parseForensicResponse(status int, body []byte) (*providers.Evidence, error) {
	if err := checkStatus(status, body); err != nil {
		return nil, err
	}
	var resp forensicResponse
	if err := decodeBody(body, &resp); err != nil {
		return nil, err
	}
	if resp.RiskScore == nil {
		return nil, providers.NewProviderError(providers.ErrorContractMismatch, "", "risk_score missing from response", nil)
	}
	risk := *resp.RiskScore
	if risk < 0 || risk > 1 {
		return nil, providers.NewProviderError(providers.ErrorBadData, "", "risk_score out of range", nil)
	}

	indicators := make([]any, 0, len(resp.Indicators))
	for _, ind := range resp.Indicators {
		indicators = append(indicators, ind)
	}
	return &providers.Evidence{
		ProviderType: providers.ProviderTypeForensic,
		Confidence:   1 - risk,
		Data: map[string]any{
			"risk_score":    risk,
			"indicators":    indicators,
			"model_version": resp.ModelVersion,
		},
		CheckedAt: parseCheckedAt(resp.CheckedAt),
	}, nil
}
