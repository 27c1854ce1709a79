package httpprovider

import (
	"time"

	"certverify/internal/evidence/providers"
)

const registryVersion = "v1.0.0"

// NewRegistryProvider builds the issuer portal client. A record the portal
// does not know is reported as an ErrorNotFound provider error.
func NewRegistryProvider(id, baseURL, apiKey string, timeout time.Duration) *Provider {
	caps := providers.Capabilities{
		Protocol: providers.ProtocolHTTP,
		Type:     providers.ProviderTypeRegistry,
		Version:  registryVersion,
		Fields: []providers.FieldCapability{
			{FieldName: "certificate_number", Available: true, Filterable: true},
			{FieldName: "name", Available: true},
			{FieldName: "date_of_birth", Available: true},
			{FieldName: "issuer", Available: true},
		},
		Filters: []string{"certificate_number", "issuer_type", "certificate_type"},
	}
	return newProvider(id, baseURL, "/records/lookup", apiKey, timeout, caps, parseRegistryResponse)
}

type registryResponse struct {
	Found     bool              `json:"found"`
	Record    map[string]string `json:"record"`
	Source    string            `json:"source"`
	CheckedAt string            `json:"checked_at"`
}

func parseRegistryResponse(status int, body []byte) (*providers.Evidence, error) {
	if err := checkStatus(status, body); err != nil {
		return nil, err
	}
	var resp registryResponse
	if err := decodeBody(body, &resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, providers.NewProviderError(providers.ErrorNotFound, "", "record not found in registry", nil)
	}
	if len(resp.Record) == 0 {
		return nil, providers.NewProviderError(providers.ErrorContractMismatch, "", "record missing from response", nil)
	}

	record := make(map[string]any, len(resp.Record))
	for k, v := range resp.Record {
		record[k] = v
	}
	return &providers.Evidence{
		ProviderType: providers.ProviderTypeRegistry,
		Confidence:   1.0,
		Data: map[string]any{
			"record": record,
			"source": resp.Source,
		},
		CheckedAt: parseCheckedAt(resp.CheckedAt),
	}, nil
}

// RecordFields extracts the registry record from evidence as flat strings.
// It accepts both freshly parsed and cache-decoded evidence.
func RecordFields(e *providers.Evidence) map[string]string {
	out := map[string]string{}
	if e == nil {
		return out
	}
	switch rec := e.Data["record"].(type) {
	case map[string]any:
		for k, v := range rec {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		for k, v := range rec {
			out[k] = v
		}
	}
	return out
}
