package adapters

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	certmodels "certverify/internal/certificate/models"
	"certverify/internal/evidence/providers"
	"certverify/internal/evidence/providers/httpprovider"
	"certverify/internal/matching"
	"certverify/internal/verification/models"
	"certverify/internal/verification/ports"
)

// Step result labels recorded on completed steps.
const (
	ResultSignatureValid   = "VALID"
	ResultSignatureInvalid = "INVALID"
	ResultQRInvalid        = "QR_INVALID"
	ResultRecordNotFound   = "NOT_FOUND"
	ResultLowRisk          = "LOW_RISK"
	ResultMediumRisk       = "MEDIUM_RISK"
	ResultHighRisk         = "HIGH_RISK"
)

// DigitalCollector checks the certificate's digital signature and QR code.
// Step confidence is the validator's confidence for a valid signature and
// zero when either the signature or a reported QR code is invalid.
type DigitalCollector struct {
	provider providers.Provider
}

func NewDigitalCollector(p providers.Provider) ports.Collector {
	return &DigitalCollector{provider: p}
}

func (c *DigitalCollector) Collect(ctx context.Context, cert *certmodels.Certificate) (*models.StepOutcome, error) {
	filters := baseFilters(cert)
	if n := cert.CertificateData["certificate_number"]; n != "" {
		filters["certificate_number"] = n
	}
	evidence, err := c.provider.Lookup(ctx, filters)
	if err != nil {
		return nil, err
	}
	valid, _ := evidence.Data["valid"].(bool)
	qrValid, qrReported := evidence.Data["qr_valid"].(bool)

	outcome := &models.StepOutcome{
		Result:     ResultSignatureValid,
		Confidence: evidence.Confidence,
		Evidence:   stepEvidence(evidence),
	}
	switch {
	case !valid:
		outcome.Result = ResultSignatureInvalid
		outcome.Confidence = 0
	case qrReported && !qrValid:
		outcome.Result = ResultQRInvalid
		outcome.Confidence = 0
	}
	return outcome, nil
}

// RegistryCollector looks the certificate up in the issuer portal and scores
// the agreement between the claimed data and the registry record. A record
// the registry does not know completes the step with zero confidence.
type RegistryCollector struct {
	provider providers.Provider
	rules    []matching.Rule
	policy   matching.Policy
}

func NewRegistryCollector(p providers.Provider, rules []matching.Rule, policy matching.Policy) ports.Collector {
	return &RegistryCollector{provider: p, rules: rules, policy: policy}
}

func (c *RegistryCollector) Collect(ctx context.Context, cert *certmodels.Certificate) (*models.StepOutcome, error) {
	number := cert.CertificateData["certificate_number"]
	if number == "" {
		return nil, errors.New("certificate data has no certificate_number to look up")
	}
	filters := baseFilters(cert)
	filters["certificate_number"] = number

	evidence, err := c.provider.Lookup(ctx, filters)
	if err != nil {
		if providers.GetCategory(err) == providers.ErrorNotFound {
			return &models.StepOutcome{
				Result:     ResultRecordNotFound,
				Confidence: 0,
				Evidence:   map[string]any{"found": false, "certificateNumber": number},
			}, nil
		}
		return nil, err
	}

	record := httpprovider.RecordFields(evidence)
	match := matching.MatchFields(cert.CertificateData, record, c.rules, c.policy)

	data := stepEvidence(evidence)
	data["found"] = true
	data["fieldMatches"] = match.FieldMatches
	data["matchStatus"] = string(match.MatchStatus)
	return &models.StepOutcome{
		Result:     string(match.MatchStatus),
		Confidence: match.MatchConfidence,
		Evidence:   data,
	}, nil
}

// ForensicCollector asks the risk service whether the certificate was
// tampered with. Step confidence is 1 - riskScore.
type ForensicCollector struct {
	provider providers.Provider
}

func NewForensicCollector(p providers.Provider) ports.Collector {
	return &ForensicCollector{provider: p}
}

func (c *ForensicCollector) Collect(ctx context.Context, cert *certmodels.Certificate) (*models.StepOutcome, error) {
	filters := baseFilters(cert)
	if cert.DocumentID != nil {
		filters["document_id"] = cert.DocumentID.String()
	}
	evidence, err := c.provider.Lookup(ctx, filters)
	if err != nil {
		return nil, err
	}
	risk, ok := evidence.Data["risk_score"].(float64)
	if !ok {
		return nil, fmt.Errorf("forensic evidence from %s has no risk_score", evidence.ProviderID)
	}
	return &models.StepOutcome{
		Result:     riskBand(risk),
		Confidence: 1 - risk,
		Evidence:   stepEvidence(evidence),
	}, nil
}

func riskBand(risk float64) string {
	switch {
	case risk < 0.3:
		return ResultLowRisk
	case risk < 0.7:
		return ResultMediumRisk
	default:
		return ResultHighRisk
	}
}

func baseFilters(cert *certmodels.Certificate) map[string]string {
	return map[string]string{
		"certificate_id":   cert.ID.String(),
		"certificate_type": cert.CertificateType,
		"issuer_type":      cert.IssuerType,
	}
}

func stepEvidence(e *providers.Evidence) map[string]any {
	data := maps.Clone(e.Data)
	if data == nil {
		data = map[string]any{}
	}
	data["providerId"] = e.ProviderID
	data["checkedAt"] = e.CheckedAt.UTC().Format(time.RFC3339)
	return data
}
