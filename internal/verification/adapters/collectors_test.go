package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	certmodels "certverify/internal/certificate/models"
	"certverify/internal/evidence/providers"
	"certverify/internal/matching"
	"certverify/internal/verification/models"
	id "certverify/pkg/domain"
)

type stubProvider struct {
	evidence *providers.Evidence
	err      error
	filters  map[string]string
}

func (p *stubProvider) ID() string                           { return "stub" }
func (p *stubProvider) Capabilities() providers.Capabilities { return providers.Capabilities{} }
func (p *stubProvider) Health(context.Context) error         { return nil }
func (p *stubProvider) Lookup(_ context.Context, filters map[string]string) (*providers.Evidence, error) {
	p.filters = filters
	return p.evidence, p.err
}

func testCertificate() *certmodels.Certificate {
	docID := id.NewDocumentID()
	return &certmodels.Certificate{
		ID:              id.NewCertificateID(),
		CertificateType: "DEGREE",
		IssuerType:      "UNIVERSITY",
		DocumentID:      &docID,
		CertificateData: map[string]string{
			"certificate_number": "MU-2019-0042",
			"name":               "Priya Sharma",
			"date_of_birth":      "1998-04-12",
		},
	}
}

func TestDigitalCollector(t *testing.T) {
	p := &stubProvider{evidence: &providers.Evidence{
		ProviderID: "validator",
		Confidence: 0.87,
		Data:       map[string]any{"valid": true, "signer": "Mumbai University"},
		CheckedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	cert := testCertificate()

	outcome, err := NewDigitalCollector(p).Collect(context.Background(), cert)
	require.NoError(t, err)

	assert.Equal(t, ResultSignatureValid, outcome.Result)
	assert.Equal(t, 0.87, outcome.Confidence)
	assert.Equal(t, "validator", outcome.Evidence["providerId"])
	assert.Equal(t, "2026-01-01T00:00:00Z", outcome.Evidence["checkedAt"])
	assert.Equal(t, cert.ID.String(), p.filters["certificate_id"])
	assert.Equal(t, "MU-2019-0042", p.filters["certificate_number"])
}

func TestDigitalCollectorInvalidScoresZero(t *testing.T) {
	tests := []struct {
		name   string
		data   map[string]any
		result string
	}{
		{"invalid signature", map[string]any{"valid": false, "reason": "signature mismatch"}, ResultSignatureInvalid},
		{"invalid signature with valid qr", map[string]any{"valid": false, "qr_valid": true}, ResultSignatureInvalid},
		{"valid signature with invalid qr", map[string]any{"valid": true, "qr_valid": false}, ResultQRInvalid},
		{"missing verdict", map[string]any{}, ResultSignatureInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubProvider{evidence: &providers.Evidence{ProviderID: "validator", Confidence: 0.95, Data: tt.data}}

			outcome, err := NewDigitalCollector(p).Collect(context.Background(), testCertificate())
			require.NoError(t, err)

			assert.Equal(t, tt.result, outcome.Result)
			assert.Zero(t, outcome.Confidence)
		})
	}
}

// A signature the validator is confident is invalid must not aggregate into
// a VERIFIED verdict.
func TestInvalidSignatureIsNotVerified(t *testing.T) {
	p := &stubProvider{evidence: &providers.Evidence{
		ProviderID: "validator",
		Confidence: 0.95,
		Data:       map[string]any{"valid": false},
	}}
	outcome, err := NewDigitalCollector(p).Collect(context.Background(), testCertificate())
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	step := models.Step{StepType: models.StepSignatureCheck, Mandatory: true}
	step.Start(now)
	step.Complete(*outcome, now)

	agg := models.Aggregate(models.DefaultPolicy(), models.TypeDigital, []models.Step{step})
	assert.Equal(t, models.ResultUnverified, agg.Result)
	assert.Zero(t, agg.Confidence)
}

func TestDigitalCollectorPropagatesProviderErrors(t *testing.T) {
	p := &stubProvider{err: providers.NewProviderError(providers.ErrorProviderOutage, "validator", "down", nil)}
	_, err := NewDigitalCollector(p).Collect(context.Background(), testCertificate())
	assert.Equal(t, providers.ErrorProviderOutage, providers.GetCategory(err))
}

func TestRegistryCollector(t *testing.T) {
	rules := matching.CertificateRegistryRules(matching.DefaultFieldThreshold)
	policy := matching.DefaultPolicy()

	t.Run("matching record scores high", func(t *testing.T) {
		p := &stubProvider{evidence: &providers.Evidence{
			ProviderID: "portal",
			Confidence: 1,
			Data: map[string]any{
				"record": map[string]any{
					"certificate_number": "mu-2019-0042",
					"name":               "PRIYA SHARMA",
					"date_of_birth":      "12/04/1998",
				},
			},
		}}
		outcome, err := NewRegistryCollector(p, rules, policy).Collect(context.Background(), testCertificate())
		require.NoError(t, err)

		assert.Equal(t, string(matching.StatusMatched), outcome.Result)
		assert.InDelta(t, 1.0, outcome.Confidence, 1e-9)
		assert.Equal(t, true, outcome.Evidence["found"])
		assert.Equal(t, "MU-2019-0042", p.filters["certificate_number"])
	})

	t.Run("mismatched name lowers confidence", func(t *testing.T) {
		p := &stubProvider{evidence: &providers.Evidence{
			Data: map[string]any{
				"record": map[string]any{
					"certificate_number": "MU-2019-0042",
					"name":               "Rahul Verma",
					"date_of_birth":      "1998-04-12",
				},
			},
		}}
		outcome, err := NewRegistryCollector(p, rules, policy).Collect(context.Background(), testCertificate())
		require.NoError(t, err)
		assert.Less(t, outcome.Confidence, 0.85)
	})

	t.Run("unknown record completes with zero confidence", func(t *testing.T) {
		p := &stubProvider{err: providers.NewProviderError(providers.ErrorNotFound, "portal", "missing", nil)}
		outcome, err := NewRegistryCollector(p, rules, policy).Collect(context.Background(), testCertificate())
		require.NoError(t, err)
		assert.Equal(t, ResultRecordNotFound, outcome.Result)
		assert.Zero(t, outcome.Confidence)
	})

	t.Run("outage fails the step", func(t *testing.T) {
		p := &stubProvider{err: providers.NewProviderError(providers.ErrorTimeout, "portal", "slow", nil)}
		_, err := NewRegistryCollector(p, rules, policy).Collect(context.Background(), testCertificate())
		assert.Error(t, err)
	})

	t.Run("certificate without number", func(t *testing.T) {
		cert := testCertificate()
		delete(cert.CertificateData, "certificate_number")
		_, err := NewRegistryCollector(&stubProvider{}, rules, policy).Collect(context.Background(), cert)
		assert.ErrorContains(t, err, "certificate_number")
	})
}

func TestForensicCollector(t *testing.T) {
	p := &stubProvider{evidence: &providers.Evidence{
		ProviderID: "forensics",
		Confidence: 0.8,
		Data:       map[string]any{"risk_score": 0.2, "indicators": []any{}},
	}}
	cert := testCertificate()

	outcome, err := NewForensicCollector(p).Collect(context.Background(), cert)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, outcome.Confidence, 1e-9)
	assert.Equal(t, ResultLowRisk, outcome.Result)
	assert.Equal(t, cert.DocumentID.String(), p.filters["document_id"])

	p.evidence = &providers.Evidence{ProviderID: "forensics", Data: map[string]any{}}
	_, err = NewForensicCollector(p).Collect(context.Background(), cert)
	assert.ErrorContains(t, err, "risk_score")
}

func TestRiskBand(t *testing.T) {
	assert.Equal(t, ResultLowRisk, riskBand(0.29))
	assert.Equal(t, ResultMediumRisk, riskBand(0.3))
	assert.Equal(t, ResultHighRisk, riskBand(0.7))
}
