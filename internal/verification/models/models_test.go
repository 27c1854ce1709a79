package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
)

func completed(st StepType, confidence float64) Step {
	return Step{StepType: st, Status: StepCompleted, Confidence: confidence}
}

func failed(st StepType, msg string) Step {
	return Step{StepType: st, Status: StepFailed, ErrorMessage: msg}
}

func TestAggregate(t *testing.T) {
	policy := DefaultPolicy()

	t.Run("combined with failed mandatory step requires review despite high mean", func(t *testing.T) {
		agg := Aggregate(policy, TypeCombined, []Step{
			failed(StepSignatureCheck, "validator unavailable"),
			completed(StepRegistryLookup, 0.95),
			completed(StepRiskAnalysis, 0.95),
		})
		assert.Equal(t, ResultRequiresManualReview, agg.Result)
		assert.Equal(t, StatusCompleted, agg.Status)
		assert.InDelta(t, 0.95, agg.Confidence, 1e-9)
		assert.Contains(t, agg.Reason, "SIGNATURE_CHECK failed: validator unavailable")
	})

	t.Run("failed optional step is excluded from the mean", func(t *testing.T) {
		agg := Aggregate(policy, TypeCombined, []Step{
			completed(StepSignatureCheck, 0.9),
			completed(StepRegistryLookup, 0.8),
			failed(StepRiskAnalysis, "timed out"),
		})
		assert.InDelta(t, 0.85, agg.Confidence, 1e-9)
		assert.Equal(t, ResultVerified, agg.Result)
	})

	t.Run("no completed steps fails the verification", func(t *testing.T) {
		agg := Aggregate(policy, TypePortal, []Step{failed(StepRegistryLookup, "portal down")})
		assert.Equal(t, StatusFailed, agg.Status)
		assert.Equal(t, ResultRequiresManualReview, agg.Result)
		assert.Zero(t, agg.Confidence)
		assert.Contains(t, agg.Reason, "no verification step completed")
		assert.Contains(t, agg.Reason, "portal down")
	})

	t.Run("skipped mandatory step forces review", func(t *testing.T) {
		agg := Aggregate(policy, TypeCombined, []Step{
			completed(StepSignatureCheck, 0.99),
			{StepType: StepRegistryLookup, Status: StepSkipped, ErrorMessage: "no collector"},
			completed(StepRiskAnalysis, 0.99),
		})
		assert.Equal(t, ResultRequiresManualReview, agg.Result)
	})

	t.Run("threshold bands are inclusive", func(t *testing.T) {
		cases := []struct {
			confidence float64
			want       Result
		}{
			{0.8, ResultVerified},
			{0.79, ResultRequiresManualReview},
			{0.6, ResultRequiresManualReview},
			{0.59, ResultUnverified},
			{0, ResultUnverified},
		}
		for _, tc := range cases {
			agg := Aggregate(policy, TypeDigital, []Step{completed(StepSignatureCheck, tc.confidence)})
			assert.Equal(t, tc.want, agg.Result, "confidence %.2f", tc.confidence)
			assert.Equal(t, StatusCompleted, agg.Status)
		}
	})

	t.Run("configurable thresholds", func(t *testing.T) {
		strict := Policy{VerifiedThreshold: 0.95, ReviewThreshold: 0.9}
		agg := Aggregate(strict, TypeForensic, []Step{completed(StepRiskAnalysis, 0.92)})
		assert.Equal(t, ResultRequiresManualReview, agg.Result)
	})

	t.Run("pure", func(t *testing.T) {
		steps := []Step{completed(StepSignatureCheck, 0.7), completed(StepRegistryLookup, 0.9)}
		assert.Equal(t, Aggregate(policy, TypeCombined, steps), Aggregate(policy, TypeCombined, steps))
	})
}

func TestPolicyMandatory(t *testing.T) {
	policy := DefaultPolicy()
	assert.True(t, policy.IsMandatory(TypeForensic, StepRiskAnalysis))
	assert.True(t, policy.IsMandatory(TypeCombined, StepSignatureCheck))
	assert.True(t, policy.IsMandatory(TypeCombined, StepRegistryLookup))
	assert.False(t, policy.IsMandatory(TypeCombined, StepRiskAnalysis))
}

func TestParseType(t *testing.T) {
	vt, err := ParseType(" combined ")
	require.NoError(t, err)
	assert.Equal(t, TypeCombined, vt)
	assert.Equal(t, []StepType{StepSignatureCheck, StepRegistryLookup, StepRiskAnalysis}, vt.Steps())

	_, err = ParseType("BIOMETRIC")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestNewVerification(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	prev := id.NewVerificationID()
	v := NewVerification(id.NewVerificationID(), id.NewCertificateID(), TypeCombined, DefaultPolicy(), 2, &prev, now)

	assert.Equal(t, StatusInProgress, v.Status)
	assert.Equal(t, ResultPending, v.Result)
	assert.Equal(t, 2, v.Attempt)
	require.Len(t, v.Steps, 3)
	assert.True(t, v.Steps[0].Mandatory)
	assert.True(t, v.Steps[1].Mandatory)
	assert.False(t, v.Steps[2].Mandatory)
	for _, s := range v.Steps {
		assert.Equal(t, StepPending, s.Status)
	}
}

func TestStepLifecycle(t *testing.T) {
	start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	step := Step{StepType: StepRiskAnalysis, Status: StepPending}

	_, ok := step.Duration()
	assert.False(t, ok)

	step.Start(start)
	step.Complete(StepOutcome{Result: "LOW_RISK", Confidence: 1.3, Evidence: map[string]any{"risk_score": 0.0}}, start.Add(1500*time.Millisecond))

	d, ok := step.Duration()
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)
	assert.Equal(t, int64(1500), *step.DurationMS)
	assert.Equal(t, 1.0, step.Confidence, "confidence clamped")

	failedStep := Step{StepType: StepSignatureCheck}
	failedStep.Start(start)
	failedStep.Fail("timed out", start.Add(time.Second))
	assert.Equal(t, StepFailed, failedStep.Status)
	assert.Zero(t, failedStep.Confidence)
}

func TestRetryEligibility(t *testing.T) {
	v := &Verification{Status: StatusInProgress, Result: ResultPending}
	assert.False(t, v.CanRetry(), "running")

	v.Status, v.Result = StatusCompleted, ResultUnverified
	assert.True(t, v.CanRetry())

	v.Status, v.Result = StatusCompleted, ResultVerified
	assert.False(t, v.CanRetry())

	v.Status, v.Result = StatusCompleted, ResultRequiresManualReview
	assert.False(t, v.CanRetry())

	v.Status, v.Result = StatusFailed, ResultRequiresManualReview
	assert.True(t, v.CanRetry())
}

func TestApplyReviewDecision(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("approve completes a failed run", func(t *testing.T) {
		v := &Verification{Status: StatusFailed, Result: ResultRequiresManualReview}
		override := 0.9
		require.NoError(t, v.ApplyReviewDecision(ResultVerified, &override, now))
		assert.Equal(t, StatusCompleted, v.Status)
		assert.Equal(t, ResultVerified, v.Result)
		assert.Equal(t, 0.9, v.ConfidenceScore)
	})

	t.Run("needs more info keeps review result", func(t *testing.T) {
		v := &Verification{Status: StatusCompleted, Result: ResultRequiresManualReview, ConfidenceScore: 0.7}
		require.NoError(t, v.ApplyReviewDecision(ResultRequiresManualReview, nil, now))
		assert.Equal(t, ResultRequiresManualReview, v.Result)
		assert.Equal(t, 0.7, v.ConfidenceScore)
	})

	t.Run("rejects verdicts not awaiting review", func(t *testing.T) {
		v := &Verification{Status: StatusCompleted, Result: ResultVerified}
		err := v.ApplyReviewDecision(ResultUnverified, nil, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("rejects running verifications", func(t *testing.T) {
		v := &Verification{Status: StatusInProgress, Result: ResultPending}
		err := v.ApplyReviewDecision(ResultVerified, nil, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func TestFinishCollectsEvidence(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerification(id.NewVerificationID(), id.NewCertificateID(), TypeCombined, DefaultPolicy(), 1, nil, now)
	v.Steps[0] = Step{StepType: StepSignatureCheck, Status: StepCompleted, Confidence: 0.9, Evidence: map[string]any{"valid": true}}
	v.Steps[1] = Step{StepType: StepRegistryLookup, Status: StepCompleted, Confidence: 0.9, Evidence: map[string]any{"found": true}}
	v.Steps[2] = failed(StepRiskAnalysis, "down")

	v.Finish(Aggregate(DefaultPolicy(), v.VerificationType, v.Steps), now)

	assert.Equal(t, ResultVerified, v.Result)
	assert.Contains(t, v.Evidence, "SIGNATURE_CHECK")
	assert.Contains(t, v.Evidence, "REGISTRY_LOOKUP")
	assert.NotContains(t, v.Evidence, "RISK_ANALYSIS")
	require.NotNil(t, v.CompletedAt)
}
