package models

import (
	"fmt"
	"maps"
	"strings"
	"time"

	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
)

// Type selects which evidence steps a verification runs.
type Type string

const (
	TypeDigital  Type = "DIGITAL"
	TypePortal   Type = "PORTAL"
	TypeForensic Type = "FORENSIC"
	TypeCombined Type = "COMBINED"
)

// ParseType accepts the closed set of verification types, case-insensitively.
func ParseType(raw string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(raw))); t {
	case TypeDigital, TypePortal, TypeForensic, TypeCombined:
		return t, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("verificationType must be one of DIGITAL, PORTAL, FORENSIC, COMBINED; got %q", raw))
	}
}

// Steps returns the step order for the type. The order is part of the
// verification's contract and is preserved in responses.
func (t Type) Steps() []StepType {
	switch t {
	case TypeDigital:
		return []StepType{StepSignatureCheck}
	case TypePortal:
		return []StepType{StepRegistryLookup}
	case TypeForensic:
		return []StepType{StepRiskAnalysis}
	case TypeCombined:
		return []StepType{StepSignatureCheck, StepRegistryLookup, StepRiskAnalysis}
	default:
		return nil
	}
}

// Status tracks pipeline progress.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsActive reports whether the verification still holds the per-certificate slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusInProgress
}

// Result is the verdict; meaningful once Status is terminal.
type Result string

const (
	ResultPending              Result = "PENDING"
	ResultVerified             Result = "VERIFIED"
	ResultUnverified           Result = "UNVERIFIED"
	ResultRequiresManualReview Result = "REQUIRES_MANUAL_REVIEW"
)

type StepType string

const (
	StepSignatureCheck StepType = "SIGNATURE_CHECK"
	StepRegistryLookup StepType = "REGISTRY_LOOKUP"
	StepRiskAnalysis   StepType = "RISK_ANALYSIS"
)

type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
	StepFailed     StepStatus = "FAILED"
	StepSkipped    StepStatus = "SKIPPED"
)

// StepOutcome is what an evidence collector reports for a successful step.
type StepOutcome struct {
	Result     string
	Confidence float64
	Evidence   map[string]any
}

type Step struct {
	StepType     StepType       `json:"stepType"`
	Status       StepStatus     `json:"status"`
	Mandatory    bool           `json:"mandatory"`
	Result       string         `json:"result,omitempty"`
	Confidence   float64        `json:"confidence"`
	Evidence     map[string]any `json:"evidence,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	DurationMS   *int64         `json:"durationMs,omitempty"`
}

func (s *Step) Start(now time.Time) {
	s.Status = StepInProgress
	s.StartedAt = &now
}

func (s *Step) Complete(outcome StepOutcome, now time.Time) {
	s.Status = StepCompleted
	s.Result = outcome.Result
	s.Confidence = clamp01(outcome.Confidence)
	s.Evidence = outcome.Evidence
	s.finish(now)
}

func (s *Step) Fail(reason string, now time.Time) {
	s.Status = StepFailed
	s.Result = ""
	s.Confidence = 0
	s.ErrorMessage = reason
	s.finish(now)
}

func (s *Step) Skip(reason string, now time.Time) {
	s.Status = StepSkipped
	s.ErrorMessage = reason
	s.finish(now)
}

func (s *Step) finish(now time.Time) {
	s.CompletedAt = &now
	if s.StartedAt != nil {
		ms := now.Sub(*s.StartedAt).Milliseconds()
		s.DurationMS = &ms
	}
}

// Duration is completedAt - startedAt when both are set.
func (s Step) Duration() (time.Duration, bool) {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0, false
	}
	return s.CompletedAt.Sub(*s.StartedAt), true
}

func (s Step) Clone() Step {
	c := s
	c.Evidence = maps.Clone(s.Evidence)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.DurationMS != nil {
		d := *s.DurationMS
		c.DurationMS = &d
	}
	return c
}

// Verification is one attempt at verifying a certificate. Retries create a
// new Verification linked through PreviousAttemptID.
type Verification struct {
	ID                id.VerificationID  `json:"id"`
	CertificateID     id.CertificateID   `json:"certificateId"`
	VerificationType  Type               `json:"verificationType"`
	Status            Status             `json:"status"`
	Result            Result             `json:"result"`
	ConfidenceScore   float64            `json:"confidenceScore"`
	Steps             []Step             `json:"steps"`
	Evidence          map[string]any     `json:"evidence"`
	Attempt           int                `json:"attempt"`
	PreviousAttemptID *id.VerificationID `json:"previousAttemptId,omitempty"`
	FailureReason     string             `json:"failureReason,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	CompletedAt       *time.Time         `json:"completedAt,omitempty"`
}

// NewVerification builds an IN_PROGRESS verification with every step
// PENDING. mandatory marks the steps whose failure forces manual review.
func NewVerification(
	verificationID id.VerificationID,
	certID id.CertificateID,
	vtype Type,
	policy Policy,
	attempt int,
	previous *id.VerificationID,
	now time.Time,
) *Verification {
	stepTypes := vtype.Steps()
	steps := make([]Step, len(stepTypes))
	for i, st := range stepTypes {
		steps[i] = Step{StepType: st, Status: StepPending, Mandatory: policy.IsMandatory(vtype, st)}
	}
	return &Verification{
		ID:                verificationID,
		CertificateID:     certID,
		VerificationType:  vtype,
		Status:            StatusInProgress,
		Result:            ResultPending,
		Steps:             steps,
		Evidence:          map[string]any{},
		Attempt:           attempt,
		PreviousAttemptID: previous,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (v *Verification) IsTerminal() bool {
	return v.Status == StatusCompleted || v.Status == StatusFailed
}

// CanRetry permits a new attempt after an UNVERIFIED verdict or a failed run.
func (v *Verification) CanRetry() bool {
	return v.IsTerminal() && (v.Result == ResultUnverified || v.Status == StatusFailed)
}

// Finish records the aggregation and copies step evidence onto the
// verification keyed by step type.
func (v *Verification) Finish(agg Aggregation, now time.Time) {
	v.Status = agg.Status
	v.Result = agg.Result
	v.ConfidenceScore = agg.Confidence
	v.FailureReason = agg.Reason
	v.Evidence = make(map[string]any, len(v.Steps))
	for _, step := range v.Steps {
		if step.Status == StepCompleted && step.Evidence != nil {
			v.Evidence[string(step.StepType)] = step.Evidence
		}
	}
	v.UpdatedAt = now
	v.CompletedAt = &now
}

// ApplyReviewDecision writes a human verdict onto an escalated verification.
// A final verdict completes the verification.
func (v *Verification) ApplyReviewDecision(result Result, confidenceOverride *float64, now time.Time) error {
	if !v.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "verification is still running")
	}
	if v.Result != ResultRequiresManualReview {
		return dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("verification result is %s, not awaiting review", v.Result))
	}
	switch result {
	case ResultVerified, ResultUnverified:
		v.Status = StatusCompleted
	case ResultRequiresManualReview:
	default:
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported review result %s", result))
	}
	if confidenceOverride != nil {
		v.ConfidenceScore = clamp01(*confidenceOverride)
	}
	v.Result = result
	v.UpdatedAt = now
	return nil
}

// HasCompletedStep reports whether any evidence step produced a result.
func (v *Verification) HasCompletedStep() bool {
	for _, s := range v.Steps {
		if s.Status == StepCompleted {
			return true
		}
	}
	return false
}

// MandatoryFailed reports whether a mandatory step failed or was skipped.
func (v *Verification) MandatoryFailed() bool {
	for _, s := range v.Steps {
		if s.Mandatory && (s.Status == StepFailed || s.Status == StepSkipped) {
			return true
		}
	}
	return false
}

func (v *Verification) Clone() *Verification {
	if v == nil {
		return nil
	}
	c := *v
	c.Steps = make([]Step, len(v.Steps))
	for i, s := range v.Steps {
		c.Steps[i] = s.Clone()
	}
	c.Evidence = maps.Clone(v.Evidence)
	if v.PreviousAttemptID != nil {
		prev := *v.PreviousAttemptID
		c.PreviousAttemptID = &prev
	}
	if v.CompletedAt != nil {
		t := *v.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
