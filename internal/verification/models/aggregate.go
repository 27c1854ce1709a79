package models

import (
	"fmt"
	"strings"
)

const (
	DefaultVerifiedThreshold = 0.8
	DefaultReviewThreshold   = 0.6
)

// Policy holds the verdict thresholds and the mandatory steps of COMBINED
// verifications. Single-step types always treat their only step as mandatory.
type Policy struct {
	VerifiedThreshold float64
	ReviewThreshold   float64
	CombinedMandatory []StepType
}

func DefaultPolicy() Policy {
	return Policy{
		VerifiedThreshold: DefaultVerifiedThreshold,
		ReviewThreshold:   DefaultReviewThreshold,
		CombinedMandatory: []StepType{StepSignatureCheck, StepRegistryLookup},
	}
}

func (p Policy) IsMandatory(vtype Type, step StepType) bool {
	if vtype != TypeCombined {
		return true
	}
	for _, m := range p.CombinedMandatory {
		if m == step {
			return true
		}
	}
	return false
}

// Aggregation is the outcome of combining step results.
type Aggregation struct {
	Status     Status
	Result     Result
	Confidence float64
	Reason     string
}

// Aggregate derives the verdict from the final step states. Confidence is
// the mean over COMPLETED steps only; failed and skipped steps are excluded
// rather than scored as zero.
func Aggregate(policy Policy, vtype Type, steps []Step) Aggregation {
	var (
		sum       float64
		completed int
		problems  []string
		mandatory []string
	)
	for _, s := range steps {
		switch s.Status {
		case StepCompleted:
			sum += s.Confidence
			completed++
		case StepFailed, StepSkipped:
			msg := fmt.Sprintf("%s %s", s.StepType, strings.ToLower(string(s.Status)))
			if s.ErrorMessage != "" {
				msg += ": " + s.ErrorMessage
			}
			problems = append(problems, msg)
			if policy.IsMandatory(vtype, s.StepType) {
				mandatory = append(mandatory, msg)
			}
		}
	}

	if completed == 0 {
		reason := "no verification step completed"
		if len(problems) > 0 {
			reason += " (" + strings.Join(problems, "; ") + ")"
		}
		return Aggregation{
			Status:     StatusFailed,
			Result:     ResultRequiresManualReview,
			Confidence: 0,
			Reason:     reason,
		}
	}

	confidence := clamp01(sum / float64(completed))
	if len(mandatory) > 0 {
		return Aggregation{
			Status:     StatusCompleted,
			Result:     ResultRequiresManualReview,
			Confidence: confidence,
			Reason:     "mandatory step did not complete: " + strings.Join(mandatory, "; "),
		}
	}

	agg := Aggregation{Status: StatusCompleted, Confidence: confidence}
	switch {
	case confidence >= policy.VerifiedThreshold:
		agg.Result = ResultVerified
	case confidence >= policy.ReviewThreshold:
		agg.Result = ResultRequiresManualReview
		agg.Reason = fmt.Sprintf("confidence %.2f below verified threshold %.2f", confidence, policy.VerifiedThreshold)
	default:
		agg.Result = ResultUnverified
		agg.Reason = fmt.Sprintf("confidence %.2f below review threshold %.2f", confidence, policy.ReviewThreshold)
	}
	return agg
}
