package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	vmodels "certverify/internal/verification/models"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// OpenStatuses is the default queue view.
var OpenStatuses = []Status{StatusPending, StatusAssigned, StatusInProgress}

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted:
		return s, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("status must be one of PENDING, ASSIGNED, IN_PROGRESS, COMPLETED; got %q", raw))
	}
}

type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Rank orders the queue: lower ranks are served first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

func ParsePriority(raw string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(raw))); p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("priority must be one of URGENT, HIGH, MEDIUM, LOW; got %q", raw))
	}
}

// PriorityInput is what the priority rule looks at.
type PriorityInput struct {
	HasCompletedStep bool
	MandatoryFailed  bool
	Confidence       float64
}

// PriorityFor ranks an escalation. The rule is pure so the same
// verification always lands in the same band.
func PriorityFor(in PriorityInput) Priority {
	switch {
	case !in.HasCompletedStep:
		return PriorityUrgent
	case in.MandatoryFailed:
		return PriorityHigh
	case in.Confidence < 0.7:
		return PriorityHigh
	case in.Confidence < 0.75:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

type Decision string

const (
	DecisionApproved      Decision = "APPROVED"
	DecisionRejected      Decision = "REJECTED"
	DecisionNeedsMoreInfo Decision = "NEEDS_MORE_INFO"
)

func ParseDecision(raw string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(raw))); d {
	case DecisionApproved, DecisionRejected, DecisionNeedsMoreInfo:
		return d, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("decision must be one of APPROVED, REJECTED, NEEDS_MORE_INFO; got %q", raw))
	}
}

// VerificationResult is the verdict written back onto the verification.
func (d Decision) VerificationResult() vmodels.Result {
	switch d {
	case DecisionApproved:
		return vmodels.ResultVerified
	case DecisionRejected:
		return vmodels.ResultUnverified
	default:
		return vmodels.ResultRequiresManualReview
	}
}

// Review is a manual review of one escalated verification.
type Review struct {
	ID               id.ReviewID       `json:"id"`
	VerificationID   id.VerificationID `json:"verificationId"`
	CertificateID    id.CertificateID  `json:"certificateId"`
	Status           Status            `json:"status"`
	Priority         Priority          `json:"priority"`
	Reason           string            `json:"reason"`
	AssignedTo       *id.VerifierID    `json:"assignedTo,omitempty"`
	AssignedAt       *time.Time        `json:"assignedAt,omitempty"`
	Decision         *Decision         `json:"decision,omitempty"`
	Comments         string            `json:"comments,omitempty"`
	ConfidenceScore  *float64          `json:"confidenceScore,omitempty"`
	PreviousReviewID *id.ReviewID      `json:"previousReviewId,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
}

func NewReview(reviewID id.ReviewID, verificationID id.VerificationID, certID id.CertificateID, priority Priority, reason string, previous *id.ReviewID, now time.Time) *Review {
	return &Review{
		ID:               reviewID,
		VerificationID:   verificationID,
		CertificateID:    certID,
		Status:           StatusPending,
		Priority:         priority,
		Reason:           reason,
		PreviousReviewID: previous,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (r *Review) IsOpen() bool {
	return r.Status != StatusCompleted
}

func (r *Review) IsAssignedTo(verifier id.VerifierID) bool {
	return r.AssignedTo != nil && *r.AssignedTo == verifier
}

// Assign claims a PENDING, unassigned review.
func (r *Review) Assign(verifier id.VerifierID, now time.Time) error {
	if r.Status != StatusPending || r.AssignedTo != nil {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("review %s is not available for assignment", r.ID))
	}
	v := verifier
	t := now
	r.AssignedTo = &v
	r.AssignedAt = &t
	r.Status = StatusAssigned
	r.UpdatedAt = now
	return nil
}

// StartReview moves an ASSIGNED review into IN_PROGRESS.
func (r *Review) StartReview(verifier id.VerifierID, now time.Time) error {
	if err := r.requireAssignee(verifier); err != nil {
		return err
	}
	if r.Status != StatusAssigned {
		return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("review %s cannot be started from %s", r.ID, r.Status))
	}
	r.Status = StatusInProgress
	r.UpdatedAt = now
	return nil
}

// Release hands an assigned review back to the queue.
func (r *Review) Release(verifier id.VerifierID, now time.Time) error {
	if err := r.requireAssignee(verifier); err != nil {
		return err
	}
	if r.Status != StatusAssigned && r.Status != StatusInProgress {
		return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("review %s cannot be released from %s", r.ID, r.Status))
	}
	r.Status = StatusPending
	r.AssignedTo = nil
	r.AssignedAt = nil
	r.UpdatedAt = now
	return nil
}

// Complete records the assignee's decision.
func (r *Review) Complete(verifier id.VerifierID, decision Decision, comments string, confidenceOverride *float64, now time.Time) error {
	if err := r.requireAssignee(verifier); err != nil {
		return err
	}
	if r.Status != StatusAssigned && r.Status != StatusInProgress {
		return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("review %s cannot be decided from %s", r.ID, r.Status))
	}
	if confidenceOverride != nil && (*confidenceOverride < 0 || *confidenceOverride > 1) {
		return dErrors.New(dErrors.CodeValidation, "confidenceOverride must be between 0 and 1")
	}
	d := decision
	t := now
	r.Decision = &d
	r.Comments = comments
	if confidenceOverride != nil {
		c := *confidenceOverride
		r.ConfidenceScore = &c
	}
	r.Status = StatusCompleted
	r.CompletedAt = &t
	r.UpdatedAt = now
	return nil
}

func (r *Review) requireAssignee(verifier id.VerifierID) error {
	if !r.IsAssignedTo(verifier) {
		return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("review %s is not assigned to %s", r.ID, verifier))
	}
	return nil
}

func (r *Review) Clone() *Review {
	if r == nil {
		return nil
	}
	out := *r
	if r.AssignedTo != nil {
		v := *r.AssignedTo
		out.AssignedTo = &v
	}
	if r.AssignedAt != nil {
		t := *r.AssignedAt
		out.AssignedAt = &t
	}
	if r.Decision != nil {
		d := *r.Decision
		out.Decision = &d
	}
	if r.ConfidenceScore != nil {
		c := *r.ConfidenceScore
		out.ConfidenceScore = &c
	}
	if r.PreviousReviewID != nil {
		p := *r.PreviousReviewID
		out.PreviousReviewID = &p
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Filter narrows a queue listing. Empty Statuses means the open queue.
type Filter struct {
	Statuses   []Status
	Priority   *Priority
	AssignedTo *id.VerifierID
	Limit      int
}

// Normalize applies the defaults.
func (f Filter) Normalize() Filter {
	if len(f.Statuses) == 0 {
		f.Statuses = OpenStatuses
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f
}

func (f Filter) Matches(r *Review) bool {
	statusOK := false
	for _, s := range f.Statuses {
		if r.Status == s {
			statusOK = true
			break
		}
	}
	if !statusOK {
		return false
	}
	if f.Priority != nil && r.Priority != *f.Priority {
		return false
	}
	if f.AssignedTo != nil && !r.IsAssignedTo(*f.AssignedTo) {
		return false
	}
	return true
}

// SortQueue orders by priority rank, then age, then id.
func SortQueue(reviews []*Review) {
	sort.SliceStable(reviews, func(i, j int) bool {
		a, b := reviews[i], reviews[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
