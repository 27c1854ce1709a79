package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by retention and routing needs.
type EventCategory string

const (
	// CategoryCompliance covers outcomes that carry legal weight: verification
	// results and human review decisions.
	CategoryCompliance EventCategory = "compliance"
	// CategoryOperations covers routine pipeline activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// SubjectType and Subject identify the entity acted on, e.g.
	// ("verification", "<uuid>").
	SubjectType string
	Subject     string
	Action      string
	Decision    string
	Reason      string
	RequestID   string
	// ActorID is the verifier for human actions, empty for the pipeline.
	ActorID string
}

type AuditEvent string

const (
	EventDocumentUploaded  AuditEvent = "document_uploaded"
	EventDocumentProcessed AuditEvent = "document_processed"
	EventDocumentFailed    AuditEvent = "document_failed"
	EventDocumentCorrected AuditEvent = "document_corrected"

	EventCertificateCreated AuditEvent = "certificate_created"

	EventVerificationStarted   AuditEvent = "verification_started"
	EventVerificationCompleted AuditEvent = "verification_completed"
	EventVerificationRetried   AuditEvent = "verification_retried"
	EventVerificationEscalated AuditEvent = "verification_escalated"

	EventReviewAssigned AuditEvent = "review_assigned"
	EventReviewStarted  AuditEvent = "review_started"
	EventReviewReleased AuditEvent = "review_released"
	EventReviewDecided  AuditEvent = "review_decided"
	EventReviewFollowUp AuditEvent = "review_follow_up_opened"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDocumentCorrected:     CategoryCompliance,
	EventVerificationCompleted: CategoryCompliance,
	EventVerificationEscalated: CategoryCompliance,
	EventReviewAssigned:        CategoryCompliance,
	EventReviewDecided:         CategoryCompliance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
