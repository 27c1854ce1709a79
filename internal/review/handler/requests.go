package handler

import (
	"net/url"
	"strconv"
	"strings"

	"certverify/internal/review/models"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
)

type SubmitRequest struct {
	Decision           string   `json:"decision"`
	Comments           string   `json:"comments"`
	ConfidenceOverride *float64 `json:"confidenceOverride,omitempty"`

	decision models.Decision
}

const maxCommentsLength = 4000

func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.Decision) == "" {
		return dErrors.New(dErrors.CodeValidation, "decision is required")
	}
	decision, err := models.ParseDecision(r.Decision)
	if err != nil {
		return err
	}
	r.Comments = strings.TrimSpace(r.Comments)
	if len(r.Comments) > maxCommentsLength {
		return dErrors.New(dErrors.CodeValidation, "comments must be at most 4000 characters")
	}
	if c := r.ConfidenceOverride; c != nil && (*c < 0 || *c > 1) {
		return dErrors.New(dErrors.CodeValidation, "confidenceOverride must be between 0 and 1")
	}
	r.decision = decision
	return nil
}

type QueueResponse struct {
	Reviews []*models.Review `json:"reviews"`
}

// parseQueueFilter reads status (comma separated), priority, assignedTo and
// limit. No status means the open queue.
func parseQueueFilter(q url.Values) (models.Filter, error) {
	var filter models.Filter
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := models.ParseStatus(part)
			if err != nil {
				return filter, err
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if raw := strings.TrimSpace(q.Get("priority")); raw != "" {
		p, err := models.ParsePriority(raw)
		if err != nil {
			return filter, err
		}
		filter.Priority = &p
	}
	if raw := strings.TrimSpace(q.Get("assignedTo")); raw != "" {
		v, err := id.ParseVerifierID(raw)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeValidation, "assignedTo must be a verifier id")
		}
		filter.AssignedTo = &v
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return filter, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
		}
		filter.Limit = n
	}
	return filter.Normalize(), nil
}
