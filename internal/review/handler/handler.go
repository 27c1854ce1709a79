package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certverify/internal/review/models"
	"certverify/internal/review/service"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/platform/httputil"
	"certverify/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, filter models.Filter) ([]*models.Review, error)
	Get(ctx context.Context, reviewID id.ReviewID) (*models.Review, error)
	Assign(ctx context.Context, reviewID id.ReviewID, verifier id.VerifierID) (*models.Review, error)
	StartReview(ctx context.Context, reviewID id.ReviewID, verifier id.VerifierID) (*models.Review, error)
	Release(ctx context.Context, reviewID id.ReviewID, verifier id.VerifierID) (*models.Review, error)
	SubmitDecision(ctx context.Context, req service.SubmitDecisionRequest) (*service.DecisionResult, error)
}

// Handler serves the verifier routes. The verifier middleware must run
// first; requests without a verifier identity are rejected.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/verifier/queue", h.HandleQueue)
	r.Get("/verifier/reviews/{id}", h.HandleGet)
	r.Post("/verifier/reviews/{id}/assign", h.HandleAssign)
	r.Post("/verifier/reviews/{id}/start", h.HandleStart)
	r.Post("/verifier/reviews/{id}/release", h.HandleRelease)
	r.Post("/verifier/reviews/{id}/submit", h.HandleSubmit)
}

func (h *Handler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := verifierFrom(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := parseQueueFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.service.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list review queue",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*models.Review{}
	}
	httputil.WriteJSON(w, http.StatusOK, QueueResponse{Reviews: list})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := verifierFrom(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	reviewID, err := id.ParseReviewID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	review, err := h.service.Get(ctx, reviewID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, review)
}

func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "assign", h.service.Assign)
}

func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "start", h.service.StartReview)
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "release", h.service.Release)
}

type transitionFunc func(ctx context.Context, reviewID id.ReviewID, verifier id.VerifierID) (*models.Review, error)

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, action string, fn transitionFunc) {
	ctx := r.Context()
	verifier, err := verifierFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reviewID, err := id.ParseReviewID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	review, err := fn(ctx, reviewID, verifier)
	if err != nil {
		h.logger.WarnContext(ctx, "review "+action+" rejected",
			"request_id", requestcontext.RequestID(ctx),
			"review_id", reviewID,
			"verifier_id", verifier,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, review)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	verifier, err := verifierFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reviewID, err := id.ParseReviewID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.SubmitDecision(ctx, service.SubmitDecisionRequest{
		ReviewID:           reviewID,
		VerifierID:         verifier,
		Decision:           req.decision,
		Comments:           req.Comments,
		ConfidenceOverride: req.ConfidenceOverride,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "review decision rejected",
			"request_id", requestID,
			"review_id", reviewID,
			"verifier_id", verifier,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func verifierFrom(ctx context.Context) (id.VerifierID, error) {
	verifier := requestcontext.VerifierID(ctx)
	if verifier.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "verifier identity is required")
	}
	return verifier, nil
}
