package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certverify/internal/verification/models"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/httputil"
	"certverify/pkg/requestcontext"
)

type Service interface {
	Start(ctx context.Context, certID id.CertificateID, vtype models.Type) (*models.Verification, error)
	Get(ctx context.Context, verificationID id.VerificationID) (*models.Verification, error)
	Retry(ctx context.Context, verificationID id.VerificationID) (*models.Verification, error)
	ListByCertificate(ctx context.Context, certID id.CertificateID) ([]*models.Verification, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/verifications", h.HandleStart)
	r.Get("/verifications/{id}", h.HandleGet)
	r.Post("/verifications/{id}/retry", h.HandleRetry)
	r.Get("/certificates/{id}/verifications", h.HandleListByCertificate)
}

// HandleStart accepts a verification and returns it while evidence is
// still being collected.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	v, err := h.service.Start(ctx, req.certificateID, req.verificationType)
	if err != nil {
		h.logger.WarnContext(ctx, "verification start rejected",
			"request_id", requestID,
			"certificate_id", req.CertificateID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, v)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	verificationID, err := id.ParseVerificationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.Get(r.Context(), verificationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	verificationID, err := id.ParseVerificationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.Retry(ctx, verificationID)
	if err != nil {
		h.logger.WarnContext(ctx, "verification retry rejected",
			"request_id", requestcontext.RequestID(ctx),
			"verification_id", verificationID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, v)
}

func (h *Handler) HandleListByCertificate(w http.ResponseWriter, r *http.Request) {
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.service.ListByCertificate(r.Context(), certID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*models.Verification{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Verifications: list})
}
