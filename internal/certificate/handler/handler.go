package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certverify/internal/certificate/models"
	"certverify/internal/certificate/service"
	id "certverify/pkg/domain"
	"certverify/pkg/platform/httputil"
	"certverify/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Certificate, error)
	Get(ctx context.Context, certID id.CertificateID) (*models.Certificate, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts certificate endpoints. The verification history of a
// certificate is served by the verification handler.
func (h *Handler) Register(r chi.Router) {
	r.Post("/certificates", h.HandleCreate)
	r.Get("/certificates/{id}", h.HandleGet)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cert, err := h.service.Create(ctx, service.CreateRequest{
		CertificateType: req.CertificateType,
		IssuerType:      req.IssuerType,
		CertificateData: req.CertificateData,
		DocumentID:      req.documentID,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "certificate creation failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, cert)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cert, err := h.service.Get(r.Context(), certID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}
