package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certverify/internal/document/models"
	"certverify/internal/document/service"
	"certverify/internal/matching"
	"certverify/internal/normalize"
	"certverify/internal/similarity"
	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/platform/httputil"
	"certverify/pkg/requestcontext"
)

// multipartOverhead leaves room for boundaries and part headers on top of
// the file size limit.
const multipartOverhead = 1 << 20

// Service defines the document operations the HTTP layer needs.
type Service interface {
	Upload(ctx context.Context, req service.UploadRequest) (*models.Document, error)
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	Data(ctx context.Context, docID id.DocumentID) (*models.Data, error)
	SubmitCorrection(ctx context.Context, docID id.DocumentID, corrected map[string]string) (*models.Document, error)
	MatchPANAadhaar(ctx context.Context, panID, aadhaarID id.DocumentID) (*matching.Result, error)
	MatchSignatures(ctx context.Context, doc1, doc2 id.DocumentID) (*similarity.SignatureMatchResult, error)
}

type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

func New(service Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	return &Handler{service: service, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Register mounts document endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/document-processing", func(r chi.Router) {
		r.Post("/aadhaar/upload", h.handleUpload(normalize.DocumentTypeAadhaar))
		r.Post("/pan/upload", h.handleUpload(normalize.DocumentTypePAN))
		r.Post("/match/pan-aadhaar", h.HandleMatchPANAadhaar)
		r.Post("/match/signatures", h.HandleMatchSignatures)
		r.Get("/{id}", h.HandleGet)
		r.Get("/{id}/data", h.HandleData)
		r.Post("/{id}/corrections", h.HandleCorrection)
	})
}

func (h *Handler) handleUpload(docType normalize.DocumentType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)

		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeValidation,
					fmt.Sprintf("file exceeds the %d byte upload limit", h.maxUploadBytes)))
				return
			}
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, `multipart field "file" is required`))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read uploaded file"))
			return
		}

		doc, err := h.service.Upload(ctx, service.UploadRequest{
			DocumentType: string(docType),
			FileName:     header.Filename,
			ContentType:  header.Header.Get("Content-Type"),
			Data:         data,
		})
		if err != nil {
			h.logger.WarnContext(ctx, "document upload rejected",
				"request_id", requestID,
				"document_type", docType,
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}

		h.logger.InfoContext(ctx, "document uploaded",
			"request_id", requestID,
			"document_id", doc.ID,
			"document_type", docType,
			"size_bytes", doc.SizeBytes,
		)
		httputil.WriteJSON(w, http.StatusAccepted, UploadResponse{ID: doc.ID.String(), Status: string(doc.Status)})
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	docID, ok := parseDocumentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) HandleData(w http.ResponseWriter, r *http.Request) {
	docID, ok := parseDocumentID(w, r)
	if !ok {
		return
	}
	data, err := h.service.Data(r.Context(), docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, data)
}

func (h *Handler) HandleCorrection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	docID, ok := parseDocumentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CorrectionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	doc, err := h.service.SubmitCorrection(ctx, docID, req.CorrectedFields)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "document corrected",
		"request_id", requestID,
		"document_id", docID,
		"fields", len(req.CorrectedFields),
	)
	httputil.WriteJSON(w, http.StatusOK, CorrectionResponse{ID: doc.ID.String(), Status: "corrected", UpdatedAt: doc.UpdatedAt})
}

func (h *Handler) HandleMatchPANAadhaar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[PANAadhaarMatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.MatchPANAadhaar(ctx, req.panID, req.aadhaarID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleMatchSignatures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[SignatureMatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.MatchSignatures(ctx, req.doc1, req.doc2)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeExternalService) {
			h.logger.WarnContext(ctx, "signature comparison failed", "request_id", requestID, "error", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func parseDocumentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DocumentID{}, false
	}
	return docID, true
}
