package service

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"certverify/internal/similarity"
	dErrors "certverify/pkg/domain-errors"
)

const contentTypePDF = "application/pdf"

var allowedContentTypes = map[string]struct{}{
	"image/jpeg":   {},
	"image/png":    {},
	"image/webp":   {},
	contentTypePDF: {},
}

func init() {
	api.DisableConfigDir()
}

// validateContent checks the declared MIME type against the allowed set and
// the sniffed bytes, and returns the canonical media type.
func validateContent(declared string, data []byte, maxPDFPages int) (string, error) {
	sniffed := mediaType(http.DetectContentType(data))
	contentType := mediaType(declared)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniffed
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("unsupported content type %q; allowed: image/jpeg, image/png, image/webp, application/pdf", contentType))
	}
	if sniffed != contentType {
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("file content looks like %s, not %s", sniffed, contentType))
	}
	if contentType == contentTypePDF {
		if err := validatePDF(data, maxPDFPages); err != nil {
			return "", err
		}
		return contentType, nil
	}
	if err := validateImage(data); err != nil {
		return "", err
	}
	return contentType, nil
}

func validatePDF(data []byte, maxPages int) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "file is not a readable PDF")
	}
	if maxPages > 0 && pages > maxPages {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("PDF has %d pages; at most %d are accepted", pages, maxPages))
	}
	return nil
}

func validateImage(data []byte) error {
	err := similarity.CheckDimensions(data)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, similarity.ErrImageTooLarge):
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("image exceeds %d megapixels", similarity.MaxPixels/1_000_000))
	default:
		return dErrors.Wrap(err, dErrors.CodeValidation, "file is not a readable image")
	}
}

func mediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(v)
	}
	return mt
}
