package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "certverify/pkg/domain"
	"certverify/pkg/requestcontext"
)

type stubValidator struct {
	subject string
	err     error
}

func (s stubValidator) ValidateToken(string) (string, error) { return s.subject, s.err }

func runRequireVerifier(t *testing.T, validator TokenValidator, header http.Header) (*httptest.ResponseRecorder, id.VerifierID) {
	t.Helper()
	var got id.VerifierID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.VerifierID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodGet, "/verifier/queue", nil)
	req.Header = header
	w := httptest.NewRecorder()
	RequireVerifier(validator, logger)(next).ServeHTTP(w, req)
	return w, got
}

func TestRequireVerifier_Header(t *testing.T) {
	t.Run("header identity accepted without validator", func(t *testing.T) {
		w, got := runRequireVerifier(t, nil, http.Header{VerifierHeader: []string{"reviewer-1"}})
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, id.VerifierID("reviewer-1"), got)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		w, _ := runRequireVerifier(t, nil, http.Header{})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireVerifier_Token(t *testing.T) {
	t.Run("valid token subject becomes verifier", func(t *testing.T) {
		w, got := runRequireVerifier(t, stubValidator{subject: "reviewer-9"},
			http.Header{"Authorization": []string{"Bearer abc"}})
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, id.VerifierID("reviewer-9"), got)
	})

	t.Run("header ignored when validator configured", func(t *testing.T) {
		w, _ := runRequireVerifier(t, stubValidator{subject: "reviewer-9"},
			http.Header{VerifierHeader: []string{"spoofed"}})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		w, _ := runRequireVerifier(t, stubValidator{err: errors.New("bad signature")},
			http.Header{"Authorization": []string{"Bearer abc"}})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "unauthorized")
	})
}
