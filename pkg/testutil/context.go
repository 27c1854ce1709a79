package testutil

import (
	"net/http"

	id "certverify/pkg/domain"
	"certverify/pkg/requestcontext"
)

// WithVerifier simulates the verifier middleware for handler tests.
func WithVerifier(req *http.Request, verifierID string) *http.Request {
	parsed, err := id.ParseVerifierID(verifierID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithVerifierID(req.Context(), parsed))
}
