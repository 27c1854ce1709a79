// Package auth authenticates verifiers on the review routes.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "certverify/pkg/domain"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/platform/httputil"
	"certverify/pkg/requestcontext"
)

// VerifierHeader carries the verifier identity when no token validator is configured.
const VerifierHeader = "X-Verifier-ID"

// TokenValidator validates a bearer token and returns its subject.
type TokenValidator interface {
	ValidateToken(tokenString string) (subject string, err error)
}

// RequireVerifier resolves the verifier identity and stores it in the request
// context. With a validator the identity is the bearer token subject; without
// one it is taken from the X-Verifier-ID header (development and tests).
func RequireVerifier(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			raw, err := resolveSubject(r, validator)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized verifier access",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, err)
				return
			}

			verifierID, err := id.ParseVerifierID(raw)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized verifier access - invalid subject",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid verifier identity"))
				return
			}

			ctx = requestcontext.WithVerifierID(ctx, verifierID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveSubject(r *http.Request, validator TokenValidator) (string, error) {
	if validator == nil {
		subject := strings.TrimSpace(r.Header.Get(VerifierHeader))
		if subject == "" {
			return "", dErrors.New(dErrors.CodeUnauthorized, "missing "+VerifierHeader+" header")
		}
		return subject, nil
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header")
	}
	subject, err := validator.ValidateToken(strings.TrimSpace(token))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return "", err
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid or expired token")
	}
	return subject, nil
}
