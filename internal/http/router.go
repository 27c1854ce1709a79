// Package httpapi assembles the chi router: shared middleware, module
// handlers, the verifier-only route group and the operational endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"certverify/internal/platform/metrics"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/platform/httputil"
	"certverify/pkg/platform/middleware/request"
	"certverify/pkg/platform/middleware/requesttime"
	"certverify/pkg/requestcontext"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Public handlers are mounted at the root.
	Public []Registrar
	// Verifier handlers are mounted behind VerifierAuth.
	Verifier     []Registrar
	VerifierAuth func(http.Handler) http.Handler
	Health       map[string]HealthCheck
}

const healthTimeout = 2 * time.Second

func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(recoverer(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Handle("/metrics", cfg.Metrics.Handler())
	}
	r.Get("/healthz", healthHandler(cfg.Health))

	for _, h := range cfg.Public {
		h.Register(r)
	}
	r.Group(func(r chi.Router) {
		if cfg.VerifierAuth != nil {
			r.Use(cfg.VerifierAuth)
		}
		for _, h := range cfg.Verifier {
			h.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}

// recoverer turns a handler panic into a 500 with the standard envelope.
func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.ErrorContext(r.Context(), "handler panicked",
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", requestcontext.RequestID(r.Context()),
					)
					if ww.Status() == 0 {
						httputil.WriteError(ww, dErrors.New(dErrors.CodeInternal, "internal error"))
					}
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
