package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures the cross-cutting parts of the router.
type RouterOptions struct {
	// AdminAPIKey guards every route except intake and health. Empty leaves them open.
	AdminAPIKey    string
	CORSOrigins    []string
	// TrustedProxies is the number of reverse proxies in front of the
	// server. Zero ignores X-Forwarded-For and X-Real-IP.
	TrustedProxies int
}

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After", "Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(ClientMiddleware(opts.TrustedProxies))
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Post("/submissions", h.CreateSubmission)
		r.Get("/system/health", h.Health)

		// Admin
		r.Group(func(r chi.Router) {
			if opts.AdminAPIKey != "" {
				r.Use(AuthMiddleware(opts.AdminAPIKey))
			}
			r.Get("/submissions", h.ListSubmissions)
			r.Post("/submissions/bulk", h.BulkAction)
			r.Get("/submissions/export", h.ExportCSV)
			r.Post("/submissions/export/archive", h.ArchiveExport)
			r.Get("/submissions/{id}", h.GetSubmission)
			r.Patch("/submissions/{id}", h.UpdateSubmission)
			r.Delete("/submissions/{id}", h.DeleteSubmission)
			r.Get("/analytics", h.Analytics)
			r.Get("/analytics/advanced", h.AdvancedAnalytics)
			r.Get("/system/logs", h.Logs)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteProblem(w, r, http.StatusNotFound, "Route not found")
	})

	return r
}
