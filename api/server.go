/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP behind the gateway
  3. Logger:     zap request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the portal frontend

ROUTE GROUPS:
  /api/sirw/*       Employee self-service (identity header, rate-limited submit)
  /api/compliance/* Rule catalogue (public) and dry-run assessment
  /api/countries/*  Country reference data (public)
  /api/employees/*  Employee registry
  /api/admin/*      Global Mobility console (identity header)
  /healthz          Liveness

SECURITY NOTE:
  Authentication is done by the gateway, which sets X-Employee-ID.

SEE ALSO:
  - handlers.go, admin.go: Handler implementations
  - middleware.go: Identity, logging, rate limit
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tune the middleware stack.
type RouterOptions struct {
	CORSOrigins []string

	// SubmitPerMinute and SubmitBurst bound submissions per employee.
	// Zero disables the limit.
	SubmitPerMinute float64
	SubmitBurst     int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderEmployeeID},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Employee self-service
		r.Route("/sirw", func(r chi.Router) {
			r.Use(requireEmployee)
			r.With(rateLimitByEmployee(opts.SubmitPerMinute, opts.SubmitBurst)).
				Post("/submit", h.SubmitRequest)
			r.Get("/balance", h.GetBalance)
			r.Post("/check-overlap", h.CheckOverlap)
			r.Get("/requests", h.ListMyRequests)
			r.Get("/requests/{id}", h.GetMyRequest)
			r.Post("/requests/{id}/cancel", h.CancelRequest)
			r.Post("/requests/{id}/acknowledge", h.AcknowledgeDecision)
			r.Get("/decisions/latest", h.LatestDecision)
		})

		// Rule catalogue and dry-run assessment
		r.Route("/compliance", func(r chi.Router) {
			r.Get("/rules", h.ListRules)
			r.With(requireEmployee).Post("/assess", h.Assess)
		})

		// Country reference data
		r.Route("/countries", func(r chi.Router) {
			r.Get("/blocked", h.ListBlockedCountries)
			r.Get("/{country}", h.CheckCountry)
		})

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireEmployee)
			r.Get("/dashboard", h.Dashboard)
			r.Get("/requests", h.ListAllRequests)
			r.Get("/requests/{id}", h.GetRequestDetail)
			r.Post("/requests/{id}/decide", h.DecideRequest)
			r.Get("/requests/{id}/comments", h.ListComments)
			r.Post("/requests/{id}/comments", h.AddComment)
			r.Get("/policy", h.GetPolicy)
			r.Put("/policy", h.UpdatePolicy)
		})
	})

	return r
}
