package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/aawaaz/citizen-report-server/internal/middleware"
	"github.com/aawaaz/citizen-report-server/internal/models"
)

// RouterOptions carries the cross-cutting settings of the HTTP surface.
type RouterOptions struct {
	JWTSecret      string
	AllowedOrigins []string
	Limiter        middleware.Limiter
	Logger         *zap.Logger
}

// Handlers groups every endpoint handler mounted by NewRouter.
type Handlers struct {
	Health    *HealthHandler
	Reports   *ReportHandler
	Police    *PoliceHandler
	Rewards   *RewardsHandler
	Admin     *AdminHandler
	Integrity *IntegrityHandler
}

// NewRouter builds the /api/v1 router.
func NewRouter(opts RouterOptions, h Handlers) http.Handler {
	sugar := opts.Logger.Sugar()
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.WithActorSlot)
	r.Use(middleware.StructuredLogger(opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Merkle-Root"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	citizen := middleware.RequireRole(models.RoleCitizen)
	staff := middleware.RequireRole(models.RolePolice, models.RoleAdmin)
	admin := middleware.RequireRole(models.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", h.Health.Check)
		r.Get("/health/ready", h.Health.Ready)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(opts.JWTSecret))
			// after auth so callers are limited per user
			r.Use(middleware.RateLimit(opts.Limiter, sugar))

			r.Route("/citizen-reports", func(r chi.Router) {
				r.With(citizen).Post("/", h.Reports.Submit)
				r.With(citizen).Get("/my-reports", h.Reports.MyReports)
				r.Get("/{id}", h.Reports.Get)
				r.With(citizen).Delete("/{id}", h.Reports.Delete)
				r.With(citizen).Post("/{id}/appeal", h.Reports.Appeal)
				r.Get("/{id}/activity", h.Reports.Activity)
			})

			r.Route("/police", func(r chi.Router) {
				r.Use(staff)
				r.Get("/reports", h.Police.Queue)
				r.Post("/review-report/{id}", h.Police.Review)
				r.Get("/appeals", h.Police.Appeals)
				r.Post("/resolve-appeal/{id}", h.Police.ResolveAppeal)
			})

			r.Route("/rewards", func(r chi.Router) {
				r.Get("/balance", h.Rewards.Balance)
				r.Get("/transactions", h.Rewards.Transactions)
				r.With(citizen).Post("/withdraw", h.Rewards.Withdraw)
				r.Get("/debts", h.Rewards.Debts)
				r.Post("/pay-debt", h.Rewards.PayDebt)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(admin)
				r.Post("/debts/accrue", h.Admin.Accrue)

				r.Route("/analytics", func(r chi.Router) {
					r.Get("/violation-types", h.Admin.ViolationTypes)
					r.Get("/statuses", h.Admin.Statuses)
					r.Get("/trends", h.Admin.Trends)
				})

				// Ledger integrity (Merkle tree)
				r.Route("/ledger", func(r chi.Router) {
					r.Get("/root", h.Integrity.GetRoot)
					r.Get("/proof/{index}", h.Integrity.GetProof)
					r.Post("/verify", h.Integrity.Verify)
					r.Get("/check", h.Integrity.Check)
				})
			})
		})
	})

	return r
}
