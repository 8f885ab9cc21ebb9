package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tenderflow-backend/api/controllers"
	"github.com/angelmondragon/tenderflow-backend/api/middleware"
	"github.com/angelmondragon/tenderflow-backend/internal/analysis"
	"github.com/angelmondragon/tenderflow-backend/internal/audit"
	"github.com/angelmondragon/tenderflow-backend/internal/reports"
	"github.com/angelmondragon/tenderflow-backend/internal/submissions"
	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/config"
	"github.com/angelmondragon/tenderflow-backend/pkg/db"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/metrics"
)

// Services bundles what the API handlers call into.
type Services struct {
	Tenders     tenders.Service
	Submissions submissions.Service
	Reports     reports.Service
	Analysis    analysis.Service
	Awards      controllers.AwardService
	Audit       audit.Service

	// Replay enables Idempotency-Key handling on state-changing POSTs; nil
	// disables it.
	Replay middleware.ReplayStore
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps map[string]db.Pinger,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	buyerOnly := middleware.RequireRole(logg, enums.ActorRoleBuyer)
	supplierOnly := middleware.RequireRole(logg, enums.ActorRoleSupplier)
	idempotent := middleware.Idempotency(svc.Replay, cfg.Redis.IdempotencyTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/tenders", func(r chi.Router) {
			r.With(buyerOnly).Post("/", controllers.CreateTender(svc.Tenders, logg))
			r.Get("/", controllers.ListTenders(svc.Tenders, logg))

			r.Route("/{tenderId}", func(r chi.Router) {
				r.Get("/", controllers.GetTender(svc.Tenders, logg))
				r.With(buyerOnly).Patch("/", controllers.UpdateTender(svc.Tenders, logg))
				r.With(buyerOnly, idempotent).Post("/publish", controllers.PublishTender(svc.Tenders, logg))
				r.With(buyerOnly, idempotent).Post("/cancel", controllers.CancelTender(svc.Tenders, logg))

				r.Get("/submissions", controllers.ListSubmissions(svc.Submissions, logg))
				r.With(supplierOnly, idempotent).Post("/submissions", controllers.SubmitOffer(svc.Submissions, logg))
				r.With(supplierOnly).Post("/submissions/{submissionId}/withdraw", controllers.WithdrawOffer(svc.Submissions, logg))

				r.With(buyerOnly).Get("/opening-report", controllers.OpeningReport(svc.Reports, logg))
				r.With(buyerOnly).Get("/analysis", controllers.OfferAnalysis(svc.Analysis, logg))
				r.With(buyerOnly, idempotent).Post("/award", controllers.AwardTender(svc.Awards, logg))
				r.Get("/purchase-order", controllers.GetPurchaseOrder(svc.Awards, logg))
				r.With(buyerOnly).Get("/audit", controllers.AuditHistory(svc.Audit, logg))
			})
		})
	})

	return r
}
