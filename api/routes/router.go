package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/consertaja/billing/api/controllers"
	webhookcontrollers "github.com/consertaja/billing/api/controllers/webhooks"
	"github.com/consertaja/billing/api/middleware"
	"github.com/consertaja/billing/internal/gateway"
	"github.com/consertaja/billing/internal/reconcile"
	"github.com/consertaja/billing/internal/saasmetrics"
	"github.com/consertaja/billing/pkg/config"
	"github.com/consertaja/billing/pkg/db"
	"github.com/consertaja/billing/pkg/logger"
	"github.com/consertaja/billing/pkg/metrics"
	"github.com/consertaja/billing/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redis.Pinger,
	reconcileService *reconcile.Service,
	metricsService *saasmetrics.Service,
	gatewayClient *gateway.Client,
	webhookGuard *redis.DedupGuard,
	webhookMetrics *metrics.WebhookMetrics,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(reconcileService, gatewayClient, webhookGuard, webhookMetrics, logg))
	})

	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Post("/", controllers.TenantRegister(reconcileService, logg))
		r.Route("/{tenantID}", func(r chi.Router) {
			r.Get("/subscription", controllers.SubscriptionSummary(reconcileService, logg))
			r.Post("/checkout", controllers.Checkout(reconcileService, logg))
			r.Delete("/subscription", controllers.SubscriptionCancel(reconcileService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Admin, logg))
		r.Get("/saas-metrics", controllers.AdminSaasMetrics(metricsService, logg))
		r.Get("/alerts", controllers.AdminAlerts(metricsService, logg))
	})

	return r
}
