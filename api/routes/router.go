package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/card-connector/api/controllers"
	webhookcontrollers "github.com/angelmondragon/card-connector/api/controllers/webhooks"
	"github.com/angelmondragon/card-connector/api/middleware"
	"github.com/angelmondragon/card-connector/internal/cards"
	"github.com/angelmondragon/card-connector/internal/operations"
	"github.com/angelmondragon/card-connector/pkg/config"
	"github.com/angelmondragon/card-connector/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	gatherer prometheus.Gatherer,
	syncService webhookcontrollers.CardEventProcessor,
	receipts webhookcontrollers.ReceiptStore,
	cardRepo cards.Repository,
	operationRepo operations.Repository,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.CorrelationID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.WebhookSignature(cfg.Webhook.Secret, cfg.Webhook.SignatureHeader, logg)).
			Post("/upstream/card", webhookcontrollers.UpstreamCardWebhook(syncService, receipts, logg))
	})

	r.Route("/api/v1/cards", func(r chi.Router) {
		r.Get("/{upstreamCardId}", controllers.CardDetail(cardRepo, operationRepo, logg))
	})

	return r
}
