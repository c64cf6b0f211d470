package api

import (
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/progress"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/api/handlers"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/api/middleware"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/metrics"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/security"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Таймаут запроса покрывает синхронный прогон целиком: паузы между
// группами при большом числе объявлений складываются в минуты.
const requestTimeout = 30 * time.Minute

// SetupRouter настраивает маршрутизатор
func SetupRouter(
	pricingService services.PricingServiceInterface,
	storage postgres.PricingStoragePort,
	hub *progress.Hub,
	jwtManager *security.JWTManager,
	logger interfaces.LoggerPort,
	corsAllowedOrigins []string,
	metricsEnabled bool,
) *chi.Mux {
	r := chi.NewRouter()

	// Глобальные middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.CORS(corsAllowedOrigins))

	r.Method(http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	r.Method(http.MethodHead, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if metricsEnabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	// Канал прогресса открывается до отправки прогона, поэтому живет
	// вне защищенной группы: соединение адресуется одноразовым channel_id.
	r.Get("/ws/progress/{channel}", hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.JWTAuth(jwtManager, logger))

		pricingHandler := handlers.NewPricingHandler(pricingService, storage, logger)

		r.Route("/pricing", func(r chi.Router) {
			r.Use(middleware.RequireRole(jwtManager, "pricing:run"))

			// Синхронный прогон: ответ содержит отчеты по объявлениям
			r.Post("/runs", pricingHandler.RunPricing)

			// Асинхронный прогон: запрос ставится в очередь для worker-а
			r.Post("/runs/async", pricingHandler.EnqueueRun)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", pricingHandler.ListAccounts)
			r.Get("/{id}/audit", pricingHandler.ListAuditRecords)
		})
	})

	return r
}
