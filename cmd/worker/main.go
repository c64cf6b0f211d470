package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/config"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/credentials"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/marketplace"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/metrics"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/utils"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики для Prometheus
var (
	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_messages_processed_total",
		Help: "Общее количество обработанных сообщений",
	}, []string{"topic", "status"})

	messageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_message_processing_duration_seconds",
		Help:    "Длительность обработки сообщений",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"topic"})

	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_active_runs",
		Help: "Количество выполняемых прогонов",
	})
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.ENV == "production")
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	log.Info("Инициализация воркера",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName + "-worker"},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	// HTTP сервер для метрик и health-проверок
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("OK"))
			})

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			log.Info("Запуск HTTP сервера для метрик",
				interfaces.LogField{Key: "addr", Value: addr})

			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("Ошибка запуска HTTP сервера для метрик",
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}()
	}

	connectionStr, err := utils.GenerateConnectionString(
		cfg.Postgres.Host,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
		cfg.Postgres.Port,
		cfg.Postgres.PoolSize,
		cfg.Postgres.Timeout,
	)
	if err != nil {
		log.Fatal("Ошибка генерации строки подключения к PostgreSQL",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}

	db, err := postgres.NewPostgresStorage(ctx, connectionStr)
	if err != nil {
		log.Fatal("Ошибка инициализации хранилища",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer db.Close()
	log.Info("Хранилище инициализировано")

	cacheClient, err := cache.NewRedisCache(
		ctx,
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		log.Fatal("Ошибка инициализации кэша",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer cacheClient.Close()
	log.Info("Кэш инициализирован")

	messagingClient, err := messaging.NewKafkaMessaging(cfg.Kafka.Brokers, cfg.Kafka.GroupID, log)
	if err != nil {
		log.Fatal("Ошибка инициализации системы обмена сообщениями",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer messagingClient.Close()
	log.Info("Система обмена сообщениями инициализирована")

	registry := marketplace.NewRegistry()
	registry.Register(marketplace.NewMeliClient(
		marketplace.WithMeliBaseURL(cfg.Marketplace.Meli.BaseURL),
		marketplace.WithMeliBatchPause(cfg.Marketplace.Meli.BatchPause),
	))

	creds := credentials.NewResolver(map[models.MarketplaceKind]credentials.Config{
		models.MarketplaceMeli: {
			ClientID:     cfg.Marketplace.Meli.ClientID,
			ClientSecret: cfg.Marketplace.Meli.ClientSecret,
			TokenURL:     cfg.Marketplace.Meli.TokenURL,
		},
	}, cacheClient, log)

	// У воркера нет WebSocket клиентов: прогресс без канала — тихий no-op
	orchestrator := services.NewOrchestrator(
		registry,
		creds,
		services.NewPricer(cacheClient),
		services.NewBatcher(cfg.Pricing.BatchSize, cfg.Pricing.BatchPause),
		services.NewReplicator(log),
		services.NewProgressReporter(nil, log),
		services.NewAuditRecorder(db, messagingClient, cfg.Kafka.AuditTopic, log),
		log,
	)

	pricingService := services.NewPricingService(
		db,
		cacheClient,
		messagingClient,
		orchestrator,
		cfg.Kafka.RunsTopic,
		cfg.Kafka.ResultsTopic,
		cfg.Pricing.RunLockTTL,
		log,
	)
	log.Info("Сервис ценообразования инициализирован")

	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	subscribeToRunRequests(ctx, messagingClient, pricingService, cfg.Kafka.RunsTopic, log, &wg)

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")
		cancel()
		wg.Wait()
		close(done)
	}()

	log.Info("Воркер запущен и готов к обработке сообщений")
	<-done
	log.Info("Воркер корректно завершил работу")
}

// Подписка на запросы прогонов
func subscribeToRunRequests(ctx context.Context, messagingClient interfaces.MessagingPort,
	pricingService services.PricingServiceInterface, topic string,
	logger interfaces.LoggerPort, wg *sync.WaitGroup) {

	runHandler := func(ctx context.Context, msg *interfaces.Message) error {
		startTime := time.Now()
		activeRuns.Inc()
		defer activeRuns.Dec()

		logger.InfoWithContext(ctx, "Получен запрос прогона",
			interfaces.LogField{Key: "message_id", Value: msg.ID},
			interfaces.LogField{Key: "topic", Value: msg.Topic},
		)

		var request models.RunRequest
		if err := json.Unmarshal(msg.Value, &request); err != nil {
			logger.ErrorWithContext(ctx, "Ошибка декодирования запроса прогона",
				interfaces.LogField{Key: "error", Value: err.Error()})
			messagesProcessed.WithLabelValues(msg.Topic, "error").Inc()
			return err
		}

		result, err := pricingService.ExecuteRun(ctx, &request)
		if err != nil {
			logger.ErrorWithContext(ctx, "Ошибка выполнения прогона",
				interfaces.LogField{Key: "run_id", Value: request.RunID},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			messagesProcessed.WithLabelValues(msg.Topic, "error").Inc()
			return err
		}

		duration := time.Since(startTime).Seconds()
		messageProcessingDuration.WithLabelValues(msg.Topic).Observe(duration)
		messagesProcessed.WithLabelValues(msg.Topic, "success").Inc()

		logger.InfoWithContext(ctx, "Прогон успешно выполнен",
			interfaces.LogField{Key: "run_id", Value: result.RunID},
			interfaces.LogField{Key: "reports", Value: len(result.Reports)},
			interfaces.LogField{Key: "duration", Value: duration},
		)

		return nil
	}

	wg.Add(1)

	go func() {
		defer wg.Done()

		unsubscribe, err := messagingClient.Subscribe(ctx, topic, runHandler)
		if err != nil {
			logger.Error("Ошибка подписки на запросы прогонов",
				interfaces.LogField{Key: "error", Value: err.Error()})
			return
		}
		defer unsubscribe()

		logger.Info("Подписка на запросы прогонов установлена")

		<-ctx.Done()
		logger.Info("Отмена подписки на запросы прогонов")
	}()
}
