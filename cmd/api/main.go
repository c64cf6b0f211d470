package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/config"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/credentials"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/marketplace"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/progress"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/api"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/security"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/utils"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
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
	log.Info("Инициализация сервиса",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	postgresCon, err := utils.GenerateConnectionString(
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
		fmt.Printf("Ошибка инициализации строки подключения базы: %v\n", err)
		os.Exit(1)
	}

	db, err := postgres.NewPostgresStorage(ctx, postgresCon)
	if err != nil {
		log.Fatal("Ошибка инициализации хранилища", interfaces.LogField{Key: "error", Value: err.Error()})
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
		log.Fatal("Ошибка инициализации кэша", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer cacheClient.Close()
	log.Info("Кэш инициализирован")

	messagingClient, err := messaging.NewKafkaMessaging(cfg.Kafka.Brokers, cfg.Kafka.GroupID, log)
	if err != nil {
		log.Fatal("Ошибка инициализации системы обмена сообщениями", interfaces.LogField{Key: "error", Value: err.Error()})
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

	hub := progress.NewHub(log)

	orchestrator := services.NewOrchestrator(
		registry,
		creds,
		services.NewPricer(cacheClient),
		services.NewBatcher(cfg.Pricing.BatchSize, cfg.Pricing.BatchPause),
		services.NewReplicator(log),
		services.NewProgressReporter(hub, log),
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

	jwtManager := security.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTExpirationMin, cfg.AppName)

	router := api.SetupRouter(
		pricingService,
		db,
		hub,
		jwtManager,
		log,
		cfg.Security.CORSAllowOrigins,
		cfg.Metrics.Enabled,
	)
	log.Info("Маршрутизатор настроен")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Сервер запущен", interfaces.LogField{Key: "address", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Ошибка запуска сервера", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatal("Ошибка при graceful shutdown", interfaces.LogField{Key: "error", Value: err.Error()})
		}

		log.Info("HTTP сервер остановлен")

		log.Info("Закрытие соединений с зависимостями...")

		if err := messagingClient.Close(); err != nil {
			log.Error("Ошибка при закрытии Kafka",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}

		if err := cacheClient.Close(); err != nil {
			log.Error("Ошибка при закрытии Redis",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}

		if err := db.Close(); err != nil {
			log.Error("Ошибка при закрытии БД",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}

		close(done)
	}()

	<-done
	log.Info("Сервер корректно завершил работу")
}
