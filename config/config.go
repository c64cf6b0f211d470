package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config содержит все настройки сервиса
type Config struct {
	AppName  string
	Version  string
	LogLevel string
	ENV      string

	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		BodyLimit       int // максимальный размер запроса в МБ
	}

	Postgres struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
		Timeout  time.Duration
		PoolSize int // размер пула соединений
	}

	Redis struct {
		Host     string
		Port     int
		Password string
		DB       int
	}

	Kafka struct {
		Brokers      []string `mapstructure:"brokers"`
		GroupID      string   `mapstructure:"group_id"`
		RunsTopic    string   `mapstructure:"runs_topic"`
		ResultsTopic string   `mapstructure:"results_topic"`
		AuditTopic   string   `mapstructure:"audit_topic"`
	}

	Marketplace struct {
		Meli struct {
			BaseURL      string
			TokenURL     string
			ClientID     string
			ClientSecret string
			BatchPause   time.Duration
		}
	}

	Pricing struct {
		BatchSize  int           // число объявлений в одной группе
		BatchPause time.Duration // пауза между группами
		RunLockTTL time.Duration // срок блокировки одновременных прогонов
	}

	Metrics struct {
		Enabled  bool
		Endpoint string
	}

	Security struct {
		JWTSecret        string
		JWTExpirationMin time.Duration
		CORSAllowOrigins []string
	}
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	configFile := "config"
	if configPath != "" {
		configFile = configPath
	}

	var cfg Config

	viper.SetConfigName(configFile)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("../config")
	viper.AddConfigPath("../../config")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		// Продолжаем, если файл не найден, будем использовать только переменные окружения
	}

	setDefaults()
	bindEnvVariables()

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации конфигурации: %w", err)
	}

	cfg.ENV = viper.GetString("env")
	if cfg.ENV == "" {
		cfg.ENV = "development"
		if envVar := os.Getenv("APP_ENV"); envVar != "" {
			cfg.ENV = envVar
		}
	}

	return &cfg, nil
}

// setDefaults устанавливает значения по умолчанию
func setDefaults() {
	// Основные настройки
	viper.SetDefault("appName", "pricing-service")
	viper.SetDefault("version", "1.0.0")
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("env", "development")

	// Настройки сервера
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", "10s")
	viper.SetDefault("server.writeTimeout", "10s")
	viper.SetDefault("server.shutdownTimeout", "5s")
	viper.SetDefault("server.bodyLimit", 10) // 10 МБ

	// Настройки Postgres
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.password", "postgres")
	viper.SetDefault("postgres.dbname", "pricing")
	viper.SetDefault("postgres.sslmode", "disable")
	viper.SetDefault("postgres.timeout", "5s")
	viper.SetDefault("postgres.poolSize", 10)

	// Настройки Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Настройки Kafka
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.group_id", "pricing-service")
	viper.SetDefault("kafka.runs_topic", "pricing.runs")
	viper.SetDefault("kafka.results_topic", "pricing.results")
	viper.SetDefault("kafka.audit_topic", "pricing.audit")

	// Настройки маркетплейса
	viper.SetDefault("marketplace.meli.baseURL", "https://api.mercadolibre.com")
	viper.SetDefault("marketplace.meli.tokenURL", "https://api.mercadolibre.com/oauth/token")
	viper.SetDefault("marketplace.meli.batchPause", "1100ms")

	// Настройки ценообразования
	viper.SetDefault("pricing.batchSize", 5)
	viper.SetDefault("pricing.batchPause", "1100ms")
	viper.SetDefault("pricing.runLockTTL", "30m")

	// Настройки метрик
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.endpoint", "/metrics")

	// Настройки безопасности
	viper.SetDefault("security.jwtSecret", "your-secret-key")
	viper.SetDefault("security.jwtExpirationMin", "60m")
	viper.SetDefault("security.corsAllowOrigins", []string{"*"})
}

// bindEnvVariables привязывает переменные окружения к конфигурации
func bindEnvVariables() {
	// Основные настройки
	viper.BindEnv("appName", "APP_NAME")
	viper.BindEnv("version", "APP_VERSION")
	viper.BindEnv("logLevel", "LOG_LEVEL")
	viper.BindEnv("env", "APP_ENV")

	// Настройки сервера
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.readTimeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.writeTimeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.shutdownTimeout", "SERVER_SHUTDOWN_TIMEOUT")
	viper.BindEnv("server.bodyLimit", "SERVER_BODY_LIMIT")

	// Настройки Postgres
	viper.BindEnv("postgres.host", "POSTGRES_HOST")
	viper.BindEnv("postgres.port", "POSTGRES_PORT")
	viper.BindEnv("postgres.user", "POSTGRES_USER")
	viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	viper.BindEnv("postgres.dbname", "POSTGRES_DBNAME")
	viper.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")
	viper.BindEnv("postgres.timeout", "POSTGRES_TIMEOUT")
	viper.BindEnv("postgres.poolSize", "POSTGRES_POOL_SIZE")

	// Настройки Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	// Настройки Kafka
	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")
	viper.BindEnv("kafka.runs_topic", "KAFKA_RUNS_TOPIC")
	viper.BindEnv("kafka.results_topic", "KAFKA_RESULTS_TOPIC")
	viper.BindEnv("kafka.audit_topic", "KAFKA_AUDIT_TOPIC")

	// Настройки маркетплейса
	viper.BindEnv("marketplace.meli.baseURL", "MELI_BASE_URL")
	viper.BindEnv("marketplace.meli.tokenURL", "MELI_TOKEN_URL")
	viper.BindEnv("marketplace.meli.clientID", "MELI_CLIENT_ID")
	viper.BindEnv("marketplace.meli.clientSecret", "MELI_CLIENT_SECRET")
	viper.BindEnv("marketplace.meli.batchPause", "MELI_BATCH_PAUSE")

	// Настройки ценообразования
	viper.BindEnv("pricing.batchSize", "PRICING_BATCH_SIZE")
	viper.BindEnv("pricing.batchPause", "PRICING_BATCH_PAUSE")
	viper.BindEnv("pricing.runLockTTL", "PRICING_RUN_LOCK_TTL")

	// Настройки метрик
	viper.BindEnv("metrics.enabled", "METRICS_ENABLED")
	viper.BindEnv("metrics.endpoint", "METRICS_ENDPOINT")

	// Настройки безопасности
	viper.BindEnv("security.jwtSecret", "JWT_SECRET")
	viper.BindEnv("security.jwtExpirationMin", "JWT_EXPIRATION_MIN")
	viper.BindEnv("security.corsAllowOrigins", "CORS_ALLOW_ORIGINS")
}
