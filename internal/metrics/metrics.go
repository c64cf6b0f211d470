// Package metrics содержит инструментирование Prometheus для сервиса ценообразования.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal считает прогоны ценообразования по результату
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_runs_total",
		Help: "Общее количество прогонов ценообразования",
	}, []string{"status"})

	// StageDuration — длительность этапов прогона
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricing_stage_duration_seconds",
		Help:    "Длительность этапов прогона ценообразования",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	// ListingsProcessed считает обработанные объявления по этапу и результату
	ListingsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_listings_processed_total",
		Help: "Количество объявлений, обработанных на каждом этапе",
	}, []string{"stage", "status"})

	// RemoteCallsTotal считает запросы к маркетплейсам по виду, методу и статусу
	RemoteCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_remote_calls_total",
		Help: "Количество запросов к API маркетплейсов",
	}, []string{"kind", "method", "status"})

	// ReplicationsTotal считает попытки репликации объявлений
	ReplicationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_replications_total",
		Help: "Количество попыток репликации объявлений",
	}, []string{"status"})

	// AuditRecordsTotal считает записи аудита по получателю и результату
	AuditRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_audit_records_total",
		Help: "Количество записей аудита",
	}, []string{"sink", "status"})

	// ProgressClients — количество подключенных клиентов прогресса
	ProgressClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricing_progress_clients",
		Help: "Количество подключенных WebSocket клиентов прогресса",
	})

	// HTTPRequestsTotal считает HTTP запросы по методу, пути и статусу
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_http_requests_total",
		Help: "Общее количество HTTP запросов",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration — длительность HTTP запросов
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricing_http_request_duration_seconds",
		Help:    "Длительность HTTP запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Handler возвращает HTTP обработчик метрик Prometheus
func Handler() http.Handler {
	return promhttp.Handler()
}
