package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/metrics"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"github.com/google/uuid"
)

// AuditSink определяет приемник записей аудита.
// Запись — fire-and-forget: по одной на значимую мутацию.
type AuditSink interface {
	Record(ctx context.Context, record *models.AuditRecord)
}

// AuditStorage определяет долговременное хранилище записей аудита
type AuditStorage interface {
	SaveAuditRecord(ctx context.Context, record *models.AuditRecord) error
}

// AuditRecorder пишет записи аудита в хранилище и публикует их в тему аудита.
// Сбои обоих получателей журналируются и никогда не прерывают прогон.
type AuditRecorder struct {
	storage   AuditStorage
	messaging interfaces.MessagingPort
	topic     string
	logger    interfaces.LoggerPort
}

// NewAuditRecorder создает AuditRecorder. storage и messaging могут быть nil.
func NewAuditRecorder(storage AuditStorage, messaging interfaces.MessagingPort, topic string, logger interfaces.LoggerPort) *AuditRecorder {
	return &AuditRecorder{
		storage:   storage,
		messaging: messaging,
		topic:     topic,
		logger:    logger,
	}
}

// Record сохраняет и публикует запись аудита
func (a *AuditRecorder) Record(ctx context.Context, record *models.AuditRecord) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if a.storage != nil {
		if err := a.storage.SaveAuditRecord(ctx, record); err != nil {
			metrics.AuditRecordsTotal.WithLabelValues("storage", "error").Inc()
			a.logger.ErrorWithContext(ctx, "Ошибка сохранения записи аудита",
				interfaces.LogField{Key: "error", Value: err.Error()},
				interfaces.LogField{Key: "action", Value: record.Action},
			)
		} else {
			metrics.AuditRecordsTotal.WithLabelValues("storage", "success").Inc()
		}
	}

	if a.messaging != nil && a.topic != "" {
		payload, err := json.Marshal(record)
		if err != nil {
			a.logger.ErrorWithContext(ctx, "Ошибка сериализации записи аудита",
				interfaces.LogField{Key: "error", Value: err.Error()})
			return
		}
		if err := a.messaging.Publish(ctx, a.topic, payload); err != nil {
			metrics.AuditRecordsTotal.WithLabelValues("kafka", "error").Inc()
			a.logger.ErrorWithContext(ctx, "Ошибка публикации записи аудита",
				interfaces.LogField{Key: "error", Value: err.Error()},
				interfaces.LogField{Key: "topic", Value: a.topic},
			)
		} else {
			metrics.AuditRecordsTotal.WithLabelValues("kafka", "success").Inc()
		}
	}
}
