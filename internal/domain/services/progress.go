package services

import (
	"math"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
)

// ProgressHub определяет канал доставки сообщений о прогрессе.
// Push возвращает false, если канал неизвестен (клиент не подключен).
type ProgressHub interface {
	Push(channelID string, msg models.ProgressMessage) bool
}

// ProgressReporter переводит счетчики этапов в проценты и доставляет их
// в адресованный канал клиента. Неизвестный канал — тихий no-op:
// вызывающая сторона может работать без UI, например из планировщика.
type ProgressReporter struct {
	hub    ProgressHub
	logger interfaces.LoggerPort
}

// NewProgressReporter создает ProgressReporter
func NewProgressReporter(hub ProgressHub, logger interfaces.LoggerPort) *ProgressReporter {
	return &ProgressReporter{hub: hub, logger: logger}
}

// Step сообщает о завершении done из total элементов этапа label.
// При total <= 0 ничего не сообщается.
func (r *ProgressReporter) Step(channelID string, done, total int, label string) {
	if r == nil || r.hub == nil || channelID == "" || total <= 0 {
		return
	}
	percent := int(math.Round(float64(done) / float64(total) * 100))
	r.hub.Push(channelID, models.ProgressMessage{Percent: percent, Label: label})
}

// Hide посылает терминальный сигнал «скрыть прогресс».
// Сигнал отличается от percent=100: UI убирает индикатор, а не замораживает его.
func (r *ProgressReporter) Hide(channelID string) {
	if r == nil || r.hub == nil || channelID == "" {
		return
	}
	r.hub.Push(channelID, models.ProgressMessage{Percent: -1})
}
