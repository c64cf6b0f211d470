package interfaces

import (
	"context"
	"time"
)

// Message представляет сообщение в системе
type Message struct {
	ID          string            `json:"id"`           // Уникальный ID сообщения
	Topic       string            `json:"topic"`        // Тема сообщения
	Key         string            `json:"key"`          // Ключ сообщения (опционально)
	Value       []byte            `json:"value"`        // Содержимое сообщения
	Headers     map[string]string `json:"headers"`      // Заголовки сообщения
	PublishedAt time.Time         `json:"published_at"` // Время публикации
	Attempts    int               `json:"attempts"`     // Число попыток доставки
}

// MessageHandler определяет функцию обработчика сообщений
type MessageHandler func(ctx context.Context, msg *Message) error

// MessagingPort определяет интерфейс для системы обмена сообщениями
type MessagingPort interface {
	// Publish публикует сообщение в указанную тему
	Publish(ctx context.Context, topic string, message []byte) error

	// Subscribe подписывается на тему и возвращает функцию отмены подписки
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (func() error, error)

	// Close закрывает все соединения с брокером
	Close() error
}
