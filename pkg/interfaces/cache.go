package interfaces

import (
	"context"
	"time"
)

// CachePort определяет интерфейс для работы с системой кэширования
// Реализация может использовать Redis, Memcached или любую другую систему кэширования
type CachePort interface {
	// Get получает значение из кэша по ключу
	// Возвращает ErrCacheMiss, если значение не найдено
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение в кэше с указанным сроком действия
	// Если expiration равно 0, срок действия не устанавливается
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Delete удаляет значение из кэша по ключу
	Delete(ctx context.Context, key string) error

	// Increment увеличивает числовое значение ключа на указанную величину
	// Если ключ не существует, он будет создан со значением delta
	// Возвращает новое значение
	Increment(ctx context.Context, key string, delta int64) (int64, error)

	// Lock пытается получить блокировку с указанным ключом
	// Возвращает true, если блокировка получена успешно
	// Может использоваться для распределенных блокировок
	Lock(ctx context.Context, key string, expiration time.Duration) (bool, error)

	// Unlock освобождает блокировку
	Unlock(ctx context.Context, key string) error

	// Close закрывает соединение с системой кэширования
	Close() error
}
