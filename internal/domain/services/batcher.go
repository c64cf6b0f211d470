package services

import (
	"context"
	"sync"
	"time"
)

// Batcher выполняет элементы последовательными группами фиксированного размера.
// Элементы внутри группы выполняются конкурентно; следующая группа не начинается,
// пока не завершится каждый элемент текущей (успехом или ошибкой).
// После каждой группы, кроме последней, выдерживается фиксированная пауза,
// уважающая внешний лимит запросов маркетплейса.
type Batcher struct {
	size  int
	pause time.Duration
	sleep func(ctx context.Context, d time.Duration)
}

// NewBatcher создает Batcher с указанным размером группы и паузой между группами
func NewBatcher(size int, pause time.Duration) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{
		size:  size,
		pause: pause,
		sleep: sleepContext,
	}
}

// WithSize возвращает копию Batcher с другим размером группы
func (b *Batcher) WithSize(size int) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{size: size, pause: b.pause, sleep: b.sleep}
}

// Pause возвращает паузу между группами
func (b *Batcher) Pause() time.Duration {
	return b.pause
}

// Run выполняет fn для индексов 0..total-1 группами.
// Ошибки отдельных элементов обрабатываются внутри fn и не прерывают группу.
// Пауза не выдерживается перед первой группой и после последней.
func (b *Batcher) Run(ctx context.Context, total int, fn func(ctx context.Context, idx int)) {
	for start := 0; start < total; start += b.size {
		end := start + b.size
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				fn(ctx, idx)
			}(i)
		}
		wg.Wait()

		if end < total && b.pause > 0 {
			b.sleep(ctx, b.pause)
		}
	}
}

// sleepContext ждет d или отмены контекста
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
