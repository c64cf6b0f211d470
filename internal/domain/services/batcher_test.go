package services

import (
	"context"
	"sync"
	"testing"
	"time"
)

// recordingBatcher возвращает Batcher с подмененной паузой и журнал вызовов
func recordingBatcher(size int, pause time.Duration, pauses *int) *Batcher {
	b := NewBatcher(size, pause)
	b.sleep = func(ctx context.Context, d time.Duration) {
		*pauses++
	}
	return b
}

func TestBatcherRun_GroupsAndPauses(t *testing.T) {
	var pauses int
	b := recordingBatcher(5, time.Second, &pauses)

	var mu sync.Mutex
	var ran []int
	b.Run(context.Background(), 12, func(ctx context.Context, i int) {
		mu.Lock()
		ran = append(ran, i)
		mu.Unlock()
	})

	// 12 элементов группами по 5: три группы, две паузы
	if len(ran) != 12 {
		t.Fatalf("expected 12 executions, got %d", len(ran))
	}
	if pauses != 2 {
		t.Errorf("expected 2 pauses, got %d", pauses)
	}

	seen := make(map[int]bool)
	for _, i := range ran {
		seen[i] = true
	}
	for i := 0; i < 12; i++ {
		if !seen[i] {
			t.Errorf("index %d never executed", i)
		}
	}
}

func TestBatcherRun_ExactMultipleNoTrailingPause(t *testing.T) {
	var pauses int
	b := recordingBatcher(5, time.Second, &pauses)

	var count int
	var mu sync.Mutex
	b.Run(context.Background(), 10, func(ctx context.Context, i int) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	if count != 10 {
		t.Fatalf("expected 10 executions, got %d", count)
	}
	// После последней группы паузы нет
	if pauses != 1 {
		t.Errorf("expected 1 pause, got %d", pauses)
	}
}

func TestBatcherRun_SingleGroupNoPause(t *testing.T) {
	var pauses int
	b := recordingBatcher(5, time.Second, &pauses)

	b.Run(context.Background(), 3, func(ctx context.Context, i int) {})

	if pauses != 0 {
		t.Errorf("expected no pauses for single group, got %d", pauses)
	}
}

func TestBatcherRun_EmptyInput(t *testing.T) {
	var pauses int
	b := recordingBatcher(5, time.Second, &pauses)

	called := false
	b.Run(context.Background(), 0, func(ctx context.Context, i int) {
		called = true
	})

	if called {
		t.Error("fn must not be called for empty input")
	}
	if pauses != 0 {
		t.Errorf("expected no pauses, got %d", pauses)
	}
}

func TestBatcherRun_ZeroPauseSkipsSleep(t *testing.T) {
	var pauses int
	b := recordingBatcher(2, 0, &pauses)

	b.Run(context.Background(), 6, func(ctx context.Context, i int) {})

	if pauses != 0 {
		t.Errorf("expected sleep never called with zero pause, got %d", pauses)
	}
}

func TestBatcherRun_GroupCompletesBeforeNext(t *testing.T) {
	b := NewBatcher(3, 0)

	var mu sync.Mutex
	var order []int
	b.Run(context.Background(), 6, func(ctx context.Context, i int) {
		mu.Lock()
		order = append(order, i)
		mu.Unlock()
	})

	// Первая группа (0..2) завершается целиком до начала второй (3..5)
	pos := make(map[int]int)
	for p, i := range order {
		pos[i] = p
	}
	for first := 0; first < 3; first++ {
		for second := 3; second < 6; second++ {
			if pos[first] > pos[second] {
				t.Errorf("index %d from first group ran after index %d from second", first, second)
			}
		}
	}
}

func TestBatcherWithSize_KeepsPause(t *testing.T) {
	var pauses int
	b := recordingBatcher(10, time.Second, &pauses)

	small := b.WithSize(2)
	small.Run(context.Background(), 4, func(ctx context.Context, i int) {})

	if pauses != 1 {
		t.Errorf("expected derived batcher to keep pause behavior, got %d pauses", pauses)
	}
	if b.Pause() != small.Pause() {
		t.Errorf("expected pause to carry over, got %s and %s", b.Pause(), small.Pause())
	}
}
