package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/metrics"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/utils"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"github.com/google/uuid"
)

// runLockKey — ключ распределенной блокировки прогона. Одновременно
// выполняется не более одного прогона: параллельные прогоны делили бы
// счетчики декремента и квоту запросов маркетплейса.
const runLockKey = "pricing:run:lock"

// AccountStorage определяет доступ к аккаунтам для прогона
type AccountStorage interface {
	ListAccountsByIDs(ctx context.Context, accountIDs []string) ([]*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
}

// PricingServiceInterface определяет операции сервиса ценообразования
type PricingServiceInterface interface {
	// ExecuteRun выполняет прогон синхронно и возвращает его итог
	ExecuteRun(ctx context.Context, request *models.RunRequest) (*models.RunResult, error)

	// EnqueueRun ставит прогон в очередь и возвращает его идентификатор
	EnqueueRun(ctx context.Context, request *models.RunRequest) (string, error)
}

// PricingService связывает входные запросы с оркестратором прогона:
// проверяет запрос, удерживает блокировку прогона, разрешает аккаунты
// и публикует итог в тему результатов.
type PricingService struct {
	storage      AccountStorage
	cache        interfaces.CachePort
	messaging    interfaces.MessagingPort
	orchestrator *Orchestrator
	runsTopic    string
	resultsTopic string
	lockTTL      time.Duration
	logger       interfaces.LoggerPort
}

// NewPricingService создает PricingService
func NewPricingService(
	storage AccountStorage,
	cache interfaces.CachePort,
	messaging interfaces.MessagingPort,
	orchestrator *Orchestrator,
	runsTopic, resultsTopic string,
	lockTTL time.Duration,
	logger interfaces.LoggerPort,
) *PricingService {
	return &PricingService{
		storage:      storage,
		cache:        cache,
		messaging:    messaging,
		orchestrator: orchestrator,
		runsTopic:    runsTopic,
		resultsTopic: resultsTopic,
		lockTTL:      lockTTL,
		logger:       logger,
	}
}

// ExecuteRun выполняет прогон синхронно
func (s *PricingService) ExecuteRun(ctx context.Context, request *models.RunRequest) (*models.RunResult, error) {
	if len(request.Items) == 0 || len(request.AccountIDs) == 0 {
		return nil, utils.ErrEmptyRunRequest
	}
	if request.RunID == "" {
		request.RunID = uuid.New().String()
	}

	if s.cache != nil {
		acquired, err := s.cache.Lock(ctx, runLockKey, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения блокировки прогона: %w", err)
		}
		if !acquired {
			metrics.RunsTotal.WithLabelValues("rejected").Inc()
			return nil, utils.ErrRunInProgress
		}
		defer func() {
			if err := s.cache.Unlock(ctx, runLockKey); err != nil {
				s.logger.ErrorWithContext(ctx, "Ошибка освобождения блокировки прогона",
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}()
	}

	accounts, err := s.storage.ListAccountsByIDs(ctx, request.AccountIDs)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("ошибка получения аккаунтов прогона: %w", err)
	}
	if len(accounts) == 0 {
		return nil, utils.ErrAccountNotFound
	}

	reports, err := s.orchestrator.Run(ctx, &RunParams{
		RunID:     request.RunID,
		Items:     request.Items,
		Accounts:  accounts,
		ChannelID: request.ChannelID,
		Decrement: request.Decrement,
		Actor:     request.Actor,
	})
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("ошибка выполнения прогона: %w", err)
	}

	result := &models.RunResult{
		RunID:      request.RunID,
		Reports:    reports,
		FinishedAt: time.Now().UTC(),
	}
	s.publishResult(ctx, result)

	return result, nil
}

// EnqueueRun публикует запрос прогона в тему очереди; прогон выполнит worker
func (s *PricingService) EnqueueRun(ctx context.Context, request *models.RunRequest) (string, error) {
	if len(request.Items) == 0 || len(request.AccountIDs) == 0 {
		return "", utils.ErrEmptyRunRequest
	}
	if request.RunID == "" {
		request.RunID = uuid.New().String()
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации запроса прогона: %w", err)
	}
	if err := s.messaging.Publish(ctx, s.runsTopic, payload); err != nil {
		return "", fmt.Errorf("ошибка публикации запроса прогона: %w", err)
	}

	s.logger.InfoWithContext(ctx, "Прогон поставлен в очередь",
		interfaces.LogField{Key: "run_id", Value: request.RunID},
		interfaces.LogField{Key: "topic", Value: s.runsTopic},
	)
	return request.RunID, nil
}

// publishResult публикует итог прогона; сбой публикации не отменяет прогон
func (s *PricingService) publishResult(ctx context.Context, result *models.RunResult) {
	if s.messaging == nil || s.resultsTopic == "" {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.ErrorWithContext(ctx, "Ошибка сериализации итога прогона",
			interfaces.LogField{Key: "error", Value: err.Error()})
		return
	}
	if err := s.messaging.Publish(ctx, s.resultsTopic, payload); err != nil {
		s.logger.ErrorWithContext(ctx, "Ошибка публикации итога прогона",
			interfaces.LogField{Key: "run_id", Value: result.RunID},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}
