package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/marketplace"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/metrics"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"github.com/shopspring/decimal"
)

// Минимальные размеры дополнительных изображений реплики: одна сторона не
// менее 500, другая не менее 250, в любой ориентации. Первое изображение
// донора переносится безусловно.
const (
	replicaMinSideMajor = 500
	replicaMinSideMinor = 250
)

// ErrDescriptionCopy помечает сбой копирования описания: новое объявление
// создано, но осталось без описания. Создание не откатывается.
var ErrDescriptionCopy = errors.New("ошибка копирования описания")

// Replicator клонирует объявление-донора, чтобы заполнить корзину,
// в которой у аккаунта нет объявления.
type Replicator struct {
	logger interfaces.LoggerPort
}

// NewReplicator создает Replicator
func NewReplicator(logger interfaces.LoggerPort) *Replicator {
	return &Replicator{logger: logger}
}

// Replicate создает новое объявление в корзине bucket на основе донора.
// Идентификационные и статистические поля донора (даты создания, счетчики
// продаж и просмотров, внутренние связи, контактные данные продавца)
// не переносятся. Описание донора копируется вторым независимым вызовом;
// его сбой возвращается как ErrDescriptionCopy при созданном объявлении.
func (r *Replicator) Replicate(
	ctx context.Context,
	client marketplace.Client,
	token string,
	donor *models.Listing,
	account *models.Account,
	bucket models.Bucket,
	price decimal.Decimal,
) (*models.Listing, error) {
	tier := bucket.TargetTier()
	if tier == "" {
		tier = donor.ExposureTier
	}

	draft := &models.ListingDraft{
		SKU:               donor.SKU,
		Title:             donor.Title,
		CategoryID:        donor.CategoryID,
		Price:             price,
		ExposureTier:      tier,
		AvailableQuantity: account.Policy.DefaultStock,
		Pictures:          filterReplicaPictures(donor.Pictures),
		Attributes:        donor.Attributes,
	}

	newID, err := client.CreateListing(ctx, token, draft)
	if err != nil {
		metrics.ReplicationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ошибка создания объявления: %w", err)
	}
	metrics.ReplicationsTotal.WithLabelValues("success").Inc()

	listing := &models.Listing{
		ID:                newID,
		AccountID:         account.ID,
		Marketplace:       account.Marketplace,
		SKU:               donor.SKU,
		Title:             donor.Title,
		CategoryID:        donor.CategoryID,
		Price:             price,
		ExposureTier:      tier,
		FulfillmentMode:   models.FulfillmentDropOff,
		Status:            models.ListingActive,
		AvailableQuantity: draft.AvailableQuantity,
		Pictures:          draft.Pictures,
		Attributes:        donor.Attributes,
	}

	description := donor.Description
	if description == "" {
		description, err = client.GetDescription(ctx, token, donor.ID)
		if err != nil {
			return listing, fmt.Errorf("%w: %v", ErrDescriptionCopy, err)
		}
	}
	if description == "" {
		return listing, nil
	}

	if err := client.SetDescription(ctx, token, newID, description); err != nil {
		return listing, fmt.Errorf("%w: %v", ErrDescriptionCopy, err)
	}

	return listing, nil
}

// filterReplicaPictures отбирает изображения донора для реплики:
// первое — безусловно, остальные — только проходящие правило минимальных размеров.
func filterReplicaPictures(pictures []models.Picture) []models.Picture {
	if len(pictures) == 0 {
		return nil
	}

	kept := []models.Picture{pictures[0]}
	for _, p := range pictures[1:] {
		if pictureLargeEnough(p) {
			kept = append(kept, p)
		}
	}
	return kept
}

// pictureLargeEnough проверяет правило минимальных размеров в обеих ориентациях
func pictureLargeEnough(p models.Picture) bool {
	return (p.Width >= replicaMinSideMajor && p.Height >= replicaMinSideMinor) ||
		(p.Height >= replicaMinSideMajor && p.Width >= replicaMinSideMinor)
}
