package services

import (
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
)

// ClassifyListing относит объявление ровно к одной корзине.
// Порядок проверок фиксирован: fulfillment > catalog > standard > premium;
// побеждает первое совпадение. Корзина считается совпавшей только при
// наличии заданной цены для нее. Объявление без совпадения исключается
// из прогона (вторая величина false).
func ClassifyListing(l *models.Listing, prices models.SKUPrices) (models.Bucket, bool) {
	switch {
	case l.FulfillmentMode == models.FulfillmentByMarketplace && prices.HasPrice(models.BucketFull):
		return models.BucketFull, true
	case l.CatalogMember && prices.HasPrice(models.BucketCatalog):
		return models.BucketCatalog, true
	case l.ExposureTier == models.ExposureStandard && prices.HasPrice(models.BucketStandard):
		return models.BucketStandard, true
	case l.ExposureTier == models.ExposurePremium && prices.HasPrice(models.BucketPremium):
		return models.BucketPremium, true
	}
	return "", false
}

// Redistribution описывает одно перемещение объявления между корзинами
// во вторичном проходе перераспределения.
type Redistribution struct {
	Listing *runListing
	From    models.Bucket
	To      models.Bucket
}

// PlanRedistribution планирует вторичный проход перераспределения для одного
// аккаунта. Если у аккаунта нет premium объявлений, но больше одного standard
// и задана цена premium free-ship — одно standard объявление переносится в
// premium_free; симметрично для обратного случая. Не более одного переноса
// на аккаунт за прогон; корзина, уже имеющая покрытие, дубликатов не получает.
func PlanRedistribution(standard, premium []*runListing) *Redistribution {
	if len(premium) == 0 && len(standard) > 1 {
		if rl := lastWithPrice(standard, models.BucketPremiumFree); rl != nil {
			return &Redistribution{Listing: rl, From: models.BucketStandard, To: models.BucketPremiumFree}
		}
	}
	if len(standard) == 0 && len(premium) > 1 {
		if rl := lastWithPrice(premium, models.BucketStandardFree); rl != nil {
			return &Redistribution{Listing: rl, From: models.BucketPremium, To: models.BucketStandardFree}
		}
	}
	return nil
}

// lastWithPrice возвращает последнее объявление среза с заданной ценой корзины
func lastWithPrice(items []*runListing, bucket models.Bucket) *runListing {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].prices.HasPrice(bucket) {
			return items[i]
		}
	}
	return nil
}
