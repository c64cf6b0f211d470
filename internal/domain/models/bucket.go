package models

import "github.com/shopspring/decimal"

// Bucket определяет коммерческую корзину объявления в рамках одного прогона.
// Корзины попарно не пересекаются: объявление принадлежит ровно одной корзине.
type Bucket string

const (
	BucketFull         Bucket = "full"
	BucketCatalog      Bucket = "catalog"
	BucketStandard     Bucket = "standard"
	BucketPremium      Bucket = "premium"
	BucketStandardFree Bucket = "standard_free"
	BucketPremiumFree  Bucket = "premium_free"
)

// BucketOrder задает фиксированный порядок обработки корзин на каждом этапе:
// корзины full всех аккаунтов обрабатываются вместе, затем catalog и т.д.
var BucketOrder = []Bucket{
	BucketFull,
	BucketCatalog,
	BucketStandard,
	BucketPremium,
	BucketStandardFree,
	BucketPremiumFree,
}

// TargetTier возвращает целевой уровень экспозиции корзины.
// Для корзин full и catalog экспозиция не меняется.
func (b Bucket) TargetTier() ExposureTier {
	switch b {
	case BucketStandard, BucketStandardFree:
		return ExposureStandard
	case BucketPremium, BucketPremiumFree:
		return ExposurePremium
	}
	return ""
}

// SKUPrices содержит базовые цены одного SKU по корзинам, заданные вызывающей стороной
type SKUPrices struct {
	SKU    string                     `json:"sku"`
	Prices map[Bucket]decimal.Decimal `json:"prices"`
}

// HasPrice сообщает, задана ли положительная цена для корзины
func (s SKUPrices) HasPrice(b Bucket) bool {
	p, ok := s.Prices[b]
	return ok && p.IsPositive()
}
