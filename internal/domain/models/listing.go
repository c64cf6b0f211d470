package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketplaceKind определяет тип маркетплейса
type MarketplaceKind string

const (
	MarketplaceMeli MarketplaceKind = "meli"
)

// ExposureTier определяет уровень экспозиции объявления на маркетплейсе
type ExposureTier string

const (
	ExposureStandard ExposureTier = "standard"
	ExposurePremium  ExposureTier = "premium"
)

// FulfillmentMode определяет способ логистики объявления
type FulfillmentMode string

const (
	// FulfillmentByMarketplace — склад и доставка на стороне маркетплейса
	FulfillmentByMarketplace FulfillmentMode = "fulfillment"
	FulfillmentDropOff       FulfillmentMode = "drop_off"
	FulfillmentCrossDocking  FulfillmentMode = "cross_docking"
)

// ListingStatus определяет статус объявления
type ListingStatus string

const (
	ListingActive      ListingStatus = "active"
	ListingPaused      ListingStatus = "paused"
	ListingClosed      ListingStatus = "closed"
	ListingUnderReview ListingStatus = "under_review"
)

// Actionable сообщает, можно ли выполнять операции над объявлением в данном статусе.
// Закрытые и находящиеся на модерации объявления исключаются из обработки целиком.
func (s ListingStatus) Actionable() bool {
	return s != ListingClosed && s != ListingUnderReview
}

// Picture представляет изображение объявления с метаданными размеров
type Picture struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Listing представляет объявление на маркетплейсе.
// Создается только при обнаружении (DISCOVER) или репликатором;
// мутируется только через клиента маркетплейса.
type Listing struct {
	ID                 string          `json:"id"`
	AccountID          string          `json:"account_id"`
	Marketplace        MarketplaceKind `json:"marketplace"`
	SKU                string          `json:"sku"`
	Title              string          `json:"title"`
	CategoryID         string          `json:"category_id"`
	Price              decimal.Decimal `json:"price"`
	ExposureTier       ExposureTier    `json:"exposure_tier"`
	FulfillmentMode    FulfillmentMode `json:"fulfillment_mode"`
	CatalogMember      bool            `json:"catalog_member"`
	HasVariations      bool            `json:"has_variations"`
	VariationIDs       []string        `json:"variation_ids,omitempty"`
	Status             ListingStatus   `json:"status"`
	HasActivePromotion bool            `json:"has_active_promotion"`
	AvailableQuantity  int             `json:"available_quantity"`
	Description        string          `json:"description,omitempty"`
	Pictures           []Picture       `json:"pictures,omitempty"`
	Attributes         map[string]string `json:"attributes,omitempty"`

	// Статистические поля, отбрасываемые при репликации
	SoldQuantity int       `json:"sold_quantity,omitempty"`
	Views        int       `json:"views,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// ListingDraft представляет полезную нагрузку для создания нового объявления.
// Содержит только переносимые поля донора: идентификационные и статистические
// поля (счетчики продаж, просмотры, даты, контактные данные продавца) сюда не попадают.
type ListingDraft struct {
	SKU               string            `json:"sku"`
	Title             string            `json:"title"`
	CategoryID        string            `json:"category_id"`
	Price             decimal.Decimal   `json:"price"`
	ExposureTier      ExposureTier      `json:"exposure_tier"`
	AvailableQuantity int               `json:"available_quantity"`
	Pictures          []Picture         `json:"pictures,omitempty"`
	Attributes        map[string]string `json:"attributes,omitempty"`
}
