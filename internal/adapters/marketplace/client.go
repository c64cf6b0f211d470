package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// PriceInfo содержит текущую цену объявления и признак активной промоакции
type PriceInfo struct {
	Price              decimal.Decimal
	HasActivePromotion bool
}

// Client определяет набор операций маркетплейса для одного вида бэкенда.
// Одна операция на вызов; каждый вызов несет действующий access token аккаунта.
// Клиент не выполняет повторных попыток: дисциплина пауз между группами
// живет в Batcher, а не в клиенте.
type Client interface {
	// Kind возвращает вид маркетплейса, который обслуживает клиент
	Kind() models.MarketplaceKind

	// BatchPause возвращает паузу между группами, уважающую внешний лимит запросов
	BatchPause() time.Duration

	// SearchBySKU ищет идентификаторы объявлений продавца по SKU
	SearchBySKU(ctx context.Context, token, sellerID, sku string) ([]string, error)

	// GetDetail получает полные данные объявления
	GetDetail(ctx context.Context, token, listingID string) (*models.Listing, error)

	// GetPriceAndPromotions получает цену и статус промоакций объявления
	GetPriceAndPromotions(ctx context.Context, token, listingID string) (*PriceInfo, error)

	// SetPrice устанавливает цену объявления.
	// Для объявления с вариациями отправляется по одной записи цены на вариацию,
	// все с одинаковой суммой.
	SetPrice(ctx context.Context, token string, listing *models.Listing, amount decimal.Decimal) error

	// RemovePromotion снимает промоакцию с объявления
	RemovePromotion(ctx context.Context, token, listingID string) error

	// AddPromotion применяет промоакцию к объявлению
	AddPromotion(ctx context.Context, token, listingID string, promo models.PromotionConfig, amount decimal.Decimal) error

	// Activate активирует объявление. stock равен nil, если количество
	// не передается (fulfillment-объявления управляют остатками сами).
	Activate(ctx context.Context, token, listingID string, stock *int) error

	// SetExposureTier меняет уровень экспозиции объявления
	SetExposureTier(ctx context.Context, token, listingID string, tier models.ExposureTier) error

	// CreateListing создает новое объявление и возвращает его идентификатор
	CreateListing(ctx context.Context, token string, draft *models.ListingDraft) (string, error)

	// GetDescription получает текстовое описание объявления
	GetDescription(ctx context.Context, token, listingID string) (string, error)

	// SetDescription устанавливает текстовое описание объявления
	SetDescription(ctx context.Context, token, listingID, text string) error
}

// Registry хранит клиентов маркетплейсов по виду.
// Оркестратор написан один раз против интерфейса Client и
// разрешает конкретную реализацию через реестр.
type Registry struct {
	clients map[models.MarketplaceKind]Client
}

// NewRegistry создает новый реестр клиентов
func NewRegistry() *Registry {
	return &Registry{clients: make(map[models.MarketplaceKind]Client)}
}

// Register регистрирует клиента для его вида маркетплейса
func (r *Registry) Register(c Client) {
	r.clients[c.Kind()] = c
}

// Resolve возвращает клиента для указанного вида маркетплейса
func (r *Registry) Resolve(kind models.MarketplaceKind) (Client, error) {
	c, ok := r.clients[kind]
	if !ok {
		return nil, fmt.Errorf("нет клиента для маркетплейса %q", kind)
	}
	return c, nil
}
