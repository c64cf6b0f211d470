package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/metrics"
	"github.com/shopspring/decimal"
)

const (
	meliAPIBaseURL = "https://api.mercadolibre.com"

	// Типы публикации, соответствующие уровням экспозиции
	meliListingTypeStandard = "gold_special"
	meliListingTypePremium  = "gold_pro"
)

// MeliClient реализует Client для бэкенда Mercado Livre
type MeliClient struct {
	baseURL    string
	httpClient *http.Client
	batchPause time.Duration
}

// MeliOption настраивает MeliClient
type MeliOption func(*MeliClient)

// WithMeliBaseURL переопределяет базовый URL API (для тестов и песочницы)
func WithMeliBaseURL(url string) MeliOption {
	return func(c *MeliClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithMeliBatchPause переопределяет паузу между группами запросов
func WithMeliBatchPause(pause time.Duration) MeliOption {
	return func(c *MeliClient) { c.batchPause = pause }
}

// NewMeliClient создает клиента Mercado Livre.
// Пауза между группами по умолчанию 1.1 секунды — подобрана под
// внешний лимит запросов этого бэкенда.
func NewMeliClient(opts ...MeliOption) *MeliClient {
	c := &MeliClient{
		baseURL:    meliAPIBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		batchPause: 1100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Kind возвращает вид маркетплейса
func (c *MeliClient) Kind() models.MarketplaceKind {
	return models.MarketplaceMeli
}

// BatchPause возвращает паузу между группами
func (c *MeliClient) BatchPause() time.Duration {
	return c.batchPause
}

// doRequest выполняет один аутентифицированный запрос к API.
// Любой не-2xx ответ преобразуется в RemoteError; сетевые ошибки
// возвращаются без изменений. Повторных попыток нет.
func (c *MeliClient) doRequest(ctx context.Context, token, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ошибка сериализации тела запроса: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RemoteCallsTotal.WithLabelValues(string(models.MarketplaceMeli), method, "network_error").Inc()
		return err
	}
	defer resp.Body.Close()
	metrics.RemoteCallsTotal.WithLabelValues(string(models.MarketplaceMeli), method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.remoteError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("ошибка десериализации ответа: %w", err)
		}
	}
	return nil
}

// remoteError разбирает тело отказа маркетплейса
func (c *MeliClient) remoteError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Message == "" {
		payload.Message = strings.TrimSpace(string(raw))
	}
	return &RemoteError{
		StatusCode: resp.StatusCode,
		Code:       payload.Error,
		Message:    payload.Message,
	}
}

// --- типы проводного формата ---

type meliPicture struct {
	ID      string `json:"id"`
	URL     string `json:"secure_url"`
	MaxSize string `json:"max_size"` // "WxH"
}

type meliVariation struct {
	ID    int64           `json:"id"`
	Price decimal.Decimal `json:"price"`
}

type meliItem struct {
	ID                string          `json:"id"`
	SellerCustomField string          `json:"seller_custom_field"`
	Title             string          `json:"title"`
	CategoryID        string          `json:"category_id"`
	Price             decimal.Decimal `json:"price"`
	ListingTypeID     string          `json:"listing_type_id"`
	CatalogListing    bool            `json:"catalog_listing"`
	Status            string          `json:"status"`
	SubStatus         []string        `json:"sub_status"`
	AvailableQuantity int             `json:"available_quantity"`
	SoldQuantity      int             `json:"sold_quantity"`
	DateCreated       time.Time       `json:"date_created"`
	Pictures          []meliPicture   `json:"pictures"`
	Variations        []meliVariation `json:"variations"`
	Shipping          struct {
		LogisticType string `json:"logistic_type"`
	} `json:"shipping"`
	Attributes []struct {
		ID        string `json:"id"`
		ValueName string `json:"value_name"`
	} `json:"attributes"`
}

// toListing преобразует проводной формат во внутреннюю модель
func (m *meliItem) toListing() *models.Listing {
	l := &models.Listing{
		ID:                m.ID,
		Marketplace:       models.MarketplaceMeli,
		SKU:               m.SellerCustomField,
		Title:             m.Title,
		CategoryID:        m.CategoryID,
		Price:             m.Price,
		CatalogMember:     m.CatalogListing,
		Status:            meliStatus(m.Status, m.SubStatus),
		AvailableQuantity: m.AvailableQuantity,
		SoldQuantity:      m.SoldQuantity,
		CreatedAt:         m.DateCreated,
		HasVariations:     len(m.Variations) > 0,
	}

	switch m.ListingTypeID {
	case meliListingTypePremium:
		l.ExposureTier = models.ExposurePremium
	default:
		l.ExposureTier = models.ExposureStandard
	}

	switch m.Shipping.LogisticType {
	case "fulfillment":
		l.FulfillmentMode = models.FulfillmentByMarketplace
	case "cross_docking":
		l.FulfillmentMode = models.FulfillmentCrossDocking
	default:
		l.FulfillmentMode = models.FulfillmentDropOff
	}

	for _, v := range m.Variations {
		l.VariationIDs = append(l.VariationIDs, strconv.FormatInt(v.ID, 10))
	}

	for _, p := range m.Pictures {
		w, h := parsePictureSize(p.MaxSize)
		l.Pictures = append(l.Pictures, models.Picture{ID: p.ID, URL: p.URL, Width: w, Height: h})
	}

	if len(m.Attributes) > 0 {
		l.Attributes = make(map[string]string, len(m.Attributes))
		for _, a := range m.Attributes {
			l.Attributes[a.ID] = a.ValueName
		}
	}

	return l
}

// meliStatus сводит статус и подстатусы маркетплейса к внутреннему статусу
func meliStatus(status string, subStatus []string) models.ListingStatus {
	for _, s := range subStatus {
		if s == "under_review" || s == "forbidden" {
			return models.ListingUnderReview
		}
	}
	switch status {
	case "active":
		return models.ListingActive
	case "paused":
		return models.ListingPaused
	case "closed":
		return models.ListingClosed
	case "under_review":
		return models.ListingUnderReview
	}
	return models.ListingPaused
}

// parsePictureSize разбирает размер изображения в формате "WxH"
func parsePictureSize(size string) (int, int) {
	parts := strings.SplitN(size, "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	w, _ := strconv.Atoi(parts[0])
	h, _ := strconv.Atoi(parts[1])
	return w, h
}

// SearchBySKU ищет идентификаторы объявлений продавца по SKU
func (c *MeliClient) SearchBySKU(ctx context.Context, token, sellerID, sku string) ([]string, error) {
	var result struct {
		Results []string `json:"results"`
	}
	path := fmt.Sprintf("/users/%s/items/search?sku=%s", sellerID, sku)
	if err := c.doRequest(ctx, token, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// GetDetail получает полные данные объявления
func (c *MeliClient) GetDetail(ctx context.Context, token, listingID string) (*models.Listing, error) {
	var item meliItem
	if err := c.doRequest(ctx, token, http.MethodGet, "/items/"+listingID, nil, &item); err != nil {
		return nil, err
	}
	return item.toListing(), nil
}

// GetPriceAndPromotions получает цену и статус промоакций объявления
func (c *MeliClient) GetPriceAndPromotions(ctx context.Context, token, listingID string) (*PriceInfo, error) {
	var result struct {
		Price      decimal.Decimal `json:"price"`
		Promotions []struct {
			Status string `json:"status"`
		} `json:"promotions"`
	}
	if err := c.doRequest(ctx, token, http.MethodGet, "/seller-promotions/items/"+listingID, nil, &result); err != nil {
		return nil, err
	}

	info := &PriceInfo{Price: result.Price}
	for _, p := range result.Promotions {
		if p.Status == "started" || p.Status == "pending" {
			info.HasActivePromotion = true
			break
		}
	}
	return info, nil
}

// SetPrice устанавливает цену объявления.
// Цена объявления с вариациями меняется только через список вариаций:
// по одной записи на вариацию, все с одинаковой суммой.
func (c *MeliClient) SetPrice(ctx context.Context, token string, listing *models.Listing, amount decimal.Decimal) error {
	if listing.HasVariations {
		type variationPrice struct {
			ID    string          `json:"id"`
			Price decimal.Decimal `json:"price"`
		}
		body := struct {
			Variations []variationPrice `json:"variations"`
		}{}
		for _, id := range listing.VariationIDs {
			body.Variations = append(body.Variations, variationPrice{ID: id, Price: amount})
		}
		return c.doRequest(ctx, token, http.MethodPut, "/items/"+listing.ID, body, nil)
	}

	body := map[string]interface{}{"price": amount}
	return c.doRequest(ctx, token, http.MethodPut, "/items/"+listing.ID, body, nil)
}

// RemovePromotion снимает промоакцию с объявления
func (c *MeliClient) RemovePromotion(ctx context.Context, token, listingID string) error {
	return c.doRequest(ctx, token, http.MethodDelete, "/seller-promotions/items/"+listingID, nil, nil)
}

// AddPromotion применяет промоакцию к объявлению
func (c *MeliClient) AddPromotion(ctx context.Context, token, listingID string, promo models.PromotionConfig, amount decimal.Decimal) error {
	body := map[string]interface{}{
		"promotion_id":   promo.ID,
		"promotion_type": promo.Type,
		"deal_price":     amount,
	}
	return c.doRequest(ctx, token, http.MethodPost, "/seller-promotions/items/"+listingID, body, nil)
}

// Activate активирует объявление
func (c *MeliClient) Activate(ctx context.Context, token, listingID string, stock *int) error {
	body := map[string]interface{}{"status": "active"}
	if stock != nil {
		body["available_quantity"] = *stock
	}
	return c.doRequest(ctx, token, http.MethodPut, "/items/"+listingID, body, nil)
}

// SetExposureTier меняет уровень экспозиции объявления
func (c *MeliClient) SetExposureTier(ctx context.Context, token, listingID string, tier models.ExposureTier) error {
	listingType := meliListingTypeStandard
	if tier == models.ExposurePremium {
		listingType = meliListingTypePremium
	}
	body := map[string]interface{}{"id": listingType}
	return c.doRequest(ctx, token, http.MethodPost, "/items/"+listingID+"/listing_type", body, nil)
}

// CreateListing создает новое объявление и возвращает его идентификатор
func (c *MeliClient) CreateListing(ctx context.Context, token string, draft *models.ListingDraft) (string, error) {
	listingType := meliListingTypeStandard
	if draft.ExposureTier == models.ExposurePremium {
		listingType = meliListingTypePremium
	}

	var pictures []map[string]string
	for _, p := range draft.Pictures {
		pictures = append(pictures, map[string]string{"id": p.ID})
	}

	var attributes []map[string]string
	for id, value := range draft.Attributes {
		attributes = append(attributes, map[string]string{"id": id, "value_name": value})
	}

	body := map[string]interface{}{
		"title":               draft.Title,
		"category_id":         draft.CategoryID,
		"seller_custom_field": draft.SKU,
		"price":               draft.Price,
		"listing_type_id":     listingType,
		"available_quantity":  draft.AvailableQuantity,
		"pictures":            pictures,
		"attributes":          attributes,
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, token, http.MethodPost, "/items", body, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// GetDescription получает текстовое описание объявления
func (c *MeliClient) GetDescription(ctx context.Context, token, listingID string) (string, error) {
	var result struct {
		PlainText string `json:"plain_text"`
	}
	if err := c.doRequest(ctx, token, http.MethodGet, "/items/"+listingID+"/description", nil, &result); err != nil {
		return "", err
	}
	return result.PlainText, nil
}

// SetDescription устанавливает текстовое описание объявления
func (c *MeliClient) SetDescription(ctx context.Context, token, listingID, text string) error {
	body := map[string]string{"plain_text": text}
	return c.doRequest(ctx, token, http.MethodPut, "/items/"+listingID+"/description", body, nil)
}
