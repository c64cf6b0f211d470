package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/marketplace"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"github.com/shopspring/decimal"
)

// nopLogger — логгер-заглушка для тестов
type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{})                                  {}
func (nopLogger) Info(msg string, args ...interface{})                                   {}
func (nopLogger) Warn(msg string, args ...interface{})                                   {}
func (nopLogger) Error(msg string, args ...interface{})                                  {}
func (nopLogger) Fatal(msg string, args ...interface{})                                  {}
func (nopLogger) DebugWithContext(ctx context.Context, msg string, args ...interface{})  {}
func (nopLogger) InfoWithContext(ctx context.Context, msg string, args ...interface{})   {}
func (nopLogger) WarnWithContext(ctx context.Context, msg string, args ...interface{})   {}
func (nopLogger) ErrorWithContext(ctx context.Context, msg string, args ...interface{})  {}
func (n nopLogger) WithFields(fields ...interfaces.LogField) interfaces.LoggerPort       { return n }
func (n nopLogger) WithField(key string, value interface{}) interfaces.LoggerPort        { return n }
func (nopLogger) Sync() error                                                            { return nil }

// fakeCreds выдает токены из карты; отсутствие аккаунта — ошибка
type fakeCreds struct {
	tokens map[string]string
	errs   map[string]error
}

func (c *fakeCreds) GetValidAccessToken(ctx context.Context, account *models.Account) (string, error) {
	if err, ok := c.errs[account.ID]; ok {
		return "", err
	}
	return c.tokens[account.ID], nil
}

// fakeClient — клиент маркетплейса с журналом вызовов
type fakeClient struct {
	mu sync.Mutex

	search   map[string][]string       // sku -> listing ids
	listings map[string]*models.Listing // id -> данные объявления
	promos   map[string]bool            // id -> активная промоакция
	desc     map[string]string          // id -> описание

	detailErr      map[string]error
	setPriceErr    map[string]error
	removePromoErr map[string]error
	addPromoErr    map[string]error
	activateErr    map[string]error
	createID       string
	createErr      error
	setDescErr     error

	calls     []string
	prices    map[string][]decimal.Decimal // id -> отправленные суммы
	stocks    map[string]*int              // id -> количество при активации
	lastDraft *models.ListingDraft
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		search:   make(map[string][]string),
		listings: make(map[string]*models.Listing),
		promos:   make(map[string]bool),
		desc:     make(map[string]string),
		prices:   make(map[string][]decimal.Decimal),
		stocks:   make(map[string]*int),
	}
}

func (c *fakeClient) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *fakeClient) called(call string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, got := range c.calls {
		if got == call {
			return true
		}
	}
	return false
}

func (c *fakeClient) Kind() models.MarketplaceKind { return models.MarketplaceMeli }

func (c *fakeClient) BatchPause() time.Duration { return 0 }

func (c *fakeClient) SearchBySKU(ctx context.Context, token, sellerID, sku string) ([]string, error) {
	c.record("SearchBySKU:" + sku)
	return c.search[sku], nil
}

func (c *fakeClient) GetDetail(ctx context.Context, token, listingID string) (*models.Listing, error) {
	c.record("GetDetail:" + listingID)
	if err := c.detailErr[listingID]; err != nil {
		return nil, err
	}
	src, ok := c.listings[listingID]
	if !ok {
		return nil, &marketplace.RemoteError{StatusCode: 404, Message: "not found"}
	}
	copied := *src
	return &copied, nil
}

func (c *fakeClient) GetPriceAndPromotions(ctx context.Context, token, listingID string) (*marketplace.PriceInfo, error) {
	c.record("GetPriceAndPromotions:" + listingID)
	return &marketplace.PriceInfo{HasActivePromotion: c.promos[listingID]}, nil
}

func (c *fakeClient) SetPrice(ctx context.Context, token string, listing *models.Listing, amount decimal.Decimal) error {
	c.record("SetPrice:" + listing.ID)
	if err := c.setPriceErr[listing.ID]; err != nil {
		return err
	}
	c.mu.Lock()
	c.prices[listing.ID] = append(c.prices[listing.ID], amount)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) RemovePromotion(ctx context.Context, token, listingID string) error {
	c.record("RemovePromotion:" + listingID)
	return c.removePromoErr[listingID]
}

func (c *fakeClient) AddPromotion(ctx context.Context, token, listingID string, promo models.PromotionConfig, amount decimal.Decimal) error {
	c.record("AddPromotion:" + listingID)
	return c.addPromoErr[listingID]
}

func (c *fakeClient) Activate(ctx context.Context, token, listingID string, stock *int) error {
	c.record("Activate:" + listingID)
	c.mu.Lock()
	c.stocks[listingID] = stock
	c.mu.Unlock()
	return c.activateErr[listingID]
}

func (c *fakeClient) SetExposureTier(ctx context.Context, token, listingID string, tier models.ExposureTier) error {
	c.record("SetExposureTier:" + listingID)
	return nil
}

func (c *fakeClient) CreateListing(ctx context.Context, token string, draft *models.ListingDraft) (string, error) {
	c.record("CreateListing:" + draft.SKU)
	c.mu.Lock()
	c.lastDraft = draft
	c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	return c.createID, nil
}

func (c *fakeClient) GetDescription(ctx context.Context, token, listingID string) (string, error) {
	c.record("GetDescription:" + listingID)
	return c.desc[listingID], nil
}

func (c *fakeClient) SetDescription(ctx context.Context, token, listingID, text string) error {
	c.record("SetDescription:" + listingID)
	return c.setDescErr
}

func testOrchestrator(client *fakeClient, accounts ...*models.Account) (*Orchestrator, *fakeCreds) {
	registry := marketplace.NewRegistry()
	registry.Register(client)

	creds := &fakeCreds{tokens: make(map[string]string), errs: make(map[string]error)}
	for _, acc := range accounts {
		creds.tokens[acc.ID] = "token-" + acc.ID
	}

	log := nopLogger{}
	return NewOrchestrator(
		registry,
		creds,
		NewPricer(nil),
		NewBatcher(10, 0),
		NewReplicator(log),
		NewProgressReporter(nil, log),
		nil,
		log,
	), creds
}

func testAccount(id string) *models.Account {
	return &models.Account{
		ID:          id,
		ShortName:   "acc-" + id,
		Marketplace: models.MarketplaceMeli,
		SellerID:    "seller-1",
		Policy:      models.PricingPolicy{CanActivate: true, DefaultStock: 25},
	}
}

func activeStandardListing(id, sku string) *models.Listing {
	return &models.Listing{
		ID:              id,
		SKU:             sku,
		ExposureTier:    models.ExposureStandard,
		FulfillmentMode: models.FulfillmentDropOff,
		Status:          models.ListingActive,
	}
}

func standardPrices(sku, amount string) models.SKUPrices {
	return models.SKUPrices{
		SKU: sku,
		Prices: map[models.Bucket]decimal.Decimal{
			models.BucketStandard: d(amount),
		},
	}
}

func reportByID(reports []*models.ActionReport, id string) *models.ActionReport {
	for _, r := range reports {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func TestRun_HappyPath(t *testing.T) {
	client := newFakeClient()
	client.search["SKU-1"] = []string{"L1", "L2", "L3"}
	for _, id := range []string{"L1", "L2", "L3"} {
		client.listings[id] = activeStandardListing(id, "SKU-1")
	}

	account := testAccount("acc-1")
	o, _ := testOrchestrator(client, account)

	reports, err := o.Run(context.Background(), &RunParams{
		Items:    []models.SKUPrices{standardPrices("SKU-1", "100.00")},
		Accounts: []*models.Account{account},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}
	for _, id := range []string{"L1", "L2", "L3"} {
		report := reportByID(reports, id)
		if report == nil {
			t.Fatalf("missing report for %s", id)
		}
		if report.FinalAction == nil {
			t.Fatalf("%s: missing final action", id)
		}
		if report.FinalAction.Status != models.ActionSuccess {
			t.Errorf("%s: expected success, got %s (%s)", id, report.FinalAction.Status, report.FinalAction.Action)
		}
		if report.Marketplace != models.MarketplaceMeli {
			t.Errorf("%s: expected marketplace meli, got %s", id, report.Marketplace)
		}

		got := client.prices[id]
		if len(got) != 1 || !got[0].Equal(d("100.00")) {
			t.Errorf("%s: expected one submitted price 100.00, got %v", id, got)
		}
	}
}

func TestRun_StageFailureRemovesListing(t *testing.T) {
	client := newFakeClient()
	client.search["SKU-1"] = []string{"L1", "L2", "L3"}
	for _, id := range []string{"L1", "L2", "L3"} {
		listing := activeStandardListing(id, "SKU-1")
		listing.Status = models.ListingPaused
		client.listings[id] = listing
	}
	client.setPriceErr = map[string]error{"L2": &marketplace.RemoteError{StatusCode: 400, Message: "invalid price"}}

	account := testAccount("acc-1")
	o, _ := testOrchestrator(client, account)

	reports, err := o.Run(context.Background(), &RunParams{
		Items:    []models.SKUPrices{standardPrices("SKU-1", "100.00")},
		Accounts: []*models.Account{account},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failed := reportByID(reports, "L2")
	if failed == nil || failed.FinalAction == nil {
		t.Fatal("missing report or final action for L2")
	}
	if failed.FinalAction.Action != models.ActionSetPrice || failed.FinalAction.Status != models.ActionError {
		t.Errorf("expected final set price error, got %s/%s", failed.FinalAction.Action, failed.FinalAction.Status)
	}

	// Выбывшее объявление не участвует в последующих этапах
	if client.called("Activate:L2") {
		t.Error("failed listing must not reach activation")
	}
	if !client.called("Activate:L1") || !client.called("Activate:L3") {
		t.Error("surviving listings must reach activation")
	}
}

func TestRun_PromotionFailureRepricesAtBase(t *testing.T) {
	client := newFakeClient()
	client.search["SKU-1"] = []string{"L1"}
	client.listings["L1"] = activeStandardListing("L1", "SKU-1")
	client.addPromoErr = map[string]error{"L1": &marketplace.RemoteError{StatusCode: 422, Message: "rejected"}}

	account := testAccount("acc-1")
	account.Promotion = models.PromotionConfig{ID: "promo-1", PercentMarkup: d("5")}
	o, _ := testOrchestrator(client, account)

	reports, err := o.Run(context.Background(), &RunParams{
		Items:    []models.SKUPrices{standardPrices("SKU-1", "100.00")},
		Accounts: []*models.Account{account},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Сначала цена с наценкой, после отказа промоакции — базовая
	got := client.prices["L1"]
	if len(got) != 2 {
		t.Fatalf("expected 2 submitted prices, got %v", got)
	}
	if !got[0].Equal(d("105.27")) {
		t.Errorf("expected marked-up price 105.27, got %s", got[0])
	}
	if !got[1].Equal(d("100.00")) {
		t.Errorf("expected fallback base price 100.00, got %s", got[1])
	}

	report := reportByID(reports, "L1")
	if report.FinalAction.Action != models.ActionSetPrice || report.FinalAction.Status != models.ActionSuccess {
		t.Errorf("expected final fallback set price success, got %s/%s",
			report.FinalAction.Action, report.FinalAction.Status)
	}
}

func TestRun_PromotionSuccessIsFinal(t *testing.T) {
	client := newFakeClient()
	client.search["SKU-1"] = []string{"L1"}
	client.listings["L1"] = activeStandardListing("L1", "SKU-1")

	account := testAccount("acc-1")
	account.Promotion = models.PromotionConfig{ID: "promo-1", PercentMarkup: d("5")}
	o, _ := testOrchestrator(client, account)

	reports, err := o.Run(context.Background(), &RunParams{
		Items:    []models.SKUPrices{standardPrices("SKU-1", "100.00")},
		Accounts: []*models.Account{account},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := client.prices["L1"]
	if len(got) != 1 || !got[0].Equal(d("105.27")) {
		t.Errorf("expected single marked-up price 105.27, got %v", got)
	}

	report := reportByID(reports, "L1")
	if report.FinalAction.Action != models.ActionAddPromotion || report.FinalAction.Status != models.ActionSuccess {
		t.Errorf("expected final promotion success, got %s/%s",
			report.FinalAction.Action, report.FinalAction.Status)
	}
}

func TestRun_ActivePromotionRemovedBeforePricing(t *testing.T) {
	client := newFakeClient()
	client.search["SKU-1"] = []string{"L1"}
	client.listings["L1"] = activeStandardListing("L1", "SKU-1")
	client.promos["L1"] = true

	account := testAccount("acc-1")
	o, _ := testOrchestrator(client, account)

	_, err := o.Run(context.Background(), &RunParams{
		Items:    []models.SKUPrices{standardPrices("SKU-1", "100.00")},
		Accounts: []*models.Account{account},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !client.called("RemovePromotion:L1") {
		t.Fatal("expected promotion removal before pricing")
	}

	removed, priced := -1, -1
	client.mu.Lock()
	for i, call := range client.calls {
		switch call {
		case "RemovePromotion:L1":
			removed = i
		case "SetPrice:L1":
			priced = i
		}
	}
	client.mu.Unlock()
	if priced < removed {
		t.Error("price must be set after promotion removal")
	}
}

func TestRun_RemovePromotionFailureExcludesListing(t *testing.T) {
	client := newFakeClient()
	client.search["SKU-1"] = []string{"L1"}
	client.listings["L1"] = activeStandardListing("L1", "SKU-1")
	client.promos["L1"] = true
	client.removePromoErr = map[string]error{"L1": &marketplace.RemoteError{StatusCode: 500, Message: "backend error"}}

	account := testAccount("acc-1")
	o, _ := testOrchestrator(client, account)

	reports, err := o.Run(context.Background(), &RunParams{
		Items:    []models.SKUPrices{standardPrices("SKU-1", "100.00")},
		Accounts: []*models.Account{account},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.called("SetPrice:L1") {
		t.Error("listing with stuck promotion must not be priced")
	}

	report := reportByID(reports, "L1")
	if report.FinalAction.Action != models.ActionRemovePromotion || report.FinalAction.Status != models.ActionError {
		t.Errorf("expected final remove promotion error, got %s/%s",
			report.FinalAction.Action, report.FinalAction.Status)
	}
}

func TestRun_ClosedListingDroppedSilently(t *testing.T) {
	client := newFakeClient()
	client.search["SKU-1"] = []string{"L1", "L2"}
	client.listings["L1"] = activeStandardListing("L1", "SKU-1")
	closed := activeStandardListing("L2", "SKU-1")
	closed.Status = models.ListingClosed
	client.listings["L2"] = closed

	account := testAccount("acc-1")
	o, _ := testOrchestrator(client, account)

	reports, err := o.Run(context.Background(), &RunParams{
		Items:    []models.SKUPrices{standardPrices("SKU-1", "100.00")},
		Accounts: []*models.Account{account},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reportByID(reports, "L2") != nil {
		t.Error("closed listing must not appear in reports")
	}
	if client.called("SetPrice:L2") {
		t.Error("closed listing must not be priced")
	}
	if reportByID(reports, "L1") == nil {
		t.Error("actionable listing must be processed")
	}
}

func TestRun_NoBucketMatchIsFinal(t *testing.T) {
	client := newFakeClient()
	client.search["SKU-1"] = []string{"L1"}
	listing := activeStandardListing("L1", "SKU-1")
	listing.ExposureTier = models.ExposurePremium
	client.listings["L1"] = listing

	account := testAccount("acc-1")
	o, _ := testOrchestrator(client, account)

	// Цена задана только для standard, объявление premium: корзина не подобрана
	reports, err := o.Run(context.Background(), &RunParams{
		Items:    []models.SKUPrices{standardPrices("SKU-1", "100.00")},
		Accounts: []*models.Account{account},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report := reportByID(reports, "L1")
	if report == nil || report.FinalAction == nil {
		t.Fatal("expected report with final action")
	}
	if report.FinalAction.Action != models.ActionTierMatching || report.FinalAction.Status != models.ActionError {
		t.Errorf("expected tier matching error, got %s/%s",
			report.FinalAction.Action, report.FinalAction.Status)
	}
	if client.called("SetPrice:L1") {
		t.Error("excluded listing must not be priced")
	}
}

func TestRun_AuthFailureExcludesAccount(t *testing.T) {
	client := newFakeClient()
	client.search["SKU-1"] = []string{"L1"}
	client.listings["L1"] = activeStandardListing("L1", "SKU-1")

	account := testAccount("acc-1")
	o, creds := testOrchestrator(client, account)
	creds.errs["acc-1"] = &marketplace.RemoteError{StatusCode: 401, Message: "invalid refresh token"}

	reports, err := o.Run(context.Background(), &RunParams{
		Items:    []models.SKUPrices{standardPrices("SKU-1", "100.00")},
		Accounts: []*models.Account{account},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report := reportByID(reports, "acc-1")
	if report == nil || report.FinalAction == nil {
		t.Fatal("expected account-level report")
	}
	if report.FinalAction.Action != models.ActionAuthenticate || report.FinalAction.Status != models.ActionError {
		t.Errorf("expected authentication error, got %s/%s",
			report.FinalAction.Action, report.FinalAction.Status)
	}

	client.mu.Lock()
	calls := len(client.calls)
	client.mu.Unlock()
	if calls != 0 {
		t.Errorf("excluded account must not reach the marketplace, got %d calls", calls)
	}
}

func TestRun_ReplicatesEmptyBucket(t *testing.T) {
	client := newFakeClient()
	client.search["SKU-1"] = []string{"L1"}
	client.listings["L1"] = activeStandardListing("L1", "SKU-1")
	client.createID = "NEW1"
	client.desc["L1"] = "описание донора"

	account := testAccount("acc-1")
	account.Policy.CanReplicate = true
	o, _ := testOrchestrator(client, account)

	prices := models.SKUPrices{
		SKU: "SKU-1",
		Prices: map[models.Bucket]decimal.Decimal{
			models.BucketStandard: d("100.00"),
			models.BucketPremium:  d("120.00"),
		},
	}

	reports, err := o.Run(context.Background(), &RunParams{
		Items:    []models.SKUPrices{prices},
		Accounts: []*models.Account{account},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !client.called("CreateListing:SKU-1") {
		t.Fatal("expected replica creation for empty premium bucket")
	}
	if !client.called("SetDescription:NEW1") {
		t.Error("expected donor description copied to replica")
	}

	replica := reportByID(reports, "NEW1")
	if replica == nil {
		t.Fatal("expected report for replica")
	}

	// Реплика проходит этап установки цены со своей корзинной ценой
	got := client.prices["NEW1"]
	if len(got) != 1 || !got[0].Equal(d("120.00")) {
		t.Errorf("expected replica priced at 120.00, got %v", got)
	}
}

func TestRun_SkipsStockForFulfillment(t *testing.T) {
	client := newFakeClient()
	client.search["SKU-1"] = []string{"L1"}
	listing := activeStandardListing("L1", "SKU-1")
	listing.FulfillmentMode = models.FulfillmentByMarketplace
	listing.Status = models.ListingPaused
	client.listings["L1"] = listing

	account := testAccount("acc-1")
	o, _ := testOrchestrator(client, account)

	prices := models.SKUPrices{
		SKU: "SKU-1",
		Prices: map[models.Bucket]decimal.Decimal{
			models.BucketFull: d("100.00"),
		},
	}

	_, err := o.Run(context.Background(), &RunParams{
		Items:    []models.SKUPrices{prices},
		Accounts: []*models.Account{account},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !client.called("Activate:L1") {
		t.Fatal("expected paused listing activated")
	}
	// Остатками fulfillment-объявлений управляет маркетплейс
	if client.stocks["L1"] != nil {
		t.Errorf("expected nil stock for fulfillment listing, got %d", *client.stocks["L1"])
	}
}
