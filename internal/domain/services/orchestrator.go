package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/marketplace"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/metrics"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CredentialResolver выдает действительный access token аккаунта.
// Обновление токена до истечения срока — забота реализации;
// оркестратор свежесть токена не проверяет.
type CredentialResolver interface {
	GetValidAccessToken(ctx context.Context, account *models.Account) (string, error)
}

// Подписи этапов для сообщений о прогрессе
const (
	labelSearch    = "Buscando anúncios"
	labelDiscover  = "Obtendo dados dos anúncios"
	labelReplicate = "Replicando anúncios"
	labelRemove    = "Removendo promoções"
	labelSetPrice  = "Alterando preços"
	labelActivate  = "Ativando anúncios"
	labelPromotion = "Aplicando promoções"
	labelFallback  = "Reprecificando"
)

// discoveryBatchSize — размер группы этапа обнаружения
const discoveryBatchSize = 5

// RunParams — параметры прогона с уже разрешенными аккаунтами
type RunParams struct {
	RunID     string
	Items     []models.SKUPrices
	Accounts  []*models.Account
	ChannelID string
	Decrement bool
	Actor     string
}

// runAccount — аккаунт, допущенный к прогону: клиент разрешен, токен получен
type runAccount struct {
	account *models.Account
	client  marketplace.Client
	token   string
}

// runListing — рабочее состояние одного объявления в рамках прогона
type runListing struct {
	listing       *models.Listing
	acc           *runAccount
	prices        models.SKUPrices
	bucket        models.Bucket
	submitted     decimal.Decimal
	promoEligible bool
	failedPromo   bool
}

// runLog — потокобезопасный накопитель записей журнала прогона.
// Записи только добавляются и не изменяются после создания.
type runLog struct {
	mu      sync.Mutex
	entries []models.ActionLogEntry
}

func (l *runLog) add(listingID, action string, status models.ActionStatus, detail string, final bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, models.ActionLogEntry{
		ListingID: listingID,
		Action:    action,
		Status:    status,
		Detail:    detail,
		Final:     final,
	})
}

func (l *runLog) snapshot() []models.ActionLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ActionLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Orchestrator последовательно проводит объявления через этапы прогона:
// DISCOVER → CLASSIFY → REMOVE_PROMOTION → SET_PRICE → ACTIVATE →
// ADD_PROMOTION → REPRICE_FALLBACK → DONE.
// Переходы строго вперед: объявление, отказавшее на этапе, не попадает
// во входной набор следующего. Каждый этап потребляет неизменяемый входной
// срез и порождает новый, меньший выходной срез.
type Orchestrator struct {
	registry   *marketplace.Registry
	creds      CredentialResolver
	pricer     *Pricer
	batcher    *Batcher
	discovery  *Batcher
	replicator *Replicator
	progress   *ProgressReporter
	audit      AuditSink
	logger     interfaces.LoggerPort
}

// NewOrchestrator создает Orchestrator
func NewOrchestrator(
	registry *marketplace.Registry,
	creds CredentialResolver,
	pricer *Pricer,
	batcher *Batcher,
	replicator *Replicator,
	progress *ProgressReporter,
	audit AuditSink,
	logger interfaces.LoggerPort,
) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		creds:      creds,
		pricer:     pricer,
		batcher:    batcher,
		discovery:  batcher.WithSize(discoveryBatchSize),
		replicator: replicator,
		progress:   progress,
		audit:      audit,
		logger:     logger,
	}
}

// Run выполняет один прогон ценообразования и возвращает отчеты по объявлениям.
// Прогон доходит до конца даже при отказе каждого элемента: сбои уровня
// аккаунта и объявления фиксируются в отчете, а не прерывают вызов.
func (o *Orchestrator) Run(ctx context.Context, params *RunParams) ([]*models.ActionReport, error) {
	if params.RunID == "" {
		params.RunID = uuid.New().String()
	}
	log := o.logger.WithField("run_id", params.RunID)

	started := time.Now()
	rlog := &runLog{}
	kinds := make(map[string]models.MarketplaceKind)

	prices := make(map[string]models.SKUPrices, len(params.Items))
	for _, item := range params.Items {
		prices[item.SKU] = item
	}

	accounts := o.authorizeAccounts(ctx, params, rlog, log)

	work := o.discover(ctx, params, accounts, prices, rlog, kinds, log)
	log.InfoWithContext(ctx, "Этап обнаружения завершен",
		interfaces.LogField{Key: "listings", Value: len(work)})

	work = o.classify(ctx, params, accounts, work, rlog, kinds, log)
	log.InfoWithContext(ctx, "Этап классификации завершен",
		interfaces.LogField{Key: "listings", Value: len(work)})

	work = o.removePromotions(ctx, params, work, rlog)
	work = o.setPrices(ctx, params, work, rlog)
	work = o.activate(ctx, params, work, rlog)
	work = o.addPromotions(ctx, params, work, rlog)
	o.repriceFallback(ctx, params, work, rlog)

	o.progress.Hide(params.ChannelID)

	reports := buildReports(rlog.snapshot(), kinds)
	metrics.RunsTotal.WithLabelValues("completed").Inc()
	log.InfoWithContext(ctx, "Прогон завершен",
		interfaces.LogField{Key: "reports", Value: len(reports)},
		interfaces.LogField{Key: "duration", Value: time.Since(started).String()},
	)
	return reports, nil
}

// authorizeAccounts разрешает клиента и токен каждого аккаунта.
// Аккаунт без действительного токена исключается из всего прогона
// с единственной записью; остальные аккаунты продолжают.
func (o *Orchestrator) authorizeAccounts(ctx context.Context, params *RunParams, rlog *runLog, log interfaces.LoggerPort) []*runAccount {
	accounts := make([]*runAccount, 0, len(params.Accounts))
	for _, acc := range params.Accounts {
		client, err := o.registry.Resolve(acc.Marketplace)
		if err != nil {
			rlog.add(acc.ID, models.ActionAuthenticate, models.ActionError, err.Error(), true)
			log.WarnWithContext(ctx, "Аккаунт исключен из прогона: нет клиента маркетплейса",
				interfaces.LogField{Key: "account", Value: acc.ShortName})
			continue
		}

		token, err := o.creds.GetValidAccessToken(ctx, acc)
		if err != nil {
			rlog.add(acc.ID, models.ActionAuthenticate, models.ActionError, err.Error(), true)
			o.recordAudit(ctx, params, acc, models.ActionAuthenticate, acc.ID, err)
			log.WarnWithContext(ctx, "Аккаунт исключен из прогона: токен не получен",
				interfaces.LogField{Key: "account", Value: acc.ShortName},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			continue
		}

		accounts = append(accounts, &runAccount{account: acc, client: client, token: token})
	}
	return accounts
}

// discover ищет объявления по парам (аккаунт, SKU), затем получает полные
// данные и статус промоакций группами. Объявления в статусе closed или
// under_review выбывают из прогона без записи.
func (o *Orchestrator) discover(
	ctx context.Context,
	params *RunParams,
	accounts []*runAccount,
	prices map[string]models.SKUPrices,
	rlog *runLog,
	kinds map[string]models.MarketplaceKind,
	log interfaces.LoggerPort,
) []*runListing {
	type searchPair struct {
		acc *runAccount
		sku string
	}
	var pairs []searchPair
	for _, acc := range accounts {
		for _, item := range params.Items {
			pairs = append(pairs, searchPair{acc: acc, sku: item.SKU})
		}
	}

	// Поиск: объединение результатов в один рабочий набор без дубликатов
	var (
		mu       sync.Mutex
		ordered  []string
		ownerOf  = make(map[string]*runAccount)
		skuOf    = make(map[string]string)
		searched int32
	)
	o.discovery.Run(ctx, len(pairs), func(ctx context.Context, i int) {
		p := pairs[i]
		ids, err := p.acc.client.SearchBySKU(ctx, p.acc.token, p.acc.account.SellerID, p.sku)
		if err != nil {
			log.WarnWithContext(ctx, "Ошибка поиска объявлений",
				interfaces.LogField{Key: "account", Value: p.acc.account.ShortName},
				interfaces.LogField{Key: "sku", Value: p.sku},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		} else {
			mu.Lock()
			for _, id := range ids {
				if _, seen := ownerOf[id]; !seen {
					ordered = append(ordered, id)
					ownerOf[id] = p.acc
					skuOf[id] = p.sku
				}
			}
			mu.Unlock()
		}
		done := atomic.AddInt32(&searched, 1)
		o.progress.Step(params.ChannelID, int(done), len(pairs), labelSearch)
	})

	// Полные данные и промоакции
	var (
		wmu     sync.Mutex
		work    []*runListing
		fetched int32
	)
	o.discovery.Run(ctx, len(ordered), func(ctx context.Context, i int) {
		defer func() {
			done := atomic.AddInt32(&fetched, 1)
			o.progress.Step(params.ChannelID, int(done), len(ordered), labelDiscover)
		}()

		id := ordered[i]
		acc := ownerOf[id]
		wmu.Lock()
		kinds[id] = acc.account.Marketplace
		wmu.Unlock()

		listing, err := acc.client.GetDetail(ctx, acc.token, id)
		if err != nil {
			rlog.add(id, models.ActionFetchDetail, models.ActionError, err.Error(), true)
			return
		}

		// Закрытые и находящиеся на модерации объявления выбывают без записи
		if !listing.Status.Actionable() {
			return
		}
		rlog.add(id, models.ActionFetchDetail, models.ActionSuccess, "", false)

		info, err := acc.client.GetPriceAndPromotions(ctx, acc.token, id)
		if err != nil {
			rlog.add(id, models.ActionFetchPromotion, models.ActionError, err.Error(), true)
			return
		}
		rlog.add(id, models.ActionFetchPromotion, models.ActionSuccess, "", false)

		listing.AccountID = acc.account.ID
		listing.HasActivePromotion = info.HasActivePromotion
		if info.Price.IsPositive() {
			listing.Price = info.Price
		}
		if listing.SKU == "" {
			listing.SKU = skuOf[id]
		}

		wmu.Lock()
		work = append(work, &runListing{
			listing: listing,
			acc:     acc,
			prices:  prices[listing.SKU],
		})
		wmu.Unlock()
	})

	return work
}

// classify распределяет объявления по корзинам, выполняет вторичное
// перераспределение и заполняет пустые корзины репликацией.
func (o *Orchestrator) classify(
	ctx context.Context,
	params *RunParams,
	accounts []*runAccount,
	work []*runListing,
	rlog *runLog,
	kinds map[string]models.MarketplaceKind,
	log interfaces.LoggerPort,
) []*runListing {
	classified := make([]*runListing, 0, len(work))
	for _, rl := range work {
		bucket, ok := ClassifyListing(rl.listing, rl.prices)
		if !ok {
			rlog.add(rl.listing.ID, models.ActionTierMatching, models.ActionError, "", true)
			continue
		}
		if !rl.prices.HasPrice(bucket) {
			rlog.add(rl.listing.ID, models.ActionPriceRelation, models.ActionError, "price_out", true)
			continue
		}
		rl.bucket = bucket
		rl.promoEligible = rl.acc.account.Promotion.Enabled()
		classified = append(classified, rl)
	}

	// Вторичное перераспределение: не более одного переноса на аккаунт
	for _, acc := range accounts {
		var standard, premium []*runListing
		for _, rl := range classified {
			if rl.acc != acc {
				continue
			}
			switch rl.bucket {
			case models.BucketStandard:
				standard = append(standard, rl)
			case models.BucketPremium:
				premium = append(premium, rl)
			}
		}
		if plan := PlanRedistribution(standard, premium); plan != nil {
			plan.Listing.bucket = plan.To
			log.InfoWithContext(ctx, "Объявление перенесено между корзинами",
				interfaces.LogField{Key: "listing_id", Value: plan.Listing.listing.ID},
				interfaces.LogField{Key: "from", Value: string(plan.From)},
				interfaces.LogField{Key: "to", Value: string(plan.To)},
			)
		}
	}

	return o.replicateEmptyBuckets(ctx, params, accounts, classified, rlog, kinds)
}

// replicateEmptyBuckets создает по одному объявлению в каждой корзине,
// для которой задана цена, но у аккаунта нет ни одного объявления.
// Сбой репликации изолирован на паре (аккаунт, корзина).
func (o *Orchestrator) replicateEmptyBuckets(
	ctx context.Context,
	params *RunParams,
	accounts []*runAccount,
	classified []*runListing,
	rlog *runLog,
	kinds map[string]models.MarketplaceKind,
) []*runListing {
	result := classified

	var replicable []*runAccount
	for _, acc := range accounts {
		if acc.account.Policy.CanReplicate {
			replicable = append(replicable, acc)
		}
	}
	if len(replicable) == 0 {
		return result
	}

	replicated := 0
	for _, acc := range replicable {
		covered := make(map[models.Bucket]bool)
		var own []*runListing
		for _, rl := range result {
			if rl.acc == acc {
				covered[rl.bucket] = true
				own = append(own, rl)
			}
		}
		if len(own) == 0 {
			continue
		}

		for _, bucket := range models.BucketOrder {
			if covered[bucket] {
				continue
			}

			// Донор: первое объявление аккаунта с заданной ценой этой корзины
			var donor *runListing
			for _, rl := range own {
				if rl.prices.HasPrice(bucket) {
					donor = rl
					break
				}
			}
			if donor == nil {
				continue
			}

			price := donor.prices.Prices[bucket]
			listing, err := o.replicator.Replicate(ctx, acc.client, acc.token, donor.listing, acc.account, bucket, price)
			o.recordAudit(ctx, params, acc.account, models.ActionReplicate, donor.listing.ID, err)
			if listing == nil {
				rlog.add(donor.listing.ID, models.ActionReplicate, models.ActionError, err.Error(), false)
				continue
			}

			kinds[listing.ID] = acc.account.Marketplace
			rlog.add(listing.ID, models.ActionReplicate, models.ActionSuccess, "", false)
			if err != nil {
				rlog.add(listing.ID, models.ActionCopyDescription, models.ActionError, err.Error(), false)
			} else {
				rlog.add(listing.ID, models.ActionCopyDescription, models.ActionSuccess, "", false)
			}

			result = append(result, &runListing{
				listing:       listing,
				acc:           acc,
				prices:        donor.prices,
				bucket:        bucket,
				promoEligible: acc.account.Promotion.Enabled(),
			})
			covered[bucket] = true
			replicated++
			o.progress.Step(params.ChannelID, replicated, replicated, labelReplicate)
		}
	}

	return result
}

// runStage выполняет op над объявлениями корзин в фиксированном порядке
// (сначала корзины full всех аккаунтов, затем catalog и т.д.) и возвращает
// новый срез объявлений, продолжающих прогон. Входной срез не изменяется.
func (o *Orchestrator) runStage(
	ctx context.Context,
	params *RunParams,
	stage, label string,
	items []*runListing,
	op func(ctx context.Context, rl *runListing) bool,
) []*runListing {
	if len(items) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(timer).Seconds())
	}()

	byBucket := make(map[models.Bucket][]*runListing)
	for _, rl := range items {
		byBucket[rl.bucket] = append(byBucket[rl.bucket], rl)
	}

	var (
		mu        sync.Mutex
		survivors = make([]*runListing, 0, len(items))
		done      int32
	)
	for _, bucket := range models.BucketOrder {
		group := byBucket[bucket]
		o.batcher.Run(ctx, len(group), func(ctx context.Context, i int) {
			rl := group[i]
			ok := op(ctx, rl)
			if ok {
				mu.Lock()
				survivors = append(survivors, rl)
				mu.Unlock()
				metrics.ListingsProcessed.WithLabelValues(stage, "success").Inc()
			} else {
				metrics.ListingsProcessed.WithLabelValues(stage, "settled").Inc()
			}
			d := atomic.AddInt32(&done, 1)
			o.progress.Step(params.ChannelID, int(d), len(items), label)
		})
	}
	return survivors
}

// removePromotions снимает активные промоакции перед изменением цены:
// маркетплейс отклоняет изменение цены при действующей промоакции.
func (o *Orchestrator) removePromotions(ctx context.Context, params *RunParams, items []*runListing, rlog *runLog) []*runListing {
	return o.runStage(ctx, params, "remove_promotion", labelRemove, items, func(ctx context.Context, rl *runListing) bool {
		if !rl.listing.HasActivePromotion {
			return true
		}
		err := rl.acc.client.RemovePromotion(ctx, rl.acc.token, rl.listing.ID)
		o.recordAudit(ctx, params, rl.acc.account, models.ActionRemovePromotion, rl.listing.ID, err)
		if err != nil {
			rlog.add(rl.listing.ID, models.ActionRemovePromotion, models.ActionError, err.Error(), true)
			return false
		}
		rl.listing.HasActivePromotion = false
		rlog.add(rl.listing.ID, models.ActionRemovePromotion, models.ActionSuccess, "", false)
		return true
	})
}

// setPrices вычисляет и отправляет цену каждого объявления. При успехе,
// если текущая экспозиция отличается от целевой экспозиции корзины,
// дополнительно меняется экспозиция; ее сбой фиксируется, но не отменяет
// изменение цены.
func (o *Orchestrator) setPrices(ctx context.Context, params *RunParams, items []*runListing, rlog *runLog) []*runListing {
	return o.runStage(ctx, params, "set_price", labelSetPrice, items, func(ctx context.Context, rl *runListing) bool {
		base := rl.prices.Prices[rl.bucket]
		amount := o.pricer.ComputePrice(ctx, base, rl.acc.account, rl.promoEligible, params.Decrement)

		err := rl.acc.client.SetPrice(ctx, rl.acc.token, rl.listing, amount)
		o.recordAudit(ctx, params, rl.acc.account, models.ActionSetPrice, rl.listing.ID, err)
		if err != nil {
			rlog.add(rl.listing.ID, models.ActionSetPrice, models.ActionError, err.Error(), true)
			return false
		}
		rl.submitted = amount
		rlog.add(rl.listing.ID, models.ActionSetPrice, models.ActionSuccess, amount.StringFixed(2), false)

		if target := rl.bucket.TargetTier(); target != "" && rl.listing.ExposureTier != target {
			if err := rl.acc.client.SetExposureTier(ctx, rl.acc.token, rl.listing.ID, target); err != nil {
				rlog.add(rl.listing.ID, models.ActionChangeExposure, models.ActionError, err.Error(), false)
			} else {
				rl.listing.ExposureTier = target
				rlog.add(rl.listing.ID, models.ActionChangeExposure, models.ActionSuccess, "", false)
			}
		}
		return true
	})
}

// activate активирует объявления согласно политике аккаунта.
// Количество на складе не передается для fulfillment-объявлений:
// их остатками управляет маркетплейс.
func (o *Orchestrator) activate(ctx context.Context, params *RunParams, items []*runListing, rlog *runLog) []*runListing {
	return o.runStage(ctx, params, "activate", labelActivate, items, func(ctx context.Context, rl *runListing) bool {
		if !rl.acc.account.Policy.CanActivate || rl.listing.Status == models.ListingActive {
			return true
		}

		var stock *int
		if rl.listing.FulfillmentMode != models.FulfillmentByMarketplace {
			s := rl.acc.account.Policy.DefaultStock
			stock = &s
		}

		err := rl.acc.client.Activate(ctx, rl.acc.token, rl.listing.ID, stock)
		o.recordAudit(ctx, params, rl.acc.account, models.ActionActivate, rl.listing.ID, err)
		if err != nil {
			rlog.add(rl.listing.ID, models.ActionActivate, models.ActionError, err.Error(), true)
			return false
		}
		rl.listing.Status = models.ListingActive
		rlog.add(rl.listing.ID, models.ActionActivate, models.ActionSuccess, "", false)
		return true
	})
}

// addPromotions применяет промоакцию к объявлениям, участвующим в ней.
// Успех завершает объявление (оно не попадает в REPRICE_FALLBACK);
// сбой передает объявление на повторную установку цены без наценки.
func (o *Orchestrator) addPromotions(ctx context.Context, params *RunParams, items []*runListing, rlog *runLog) []*runListing {
	return o.runStage(ctx, params, "add_promotion", labelPromotion, items, func(ctx context.Context, rl *runListing) bool {
		if !rl.promoEligible {
			return false
		}

		err := rl.acc.client.AddPromotion(ctx, rl.acc.token, rl.listing.ID, rl.acc.account.Promotion, rl.submitted)
		o.recordAudit(ctx, params, rl.acc.account, models.ActionAddPromotion, rl.listing.ID, err)
		if err != nil {
			rlog.add(rl.listing.ID, models.ActionAddPromotion, models.ActionError, err.Error(), false)
			rl.failedPromo = true
			return true
		}
		rlog.add(rl.listing.ID, models.ActionAddPromotion, models.ActionSuccess, "", true)
		return false
	})
}

// repriceFallback повторно отправляет цену без наценки для объявлений,
// у которых применение промоакции не удалось: цена на стороне маркетплейса
// осталась с наценкой, рассчитанной под промоакцию.
func (o *Orchestrator) repriceFallback(ctx context.Context, params *RunParams, items []*runListing, rlog *runLog) {
	o.runStage(ctx, params, "reprice_fallback", labelFallback, items, func(ctx context.Context, rl *runListing) bool {
		if !rl.failedPromo {
			return false
		}

		base := rl.prices.Prices[rl.bucket]
		err := rl.acc.client.SetPrice(ctx, rl.acc.token, rl.listing, base)
		o.recordAudit(ctx, params, rl.acc.account, models.ActionSetPrice, rl.listing.ID, err)
		if err != nil {
			rlog.add(rl.listing.ID, models.ActionSetPrice, models.ActionError, err.Error(), true)
		} else {
			rlog.add(rl.listing.ID, models.ActionSetPrice, models.ActionSuccess, base.StringFixed(2), true)
		}
		return false
	})
}

// recordAudit отправляет запись о попытке мутации в приемник аудита
func (o *Orchestrator) recordAudit(ctx context.Context, params *RunParams, account *models.Account, action, listingID string, err error) {
	if o.audit == nil {
		return
	}
	message := "ok"
	if err != nil {
		message = err.Error()
	}
	o.audit.Record(ctx, &models.AuditRecord{
		Account:   account.ShortName,
		AccountID: account.ID,
		Actor:     params.Actor,
		Action:    action,
		Message:   message,
		Details:   []string{"run_id=" + params.RunID, "listing_id=" + listingID},
	})
}

// buildReports группирует записи журнала по объявлению в порядке первого
// появления. Итоговым действием считается первая запись с признаком final,
// иначе — последняя запись объявления.
func buildReports(entries []models.ActionLogEntry, kinds map[string]models.MarketplaceKind) []*models.ActionReport {
	var order []string
	byID := make(map[string]*models.ActionReport)

	for _, e := range entries {
		report, ok := byID[e.ListingID]
		if !ok {
			report = &models.ActionReport{ID: e.ListingID, Marketplace: kinds[e.ListingID]}
			byID[e.ListingID] = report
			order = append(order, e.ListingID)
		}
		report.Actions = append(report.Actions, e)
	}

	reports := make([]*models.ActionReport, 0, len(order))
	for _, id := range order {
		report := byID[id]
		for i := range report.Actions {
			if report.Actions[i].Final {
				report.FinalAction = &report.Actions[i]
				break
			}
		}
		if report.FinalAction == nil && len(report.Actions) > 0 {
			report.FinalAction = &report.Actions[len(report.Actions)-1]
		}
		reports = append(reports, report)
	}
	return reports
}
