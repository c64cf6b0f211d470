package services

import (
	"context"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

const decrementCounterKey = "pricing:decrement:"

var (
	one      = decimal.NewFromInt(1)
	hundred  = decimal.NewFromInt(100)
	centStep = decimal.New(1, -2)
)

// Pricer вычисляет сумму к отправке для объявления.
// Счетчики итераций декремента хранятся в распределенном кэше,
// а при его отсутствии — в локальном хранилище процесса.
type Pricer struct {
	cache interfaces.CachePort
	local *gocache.Cache
}

// NewPricer создает Pricer. cache может быть nil.
func NewPricer(cache interfaces.CachePort) *Pricer {
	return &Pricer{
		cache: cache,
		local: gocache.New(12*time.Hour, time.Hour),
	}
}

// ComputePrice вычисляет сумму к отправке.
// Базовое правило: сумма равна базовой цене. Для объявления, участвующего
// в промоакции аккаунта, сумма равна base/(1-markup/100), округленной вверх
// до ближайшего цента (вверх, никогда вниз). При включенном декременте каждый
// следующий вызов для того же аккаунта уменьшает базу следующей итерации на
// один цент; база не опускается ниже нуля.
func (p *Pricer) ComputePrice(ctx context.Context, base decimal.Decimal, account *models.Account, promotionEligible, decrement bool) decimal.Decimal {
	amount := base

	if decrement {
		iteration := p.nextIteration(ctx, account.ID)
		amount = amount.Sub(centStep.Mul(decimal.NewFromInt(iteration)))
		if amount.IsNegative() {
			amount = decimal.Zero
		}
	}

	if promotionEligible && account.Promotion.Enabled() && account.Promotion.PercentMarkup.IsPositive() {
		divisor := one.Sub(account.Promotion.PercentMarkup.Div(hundred))
		if divisor.IsPositive() {
			amount = ceilToCent(amount.Div(divisor))
		}
	}

	return amount
}

// nextIteration возвращает номер текущей итерации декремента аккаунта
// и сдвигает счетчик для следующей.
func (p *Pricer) nextIteration(ctx context.Context, accountID string) int64 {
	if p.cache != nil {
		if v, err := p.cache.Increment(ctx, decrementCounterKey+accountID, 1); err == nil {
			return v - 1
		}
	}

	if err := p.local.Add(accountID, int64(1), gocache.DefaultExpiration); err == nil {
		return 0
	}
	v, err := p.local.IncrementInt64(accountID, 1)
	if err != nil {
		return 0
	}
	return v - 1
}

// ceilToCent округляет сумму вверх до ближайшего цента
func ceilToCent(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(hundred).Ceil().Div(hundred)
}
