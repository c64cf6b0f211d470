package models

import "github.com/shopspring/decimal"

// PromotionConfig содержит настройки промоакции аккаунта
type PromotionConfig struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	PercentMarkup decimal.Decimal `json:"percent_markup"`
}

// Enabled сообщает, участвует ли аккаунт в промоакции
func (p PromotionConfig) Enabled() bool {
	return p.ID != ""
}

// PricingPolicy содержит правила ценообразования аккаунта
type PricingPolicy struct {
	CanActivate    bool `json:"can_activate"`
	CanReplicate   bool `json:"can_replicate"`
	CanChangeStock bool `json:"can_change_stock"`
	DefaultStock   int  `json:"default_stock"`
}

// Account представляет учетную запись маркетплейса.
// Инвариант: перед любой мутацией для аккаунта должен быть получен
// действительный access token (см. credentials.Resolver).
type Account struct {
	ID           string          `json:"id"`
	ShortName    string          `json:"short_name"`
	Marketplace  MarketplaceKind `json:"marketplace"`
	SellerID     string          `json:"seller_id"`
	RefreshToken string          `json:"-"`
	Promotion    PromotionConfig `json:"promotion"`
	Policy       PricingPolicy   `json:"policy"`
}
