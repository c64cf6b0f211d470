package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"golang.org/x/oauth2"
)

const (
	// Токен считается истекшим за expiryMargin до реального срока,
	// чтобы он не протух посреди группы запросов.
	expiryMargin = 5 * time.Minute

	tokenCacheKeyPrefix = "pricing:token:"
)

// Config содержит настройки OAuth-приложения маркетплейса
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// cachedToken — форма хранения токена в кэше
type cachedToken struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
}

// Resolver выдает действительные access token-ы аккаунтов.
// Токен обменивается по refresh token аккаунта и кэшируется до момента
// за expiryMargin до истечения срока; параллельные прогоны разделяют
// кэшированный токен через распределенный кэш.
type Resolver struct {
	configs map[models.MarketplaceKind]Config
	cache   interfaces.CachePort
	logger  interfaces.LoggerPort
}

// NewResolver создает Resolver. cache может быть nil — тогда каждый вызов
// обменивает refresh token заново.
func NewResolver(configs map[models.MarketplaceKind]Config, cache interfaces.CachePort, logger interfaces.LoggerPort) *Resolver {
	return &Resolver{
		configs: configs,
		cache:   cache,
		logger:  logger,
	}
}

// GetValidAccessToken возвращает действительный access token аккаунта
func (r *Resolver) GetValidAccessToken(ctx context.Context, account *models.Account) (string, error) {
	if token, ok := r.fromCache(ctx, account.ID); ok {
		return token, nil
	}

	cfg, ok := r.configs[account.Marketplace]
	if !ok {
		return "", fmt.Errorf("нет настроек OAuth для маркетплейса %q", account.Marketplace)
	}
	if account.RefreshToken == "" {
		return "", fmt.Errorf("у аккаунта %s нет refresh token", account.ShortName)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: cfg.TokenURL,
		},
	}

	source := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: account.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("ошибка обмена refresh token: %w", err)
	}

	r.toCache(ctx, account.ID, token)
	return token.AccessToken, nil
}

// fromCache возвращает кэшированный токен, если он еще действителен
func (r *Resolver) fromCache(ctx context.Context, accountID string) (string, bool) {
	if r.cache == nil {
		return "", false
	}

	data, err := r.cache.Get(ctx, tokenCacheKeyPrefix+accountID)
	if err != nil {
		return "", false
	}

	var cached cachedToken
	if err := json.Unmarshal(data, &cached); err != nil {
		return "", false
	}
	if time.Now().After(cached.Expiry.Add(-expiryMargin)) {
		return "", false
	}
	return cached.AccessToken, true
}

// toCache сохраняет токен в кэше до момента за expiryMargin до истечения
func (r *Resolver) toCache(ctx context.Context, accountID string, token *oauth2.Token) {
	if r.cache == nil || token.Expiry.IsZero() {
		return
	}

	ttl := time.Until(token.Expiry.Add(-expiryMargin))
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(cachedToken{AccessToken: token.AccessToken, Expiry: token.Expiry})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, tokenCacheKeyPrefix+accountID, data, ttl); err != nil {
		r.logger.WarnWithContext(ctx, "Ошибка кэширования access token",
			interfaces.LogField{Key: "account_id", Value: accountID},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}
