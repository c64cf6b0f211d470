package models

import "time"

// ActionStatus определяет результат попытки мутации
type ActionStatus string

const (
	ActionSuccess ActionStatus = "success"
	ActionError   ActionStatus = "error"
)

// Названия действий в журнале прогона. Строки сохранены в том виде,
// в котором их читают операторы бэк-офиса.
const (
	ActionFetchDetail     = "Obter dados"
	ActionFetchPromotion  = "Obter promoção"
	ActionTierMatching    = "tier matching"
	ActionPriceRelation   = "Relacionamento de preços"
	ActionRemovePromotion = "Remover promoção"
	ActionSetPrice        = "Alterar preço"
	ActionChangeExposure  = "Alterar exposição"
	ActionActivate        = "Ativar anúncio"
	ActionAddPromotion    = "Aplicar promoção"
	ActionReplicate       = "Replicar anúncio"
	ActionCopyDescription = "Copiar descrição"
	ActionAuthenticate    = "Autenticação"
)

// ActionLogEntry представляет одну попытку мутации объявления.
// Запись не изменяется после создания.
type ActionLogEntry struct {
	ListingID string       `json:"listing_id"`
	Action    string       `json:"action"`
	Status    ActionStatus `json:"status"`
	Detail    string       `json:"detail,omitempty"`
	Final     bool         `json:"final"`
}

// ActionReport представляет итог прогона по одному объявлению.
// Собирается группировкой ActionLogEntry по ID объявления в конце прогона;
// не персистируется (долговременная запись — забота аудита).
type ActionReport struct {
	ID          string           `json:"id"`
	Marketplace MarketplaceKind  `json:"marketplace"`
	Actions     []ActionLogEntry `json:"actions"`
	FinalAction *ActionLogEntry  `json:"final_action,omitempty"`
}

// AuditRecord представляет долговременную запись о попытке мутации
type AuditRecord struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	AccountID string    `json:"account_id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	Details   []string  `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProgressMessage представляет сообщение о ходе выполнения прогона.
// Percent равен -1 в терминальном сообщении «скрыть прогресс»,
// которое отличается от percent=100 (UI убирает индикатор, а не замораживает его).
type ProgressMessage struct {
	Percent int    `json:"percent"`
	Label   string `json:"label,omitempty"`
}

// RunRequest представляет запрос на прогон ценообразования
type RunRequest struct {
	RunID      string      `json:"run_id"`
	Items      []SKUPrices `json:"items"`
	AccountIDs []string    `json:"account_ids"`
	ChannelID  string      `json:"channel_id,omitempty"`
	Decrement  bool        `json:"decrement,omitempty"`
	Actor      string      `json:"actor,omitempty"`
}

// RunResult представляет итог прогона ценообразования
type RunResult struct {
	RunID      string          `json:"run_id"`
	Reports    []*ActionReport `json:"reports"`
	FinishedAt time.Time       `json:"finished_at"`
}
