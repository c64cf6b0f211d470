package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PricingStoragePort определяет интерфейс взаимодействия с хранилищем PostgreSQL
type PricingStoragePort interface {
	// Account методы
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	ListAccountsByIDs(ctx context.Context, accountIDs []string) ([]*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error

	// Audit методы
	SaveAuditRecord(ctx context.Context, record *models.AuditRecord) error
	ListAuditRecords(ctx context.Context, accountID string, limit, offset int) ([]*models.AuditRecord, error)

	Close() error
}

// PricingStorage реализация PricingStoragePort для PostgreSQL
type PricingStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage создает новый экземпляр PricingStorage
func NewPostgresStorage(ctx context.Context, connectionString string) (*PricingStorage, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PricingStorage{pool: pool}, nil
}

// Close закрывает соединение с БД
func (r *PricingStorage) Close() error {
	r.pool.Close()
	return nil
}

// accountRow — строка таблицы pricing.accounts; promotion и policy хранятся как jsonb
type accountRow struct {
	ID           string
	ShortName    string
	Marketplace  string
	SellerID     string
	RefreshToken string
	Promotion    []byte
	Policy       []byte
}

func (row accountRow) toModel() (*models.Account, error) {
	account := &models.Account{
		ID:           row.ID,
		ShortName:    row.ShortName,
		Marketplace:  models.MarketplaceKind(row.Marketplace),
		SellerID:     row.SellerID,
		RefreshToken: row.RefreshToken,
	}

	if len(row.Promotion) > 0 {
		if err := json.Unmarshal(row.Promotion, &account.Promotion); err != nil {
			return nil, fmt.Errorf("ошибка десериализации настроек промоакции: %w", err)
		}
	}
	if len(row.Policy) > 0 {
		if err := json.Unmarshal(row.Policy, &account.Policy); err != nil {
			return nil, fmt.Errorf("ошибка десериализации политики аккаунта: %w", err)
		}
	}

	return account, nil
}

// GetAccount получает аккаунт по идентификатору
func (r *PricingStorage) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	query := `
		SELECT id, short_name, marketplace, seller_id, refresh_token, promotion, policy
		FROM pricing.accounts
		WHERE id = $1
	`

	var row accountRow
	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&row.ID, &row.ShortName, &row.Marketplace, &row.SellerID,
		&row.RefreshToken, &row.Promotion, &row.Policy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrAccountNotFound
		}
		return nil, fmt.Errorf("ошибка получения аккаунта: %w", err)
	}

	return row.toModel()
}

// ListAccountsByIDs получает аккаунты по списку идентификаторов.
// Неизвестные идентификаторы молча пропускаются; порядок результата
// соответствует порядку запрошенных идентификаторов.
func (r *PricingStorage) ListAccountsByIDs(ctx context.Context, accountIDs []string) ([]*models.Account, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, short_name, marketplace, seller_id, refresh_token, promotion, policy
		FROM pricing.accounts
		WHERE id = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения аккаунтов: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.Account, len(accountIDs))
	for rows.Next() {
		var row accountRow
		if err := rows.Scan(
			&row.ID, &row.ShortName, &row.Marketplace, &row.SellerID,
			&row.RefreshToken, &row.Promotion, &row.Policy,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения аккаунта: %w", err)
		}
		account, err := row.toModel()
		if err != nil {
			return nil, err
		}
		byID[account.ID] = account
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения аккаунтов: %w", err)
	}

	accounts := make([]*models.Account, 0, len(byID))
	for _, id := range accountIDs {
		if account, ok := byID[id]; ok {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

// ListAccounts получает все аккаунты
func (r *PricingStorage) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	query := `
		SELECT id, short_name, marketplace, seller_id, refresh_token, promotion, policy
		FROM pricing.accounts
		ORDER BY short_name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения аккаунтов: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var row accountRow
		if err := rows.Scan(
			&row.ID, &row.ShortName, &row.Marketplace, &row.SellerID,
			&row.RefreshToken, &row.Promotion, &row.Policy,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения аккаунта: %w", err)
		}
		account, err := row.toModel()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения аккаунтов: %w", err)
	}

	return accounts, nil
}

// SaveAccount сохраняет аккаунт
func (r *PricingStorage) SaveAccount(ctx context.Context, account *models.Account) error {
	promotion, err := json.Marshal(account.Promotion)
	if err != nil {
		return fmt.Errorf("ошибка сериализации настроек промоакции: %w", err)
	}
	policy, err := json.Marshal(account.Policy)
	if err != nil {
		return fmt.Errorf("ошибка сериализации политики аккаунта: %w", err)
	}

	query := `
		INSERT INTO pricing.accounts (id, short_name, marketplace, seller_id, refresh_token, promotion, policy, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			short_name = $2,
			marketplace = $3,
			seller_id = $4,
			refresh_token = $5,
			promotion = $6,
			policy = $7,
			updated_at = $8
	`

	_, err = r.pool.Exec(ctx, query,
		account.ID, account.ShortName, string(account.Marketplace), account.SellerID,
		account.RefreshToken, promotion, policy, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения аккаунта: %w", err)
	}
	return nil
}

// SaveAuditRecord сохраняет запись аудита
func (r *PricingStorage) SaveAuditRecord(ctx context.Context, record *models.AuditRecord) error {
	details, err := json.Marshal(record.Details)
	if err != nil {
		return fmt.Errorf("ошибка сериализации деталей записи аудита: %w", err)
	}

	query := `
		INSERT INTO pricing.audit_log (id, account, account_id, actor, action, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.pool.Exec(ctx, query,
		record.ID, record.Account, record.AccountID, record.Actor,
		record.Action, record.Message, details, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения записи аудита: %w", err)
	}
	return nil
}

// ListAuditRecords получает записи аудита аккаунта, новые первыми
func (r *PricingStorage) ListAuditRecords(ctx context.Context, accountID string, limit, offset int) ([]*models.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account, account_id, actor, action, message, details, created_at
		FROM pricing.audit_log
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записей аудита: %w", err)
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		var record models.AuditRecord
		var details []byte
		if err := rows.Scan(
			&record.ID, &record.Account, &record.AccountID, &record.Actor,
			&record.Action, &record.Message, &details, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения записи аудита: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &record.Details); err != nil {
				return nil, fmt.Errorf("ошибка десериализации деталей записи аудита: %w", err)
			}
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения записей аудита: %w", err)
	}

	return records, nil
}
