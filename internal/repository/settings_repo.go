package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"studio-billing/internal/domain"
)

// ErrSettingsNotFound 租户未配置该渠道
var ErrSettingsNotFound = errors.New("payment settings not found")

// PaymentSettingsRepository 租户级支付渠道凭据（tenant_payment_settings 表）
type PaymentSettingsRepository interface {
	GetProviderCredentials(ctx context.Context, tenantID string, provider domain.Provider) (*domain.ProviderCredentials, error)
}

type PostgresPaymentSettingsRepository struct {
	db *sql.DB
}

func NewPostgresPaymentSettingsRepository(db *sql.DB) *PostgresPaymentSettingsRepository {
	return &PostgresPaymentSettingsRepository{db: db}
}

var _ PaymentSettingsRepository = (*PostgresPaymentSettingsRepository)(nil)

func (r *PostgresPaymentSettingsRepository) GetProviderCredentials(ctx context.Context, tenantID string, provider domain.Provider) (*domain.ProviderCredentials, error) {
	query := `
		SELECT
			COALESCE(merchant_id, ''),
			COALESCE(merchant_key, ''),
			COALESCE(merchant_salt, '')
		FROM tenant_payment_settings
		WHERE tenant_id = $1 AND provider = $2 AND is_enabled = TRUE
	`

	var c domain.ProviderCredentials
	err := r.db.QueryRowContext(ctx, query, tenantID, string(provider)).Scan(&c.ID, &c.Key, &c.Salt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("get %s settings for tenant %s: %w", provider, tenantID, err)
	}
	return &c, nil
}

type settingsKey struct {
	tenantID string
	provider domain.Provider
}

// MemoryPaymentSettingsRepo in-memory settings（dev/test）
type MemoryPaymentSettingsRepo struct {
	mu    sync.RWMutex
	creds map[settingsKey]domain.ProviderCredentials
}

func NewMemoryPaymentSettingsRepo() *MemoryPaymentSettingsRepo {
	return &MemoryPaymentSettingsRepo{creds: map[settingsKey]domain.ProviderCredentials{}}
}

var _ PaymentSettingsRepository = (*MemoryPaymentSettingsRepo)(nil)

func (r *MemoryPaymentSettingsRepo) GetProviderCredentials(_ context.Context, tenantID string, provider domain.Provider) (*domain.ProviderCredentials, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.creds[settingsKey{tenantID, provider}]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	return &c, nil
}

func (r *MemoryPaymentSettingsRepo) Put(tenantID string, provider domain.Provider, c domain.ProviderCredentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[settingsKey{tenantID, provider}] = c
}
