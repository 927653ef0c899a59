package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studio-billing/internal/domain"
	"studio-billing/internal/payment"
	"studio-billing/internal/repository"
	"studio-billing/internal/store"

	"go.uber.org/zap"
)

// CredentialsResolver 解析租户的渠道凭据：租户配置行存在时只用租户配置，
// 没有配置行时才使用环境变量中的平台凭据。
// 商户密钥只缓存在进程内，不写入 Redis 等共享存储。
type CredentialsResolver struct {
	settings repository.PaymentSettingsRepository
	env      map[domain.Provider]domain.ProviderCredentials
	cache    store.KV
	ttl      time.Duration
	logger   *zap.Logger
}

func NewCredentialsResolver(
	settings repository.PaymentSettingsRepository,
	env map[domain.Provider]domain.ProviderCredentials,
	ttl time.Duration,
	logger *zap.Logger,
) *CredentialsResolver {
	if env == nil {
		env = map[domain.Provider]domain.ProviderCredentials{}
	}
	return &CredentialsResolver{
		settings: settings,
		env:      env,
		cache:    store.NewMemoryKV(),
		ttl:      ttl,
		logger:   logger,
	}
}

func credentialsCacheKey(tenantID string, provider domain.Provider) string {
	return fmt.Sprintf("billing:creds:%s:%s", tenantID, provider)
}

// Resolve 返回 payment.ErrCredentialsMissing 当租户配置不完整，或租户无配置且环境变量也不完整
func (r *CredentialsResolver) Resolve(ctx context.Context, tenantID string, provider domain.Provider) (domain.ProviderCredentials, error) {
	key := credentialsCacheKey(tenantID, provider)

	if raw, err := r.cache.Get(ctx, key); err == nil {
		var c domain.ProviderCredentials
		if err := json.Unmarshal([]byte(raw), &c); err == nil {
			return c, nil
		}
		_ = r.cache.Del(ctx, key)
	}

	creds, source, cacheable, err := r.lookup(ctx, tenantID, provider)
	if err != nil {
		return domain.ProviderCredentials{}, err
	}
	if !creds.CompleteFor(provider) {
		if source == "tenant" {
			r.logger.Warn("Tenant payment settings incomplete, platform credentials not substituted",
				zap.String("tenant_id", tenantID),
				zap.String("provider", string(provider)),
			)
		}
		return domain.ProviderCredentials{}, fmt.Errorf("%w: %s credentials incomplete", payment.ErrCredentialsMissing, source)
	}

	if cacheable {
		if b, err := json.Marshal(creds); err == nil {
			_ = r.cache.Set(ctx, key, string(b), r.ttl)
		}
	}
	return creds, nil
}

// lookup 租户配置行优先；行不存在才回退到环境变量
func (r *CredentialsResolver) lookup(ctx context.Context, tenantID string, provider domain.Provider) (domain.ProviderCredentials, string, bool, error) {
	if r.settings == nil {
		return r.env[provider], "environment", true, nil
	}

	c, err := r.settings.GetProviderCredentials(ctx, tenantID, provider)
	switch {
	case err == nil:
		return *c, "tenant", true, nil
	case errors.Is(err, repository.ErrSettingsNotFound):
		return r.env[provider], "environment", true, nil
	default:
		// 仍可用环境变量兜底，但不缓存这次结果
		r.logger.Warn("Failed to load tenant payment settings, using environment fallback",
			zap.String("tenant_id", tenantID),
			zap.String("provider", string(provider)),
			zap.Error(err),
		)
		return r.env[provider], "environment", false, nil
	}
}
