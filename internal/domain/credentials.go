package domain

import (
	"encoding/json"
	"time"
)

// ProviderCredentials 渠道商户凭据
// PayTR: ID=merchant_id, Key=merchant_key, Salt=merchant_salt
// Shopier: ID=api key（公开标识）, Key=api secret, Salt 不使用
type ProviderCredentials struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Salt string `json:"salt"`
}

// CompleteFor reports whether every field the provider's hash scheme needs is set.
func (c ProviderCredentials) CompleteFor(provider Provider) bool {
	switch provider {
	case ProviderPayTR:
		return c.ID != "" && c.Key != "" && c.Salt != ""
	default:
		return c.ID != "" && c.Key != ""
	}
}

// CallbackEvent 回调取证记录（对应 payment_callbacks 表）
type CallbackEvent struct {
	EventID        string          `db:"event_id"`
	TenantID       string          `db:"tenant_id"`
	Provider       Provider        `db:"provider"`
	OrderNo        string          `db:"order_no"` // 验签失败时可能为空
	RawFields      json.RawMessage `db:"raw_fields"`
	SignatureValid bool            `db:"signature_valid"`
	Outcome        string          `db:"outcome"`
	ReceivedAt     time.Time       `db:"received_at"`
}
