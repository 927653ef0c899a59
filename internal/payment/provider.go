// Package payment authenticates inbound payment-provider callbacks.
//
// Each Provider owns its canonicalization and keyed-hash scheme; credentials
// are resolved by the caller and passed in explicitly.
package payment

import (
	"errors"
	"sort"

	"studio-billing/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	// ErrCredentialsMissing 租户未配置渠道凭据（配置错误，重试无用）
	ErrCredentialsMissing = errors.New("provider credentials not configured")
	// ErrSignatureMismatch hash 缺失或不匹配
	ErrSignatureMismatch = errors.New("callback signature mismatch")
	// ErrMalformedPayload hash 匹配但载荷无法解析
	ErrMalformedPayload = errors.New("malformed callback payload")
)

// VerifiedCallback 验签通过、已规范化的回调
type VerifiedCallback struct {
	Provider domain.Provider
	OrderNo  string
	Status   string // 渠道原始状态值

	ProviderRef   string
	FailureReason string
	Amount        decimal.Decimal
	Currency      string
	Test          bool

	BuyerEmail string
	BuyerName  string

	Fields map[string]string // 原始表单字段（不含 hash）
}

// Outcome 从回调中提取的业务结果
type Outcome struct {
	OrderNo     string
	Succeeded   bool
	Reason      string
	ProviderRef string
	// Amount 渠道确认的金额（主币单位）；渠道未提供时 Valid=false
	Amount    decimal.NullDecimal
	RawFields map[string]string
	Test      bool
}

// Provider 每个支付渠道的回调适配器
type Provider interface {
	Name() domain.Provider
	// Ack 渠道要求的确认响应体
	Ack() string
	Verify(payload map[string]string, creds domain.ProviderCredentials) (*VerifiedCallback, error)
	Outcome(cb *VerifiedCallback) Outcome
	// TrustsIdentity 支付确认本身是否足以证明邮箱归属
	TrustsIdentity() bool
}

// Registry maps provider names to adapters.
type Registry struct {
	providers map[domain.Provider]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[domain.Provider]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// DefaultRegistry PayTR + Shopier
func DefaultRegistry() *Registry {
	return NewRegistry(PayTR{}, Shopier{})
}

func (r *Registry) Lookup(name domain.Provider) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Names() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func copyFields(payload map[string]string, skip ...string) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	for _, k := range skip {
		delete(out, k)
	}
	return out
}
