package domain

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态：pending -> completed | failed（单向，终态不可再变）
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// Provider 支付渠道
type Provider string

const (
	ProviderPayTR   Provider = "paytr"
	ProviderShopier Provider = "shopier"
)

// Order 订单领域模型（对应 orders 表）
// order_no 由结账流程生成，是回调去重的唯一键
type Order struct {
	OrderID  string `db:"order_id"`  // UUID, PRIMARY KEY
	TenantID string `db:"tenant_id"` // UUID, 发起结账的租户（平台租户或工作室）
	OrderNo  string `db:"order_no"`  // VARCHAR(64), UNIQUE

	Status    OrderStatus `db:"status"`     // pending/completed/failed
	PackageID string      `db:"package_id"` // 购买的套餐

	// 结账时快照的注册信息，账号创建前只读
	DraftUserData *DraftUserData `db:"draft_user_data"` // JSONB, nullable

	Amount   decimal.Decimal `db:"amount"`   // NUMERIC(12,2)
	Currency string          `db:"currency"` // 默认 TRY

	Provider      sql.NullString `db:"provider"`       // 完成/失败回调的渠道
	ProviderRef   sql.NullString `db:"provider_ref"`   // 渠道侧支付参考号
	FailureReason sql.NullString `db:"failure_reason"` // 渠道返回的失败原因

	UserID      sql.NullString `db:"user_id"`      // 履约后创建的账号
	CompletedAt sql.NullTime   `db:"completed_at"` // 仅在 pending->completed 时设置一次
	CreatedAt   time.Time      `db:"created_at"`

	// StatusToken 结账页轮询状态用的不可猜测令牌，只交给买家浏览器
	StatusToken string `db:"status_token"` // UNIQUE
}

// NewStatusToken returns a 32-byte random hex token.
func NewStatusToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// BillingInfo 账单信息
type BillingInfo struct {
	CompanyType    string `json:"companyType"` // individual/corporate
	Address        string `json:"address"`
	TaxOffice      string `json:"taxOffice"`
	TaxNumber      string `json:"taxNumber"`
	IdentityNumber string `json:"identityNumber"`
}

// DraftUserData 结账时采集的准租户注册信息
type DraftUserData struct {
	Name           string      `json:"name"`
	StudioName     string      `json:"studioName"`
	Slug           string      `json:"slug"`
	Email          string      `json:"email"`
	HashedPassword string      `json:"hashedPassword"`
	Phone          string      `json:"phone"`
	Address        string      `json:"address"`
	BillingInfo    BillingInfo `json:"billingInfo"`
	IntendedAction string      `json:"intendedAction"` // trial/purchase
}

var ErrIncompleteDraft = errors.New("draft user data incomplete")

// Validate checks the fields an account cannot be created without.
func (d *DraftUserData) Validate() error {
	if d == nil {
		return ErrIncompleteDraft
	}
	if strings.TrimSpace(d.Email) == "" || strings.TrimSpace(d.Name) == "" || d.HashedPassword == "" {
		return ErrIncompleteDraft
	}
	return nil
}
