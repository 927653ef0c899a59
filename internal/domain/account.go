package domain

import (
	"database/sql"
	"time"
)

// TenantAccount 履约创建的工作室账号（对应 users 表中 role=admin 的记录）
type TenantAccount struct {
	AccountID string `db:"user_id"`   // UUID, PRIMARY KEY
	TenantID  string `db:"tenant_id"` // 订单所属租户

	Name         string `db:"name"`
	StudioName   string `db:"studio_name"`
	Slug         string `db:"slug"` // UNIQUE, lowercase
	Email        string `db:"email"` // UNIQUE
	PasswordHash string `db:"password"`
	Phone        string `db:"phone"`
	Address      string `db:"address"`
	Role         string `db:"role"` // 固定为 admin（摄影师）

	PackageType    string `db:"package_type"`
	IntendedAction string `db:"intended_action"`
	HeroTitle      string `db:"hero_title"`
	HeroSubtitle   string `db:"hero_subtitle"`

	Entitlement        Entitlement `db:"-"`
	SubscriptionExpiry time.Time   `db:"subscription_expiry"`
	BillingInfo        BillingInfo `db:"billing_info"` // JSONB

	IsActive                bool           `db:"is_active"`
	IsEmailVerified         bool           `db:"is_email_verified"`
	VerificationToken       sql.NullString `db:"verification_token"`
	VerificationTokenExpiry sql.NullTime   `db:"verification_token_expiry"`

	// SourceOrderNo 唯一约束，用于发现重复创建
	SourceOrderNo string    `db:"source_order_no"`
	CreatedAt     time.Time `db:"created_at"`
}

// Subscriber 付费客户索引（营销/统计用，非强一致）
type Subscriber struct {
	Email        string    `db:"email"` // lowercase, UNIQUE
	Name         string    `db:"name"`
	StudioName   string    `db:"studio_name"`
	PackageType  string    `db:"package_type"`
	IsActive     bool      `db:"is_active"`
	RegisteredAt time.Time `db:"registered_at"`
}
