package domain

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// Unlimited 限额哨兵值
const Unlimited int64 = -1

// DefaultSupportType 套餐未声明支持方式时的默认值
const DefaultSupportType = "email"

// Package 套餐定义（对应 packages 表），nullable 列表示“未设置”
type Package struct {
	PackageID string          `db:"package_id"` // e.g. standart, kurumsal
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`

	StorageGB       sql.NullInt64  `db:"storage_gb"`
	MaxCustomers    sql.NullInt64  `db:"max_customers"`
	MaxPhotos       sql.NullInt64  `db:"max_photos"`
	MaxAppointments sql.NullInt64  `db:"max_appointments"`
	HasWatermark    sql.NullBool   `db:"has_watermark"`
	HasWebsite      sql.NullBool   `db:"has_website"`
	SupportType     sql.NullString `db:"support_type"`
}

// Entitlement 套餐授予账号的限额与功能
type Entitlement struct {
	StorageLimitBytes int64
	MaxCustomers      int64
	MaxPhotos         int64
	MaxAppointments   int64
	HasWatermark      bool
	HasWebsite        bool
	SupportType       string
}
