package service

import (
	"time"

	"studio-billing/internal/domain"
)

const (
	bytesPerGB = int64(1) << 30

	// SubscriptionWindow 购买后的授权期
	SubscriptionWindow = 365 * 24 * time.Hour
	// VerificationTokenTTL 邮箱验证 token 有效期
	VerificationTokenTTL = 24 * time.Hour
)

// ComputeEntitlement 由套餐定义计算账号限额；未设置的上限视为不限，功能开关默认关闭
func ComputeEntitlement(pkg *domain.Package) domain.Entitlement {
	e := domain.Entitlement{
		StorageLimitBytes: domain.Unlimited,
		MaxCustomers:      limitOrUnlimited(pkg.MaxCustomers.Int64, pkg.MaxCustomers.Valid),
		MaxPhotos:         limitOrUnlimited(pkg.MaxPhotos.Int64, pkg.MaxPhotos.Valid),
		MaxAppointments:   limitOrUnlimited(pkg.MaxAppointments.Int64, pkg.MaxAppointments.Valid),
		HasWatermark:      pkg.HasWatermark.Valid && pkg.HasWatermark.Bool,
		HasWebsite:        pkg.HasWebsite.Valid && pkg.HasWebsite.Bool,
		SupportType:       domain.DefaultSupportType,
	}
	if pkg.StorageGB.Valid && pkg.StorageGB.Int64 >= 0 {
		e.StorageLimitBytes = pkg.StorageGB.Int64 * bytesPerGB
	}
	if pkg.SupportType.Valid && pkg.SupportType.String != "" {
		e.SupportType = pkg.SupportType.String
	}
	return e
}

func limitOrUnlimited(v int64, valid bool) int64 {
	if !valid || v < 0 {
		return domain.Unlimited
	}
	return v
}
