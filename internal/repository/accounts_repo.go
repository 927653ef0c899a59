package repository

import (
	"context"
	"errors"

	"studio-billing/internal/domain"
)

var (
	// ErrDuplicateAccount email/slug/source_order_no 唯一约束冲突
	ErrDuplicateAccount    = errors.New("account already exists")
	ErrDuplicateSubscriber = errors.New("subscriber already exists")
)

// AccountsRepository 租户账号创建（账号此后由系统其它部分管理）
type AccountsRepository interface {
	// CreateAccount 返回新账号 ID；重复创建返回 ErrDuplicateAccount
	CreateAccount(ctx context.Context, account *domain.TenantAccount) (string, error)
}

// SubscribersRepository 付费客户索引
type SubscribersRepository interface {
	// CreateSubscriber 已存在时返回 ErrDuplicateSubscriber
	CreateSubscriber(ctx context.Context, sub *domain.Subscriber) error
}
