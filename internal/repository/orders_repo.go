package repository

import (
	"context"
	"errors"
	"time"

	"studio-billing/internal/domain"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateOrder    = errors.New("order_no already exists")
	ErrOrderNotLinkable  = errors.New("order is not completed or already linked to an account")
	ErrConcurrentReplace = errors.New("order changed concurrently")
)

// TransitionResult TryTransition 的结果
type TransitionResult int

const (
	// Transitioned 本次调用完成了 pending -> to 的转换
	Transitioned TransitionResult = iota + 1
	// AlreadyTerminal 订单已是终态（重复投递的正常命中）
	AlreadyTerminal
	// NotFound order_no 不存在
	NotFound
	// TenantMismatch order_no 存在但属于其他租户，订单不变
	TenantMismatch
)

func (r TransitionResult) String() string {
	switch r {
	case Transitioned:
		return "transitioned"
	case AlreadyTerminal:
		return "already_terminal"
	case NotFound:
		return "not_found"
	case TenantMismatch:
		return "tenant_mismatch"
	default:
		return "unknown"
	}
}

// TransitionFields 随状态转换一起写入的字段
type TransitionFields struct {
	CompletedAt   time.Time // 仅 completed 时写入
	Provider      domain.Provider
	ProviderRef   string
	FailureReason string
}

// OrdersRepository 订单Repository接口
// 订单只能通过 TryTransition 从 pending 转入终态，不提供通用 Update
type OrdersRepository interface {
	// GetOrder 根据 order_no 查询订单
	GetOrder(ctx context.Context, orderNo string) (*domain.Order, error)

	// GetOrderByStatusToken 根据状态轮询令牌查询订单
	GetOrderByStatusToken(ctx context.Context, token string) (*domain.Order, error)

	// TryTransition 原子地把 tenantID 名下的订单从 pending 转为 to。
	// 返回 Transitioned 时第二个返回值是转换后的订单；
	// AlreadyTerminal 时是当前订单；NotFound 与 TenantMismatch 时为 nil。
	// 同一 order_no 的并发调用最多只有一个得到 Transitioned。
	TryTransition(ctx context.Context, tenantID, orderNo string, to domain.OrderStatus, fields TransitionFields) (TransitionResult, *domain.Order, error)

	// LinkUser 把已完成订单关联到新建账号（仅当 user_id 为空）
	LinkUser(ctx context.Context, orderNo, userID string) error

	// CreateOrder 创建 pending 订单（结账流程与测试工具使用）；
	// StatusToken 为空时生成并回填到 order
	CreateOrder(ctx context.Context, order *domain.Order) (string, error)

	// ListOrders 对账导出
	ListOrders(ctx context.Context, filters OrderFilters, limit int) ([]*domain.Order, error)
}

// OrderFilters 订单查询过滤器
type OrderFilters struct {
	TenantID string             // 可选
	Status   domain.OrderStatus // 可选
	Since    time.Time          // 可选，created_at >= Since
}
