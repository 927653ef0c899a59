package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"studio-billing/internal/domain"

	"github.com/google/uuid"
)

// MemoryOrdersRepo supports callback handling when DB is disabled (dev) and in tests.
type MemoryOrdersRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order // orderNo -> Order
}

func NewMemoryOrdersRepo() *MemoryOrdersRepo {
	return &MemoryOrdersRepo{orders: map[string]*domain.Order{}}
}

var _ OrdersRepository = (*MemoryOrdersRepo)(nil)

func (r *MemoryOrdersRepo) GetOrder(_ context.Context, orderNo string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderNo]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryOrdersRepo) GetOrderByStatusToken(_ context.Context, token string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token == "" {
		return nil, ErrOrderNotFound
	}
	for _, o := range r.orders {
		if o.StatusToken == token {
			return cloneOrder(o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *MemoryOrdersRepo) TryTransition(_ context.Context, tenantID, orderNo string, to domain.OrderStatus, fields TransitionFields) (TransitionResult, *domain.Order, error) {
	if !to.IsTerminal() {
		return 0, nil, fmt.Errorf("invalid target status %q", to)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderNo]
	if !ok {
		return NotFound, nil, nil
	}
	if o.TenantID != tenantID {
		return TenantMismatch, nil, nil
	}
	if o.Status != domain.OrderStatusPending {
		return AlreadyTerminal, cloneOrder(o), nil
	}

	o.Status = to
	if to == domain.OrderStatusCompleted {
		o.CompletedAt = sql.NullTime{Time: fields.CompletedAt, Valid: true}
	}
	o.Provider = nullString(string(fields.Provider))
	o.ProviderRef = nullString(fields.ProviderRef)
	o.FailureReason = nullString(fields.FailureReason)
	return Transitioned, cloneOrder(o), nil
}

func (r *MemoryOrdersRepo) LinkUser(_ context.Context, orderNo, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderNo]
	if !ok || o.Status != domain.OrderStatusCompleted || o.UserID.Valid {
		return ErrOrderNotLinkable
	}
	o.UserID = sql.NullString{String: userID, Valid: true}
	return nil
}

func (r *MemoryOrdersRepo) CreateOrder(_ context.Context, order *domain.Order) (string, error) {
	if order == nil || order.OrderNo == "" {
		return "", fmt.Errorf("order_no is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.OrderNo]; exists {
		return "", ErrDuplicateOrder
	}
	if order.StatusToken == "" {
		token, err := domain.NewStatusToken()
		if err != nil {
			return "", fmt.Errorf("generate status token: %w", err)
		}
		order.StatusToken = token
	}
	o := cloneOrder(order)
	if o.OrderID == "" {
		o.OrderID = uuid.NewString()
	}
	if o.Currency == "" {
		o.Currency = "TRY"
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	o.Status = domain.OrderStatusPending
	r.orders[o.OrderNo] = o
	return o.OrderID, nil
}

func (r *MemoryOrdersRepo) ListOrders(_ context.Context, filters OrderFilters, limit int) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if filters.TenantID != "" && o.TenantID != filters.TenantID {
			continue
		}
		if filters.Status != "" && o.Status != filters.Status {
			continue
		}
		if !filters.Since.IsZero() && o.CreatedAt.Before(filters.Since) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	if o.DraftUserData != nil {
		d := *o.DraftUserData
		c.DraftUserData = &d
	}
	return &c
}
