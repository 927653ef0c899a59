package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"studio-billing/internal/domain"
)

// PostgresOrdersRepository 订单Repository实现
type PostgresOrdersRepository struct {
	db *sql.DB
}

// NewPostgresOrdersRepository 创建订单Repository
func NewPostgresOrdersRepository(db *sql.DB) *PostgresOrdersRepository {
	return &PostgresOrdersRepository{db: db}
}

// 确保实现了接口
var _ OrdersRepository = (*PostgresOrdersRepository)(nil)

const orderColumns = `
			order_id::text,
			tenant_id::text,
			order_no,
			status,
			package_id,
			draft_user_data::text,
			amount,
			currency,
			provider,
			provider_ref,
			failure_reason,
			user_id::text,
			completed_at,
			created_at,
			status_token`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var status string
	var draft sql.NullString
	if err := row.Scan(
		&o.OrderID,
		&o.TenantID,
		&o.OrderNo,
		&status,
		&o.PackageID,
		&draft,
		&o.Amount,
		&o.Currency,
		&o.Provider,
		&o.ProviderRef,
		&o.FailureReason,
		&o.UserID,
		&o.CompletedAt,
		&o.CreatedAt,
		&o.StatusToken,
	); err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)

	if draft.Valid && draft.String != "" && draft.String != "null" {
		var d domain.DraftUserData
		if err := json.Unmarshal([]byte(draft.String), &d); err != nil {
			return nil, fmt.Errorf("corrupt draft_user_data for order %s: %w", o.OrderNo, err)
		}
		o.DraftUserData = &d
	}
	return &o, nil
}

// GetOrder 根据 order_no 查询订单
func (r *PostgresOrdersRepository) GetOrder(ctx context.Context, orderNo string) (*domain.Order, error) {
	if orderNo == "" {
		return nil, ErrOrderNotFound
	}
	query := `SELECT` + orderColumns + `
		FROM orders
		WHERE order_no = $1`

	o, err := scanOrder(r.db.QueryRowContext(ctx, query, orderNo))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

// GetOrderByStatusToken 状态轮询
func (r *PostgresOrdersRepository) GetOrderByStatusToken(ctx context.Context, token string) (*domain.Order, error) {
	if token == "" {
		return nil, ErrOrderNotFound
	}
	query := `SELECT` + orderColumns + `
		FROM orders
		WHERE status_token = $1`

	o, err := scanOrder(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

// TryTransition 单条 UPDATE ... WHERE tenant_id AND status='pending' 完成比较并交换；
// 只有未更新任何行时才再查一次以区分 NotFound、TenantMismatch 与 AlreadyTerminal
func (r *PostgresOrdersRepository) TryTransition(ctx context.Context, tenantID, orderNo string, to domain.OrderStatus, fields TransitionFields) (TransitionResult, *domain.Order, error) {
	if !to.IsTerminal() {
		return 0, nil, fmt.Errorf("invalid target status %q", to)
	}
	if orderNo == "" {
		return NotFound, nil, nil
	}

	var completedAt sql.NullTime
	if to == domain.OrderStatusCompleted {
		completedAt = sql.NullTime{Time: fields.CompletedAt, Valid: true}
	}

	query := `
		UPDATE orders
		SET status = $2,
			completed_at = $3,
			provider = $4,
			provider_ref = $5,
			failure_reason = $6,
			updated_at = NOW()
		WHERE order_no = $1 AND tenant_id::text = $7 AND status = 'pending'
		RETURNING` + orderColumns

	o, err := scanOrder(r.db.QueryRowContext(ctx, query,
		orderNo,
		string(to),
		completedAt,
		nullString(string(fields.Provider)),
		nullString(fields.ProviderRef),
		nullString(fields.FailureReason),
		tenantID,
	))
	if err == nil {
		return Transitioned, o, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, nil, fmt.Errorf("transition order %s: %w", orderNo, err)
	}

	current, err := r.GetOrder(ctx, orderNo)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return NotFound, nil, nil
		}
		return 0, nil, err
	}
	if current.TenantID != tenantID {
		return TenantMismatch, nil, nil
	}
	if !current.Status.IsTerminal() {
		// 仅当订单在 UPDATE 之后才插入时出现
		return 0, current, ErrConcurrentReplace
	}
	return AlreadyTerminal, current, nil
}

// LinkUser 关联账号，仅对 completed 且 user_id 为空的订单生效
func (r *PostgresOrdersRepository) LinkUser(ctx context.Context, orderNo, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET user_id = $2, updated_at = NOW()
		WHERE order_no = $1 AND status = 'completed' AND user_id IS NULL`,
		orderNo, userID,
	)
	if err != nil {
		return fmt.Errorf("link order %s: %w", orderNo, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOrderNotLinkable
	}
	return nil
}

// CreateOrder 创建 pending 订单
func (r *PostgresOrdersRepository) CreateOrder(ctx context.Context, order *domain.Order) (string, error) {
	if order == nil || order.OrderNo == "" {
		return "", fmt.Errorf("order_no is required")
	}
	var draft any
	if order.DraftUserData != nil {
		b, err := json.Marshal(order.DraftUserData)
		if err != nil {
			return "", err
		}
		draft = string(b)
	}
	currency := order.Currency
	if currency == "" {
		currency = "TRY"
	}
	if order.StatusToken == "" {
		token, err := domain.NewStatusToken()
		if err != nil {
			return "", fmt.Errorf("generate status token: %w", err)
		}
		order.StatusToken = token
	}

	var orderID string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO orders (tenant_id, order_no, status, package_id, draft_user_data, amount, currency, status_token)
		VALUES ($1, $2, 'pending', $3, $4::jsonb, $5, $6, $7)
		RETURNING order_id::text`,
		order.TenantID, order.OrderNo, order.PackageID, draft, order.Amount.StringFixed(2), currency, order.StatusToken,
	).Scan(&orderID)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateOrder
		}
		return "", fmt.Errorf("create order %s: %w", order.OrderNo, err)
	}
	return orderID, nil
}

// ListOrders 对账导出用，按创建时间倒序
func (r *PostgresOrdersRepository) ListOrders(ctx context.Context, filters OrderFilters, limit int) ([]*domain.Order, error) {
	where := []string{"1=1"}
	args := []any{}
	argN := 1

	if filters.TenantID != "" {
		where = append(where, fmt.Sprintf("tenant_id = $%d", argN))
		args = append(args, filters.TenantID)
		argN++
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, string(filters.Status))
		argN++
	}
	if !filters.Since.IsZero() {
		where = append(where, fmt.Sprintf("created_at >= $%d", argN))
		args = append(args, filters.Since)
		argN++
	}
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT`+orderColumns+`
		FROM orders
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d`, strings.Join(where, " AND "), argN)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
