package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"studio-billing/internal/repository"
	"studio-billing/internal/store"

	"go.uber.org/zap"
)

// terminalStatusTTL 终态不会再变，缓存只为减轻轮询对数据库的压力
const terminalStatusTTL = 10 * time.Minute

// OrderStatusHandler 结账页轮询订单状态，按 status token 查询（order_no 可被猜测，不作为查询键）
type OrderStatusHandler struct {
	orders repository.OrdersRepository
	cache  store.KV // 可为 nil
	logger *zap.Logger
}

func NewOrderStatusHandler(orders repository.OrdersRepository, cache store.KV, logger *zap.Logger) *OrderStatusHandler {
	return &OrderStatusHandler{orders: orders, cache: cache, logger: logger}
}

type orderStatusDTO struct {
	OrderNo string `json:"orderNo"`
	Status  string `json:"status"`
}

// statusCacheKey 只存 token 的摘要
func statusCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "billing:order-status:" + hex.EncodeToString(sum[:])
}

// GetStatus GET /api/payment/orders/status?token=...
func (h *OrderStatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, Fail("token is required"))
		return
	}

	if dto, ok := h.cached(r.Context(), token); ok {
		writeJSON(w, http.StatusOK, Ok(dto))
		return
	}

	order, err := h.orders.GetOrderByStatusToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("order not found"))
			return
		}
		h.logger.Error("Failed to load order status", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	dto := orderStatusDTO{OrderNo: order.OrderNo, Status: string(order.Status)}
	if order.Status.IsTerminal() {
		h.remember(r.Context(), token, dto)
	}
	writeJSON(w, http.StatusOK, Ok(dto))
}

func (h *OrderStatusHandler) cached(ctx context.Context, token string) (orderStatusDTO, bool) {
	var dto orderStatusDTO
	if h.cache == nil {
		return dto, false
	}
	raw, err := h.cache.Get(ctx, statusCacheKey(token))
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			h.logger.Warn("Order status cache unavailable", zap.Error(err))
		}
		return dto, false
	}
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return dto, false
	}
	return dto, true
}

func (h *OrderStatusHandler) remember(ctx context.Context, token string, dto orderStatusDTO) {
	if h.cache == nil {
		return
	}
	b, err := json.Marshal(dto)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, statusCacheKey(token), string(b), terminalStatusTTL); err != nil {
		h.logger.Warn("Failed to cache order status", zap.Error(err))
	}
}
