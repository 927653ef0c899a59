package httpapi

import (
	"context"
	"net/http"
	"time"

	"studio-billing/internal/domain"
	"studio-billing/internal/payment"
	"studio-billing/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallbackProcessor 回调处理（service.CallbackService 实现）
type CallbackProcessor interface {
	Handle(ctx context.Context, tenantID string, provider payment.Provider, payload map[string]string) service.CallbackResult
}

// PaymentCallbackHandler 支付渠道回调入口：任何情况下都返回渠道要求的确认
type PaymentCallbackHandler struct {
	processor        CallbackProcessor
	providers        *payment.Registry
	platformTenantID string
	maxBodyBytes     int64
	timeout          time.Duration
	logger           *zap.Logger
}

func NewPaymentCallbackHandler(processor CallbackProcessor, providers *payment.Registry, platformTenantID string, maxBodyBytes int64, logger *zap.Logger) *PaymentCallbackHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 64 << 10
	}
	return &PaymentCallbackHandler{
		processor:        processor,
		providers:        providers,
		platformTenantID: platformTenantID,
		maxBodyBytes:     maxBodyBytes,
		timeout:          30 * time.Second,
		logger:           logger,
	}
}

// PlatformCallback 平台租户的固定路由
func (h *PaymentCallbackHandler) PlatformCallback(name domain.Provider) http.HandlerFunc {
	provider, ok := h.providers.Lookup(name)
	if !ok {
		panic("unregistered payment provider: " + string(name))
	}
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, h.platformTenantID, provider)
	}
}

// TenantCallback /api/tenants/{tenantID}/payment/{provider}/callback
func (h *PaymentCallbackHandler) TenantCallback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeText(w, http.StatusNotFound, "not found")
		return
	}
	// 规范小写形式，与 orders.tenant_id::text 比较
	tenantID := id.String()
	provider, ok := h.providers.Lookup(domain.Provider(chi.URLParam(r, "provider")))
	if !ok {
		writeText(w, http.StatusNotFound, "unknown payment provider")
		return
	}
	h.serve(w, r, tenantID, provider)
}

func (h *PaymentCallbackHandler) serve(w http.ResponseWriter, r *http.Request, tenantID string, provider payment.Provider) {
	logger := h.logger.With(
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("tenant_id", tenantID),
		zap.String("provider", string(provider.Name())),
	)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Panic while handling payment callback, acknowledging anyway", zap.Any("panic", rec))
			writeAck(w, provider.Ack())
		}
	}()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		logger.Warn("Unreadable callback body", zap.Error(err))
		writeAck(w, provider.Ack())
		return
	}

	// 渠道断开连接不能中断已提交的状态转换之后的履约
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	res := h.processor.Handle(ctx, tenantID, provider, formPayload(r))
	logger.Info("Payment callback handled",
		zap.String("order_no", res.OrderNo),
		zap.String("outcome", res.Outcome),
	)
	writeAck(w, provider.Ack())
}
