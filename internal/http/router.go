package httpapi

import (
	"net/http"
	"time"

	"studio-billing/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Router chi 路由 + 请求日志
type Router struct {
	mux    chi.Router
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(requestLogger(logger))

	return &Router{
		mux:    mux,
		logger: logger,
	}
}

func (r *Router) Handle(method, pattern string, h http.HandlerFunc) {
	r.mux.Method(method, pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterPaymentRoutes 支付回调与订单状态
func (r *Router) RegisterPaymentRoutes(cb *PaymentCallbackHandler, status *OrderStatusHandler) {
	// 平台租户（默认结账流程）
	r.Handle(http.MethodPost, "/api/payment/paytr/callback", cb.PlatformCallback(domain.ProviderPayTR))
	r.Handle(http.MethodPost, "/api/payment/shopier/callback", cb.PlatformCallback(domain.ProviderShopier))

	// 工作室自有商户账号
	r.Handle(http.MethodPost, "/api/tenants/{tenantID}/payment/{provider}/callback", cb.TenantCallback)

	if status != nil {
		r.Handle(http.MethodGet, "/api/payment/orders/status", status.GetStatus)
	}
}

func (r *Router) RegisterHealthRoutes(h *HealthHandler) {
	r.Handle(http.MethodGet, "/healthz", h.Healthz)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, req)

			logger.Debug("HTTP request",
				zap.String("request_id", middleware.GetReqID(req.Context())),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
