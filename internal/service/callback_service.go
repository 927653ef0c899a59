package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"studio-billing/internal/domain"
	"studio-billing/internal/metrics"
	"studio-billing/internal/payment"
	"studio-billing/internal/repository"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 回调处理结果（日志、指标与 payment_callbacks.outcome）
const (
	OutcomeConfigError       = "config_error"
	OutcomeAuthFailed        = "auth_failed"
	OutcomeNotFound          = "not_found"
	OutcomeTenantMismatch    = "tenant_mismatch"
	OutcomeAlreadyTerminal   = "already_terminal"
	OutcomeMarkedFailed      = "marked_failed"
	OutcomeFulfilled         = "fulfilled"
	OutcomeFulfillmentFailed = "fulfillment_failed"
	OutcomeStoreError        = "store_error"
)

// Fulfiller 履约接口（FulfillmentService 实现）
type Fulfiller interface {
	Fulfill(ctx context.Context, order *domain.Order, provider payment.Provider) (string, error)
}

// CredentialsSource 渠道凭据来源（CredentialsResolver 实现）
type CredentialsSource interface {
	Resolve(ctx context.Context, tenantID string, provider domain.Provider) (domain.ProviderCredentials, error)
}

// CallbackDeps 回调服务依赖
type CallbackDeps struct {
	Orders      repository.OrdersRepository
	Events      repository.CallbackEventsRepository // 可为 nil
	Credentials CredentialsSource
	Fulfillment Fulfiller
	Alerter     Alerter
	Metrics     *metrics.CallbackMetrics
}

// CallbackService RECEIVE -> VERIFY -> TRANSITION -> ORCHESTRATE；不向渠道暴露任何内部错误
type CallbackService struct {
	orders      repository.OrdersRepository
	events      repository.CallbackEventsRepository
	credentials CredentialsSource
	fulfillment Fulfiller
	alerter     Alerter
	metrics     *metrics.CallbackMetrics
	logger      *zap.Logger
	now         func() time.Time
}

func NewCallbackService(deps CallbackDeps, logger *zap.Logger) *CallbackService {
	if deps.Alerter == nil {
		deps.Alerter = NopAlerter{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	return &CallbackService{
		orders:      deps.Orders,
		events:      deps.Events,
		credentials: deps.Credentials,
		fulfillment: deps.Fulfillment,
		alerter:     deps.Alerter,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// CallbackResult 处理结果，响应体始终是渠道的 Ack
type CallbackResult struct {
	Outcome   string
	OrderNo   string
	AccountID string
}

// Handle processes one inbound callback. It never returns an error: every
// failure class is logged and the caller acknowledges the provider anyway.
func (s *CallbackService) Handle(ctx context.Context, tenantID string, provider payment.Provider, payload map[string]string) CallbackResult {
	start := s.now()
	providerName := string(provider.Name())
	logger := s.logger.With(
		zap.String("tenant_id", tenantID),
		zap.String("provider", providerName),
	)

	res := s.handle(ctx, logger, tenantID, provider, payload)

	s.metrics.RecordCallback(ctx, providerName, res.Outcome, s.now().Sub(start))
	return res
}

func (s *CallbackService) handle(ctx context.Context, logger *zap.Logger, tenantID string, provider payment.Provider, payload map[string]string) CallbackResult {
	ev := &domain.CallbackEvent{
		TenantID:   tenantID,
		Provider:   provider.Name(),
		RawFields:  rawFields(payload),
		ReceivedAt: s.now().UTC(),
	}
	finish := func(res CallbackResult) CallbackResult {
		ev.Outcome = res.Outcome
		s.recordEvent(ctx, logger, ev)
		return res
	}

	creds, err := s.credentials.Resolve(ctx, tenantID, provider.Name())
	if err == nil {
		var cb *payment.VerifiedCallback
		cb, err = provider.Verify(payload, creds)
		if err == nil {
			ev.SignatureValid = true
			out := provider.Outcome(cb)
			ev.OrderNo = out.OrderNo
			return finish(s.apply(ctx, logger.With(zap.String("order_no", out.OrderNo)), tenantID, provider, out))
		}
	}

	if errors.Is(err, payment.ErrCredentialsMissing) {
		logger.Warn("Payment provider credentials not configured, callback acknowledged without processing", zap.Error(err))
		return finish(CallbackResult{Outcome: OutcomeConfigError})
	}
	if !errors.Is(err, payment.ErrSignatureMismatch) && !errors.Is(err, payment.ErrMalformedPayload) {
		// settings/cache 故障按配置问题处理
		logger.Error("Failed to resolve provider credentials", zap.Error(err))
		return finish(CallbackResult{Outcome: OutcomeConfigError})
	}
	logger.Error("Callback failed verification",
		zap.Error(err),
		zap.Any("raw_fields", payload),
	)
	return finish(CallbackResult{Outcome: OutcomeAuthFailed})
}

func (s *CallbackService) apply(ctx context.Context, logger *zap.Logger, tenantID string, provider payment.Provider, out payment.Outcome) CallbackResult {
	res := CallbackResult{OrderNo: out.OrderNo}
	if out.Test {
		logger.Info("Test-mode callback received", zap.Bool("succeeded", out.Succeeded))
	}

	to := domain.OrderStatusFailed
	fields := repository.TransitionFields{
		Provider:    provider.Name(),
		ProviderRef: out.ProviderRef,
	}
	if out.Succeeded {
		to = domain.OrderStatusCompleted
		fields.CompletedAt = s.now().UTC()
	} else {
		fields.FailureReason = out.Reason
	}

	result, order, err := s.orders.TryTransition(ctx, tenantID, out.OrderNo, to, fields)
	if err != nil {
		logger.Error("Order transition failed", zap.String("target_status", string(to)), zap.Error(err))
		res.Outcome = OutcomeStoreError
		return res
	}

	switch result {
	case repository.NotFound:
		res.Outcome = OutcomeNotFound
		if out.Test {
			logger.Info("Callback for unknown test order ignored")
			return res
		}
		raiseAlert(ctx, s.logger, s.alerter, s.metrics, zapcore.WarnLevel, "Callback for unknown order", Alert{
			Kind:     AlertUnknownOrder,
			TenantID: tenantID,
			Provider: string(provider.Name()),
			OrderNo:  out.OrderNo,
		})
		return res

	case repository.TenantMismatch:
		// 签名只证明了 URL 中租户的凭据，订单属于其他租户
		res.Outcome = OutcomeTenantMismatch
		raiseAlert(ctx, s.logger, s.alerter, s.metrics, zapcore.ErrorLevel,
			"Verified callback references an order of another tenant", Alert{
				Kind:     AlertTenantMismatch,
				TenantID: tenantID,
				Provider: string(provider.Name()),
				OrderNo:  out.OrderNo,
				Detail:   map[string]string{"reported_status": string(to)},
			})
		return res

	case repository.AlreadyTerminal:
		res.Outcome = OutcomeAlreadyTerminal
		logger.Info("Order already terminal, duplicate callback ignored",
			zap.String("status", string(order.Status)),
			zap.Bool("reported_success", out.Succeeded),
		)
		if out.Succeeded && order.Status == domain.OrderStatusFailed {
			raiseAlert(ctx, s.logger, s.alerter, s.metrics, zapcore.WarnLevel,
				"Success callback for an order already marked failed", Alert{
					Kind:     AlertReconciliationGap,
					TenantID: tenantID,
					Provider: string(provider.Name()),
					OrderNo:  out.OrderNo,
					Detail: map[string]string{
						"failure_reason": order.FailureReason.String,
						"provider_ref":   out.ProviderRef,
					},
				})
		}
		return res

	case repository.Transitioned:
	default:
		logger.Error("Unexpected transition result", zap.Stringer("result", result))
		res.Outcome = OutcomeStoreError
		return res
	}

	if to == domain.OrderStatusFailed {
		logger.Info("Order marked failed", zap.String("reason", out.Reason))
		res.Outcome = OutcomeMarkedFailed
		return res
	}

	logger.Info("Order completed", zap.String("package_id", order.PackageID))
	if out.Amount.Valid && !out.Amount.Decimal.Equal(order.Amount) {
		raiseAlert(ctx, s.logger, s.alerter, s.metrics, zapcore.WarnLevel,
			"Paid amount differs from order amount", Alert{
				Kind:     AlertAmountMismatch,
				TenantID: tenantID,
				Provider: string(provider.Name()),
				OrderNo:  out.OrderNo,
				Detail: map[string]string{
					"order_amount": order.Amount.StringFixed(2),
					"paid_amount":  out.Amount.Decimal.StringFixed(2),
				},
			})
	}
	accountID, err := s.fulfillment.Fulfill(ctx, order, provider)
	if err != nil {
		// 订单已 completed，不回滚、不重试
		logger.Error("Fulfillment did not complete", zap.Error(err))
		res.Outcome = OutcomeFulfillmentFailed
		return res
	}
	res.Outcome = OutcomeFulfilled
	res.AccountID = accountID
	return res
}

// recordEvent 取证日志，失败只记录
func (s *CallbackService) recordEvent(ctx context.Context, logger *zap.Logger, ev *domain.CallbackEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.RecordCallback(ctx, ev); err != nil {
		logger.Warn("Failed to record callback event", zap.Error(err))
	}
}

func rawFields(payload map[string]string) json.RawMessage {
	b, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
