package service

import (
	"context"
	"time"

	commonredis "studio-billing/common/redis"
	"studio-billing/internal/metrics"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 告警类型
const (
	AlertReconciliationGap = "reconciliation_gap"
	AlertIntegrity         = "fulfillment_integrity"
	AlertUnknownOrder      = "unknown_order"
	AlertTenantMismatch    = "tenant_mismatch"
	AlertAmountMismatch    = "amount_mismatch"
)

// Alert 需要运维人工介入的事件
type Alert struct {
	Kind     string            `json:"alert"`
	TenantID string            `json:"tenant_id"`
	Provider string            `json:"provider"`
	OrderNo  string            `json:"order_no"`
	Message  string            `json:"message"`
	Detail   map[string]string `json:"detail,omitempty"`
	At       time.Time         `json:"at"`
}

// Alerter 把告警送到运维可见的位置
type Alerter interface {
	Raise(ctx context.Context, alert Alert) error
}

// RedisAlerter 发布到 Redis Stream（默认 billing:alerts）
type RedisAlerter struct {
	client *commonredis.Client
	stream string
}

func NewRedisAlerter(client *commonredis.Client, stream string) *RedisAlerter {
	return &RedisAlerter{client: client, stream: stream}
}

func (a *RedisAlerter) Raise(ctx context.Context, alert Alert) error {
	_, err := commonredis.PublishJSONToStream(ctx, a.client, a.stream, alert)
	return err
}

// NopAlerter Redis 不可用时使用，告警只出现在日志里
type NopAlerter struct{}

func (NopAlerter) Raise(context.Context, Alert) error { return nil }

// raiseAlert logs the alert at the given level and publishes it.
func raiseAlert(ctx context.Context, logger *zap.Logger, alerter Alerter, m *metrics.CallbackMetrics, level zapcore.Level, msg string, alert Alert) {
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}
	alert.Message = msg

	fields := []zap.Field{
		zap.String("alert", alert.Kind),
		zap.String("tenant_id", alert.TenantID),
		zap.String("provider", alert.Provider),
		zap.String("order_no", alert.OrderNo),
	}
	for k, v := range alert.Detail {
		fields = append(fields, zap.String(k, v))
	}
	if ce := logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}

	m.RecordAlert(ctx, alert.Kind)

	if err := alerter.Raise(context.WithoutCancel(ctx), alert); err != nil {
		logger.Warn("Failed to publish operator alert",
			zap.String("alert", alert.Kind),
			zap.String("order_no", alert.OrderNo),
			zap.Error(err),
		)
	}
}
