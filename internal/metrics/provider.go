package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "studio-billing"

// ExporterConfig OTLP 导出配置；Endpoint 为空时不导出
type ExporterConfig struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Interval    time.Duration
}

// Setup installs a global MeterProvider exporting over OTLP/gRPC and returns
// the meter plus a shutdown func. With no endpoint it returns the global
// (no-op) meter.
func Setup(ctx context.Context, cfg ExporterConfig) (metric.Meter, func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return otel.Meter(meterName), func(context.Context) error { return nil }, nil
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(interval),
		)),
	)
	otel.SetMeterProvider(mp)

	return mp.Meter(meterName), mp.Shutdown, nil
}
