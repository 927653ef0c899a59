package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studio-billing/common/database"
	"studio-billing/common/logger"
	commonredis "studio-billing/common/redis"
	"studio-billing/internal/config"
	"studio-billing/internal/domain"
	httpapi "studio-billing/internal/http"
	"studio-billing/internal/metrics"
	"studio-billing/internal/payment"
	"studio-billing/internal/repository"
	"studio-billing/internal/service"
	"studio-billing/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "studio-billing")
	if err != nil {
		log, _ = zap.NewProduction()
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meter, shutdownMetrics, err := metrics.Setup(ctx, metrics.ExporterConfig{
		Endpoint:    cfg.OTLP.Endpoint,
		Insecure:    cfg.OTLP.Insecure,
		ServiceName: "studio-billing",
	})
	if err != nil {
		log.Warn("OTLP metrics exporter unavailable, metrics disabled", zap.Error(err))
		meter, shutdownMetrics, _ = metrics.Setup(ctx, metrics.ExporterConfig{})
	}
	callbackMetrics, err := metrics.New(meter)
	if err != nil {
		log.Warn("Failed to create metric instruments", zap.Error(err))
		callbackMetrics = metrics.NewNoop()
	}

	health := map[string]httpapi.Pinger{}

	// Redis：订单状态缓存 + 运维告警流；不可用时退化为内存缓存 + 仅日志告警
	var kv store.KV = store.NewMemoryKV()
	var alerter service.Alerter = service.NopAlerter{}
	redisClient := commonredis.NewRedisClient(&cfg.Redis)
	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	if rtt, err := commonredis.PingLatency(pingCtx, redisClient); err == nil {
		kv = store.NewRedisKV(redisClient)
		alerter = service.NewRedisAlerter(redisClient, cfg.Billing.AlertStream)
		health["redis"] = func(ctx context.Context) error { return commonredis.Ping(ctx, redisClient) }
		log.Info("Redis enabled for studio-billing",
			zap.String("addr", cfg.Redis.Addr),
			zap.Duration("ping", rtt),
		)
	} else {
		log.Warn("Redis unavailable, using in-memory status cache and log-only alerts", zap.Error(err))
		_ = commonredis.Close(redisClient)
		redisClient = nil
	}
	pingCancel()

	var (
		db          *sql.DB
		orders      repository.OrdersRepository
		packages    repository.PackagesRepository
		accounts    repository.AccountsRepository
		subscribers repository.SubscribersRepository
		settings    repository.PaymentSettingsRepository
		events      repository.CallbackEventsRepository
	)
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for studio-billing")
		} else {
			log.Warn("DB enabled but connection failed, falling back to in-memory repositories", zap.Error(err))
		}
	}
	if db != nil {
		orders = repository.NewPostgresOrdersRepository(db)
		packages = repository.NewPostgresPackagesRepository(db)
		accounts = repository.NewPostgresAccountsRepository(db)
		subscribers = repository.NewPostgresSubscribersRepository(db)
		settings = repository.NewPostgresPaymentSettingsRepository(db)
		events = repository.NewPostgresCallbackEventsRepository(db)
		health["postgres"] = db.PingContext
	} else {
		// DB 未就绪：内存 repo 支持联调
		orders = repository.NewMemoryOrdersRepo()
		packages = repository.NewMemoryPackagesRepo(devPackages()...)
		accounts = repository.NewMemoryAccountsRepo()
		subscribers = repository.NewMemorySubscribersRepo()
		settings = repository.NewMemoryPaymentSettingsRepo()
		events = repository.NewMemoryCallbackEventsRepo()
	}

	var notifier service.Notifier = service.NewLogNotifier(log)
	if cfg.Mail.APIURL != "" {
		notifier = service.NewMailAPINotifier(cfg.Mail.APIURL, cfg.Mail.APIKey, cfg.Mail.From, cfg.Mail.Timeout, log)
	}

	fulfillment := service.NewFulfillmentService(service.FulfillmentDeps{
		Orders:      orders,
		Packages:    packages,
		Accounts:    accounts,
		Subscribers: subscribers,
		Notifier:    notifier,
		Alerter:     alerter,
		Metrics:     callbackMetrics,
		BaseURL:     cfg.HTTP.BaseURL,
		MailTimeout: cfg.Mail.Timeout,
	}, log)

	resolver := service.NewCredentialsResolver(settings, map[domain.Provider]domain.ProviderCredentials{
		domain.ProviderPayTR: {
			ID:   cfg.PayTR.MerchantID,
			Key:  cfg.PayTR.MerchantKey,
			Salt: cfg.PayTR.MerchantSalt,
		},
		domain.ProviderShopier: {
			ID:  cfg.Shopier.APIKey,
			Key: cfg.Shopier.APISecret,
		},
	}, cfg.Billing.CredentialsCacheTTL, log)

	callbacks := service.NewCallbackService(service.CallbackDeps{
		Orders:      orders,
		Events:      events,
		Credentials: resolver,
		Fulfillment: fulfillment,
		Alerter:     alerter,
		Metrics:     callbackMetrics,
	}, log)

	router := httpapi.NewRouter(log)
	router.RegisterPaymentRoutes(
		httpapi.NewPaymentCallbackHandler(callbacks, payment.DefaultRegistry(), cfg.Billing.PlatformTenantID, cfg.Billing.MaxBodyBytes, log),
		httpapi.NewOrderStatusHandler(orders, kv, log),
	)
	router.RegisterHealthRoutes(httpapi.NewHealthHandler(health, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// 等待进行中的邮件发送
	drained := make(chan struct{})
	go func() {
		fulfillment.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn("Timed out waiting for in-flight emails")
	}

	if err := shutdownMetrics(shutdownCtx); err != nil {
		log.Warn("Metrics shutdown error", zap.Error(err))
	}
	if redisClient != nil {
		_ = commonredis.Close(redisClient)
	}
	_ = database.Close(db)
	log.Info("studio-billing stopped")
}

// devPackages 内存模式下的套餐目录
func devPackages() []domain.Package {
	return []domain.Package{
		{
			PackageID:  "standart",
			Name:       "Standart",
			Price:      decimal.RequireFromString("1499.00"),
			StorageGB:  sql.NullInt64{Int64: 50, Valid: true},
			HasWebsite: sql.NullBool{Bool: true, Valid: true},
		},
		{
			PackageID:    "kurumsal",
			Name:         "Kurumsal",
			Price:        decimal.RequireFromString("3999.00"),
			StorageGB:    sql.NullInt64{Int64: 250, Valid: true},
			HasWatermark: sql.NullBool{Bool: true, Valid: true},
			HasWebsite:   sql.NullBool{Bool: true, Valid: true},
			SupportType:  sql.NullString{String: "priority", Valid: true},
		},
	}
}
