package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "studio-billing/common/config"
)

// Config studio-billing（支付回调服务）配置
type Config struct {
	HTTP struct {
		Addr string
		// BaseURL 对外访问地址，用于邮件中的登录/验证链接
		BaseURL string
	}
	DBEnabled bool
	Database  commoncfg.DatabaseConfig
	Redis     commoncfg.RedisConfig
	Log       struct {
		Level  string
		Format string
	}
	PayTR   PayTRConfig
	Shopier ShopierConfig
	Mail    MailConfig
	Billing BillingConfig
	OTLP    struct {
		Endpoint string
		Insecure bool
	}
}

// PayTRConfig environment-level fallback credentials for PayTR.
type PayTRConfig struct {
	MerchantID   string
	MerchantKey  string
	MerchantSalt string
}

// ShopierConfig environment-level fallback credentials for Shopier.
type ShopierConfig struct {
	APIKey    string
	APISecret string
}

// MailConfig 邮件服务（模板渲染与发送由外部服务完成）
type MailConfig struct {
	APIURL  string
	APIKey  string
	From    string
	Timeout time.Duration
}

// BillingConfig 回调处理相关参数
type BillingConfig struct {
	PlatformTenantID    string
	CredentialsCacheTTL time.Duration
	AlertStream         string
	MaxBodyBytes        int64
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.BaseURL = getEnv("PUBLIC_BASE_URL", "http://localhost:3001")

	// Default to true: if DB is unavailable the service falls back to in-memory repositories.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "studio"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 20
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.DialTimeout = 2 * time.Second
	cfg.Redis.ReadTimeout = 500 * time.Millisecond
	cfg.Redis.WriteTimeout = 500 * time.Millisecond
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.PayTR.MerchantID = getEnv("PAYTR_MERCHANT_ID", "")
	cfg.PayTR.MerchantKey = getEnv("PAYTR_MERCHANT_KEY", "")
	cfg.PayTR.MerchantSalt = getEnv("PAYTR_MERCHANT_SALT", "")

	cfg.Shopier.APIKey = getEnv("SHOPIER_API_KEY", "")
	cfg.Shopier.APISecret = getEnv("SHOPIER_API_SECRET", "")

	cfg.Mail.APIURL = getEnv("MAIL_API_URL", "")
	cfg.Mail.APIKey = getEnv("MAIL_API_KEY", "")
	cfg.Mail.From = getEnv("MAIL_FROM", "Studio Panel <onboarding@studio.local>")
	cfg.Mail.Timeout = parseDuration(getEnv("MAIL_TIMEOUT", "10s"), 10*time.Second)

	cfg.Billing.PlatformTenantID = getEnv("PLATFORM_TENANT_ID", "00000000-0000-0000-0000-000000000001")
	cfg.Billing.CredentialsCacheTTL = parseDuration(getEnv("CREDENTIALS_CACHE_TTL", "5m"), 5*time.Minute)
	cfg.Billing.AlertStream = getEnv("BILLING_ALERT_STREAM", "billing:alerts")
	cfg.Billing.MaxBodyBytes = int64(parseInt(getEnv("CALLBACK_MAX_BODY_BYTES", "65536"), 65536))

	cfg.OTLP.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.OTLP.Insecure = getEnv("OTEL_EXPORTER_OTLP_INSECURE", "false") == "true"

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
