// create-test-order seeds a pending order so a provider's test callback
// (or a hand-signed one) has something to transition.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"studio-billing/common/database"
	"studio-billing/common/logger"
	"studio-billing/internal/config"
	"studio-billing/internal/domain"
	"studio-billing/internal/payment"
	"studio-billing/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	var (
		orderNo   = flag.String("order", "", "order number (default: TEST-<random>)")
		tenantID  = flag.String("tenant", cfg.Billing.PlatformTenantID, "tenant id")
		packageID = flag.String("package", "standart", "package id")
		amount    = flag.String("amount", "1499.00", "order amount")
		email     = flag.String("email", "", "draft user email (default: <order>@test.local)")
		name      = flag.String("name", "Test Fotoğrafçı", "draft user name")
		studio    = flag.String("studio", "Test Stüdyo", "draft studio name")
		pwHash    = flag.String("password-hash", "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z8Q3E9sBZ5yE4lHnVbYcR7lW", "pre-hashed password")
		sign      = flag.String("sign", "", "print a signed sample callback for provider: paytr|shopier")
	)
	flag.Parse()

	log, _ := logger.NewLogger("info", "console", "create-test-order")
	defer log.Sync()

	if *orderNo == "" {
		*orderNo = "TEST-" + uuid.NewString()[:8]
	}
	if *email == "" {
		*email = *orderNo + "@test.local"
	}
	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		log.Fatal("Invalid amount", zap.String("amount", *amount), zap.Error(err))
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Cannot connect to database", zap.Error(err))
	}
	defer db.Close()

	orders := repository.NewPostgresOrdersRepository(db)
	order := &domain.Order{
		TenantID:  *tenantID,
		OrderNo:   *orderNo,
		PackageID: *packageID,
		Amount:    amt,
		Currency:  "TRY",
		DraftUserData: &domain.DraftUserData{
			Name:           *name,
			StudioName:     *studio,
			Slug:           *orderNo,
			Email:          *email,
			HashedPassword: *pwHash,
			IntendedAction: "purchase",
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := orders.CreateOrder(ctx, order)
	if err != nil {
		log.Fatal("Failed to create test order", zap.String("order_no", *orderNo), zap.Error(err))
	}
	log.Info("Test order created",
		zap.String("order_id", id),
		zap.String("order_no", *orderNo),
		zap.String("tenant_id", *tenantID),
		zap.String("package_id", *packageID),
		zap.String("status_url", "/api/payment/orders/status?token="+order.StatusToken),
	)

	switch domain.Provider(*sign) {
	case "":
	case domain.ProviderPayTR:
		creds := domain.ProviderCredentials{ID: cfg.PayTR.MerchantID, Key: cfg.PayTR.MerchantKey, Salt: cfg.PayTR.MerchantSalt}
		total := amt.Shift(2).StringFixed(0)
		form := url.Values{
			"merchant_oid": {*orderNo},
			"status":       {"success"},
			"total_amount": {total},
			"test_mode":    {"1"},
			"hash":         {payment.PayTRHash(creds, *orderNo, "success", total)},
		}
		fmt.Fprintln(os.Stdout, form.Encode())
	case domain.ProviderShopier:
		creds := domain.ProviderCredentials{ID: cfg.Shopier.APIKey, Key: cfg.Shopier.APISecret}
		res := shopierRes(*orderNo, *email, amt)
		form := url.Values{"res": {res}, "hash": {payment.ShopierHash(creds, res)}}
		fmt.Fprintln(os.Stdout, form.Encode())
	default:
		log.Warn("Unknown provider for -sign", zap.String("provider", *sign))
	}
}
