package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"studio-billing/internal/domain"
	"studio-billing/internal/payment"
	"studio-billing/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testTenant = "00000000-0000-0000-0000-000000000001"

var (
	testPayTRCreds   = domain.ProviderCredentials{ID: "123456", Key: "merchant-key", Salt: "merchant-salt"}
	testShopierCreds = domain.ProviderCredentials{ID: "api-key", Key: "api-secret"}
)

// recordingNotifier 记录发送的邮件，可配置失败
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, e Email) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, e)
	return n.err
}

func (n *recordingNotifier) Sent() []Email {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Email(nil), n.sent...)
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
}

func (a *recordingAlerter) Raise(_ context.Context, alert Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

func (a *recordingAlerter) Kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.alerts))
	for _, al := range a.alerts {
		out = append(out, al.Kind)
	}
	return out
}

// failingSubscribers 模拟 subscriber 写入失败
type failingSubscribers struct{}

func (failingSubscribers) CreateSubscriber(context.Context, *domain.Subscriber) error {
	return errors.New("subscribers table locked")
}

type harness struct {
	orders      *repository.MemoryOrdersRepo
	accounts    *repository.MemoryAccountsRepo
	subscribers *repository.MemorySubscribersRepo
	events      *repository.MemoryCallbackEventsRepo
	settings    *repository.MemoryPaymentSettingsRepo
	notifier    *recordingNotifier
	alerter     *recordingAlerter
	fulfillment *FulfillmentService
	callbacks   *CallbackService
	logs        *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	h := &harness{
		orders:      repository.NewMemoryOrdersRepo(),
		accounts:    repository.NewMemoryAccountsRepo(),
		subscribers: repository.NewMemorySubscribersRepo(),
		events:      repository.NewMemoryCallbackEventsRepo(),
		settings:    repository.NewMemoryPaymentSettingsRepo(),
		notifier:    &recordingNotifier{},
		alerter:     &recordingAlerter{},
		logs:        logs,
	}
	h.settings.Put(testTenant, domain.ProviderPayTR, testPayTRCreds)
	h.settings.Put(testTenant, domain.ProviderShopier, testShopierCreds)

	packages := repository.NewMemoryPackagesRepo(domain.Package{
		PackageID:    "standart",
		Name:         "Standart",
		Price:        decimal.RequireFromString("1499"),
		StorageGB:    sql.NullInt64{Int64: 50, Valid: true},
		MaxCustomers: sql.NullInt64{Int64: 200, Valid: true},
		HasWebsite:   sql.NullBool{Bool: true, Valid: true},
	})

	h.fulfillment = NewFulfillmentService(FulfillmentDeps{
		Orders:      h.orders,
		Packages:    packages,
		Accounts:    h.accounts,
		Subscribers: h.subscribers,
		Notifier:    h.notifier,
		Alerter:     h.alerter,
		BaseURL:     "https://app.example.com/",
		MailTimeout: time.Second,
	}, logger)

	resolver := NewCredentialsResolver(h.settings, nil, time.Minute, logger)
	h.callbacks = NewCallbackService(CallbackDeps{
		Orders:      h.orders,
		Events:      h.events,
		Credentials: resolver,
		Fulfillment: h.fulfillment,
		Alerter:     h.alerter,
	}, logger)
	return h
}

func (h *harness) seedOrder(t *testing.T, orderNo string, draft *domain.DraftUserData, packageID string) {
	t.Helper()
	_, err := h.orders.CreateOrder(context.Background(), &domain.Order{
		TenantID:      testTenant,
		OrderNo:       orderNo,
		PackageID:     packageID,
		DraftUserData: draft,
		Amount:        decimal.RequireFromString("1499"),
	})
	require.NoError(t, err)
}

func testDraft(email string) *domain.DraftUserData {
	return &domain.DraftUserData{
		Name:           "Ayşe Yılmaz",
		StudioName:     "Işık Stüdyo",
		Slug:           "isik-" + email,
		Email:          email,
		HashedPassword: "$2a$10$hash",
		Phone:          "+90 555 000 0000",
		IntendedAction: "purchase",
	}
}

func (h *harness) order(t *testing.T, orderNo string) *domain.Order {
	t.Helper()
	o, err := h.orders.GetOrder(context.Background(), orderNo)
	require.NoError(t, err)
	return o
}

func paytrPayload(orderNo, status string) map[string]string {
	total := "149900"
	return map[string]string{
		"merchant_oid": orderNo,
		"status":       status,
		"total_amount": total,
		"hash":         payment.PayTRHash(testPayTRCreds, orderNo, status, total),
	}
}
