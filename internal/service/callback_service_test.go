package service

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"studio-billing/internal/domain"
	"studio-billing/internal/payment"
	"studio-billing/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCallback_DoubleDelivery(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "ORD-1", testDraft("a@example.com"), "standart")
	ctx := context.Background()

	first := h.callbacks.Handle(ctx, testTenant, payment.PayTR{}, paytrPayload("ORD-1", "success"))
	second := h.callbacks.Handle(ctx, testTenant, payment.PayTR{}, paytrPayload("ORD-1", "success"))
	h.fulfillment.Wait()

	assert.Equal(t, OutcomeFulfilled, first.Outcome)
	assert.NotEmpty(t, first.AccountID)
	assert.Equal(t, OutcomeAlreadyTerminal, second.Outcome)

	assert.Equal(t, 1, h.accounts.CountBySourceOrder("ORD-1"))
	o := h.order(t, "ORD-1")
	assert.Equal(t, domain.OrderStatusCompleted, o.Status)
	assert.Equal(t, first.AccountID, o.UserID.String)
	assert.Equal(t, 1, h.logs.FilterMessage("Order already terminal, duplicate callback ignored").Len())
	assert.Len(t, h.notifier.Sent(), 2)
	assert.Empty(t, h.alerter.Kinds())

	events := h.events.Events()
	require.Len(t, events, 2)
	assert.True(t, events[0].SignatureValid)
	assert.Equal(t, OutcomeFulfilled, events[0].Outcome)
	assert.Equal(t, OutcomeAlreadyTerminal, events[1].Outcome)
}

func TestCallback_ConcurrentDeliveryCreatesOneAccount(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "ORD-1", testDraft("a@example.com"), "standart")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.callbacks.Handle(context.Background(), testTenant, payment.PayTR{}, paytrPayload("ORD-1", "success"))
		}()
	}
	wg.Wait()
	h.fulfillment.Wait()

	assert.Equal(t, 1, h.accounts.CountBySourceOrder("ORD-1"))
	assert.Equal(t, 15, h.logs.FilterMessage("Order already terminal, duplicate callback ignored").Len())
}

func TestCallback_FailureThenLateSuccess(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "ORD-2", testDraft("a@example.com"), "standart")
	ctx := context.Background()

	failed := paytrPayload("ORD-2", "failed")
	failed["failed_reason_msg"] = "Kart limiti yetersiz"
	res := h.callbacks.Handle(ctx, testTenant, payment.PayTR{}, failed)
	assert.Equal(t, OutcomeMarkedFailed, res.Outcome)

	res = h.callbacks.Handle(ctx, testTenant, payment.PayTR{}, paytrPayload("ORD-2", "success"))
	h.fulfillment.Wait()
	assert.Equal(t, OutcomeAlreadyTerminal, res.Outcome)

	o := h.order(t, "ORD-2")
	assert.Equal(t, domain.OrderStatusFailed, o.Status)
	assert.Equal(t, "Kart limiti yetersiz", o.FailureReason.String)
	assert.False(t, o.CompletedAt.Valid)
	assert.False(t, o.UserID.Valid)
	assert.Empty(t, h.accounts.Accounts())

	assert.Equal(t, []string{AlertReconciliationGap}, h.alerter.Kinds())
	gap := h.logs.FilterField(zap.String("alert", AlertReconciliationGap))
	require.Equal(t, 1, gap.Len())
	assert.Equal(t, "warn", gap.All()[0].Level.String())
}

func TestCallback_UnknownOrder(t *testing.T) {
	h := newHarness(t)
	res := h.callbacks.Handle(context.Background(), testTenant, payment.PayTR{}, paytrPayload("ORD-404", "success"))

	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Empty(t, h.accounts.Accounts())
	assert.Equal(t, 0, h.subscribers.Len())
	assert.Equal(t, []string{AlertUnknownOrder}, h.alerter.Kinds())

	_, err := h.orders.GetOrder(context.Background(), "ORD-404")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestCallback_UnknownTestOrderOnlyLogged(t *testing.T) {
	h := newHarness(t)
	payload := paytrPayload("ORD-TEST", "success")
	payload["test_mode"] = "1"

	res := h.callbacks.Handle(context.Background(), testTenant, payment.PayTR{}, payload)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Empty(t, h.alerter.Kinds())
	assert.Equal(t, 1, h.logs.FilterMessage("Callback for unknown test order ignored").Len())
}

func TestCallback_TamperedPayloadDoesNotMutate(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "ORD-1", testDraft("a@example.com"), "standart")

	payload := paytrPayload("ORD-1", "success")
	payload["total_amount"] = "149800"

	res := h.callbacks.Handle(context.Background(), testTenant, payment.PayTR{}, payload)
	assert.Equal(t, OutcomeAuthFailed, res.Outcome)
	assert.Equal(t, domain.OrderStatusPending, h.order(t, "ORD-1").Status)
	assert.Empty(t, h.accounts.Accounts())

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].SignatureValid)
	assert.Contains(t, string(events[0].RawFields), `"total_amount":"149800"`)
}

func TestCallback_MissingCredentialsLeavesOrderPending(t *testing.T) {
	h := newHarness(t)
	const otherTenant = "00000000-0000-0000-0000-000000000077"
	_, err := h.orders.CreateOrder(context.Background(), &domain.Order{
		TenantID: otherTenant, OrderNo: "ORD-3", PackageID: "standart", DraftUserData: testDraft("b@example.com"),
	})
	require.NoError(t, err)

	res := h.callbacks.Handle(context.Background(), otherTenant, payment.PayTR{}, paytrPayload("ORD-3", "success"))
	assert.Equal(t, OutcomeConfigError, res.Outcome)
	assert.Equal(t, domain.OrderStatusPending, h.order(t, "ORD-3").Status)
	assert.Equal(t, 1, h.logs.FilterMessage("Payment provider credentials not configured, callback acknowledged without processing").Len())

	// 凭据修复后渠道重试可以成功
	h.settings.Put(otherTenant, domain.ProviderPayTR, testPayTRCreds)
	res = h.callbacks.Handle(context.Background(), otherTenant, payment.PayTR{}, paytrPayload("ORD-3", "success"))
	h.fulfillment.Wait()
	assert.Equal(t, OutcomeFulfilled, res.Outcome)
}

func TestCallback_OtherTenantCannotCompleteOrder(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "ORD-X", testDraft("victim@example.com"), "standart")
	ctx := context.Background()

	// 另一个工作室用自己的 PayTR 凭据签名，指向平台租户的订单
	const studioTenant = "00000000-0000-0000-0000-0000000000ff"
	studioCreds := domain.ProviderCredentials{ID: "999", Key: "studio-key", Salt: "studio-salt"}
	h.settings.Put(studioTenant, domain.ProviderPayTR, studioCreds)

	payload := map[string]string{
		"merchant_oid": "ORD-X",
		"status":       "success",
		"total_amount": "1",
		"hash":         payment.PayTRHash(studioCreds, "ORD-X", "success", "1"),
	}
	res := h.callbacks.Handle(ctx, studioTenant, payment.PayTR{}, payload)
	h.fulfillment.Wait()

	assert.Equal(t, OutcomeTenantMismatch, res.Outcome)
	o := h.order(t, "ORD-X")
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	assert.Equal(t, testTenant, o.TenantID)
	assert.Empty(t, h.accounts.Accounts())
	assert.Empty(t, h.notifier.Sent())

	assert.Equal(t, []string{AlertTenantMismatch}, h.alerter.Kinds())
	mismatch := h.logs.FilterField(zap.String("alert", AlertTenantMismatch))
	require.Equal(t, 1, mismatch.Len())
	assert.Equal(t, "error", mismatch.All()[0].Level.String())

	// 真正的租户回调仍然可以完成订单
	res = h.callbacks.Handle(ctx, testTenant, payment.PayTR{}, paytrPayload("ORD-X", "success"))
	h.fulfillment.Wait()
	assert.Equal(t, OutcomeFulfilled, res.Outcome)
}

func TestCallback_AmountMismatchRaisesAlert(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "ORD-A", testDraft("amount@example.com"), "standart")

	payload := map[string]string{
		"merchant_oid": "ORD-A",
		"status":       "success",
		"total_amount": "100",
		"hash":         payment.PayTRHash(testPayTRCreds, "ORD-A", "success", "100"),
	}
	res := h.callbacks.Handle(context.Background(), testTenant, payment.PayTR{}, payload)
	h.fulfillment.Wait()

	assert.Equal(t, OutcomeFulfilled, res.Outcome)
	assert.Equal(t, []string{AlertAmountMismatch}, h.alerter.Kinds())

	logged := h.logs.FilterField(zap.String("alert", AlertAmountMismatch))
	require.Equal(t, 1, logged.Len())
	fields := logged.All()[0].ContextMap()
	assert.Equal(t, "1499.00", fields["order_amount"])
	assert.Equal(t, "1.00", fields["paid_amount"])
}

func TestCallback_ShopierSuccess(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "ORD-9", testDraft("c@example.com"), "standart")

	resBlob := base64.StdEncoding.EncodeToString([]byte(`{"orderid":"ORD-9","istest":0,"email":"c@example.com","buyername":"C","buyersurname":"D","price":"1499.00","currency":"TRY","paymentid":"998877"}`))
	payload := map[string]string{"res": resBlob, "hash": payment.ShopierHash(testShopierCreds, resBlob)}

	res := h.callbacks.Handle(context.Background(), testTenant, payment.Shopier{}, payload)
	h.fulfillment.Wait()

	assert.Equal(t, OutcomeFulfilled, res.Outcome)
	o := h.order(t, "ORD-9")
	assert.Equal(t, "shopier", o.Provider.String)
	assert.Equal(t, "998877", o.ProviderRef.String)

	accounts := h.accounts.Accounts()
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsEmailVerified)
	assert.Empty(t, h.alerter.Kinds())
}

func TestCallback_TerminalMonotonicity(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "ORD-1", testDraft("a@example.com"), "standart")
	ctx := context.Background()

	h.callbacks.Handle(ctx, testTenant, payment.PayTR{}, paytrPayload("ORD-1", "success"))
	h.fulfillment.Wait()
	before := h.order(t, "ORD-1")

	h.callbacks.Handle(ctx, testTenant, payment.PayTR{}, paytrPayload("ORD-1", "failed"))
	h.callbacks.Handle(ctx, testTenant, payment.PayTR{}, map[string]string{"merchant_oid": "ORD-1", "status": "failed"})
	h.callbacks.Handle(ctx, testTenant, payment.PayTR{}, paytrPayload("ORD-1", "success"))
	h.fulfillment.Wait()

	after := h.order(t, "ORD-1")
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.UserID, after.UserID)
	assert.Equal(t, before.CompletedAt, after.CompletedAt)
	assert.Equal(t, 1, h.accounts.CountBySourceOrder("ORD-1"))
}
