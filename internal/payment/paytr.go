package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"studio-billing/internal/domain"

	"github.com/shopspring/decimal"
)

// PayTR iFrame API callback.
// hash = base64(HMAC-SHA256(merchant_key, merchant_oid + merchant_salt + status + total_amount))
type PayTR struct{}

var _ Provider = PayTR{}

func (PayTR) Name() domain.Provider { return domain.ProviderPayTR }
func (PayTR) Ack() string           { return "OK" }

// PayTR 不做邮箱归属验证，账号需走邮件验证
func (PayTR) TrustsIdentity() bool { return false }

func (PayTR) Verify(payload map[string]string, creds domain.ProviderCredentials) (*VerifiedCallback, error) {
	if creds.ID == "" || creds.Key == "" || creds.Salt == "" {
		return nil, ErrCredentialsMissing
	}

	orderNo := payload["merchant_oid"]
	status := payload["status"]
	total := payload["total_amount"]
	supplied := payload["hash"]
	if orderNo == "" || status == "" || total == "" || supplied == "" {
		return nil, ErrSignatureMismatch
	}

	expected := PayTRHash(creds, orderNo, status, total)
	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return nil, ErrSignatureMismatch
	}

	// total_amount 以最小货币单位（kuruş）发送
	minor, err := decimal.NewFromString(total)
	if err != nil || !minor.IsInteger() {
		return nil, fmt.Errorf("%w: total_amount %q", ErrMalformedPayload, total)
	}

	cb := &VerifiedCallback{
		Provider:    domain.ProviderPayTR,
		OrderNo:     orderNo,
		Status:      status,
		ProviderRef: payload["payment_id"],
		Amount:      minor.Shift(-2),
		Currency:    payload["currency"],
		Test:        payload["test_mode"] == "1",
		Fields:      copyFields(payload, "hash"),
	}
	if status != "success" {
		cb.FailureReason = failureReason(payload["failed_reason_code"], payload["failed_reason_msg"])
	}
	return cb, nil
}

func (PayTR) Outcome(cb *VerifiedCallback) Outcome {
	return Outcome{
		OrderNo:     cb.OrderNo,
		Succeeded:   cb.Status == "success",
		Reason:      cb.FailureReason,
		ProviderRef: cb.ProviderRef,
		Amount:      decimal.NullDecimal{Decimal: cb.Amount, Valid: true},
		RawFields:   cb.Fields,
		Test:        cb.Test,
	}
}

// PayTRHash computes the callback hash PayTR sends for the given fields.
func PayTRHash(creds domain.ProviderCredentials, orderNo, status, totalAmount string) string {
	mac := hmac.New(sha256.New, []byte(creds.Key))
	mac.Write([]byte(orderNo + creds.Salt + status + totalAmount))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func failureReason(code, msg string) string {
	code, msg = strings.TrimSpace(code), strings.TrimSpace(msg)
	switch {
	case code != "" && msg != "":
		return msg + " (" + code + ")"
	case msg != "":
		return msg
	default:
		return code
	}
}
