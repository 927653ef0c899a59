package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"studio-billing/internal/domain"

	"github.com/shopspring/decimal"
)

// Shopier callback: res = base64(JSON), hash = hex(HMAC-SHA256(api_secret, res + api_key)).
type Shopier struct{}

var _ Provider = Shopier{}

func (Shopier) Name() domain.Provider { return domain.ProviderShopier }
func (Shopier) Ack() string           { return "success" }

// Shopier 付款即完成买家身份确认，账号直接激活
func (Shopier) TrustsIdentity() bool { return true }

// shopierResult res 解码后的字段
type shopierResult struct {
	OrderID      string          `json:"orderid"`
	IsTest       json.RawMessage `json:"istest"`
	Email        string          `json:"email"`
	BuyerName    string          `json:"buyername"`
	BuyerSurname string          `json:"buyersurname"`
	Price        json.RawMessage `json:"price"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
	PaymentID    json.RawMessage `json:"paymentid"`
}

func (Shopier) Verify(payload map[string]string, creds domain.ProviderCredentials) (*VerifiedCallback, error) {
	if creds.ID == "" || creds.Key == "" {
		return nil, ErrCredentialsMissing
	}

	res := payload["res"]
	supplied := strings.ToLower(payload["hash"])
	if res == "" || supplied == "" {
		return nil, ErrSignatureMismatch
	}

	expected := ShopierHash(creds, res)
	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return nil, ErrSignatureMismatch
	}

	raw, err := base64.StdEncoding.DecodeString(res)
	if err != nil {
		return nil, fmt.Errorf("%w: res is not base64: %v", ErrMalformedPayload, err)
	}
	var r shopierResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: res is not json: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(r.OrderID) == "" {
		return nil, fmt.Errorf("%w: empty orderid", ErrMalformedPayload)
	}

	cb := &VerifiedCallback{
		Provider:    domain.ProviderShopier,
		OrderNo:     strings.TrimSpace(r.OrderID),
		Status:      strings.ToLower(strings.TrimSpace(r.Status)),
		ProviderRef: scalarString(r.PaymentID),
		Currency:    r.Currency,
		Test:        truthy(scalarString(r.IsTest)),
		BuyerEmail:  r.Email,
		BuyerName:   strings.TrimSpace(r.BuyerName + " " + r.BuyerSurname),
		Fields: map[string]string{
			"res":          res,
			"orderid":      r.OrderID,
			"istest":       scalarString(r.IsTest),
			"email":        r.Email,
			"buyername":    r.BuyerName,
			"buyersurname": r.BuyerSurname,
			"price":        scalarString(r.Price),
			"currency":     r.Currency,
			"status":       r.Status,
		},
	}
	if p := scalarString(r.Price); p != "" {
		if cb.Amount, err = decimal.NewFromString(p); err != nil {
			return nil, fmt.Errorf("%w: price %q", ErrMalformedPayload, p)
		}
	}
	if cb.Status != "" && cb.Status != "success" {
		cb.FailureReason = "shopier status " + cb.Status
	}
	return cb, nil
}

func (Shopier) Outcome(cb *VerifiedCallback) Outcome {
	return Outcome{
		OrderNo:     cb.OrderNo,
		Succeeded:   cb.Status == "" || cb.Status == "success",
		Reason:      cb.FailureReason,
		ProviderRef: cb.ProviderRef,
		Amount:      decimal.NullDecimal{Decimal: cb.Amount, Valid: cb.Fields["price"] != ""},
		RawFields:   cb.Fields,
		Test:        cb.Test,
	}
}

// ShopierHash computes the hex signature Shopier sends for res.
func ShopierHash(creds domain.ProviderCredentials, res string) string {
	mac := hmac.New(sha256.New, []byte(creds.Key))
	mac.Write([]byte(res + creds.ID))
	return hex.EncodeToString(mac.Sum(nil))
}

// scalarString 接受 JSON 字符串、数字或布尔值
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	}
	return false
}
