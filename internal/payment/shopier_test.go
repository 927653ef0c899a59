package payment

import (
	"encoding/base64"
	"strings"
	"testing"

	"studio-billing/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shopierCreds = domain.ProviderCredentials{ID: "api-key", Key: "api-secret"}

func signedShopier(jsonBody string) map[string]string {
	res := base64.StdEncoding.EncodeToString([]byte(jsonBody))
	return map[string]string{"res": res, "hash": ShopierHash(shopierCreds, res)}
}

func TestShopierVerify_Success(t *testing.T) {
	payload := signedShopier(`{"orderid":"ORD-1","istest":1,"email":"ayse@example.com","buyername":"Ayşe","buyersurname":"Yılmaz","price":"1499.00","currency":"TRY"}`)

	cb, err := Shopier{}.Verify(payload, shopierCreds)
	require.NoError(t, err)

	assert.Equal(t, "ORD-1", cb.OrderNo)
	assert.True(t, cb.Test)
	assert.Equal(t, "Ayşe Yılmaz", cb.BuyerName)
	assert.Equal(t, "1499", cb.Amount.String())

	out := Shopier{}.Outcome(cb)
	assert.True(t, out.Succeeded)
	assert.Equal(t, "1", out.RawFields["istest"])
	assert.True(t, out.Amount.Valid)
}

func TestShopierVerify_ExplicitFailureStatus(t *testing.T) {
	payload := signedShopier(`{"orderid":"ORD-2","istest":false,"status":"failed"}`)

	cb, err := Shopier{}.Verify(payload, shopierCreds)
	require.NoError(t, err)

	out := Shopier{}.Outcome(cb)
	assert.False(t, out.Succeeded)
	assert.False(t, out.Test)
	assert.False(t, out.Amount.Valid)
	assert.NotEmpty(t, out.Reason)
}

func TestShopierVerify_UppercaseHashAccepted(t *testing.T) {
	payload := signedShopier(`{"orderid":"ORD-1"}`)
	payload["hash"] = strings.ToUpper(payload["hash"])

	_, err := Shopier{}.Verify(payload, shopierCreds)
	assert.NoError(t, err)
}

func TestShopierVerify_TamperedRes(t *testing.T) {
	payload := signedShopier(`{"orderid":"ORD-1","price":"1499.00"}`)
	res := []byte(payload["res"])
	if res[5] == 'A' {
		res[5] = 'B'
	} else {
		res[5] = 'A'
	}
	payload["res"] = string(res)

	cb, err := Shopier{}.Verify(payload, shopierCreds)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
	assert.Nil(t, cb)
}

func TestShopierVerify_MalformedAfterValidHash(t *testing.T) {
	cases := map[string]map[string]string{
		"not json":      signedShopier(`orderid=ORD-1`),
		"empty orderid": signedShopier(`{"orderid":"  "}`),
		"bad price":     signedShopier(`{"orderid":"ORD-1","price":"abc"}`),
	}
	notBase64 := "%%%not-base64%%%"
	cases["not base64"] = map[string]string{"res": notBase64, "hash": ShopierHash(shopierCreds, notBase64)}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Shopier{}.Verify(payload, shopierCreds)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestShopierVerify_MissingHashOrCreds(t *testing.T) {
	payload := signedShopier(`{"orderid":"ORD-1"}`)

	_, err := Shopier{}.Verify(map[string]string{"res": payload["res"]}, shopierCreds)
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	_, err = Shopier{}.Verify(payload, domain.ProviderCredentials{Key: "api-secret"})
	assert.ErrorIs(t, err, ErrCredentialsMissing)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	p, ok := r.Lookup(domain.ProviderShopier)
	require.True(t, ok)
	assert.Equal(t, "success", p.Ack())
	assert.True(t, p.TrustsIdentity())

	p, ok = r.Lookup(domain.ProviderPayTR)
	require.True(t, ok)
	assert.Equal(t, "OK", p.Ack())
	assert.False(t, p.TrustsIdentity())

	_, ok = r.Lookup("iyzico")
	assert.False(t, ok)
	assert.Equal(t, []domain.Provider{domain.ProviderPayTR, domain.ProviderShopier}, r.Names())
}
