package main

import (
	"encoding/base64"
	"encoding/json"

	"github.com/shopspring/decimal"
)

func shopierRes(orderNo, email string, amount decimal.Decimal) string {
	b, _ := json.Marshal(map[string]any{
		"orderid":      orderNo,
		"istest":       1,
		"email":        email,
		"buyername":    "Test",
		"buyersurname": "Alıcı",
		"price":        amount.StringFixed(2),
		"currency":     "TRY",
	})
	return base64.StdEncoding.EncodeToString(b)
}
