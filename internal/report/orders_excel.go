package report

import (
	"bytes"
	"fmt"
	"time"

	"studio-billing/internal/domain"

	"github.com/xuri/excelize/v2"
)

const ordersSheet = "Orders"

var orderHeaders = []string{
	"Order No", "Tenant ID", "Status", "Package", "Amount", "Currency",
	"Provider", "Provider Ref", "Failure Reason", "Account ID",
	"Buyer Email", "Created At", "Completed At", "Needs Attention",
}

var orderColumnWidths = []float64{24, 38, 12, 14, 12, 10, 12, 20, 30, 38, 30, 20, 20, 16}

// NeedsAttention 对账需要人工处理的订单：已完成但未关联账号
func NeedsAttention(o *domain.Order) bool {
	return o.Status == domain.OrderStatusCompleted && !o.UserID.Valid
}

// GenerateOrdersExcel 生成订单对账 Excel
func GenerateOrdersExcel(orders []*domain.Order) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(ordersSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range orderHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(ordersSheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(ordersSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(ordersSheet, name, name, orderColumnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, o := range orders {
		row := []any{
			o.OrderNo,
			o.TenantID,
			string(o.Status),
			o.PackageID,
			o.Amount.StringFixed(2),
			o.Currency,
			o.Provider.String,
			o.ProviderRef.String,
			o.FailureReason.String,
			o.UserID.String,
			buyerEmail(o),
			formatTime(o.CreatedAt),
			"",
			"",
		}
		if o.CompletedAt.Valid {
			row[12] = formatTime(o.CompletedAt.Time)
		}
		if NeedsAttention(o) {
			row[13] = "YES"
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(ordersSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func buyerEmail(o *domain.Order) string {
	if o.DraftUserData == nil {
		return ""
	}
	return o.DraftUserData.Email
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
