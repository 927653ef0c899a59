// export-orders writes an xlsx reconciliation report of orders.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"studio-billing/common/database"
	"studio-billing/common/logger"
	"studio-billing/internal/config"
	"studio-billing/internal/domain"
	"studio-billing/internal/report"
	"studio-billing/internal/repository"

	"go.uber.org/zap"
)

func main() {
	var (
		out      = flag.String("out", "orders.xlsx", "output file")
		tenantID = flag.String("tenant", "", "only this tenant")
		status   = flag.String("status", "", "pending|completed|failed")
		days     = flag.Int("days", 30, "orders created in the last N days (0 = all)")
		limit    = flag.Int("limit", 5000, "max rows")
	)
	flag.Parse()

	log, _ := logger.NewLogger("info", "console", "export-orders")
	defer log.Sync()

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Cannot connect to database", zap.Error(err))
	}
	defer db.Close()

	filters := repository.OrderFilters{
		TenantID: *tenantID,
		Status:   domain.OrderStatus(*status),
	}
	if *days > 0 {
		filters.Since = time.Now().AddDate(0, 0, -*days)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	orders, err := repository.NewPostgresOrdersRepository(db).ListOrders(ctx, filters, *limit)
	if err != nil {
		log.Fatal("Failed to list orders", zap.Error(err))
	}

	data, err := report.GenerateOrdersExcel(orders)
	if err != nil {
		log.Fatal("Failed to generate report", zap.Error(err))
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatal("Failed to write report", zap.String("file", *out), zap.Error(err))
	}

	attention := 0
	for _, o := range orders {
		if report.NeedsAttention(o) {
			attention++
		}
	}
	log.Info("Order report written",
		zap.String("file", *out),
		zap.Int("orders", len(orders)),
		zap.Int("needs_attention", attention),
	)
}
