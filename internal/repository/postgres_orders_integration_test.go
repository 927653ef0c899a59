//go:build integration
// +build integration

package repository

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"studio-billing/common/config"
	"studio-billing/common/database"
	"studio-billing/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 获取测试数据库连接（需已执行 migrations/001_billing.sql）
func getTestDB(t *testing.T) *sql.DB {
	cfg := &config.DatabaseConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		Database: getEnv("TEST_DB_NAME", "studio"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil
	}
	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil
	}
	return db
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func TestPostgresOrdersRepository_ConcurrentTransition(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := NewPostgresOrdersRepository(db)
	ctx := context.Background()

	orderNo := "IT-" + uuid.NewString()[:8]
	tenantID := uuid.NewString()
	_, err := repo.CreateOrder(ctx, &domain.Order{
		TenantID:  tenantID,
		OrderNo:   orderNo,
		PackageID: "standart",
		Amount:    decimal.RequireFromString("1499.00"),
		Currency:  "TRY",
		DraftUserData: &domain.DraftUserData{
			Name:           "Integration",
			Email:          orderNo + "@example.com",
			HashedPassword: "x",
		},
	})
	require.NoError(t, err)
	defer db.Exec(`DELETE FROM orders WHERE order_no = $1`, orderNo)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[TransitionResult]int{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := repo.TryTransition(ctx, tenantID, orderNo, domain.OrderStatusCompleted, TransitionFields{
				CompletedAt: time.Now().UTC(),
				Provider:    domain.ProviderPayTR,
				ProviderRef: "it",
			})
			assert.NoError(t, err)
			mu.Lock()
			results[res]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, results[Transitioned])
	assert.Equal(t, workers-1, results[AlreadyTerminal])

	order, err := repo.GetOrder(ctx, orderNo)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	assert.True(t, order.CompletedAt.Valid)

	res, _, err := repo.TryTransition(ctx, tenantID, orderNo, domain.OrderStatusFailed, TransitionFields{FailureReason: "late"})
	require.NoError(t, err)
	assert.Equal(t, AlreadyTerminal, res)

	res, _, err = repo.TryTransition(ctx, uuid.NewString(), orderNo, domain.OrderStatusFailed, TransitionFields{})
	require.NoError(t, err)
	assert.Equal(t, TenantMismatch, res)
}
