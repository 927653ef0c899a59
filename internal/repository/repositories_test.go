package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"studio-billing/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPackage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresPackagesRepository(db)

	mock.ExpectQuery(`FROM packages`).
		WithArgs("standart").
		WillReturnRows(sqlmock.NewRows([]string{
			"package_id", "name", "price", "storage_gb", "max_customers", "max_photos",
			"max_appointments", "has_watermark", "has_website", "support_type",
		}).AddRow("standart", "Standart", "1499.00", 50, nil, 10000, nil, false, true, nil))
	mock.ExpectQuery(`FROM packages`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	pkg, err := repo.GetPackage(context.Background(), "standart")
	require.NoError(t, err)
	assert.Equal(t, int64(50), pkg.StorageGB.Int64)
	assert.False(t, pkg.MaxCustomers.Valid)
	assert.True(t, pkg.HasWebsite.Bool)
	assert.False(t, pkg.SupportType.Valid)

	_, err = repo.GetPackage(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPackageNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccount_DuplicateDetected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresAccountsRepository(db)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u-1"))
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_source_order_no_key"})

	acc := &domain.TenantAccount{
		AccountID:     "u-1",
		TenantID:      "t-1",
		Email:         "Ayse@Example.com",
		Name:          "Ayşe",
		Role:          "admin",
		SourceOrderNo: "ORD-1",
		CreatedAt:     time.Now(),
	}
	id, err := repo.CreateAccount(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id)

	_, err = repo.CreateAccount(context.Background(), acc)
	assert.ErrorIs(t, err, ErrDuplicateAccount)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAccount_GeneratesIDWhenEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresAccountsRepository(db)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("5b0c6f0e-5d36-4a57-9d3e-0e1f2a3b4c5d"))

	acc := &domain.TenantAccount{TenantID: "t-1", Email: "a@x.com", SourceOrderNo: "ORD-2", CreatedAt: time.Now()}
	_, err = repo.CreateAccount(context.Background(), acc)
	require.NoError(t, err)

	_, err = uuid.Parse(acc.AccountID)
	assert.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSubscriber_OnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresSubscribersRepository(db)

	mock.ExpectExec(`ON CONFLICT \(email\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`ON CONFLICT \(email\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	sub := &domain.Subscriber{Email: "ayse@example.com", IsActive: true, RegisteredAt: time.Now()}
	require.NoError(t, repo.CreateSubscriber(context.Background(), sub))
	assert.ErrorIs(t, repo.CreateSubscriber(context.Background(), sub), ErrDuplicateSubscriber)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProviderCredentials(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresPaymentSettingsRepository(db)

	mock.ExpectQuery(`FROM tenant_payment_settings`).
		WithArgs("t-1", "paytr").
		WillReturnRows(sqlmock.NewRows([]string{"merchant_id", "merchant_key", "merchant_salt"}).
			AddRow("123456", "key", "salt"))
	mock.ExpectQuery(`FROM tenant_payment_settings`).
		WithArgs("t-1", "shopier").
		WillReturnError(sql.ErrNoRows)

	creds, err := repo.GetProviderCredentials(context.Background(), "t-1", domain.ProviderPayTR)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderCredentials{ID: "123456", Key: "key", Salt: "salt"}, *creds)

	_, err = repo.GetProviderCredentials(context.Background(), "t-1", domain.ProviderShopier)
	assert.ErrorIs(t, err, ErrSettingsNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCallback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresCallbackEventsRepository(db)

	raw, _ := json.Marshal(map[string]string{"merchant_oid": "ORD-1", "status": "success"})
	mock.ExpectExec(`INSERT INTO payment_callbacks`).
		WithArgs(sqlmock.AnyArg(), "t-1", "paytr", "ORD-1", string(raw), true, "transitioned", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ev := &domain.CallbackEvent{
		TenantID:       "t-1",
		Provider:       domain.ProviderPayTR,
		OrderNo:        "ORD-1",
		RawFields:      raw,
		SignatureValid: true,
		Outcome:        "transitioned",
		ReceivedAt:     time.Now(),
	}
	require.NoError(t, repo.RecordCallback(context.Background(), ev))
	assert.NotEmpty(t, ev.EventID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryAccounts_UniqueKeys(t *testing.T) {
	repo := NewMemoryAccountsRepo()
	ctx := context.Background()

	_, err := repo.CreateAccount(ctx, &domain.TenantAccount{Email: "A@x.com", Slug: "a", SourceOrderNo: "ORD-1"})
	require.NoError(t, err)

	_, err = repo.CreateAccount(ctx, &domain.TenantAccount{Email: "a@x.com", Slug: "b", SourceOrderNo: "ORD-2"})
	assert.ErrorIs(t, err, ErrDuplicateAccount)

	_, err = repo.CreateAccount(ctx, &domain.TenantAccount{Email: "b@x.com", Slug: "b", SourceOrderNo: "ORD-1"})
	assert.ErrorIs(t, err, ErrDuplicateAccount)

	assert.Equal(t, 1, repo.CountBySourceOrder("ORD-1"))
}
