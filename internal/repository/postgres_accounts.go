package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"studio-billing/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresAccountsRepository 账号Repository实现（users 表）
type PostgresAccountsRepository struct {
	db *sql.DB
}

func NewPostgresAccountsRepository(db *sql.DB) *PostgresAccountsRepository {
	return &PostgresAccountsRepository{db: db}
}

var _ AccountsRepository = (*PostgresAccountsRepository)(nil)

// CreateAccount AccountID 为空时生成 UUID 并回填
func (r *PostgresAccountsRepository) CreateAccount(ctx context.Context, a *domain.TenantAccount) (string, error) {
	if a.AccountID == "" {
		a.AccountID = uuid.NewString()
	}
	billing, err := json.Marshal(a.BillingInfo)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO users (
			user_id, tenant_id, name, studio_name, slug, email, password, phone, address, role,
			package_type, intended_action, hero_title, hero_subtitle,
			storage_limit, max_customers, max_photos, max_appointments,
			has_watermark, has_website, support_type,
			subscription_expiry, billing_info, is_active, is_email_verified,
			verification_token, verification_token_expiry, source_order_no, created_at
		) VALUES (
			$1, $2, $3, $4, NULLIF($5, ''), lower($6), $7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18,
			$19, $20, $21,
			$22, $23::jsonb, $24, $25,
			$26, $27, $28, $29
		)
		RETURNING user_id::text
	`

	e := a.Entitlement
	var id string
	err = r.db.QueryRowContext(ctx, query,
		a.AccountID, a.TenantID, a.Name, a.StudioName, a.Slug, a.Email, a.PasswordHash, a.Phone, a.Address, a.Role,
		a.PackageType, a.IntendedAction, a.HeroTitle, a.HeroSubtitle,
		e.StorageLimitBytes, e.MaxCustomers, e.MaxPhotos, e.MaxAppointments,
		e.HasWatermark, e.HasWebsite, e.SupportType,
		a.SubscriptionExpiry, string(billing), a.IsActive, a.IsEmailVerified,
		a.VerificationToken, a.VerificationTokenExpiry, a.SourceOrderNo, a.CreatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateAccount
		}
		return "", fmt.Errorf("create account for order %s: %w", a.SourceOrderNo, err)
	}
	return id, nil
}

// PostgresSubscribersRepository subscribers 表
type PostgresSubscribersRepository struct {
	db *sql.DB
}

func NewPostgresSubscribersRepository(db *sql.DB) *PostgresSubscribersRepository {
	return &PostgresSubscribersRepository{db: db}
}

var _ SubscribersRepository = (*PostgresSubscribersRepository)(nil)

func (r *PostgresSubscribersRepository) CreateSubscriber(ctx context.Context, s *domain.Subscriber) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (email, name, studio_name, package_type, is_active, registered_at)
		VALUES (lower($1), $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING`,
		s.Email, s.Name, s.StudioName, s.PackageType, s.IsActive, s.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateSubscriber
	}
	return nil
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
