package repository

import (
	"context"
	"database/sql"
	"errors"

	"studio-billing/internal/domain"
)

// PostgresPackagesRepository 套餐Repository实现
type PostgresPackagesRepository struct {
	db *sql.DB
}

func NewPostgresPackagesRepository(db *sql.DB) *PostgresPackagesRepository {
	return &PostgresPackagesRepository{db: db}
}

var _ PackagesRepository = (*PostgresPackagesRepository)(nil)

func (r *PostgresPackagesRepository) GetPackage(ctx context.Context, packageID string) (*domain.Package, error) {
	if packageID == "" {
		return nil, ErrPackageNotFound
	}

	query := `
		SELECT
			package_id,
			name,
			price,
			storage_gb,
			max_customers,
			max_photos,
			max_appointments,
			has_watermark,
			has_website,
			support_type
		FROM packages
		WHERE package_id = $1
	`

	var p domain.Package
	err := r.db.QueryRowContext(ctx, query, packageID).Scan(
		&p.PackageID,
		&p.Name,
		&p.Price,
		&p.StorageGB,
		&p.MaxCustomers,
		&p.MaxPhotos,
		&p.MaxAppointments,
		&p.HasWatermark,
		&p.HasWebsite,
		&p.SupportType,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	return &p, nil
}
