package repository

import (
	"context"
	"errors"
	"sync"

	"studio-billing/internal/domain"
)

var ErrPackageNotFound = errors.New("package not found")

// PackagesRepository 套餐定义（履约时解析 entitlement）
type PackagesRepository interface {
	GetPackage(ctx context.Context, packageID string) (*domain.Package, error)
}

// MemoryPackagesRepo in-memory package catalog.
type MemoryPackagesRepo struct {
	mu       sync.RWMutex
	packages map[string]domain.Package
}

func NewMemoryPackagesRepo(pkgs ...domain.Package) *MemoryPackagesRepo {
	r := &MemoryPackagesRepo{packages: map[string]domain.Package{}}
	for _, p := range pkgs {
		r.packages[p.PackageID] = p
	}
	return r
}

var _ PackagesRepository = (*MemoryPackagesRepo)(nil)

func (r *MemoryPackagesRepo) GetPackage(_ context.Context, packageID string) (*domain.Package, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.packages[packageID]
	if !ok {
		return nil, ErrPackageNotFound
	}
	return &p, nil
}

func (r *MemoryPackagesRepo) PutPackage(p domain.Package) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packages[p.PackageID] = p
}
