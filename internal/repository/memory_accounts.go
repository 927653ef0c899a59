package repository

import (
	"context"
	"strings"
	"sync"

	"studio-billing/internal/domain"

	"github.com/google/uuid"
)

// MemoryAccountsRepo enforces the same unique keys as the users table:
// email, slug and source_order_no.
type MemoryAccountsRepo struct {
	mu       sync.Mutex
	accounts map[string]domain.TenantAccount // accountID -> account
}

func NewMemoryAccountsRepo() *MemoryAccountsRepo {
	return &MemoryAccountsRepo{accounts: map[string]domain.TenantAccount{}}
}

var _ AccountsRepository = (*MemoryAccountsRepo)(nil)

func (r *MemoryAccountsRepo) CreateAccount(_ context.Context, a *domain.TenantAccount) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(a.Email)
	for _, existing := range r.accounts {
		if existing.Email == email ||
			(a.Slug != "" && existing.Slug == a.Slug) ||
			(a.SourceOrderNo != "" && existing.SourceOrderNo == a.SourceOrderNo) {
			return "", ErrDuplicateAccount
		}
	}

	c := *a
	c.Email = email
	if c.AccountID == "" {
		c.AccountID = uuid.NewString()
	}
	r.accounts[c.AccountID] = c
	return c.AccountID, nil
}

// Accounts returns a snapshot of all created accounts.
func (r *MemoryAccountsRepo) Accounts() []domain.TenantAccount {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.TenantAccount, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out
}

// CountBySourceOrder 某订单创建出的账号数
func (r *MemoryAccountsRepo) CountBySourceOrder(orderNo string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, a := range r.accounts {
		if a.SourceOrderNo == orderNo {
			n++
		}
	}
	return n
}

// MemorySubscribersRepo keyed by lower-cased email.
type MemorySubscribersRepo struct {
	mu   sync.Mutex
	subs map[string]domain.Subscriber
}

func NewMemorySubscribersRepo() *MemorySubscribersRepo {
	return &MemorySubscribersRepo{subs: map[string]domain.Subscriber{}}
}

var _ SubscribersRepository = (*MemorySubscribersRepo)(nil)

func (r *MemorySubscribersRepo) CreateSubscriber(_ context.Context, s *domain.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(s.Email)
	if _, ok := r.subs[key]; ok {
		return ErrDuplicateSubscriber
	}
	c := *s
	c.Email = key
	r.subs[key] = c
	return nil
}

func (r *MemorySubscribersRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
