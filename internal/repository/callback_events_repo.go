package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"studio-billing/internal/domain"

	"github.com/google/uuid"
)

// CallbackEventsRepository 回调取证日志（payment_callbacks），只追加
type CallbackEventsRepository interface {
	RecordCallback(ctx context.Context, ev *domain.CallbackEvent) error
}

type PostgresCallbackEventsRepository struct {
	db *sql.DB
}

func NewPostgresCallbackEventsRepository(db *sql.DB) *PostgresCallbackEventsRepository {
	return &PostgresCallbackEventsRepository{db: db}
}

var _ CallbackEventsRepository = (*PostgresCallbackEventsRepository)(nil)

func (r *PostgresCallbackEventsRepository) RecordCallback(ctx context.Context, ev *domain.CallbackEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	raw := string(ev.RawFields)
	if raw == "" {
		raw = "{}"
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_callbacks (
			event_id, tenant_id, provider, order_no, raw_fields, signature_valid, outcome, received_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5::jsonb, $6, $7, $8)`,
		ev.EventID, ev.TenantID, string(ev.Provider), ev.OrderNo, raw, ev.SignatureValid, ev.Outcome, ev.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("record %s callback: %w", ev.Provider, err)
	}
	return nil
}

// MemoryCallbackEventsRepo keeps events in arrival order.
type MemoryCallbackEventsRepo struct {
	mu     sync.Mutex
	events []domain.CallbackEvent
}

func NewMemoryCallbackEventsRepo() *MemoryCallbackEventsRepo {
	return &MemoryCallbackEventsRepo{}
}

var _ CallbackEventsRepository = (*MemoryCallbackEventsRepo)(nil)

func (r *MemoryCallbackEventsRepo) RecordCallback(_ context.Context, ev *domain.CallbackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	r.events = append(r.events, *ev)
	return nil
}

func (r *MemoryCallbackEventsRepo) Events() []domain.CallbackEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CallbackEvent(nil), r.events...)
}
