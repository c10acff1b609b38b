package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Order status values. An order is recorded as soon as the payment webhook is
// verified, and moves to exactly one terminal status.
const (
	StatusReceived          = "received"
	StatusGranted           = "granted"
	StatusFulfillmentFailed = "fulfillment_failed"
)

var (
	// ErrOrderNotFound is returned when a session id has no order record.
	ErrOrderNotFound = errors.New("order not found")
)

// Order is the durable record of one completed payment. The unique session id
// doubles as the idempotency key for webhook redelivery.
type Order struct {
	ID              uuid.UUID
	StripeSessionID string
	Email           string
	ProductID       string
	PlanID          string
	Language        string
	Country         string
	ShippingFee     decimal.Decimal
	Status          string
	FailureReason   string
}

// Store persists order records. Implementations must make Record safe to call
// concurrently for the same session id, with exactly one caller seeing
// created=true.
type Store interface {
	// Record inserts the order if its session id is new. Returns false when
	// the order was already recorded (duplicate delivery).
	Record(ctx context.Context, order Order) (created bool, err error)

	// MarkGranted moves the order to the granted terminal status.
	MarkGranted(ctx context.Context, sessionID string) error

	// MarkFailed moves the order to fulfillment_failed with a reason, for
	// manual reconciliation.
	MarkFailed(ctx context.Context, sessionID, reason string) error
}

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store over the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Record(ctx context.Context, order Order) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, stripe_session_id, email, product_id, plan_id, language, country, shipping_fee, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stripe_session_id) DO NOTHING`,
		order.ID, order.StripeSessionID, order.Email, order.ProductID, order.PlanID,
		order.Language, order.Country, order.ShippingFee, StatusReceived,
	)
	if err != nil {
		return false, fmt.Errorf("recording order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) MarkGranted(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $1, failure_reason = NULL, updated_at = now()
		WHERE stripe_session_id = $2`,
		StatusGranted, sessionID,
	)
	if err != nil {
		return fmt.Errorf("marking order granted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *PGStore) MarkFailed(ctx context.Context, sessionID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $1, failure_reason = $2, updated_at = now()
		WHERE stripe_session_id = $3`,
		StatusFulfillmentFailed, reason, sessionID,
	)
	if err != nil {
		return fmt.Errorf("marking order failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
