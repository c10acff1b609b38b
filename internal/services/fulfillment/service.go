// Package fulfillment turns verified payment events into membership grants.
// The flow is: record the order durably (this is also the idempotency guard),
// grant the plan with bounded retries, then confirm by email. Terminal
// failures are recorded and logged for manual reconciliation, never dropped.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cooklab/api/internal/retry"
)

var (
	// ErrNotRecorded is returned when the durable order record could not be
	// written. Callers should signal failure so the provider redelivers.
	ErrNotRecorded = errors.New("order could not be recorded")

	// ErrFulfillmentFailed is returned when the retry budget is exhausted.
	// The event is already durably recorded at this point, so callers should
	// still acknowledge it; the failure lives in the order record and logs.
	ErrFulfillmentFailed = errors.New("entitlement grant failed after retries")
)

// PlanGranter grants a membership plan to a customer. Grants must be
// idempotent: granting an already-held plan is a no-op.
type PlanGranter interface {
	GrantPlan(ctx context.Context, email, planID string) error
}

// Mailer sends a templated email.
type Mailer interface {
	Send(ctx context.Context, to, templateName, lang string, vars map[string]string) error
}

// Service consumes payment-completed events.
type Service struct {
	store      Store
	membership PlanGranter
	mailer     Mailer
	policy     retry.Policy
	logger     *slog.Logger
}

// NewService creates a fulfillment service.
func NewService(store Store, membership PlanGranter, mailer Mailer, policy retry.Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy
	}
	return &Service{
		store:      store,
		membership: membership,
		mailer:     mailer,
		policy:     policy,
		logger:     logger,
	}
}

// HandlePaymentCompleted processes one verified payment event.
//
// The order record is written first; a duplicate delivery finds the record
// already present and returns without side effects. Only the caller that
// created the record proceeds to grant, so concurrent redeliveries of the
// same session cannot double-grant.
func (s *Service) HandlePaymentCompleted(ctx context.Context, order Order) error {
	created, err := s.store.Record(ctx, order)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotRecorded, err)
	}
	if !created {
		s.logger.Info("duplicate payment event ignored",
			slog.String("session_id", order.StripeSessionID),
			slog.String("order_id", order.ID.String()),
		)
		return nil
	}

	if order.PlanID != "" {
		grantErr := retry.Do(ctx, func() error {
			return s.membership.GrantPlan(ctx, order.Email, order.PlanID)
		}, s.policy)

		if grantErr != nil {
			s.logger.Error("entitlement grant exhausted retries",
				slog.String("order_id", order.ID.String()),
				slog.String("session_id", order.StripeSessionID),
				slog.String("plan_id", order.PlanID),
				slog.String("email", order.Email),
				slog.String("error", grantErr.Error()),
			)
			if err := s.store.MarkFailed(ctx, order.StripeSessionID, grantErr.Error()); err != nil {
				s.logger.Error("failed to record fulfillment failure",
					slog.String("session_id", order.StripeSessionID),
					slog.String("error", err.Error()),
				)
			}
			s.sendMail(ctx, order, "fulfillment-delayed")
			return fmt.Errorf("order %s, plan %s: %w", order.ID, order.PlanID, ErrFulfillmentFailed)
		}
	}

	if err := s.store.MarkGranted(ctx, order.StripeSessionID); err != nil {
		s.logger.Error("failed to mark order granted",
			slog.String("session_id", order.StripeSessionID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("order fulfilled",
		slog.String("order_id", order.ID.String()),
		slog.String("session_id", order.StripeSessionID),
		slog.String("product_id", order.ProductID),
		slog.String("plan_id", order.PlanID),
	)

	s.sendMail(ctx, order, "order-confirmation")
	return nil
}

// sendMail dispatches a templated email, best effort. The order outcome is
// already durable; a mail failure is logged, not propagated.
func (s *Service) sendMail(ctx context.Context, order Order, template string) {
	vars := map[string]string{
		"Name":        order.Email,
		"OrderID":     order.ID.String(),
		"ProductName": order.ProductID,
		"Country":     order.Country,
	}
	if err := s.mailer.Send(ctx, order.Email, template, order.Language, vars); err != nil {
		s.logger.Error("confirmation mail failed",
			slog.String("order_id", order.ID.String()),
			slog.String("template", template),
			slog.String("error", err.Error()),
		)
	}
}
