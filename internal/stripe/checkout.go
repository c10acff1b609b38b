package stripe

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	// ErrMissingEmail is returned when a checkout session is created without a
	// customer email.
	ErrMissingEmail = errors.New("customer email is required")

	// ErrMissingProduct is returned when the session has no product line.
	ErrMissingProduct = errors.New("checkout product is required")

	// ErrInvalidQuantity is returned for a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrMissingURLs is returned when success or cancel URLs are not provided.
	ErrMissingURLs = errors.New("success and cancel URLs are required")
)

// Metadata keys attached to the Checkout Session and PaymentIntent. The
// fulfillment webhook recovers the whole order context from these, so no
// separate lookup is needed when the payment completes.
const (
	MetaOrderID     = "order_id"
	MetaProductID   = "product_id"
	MetaPlanID      = "plan_id"
	MetaLanguage    = "language"
	MetaCountry     = "shipping_country"
	MetaShippingFee = "shipping_fee"
)

// Service wraps the Stripe Go SDK to create Checkout Sessions and verify
// webhook signatures.
type Service struct {
	logger *slog.Logger
}

// NewService creates a new Stripe service and sets the global API key.
//
// The Stripe Go SDK uses a package-level Key variable for authentication.
// This must be set before any API calls are made.
func NewService(secretKey string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	stripe.Key = secretKey
	return &Service{
		logger: logger,
	}
}

// CheckoutInput contains all data needed to create a Checkout Session for a
// single-product cart.
type CheckoutInput struct {
	// OrderID is our order identifier, stored in session metadata so the
	// webhook handler can reconcile and deduplicate.
	OrderID uuid.UUID

	// Email is the customer's email address, pre-filled on the Checkout page.
	Email string

	// ProductID and ProductName describe the purchased product.
	ProductID   string
	ProductName string

	// PlanID is the membership plan to grant after payment; empty for purely
	// physical products.
	PlanID string

	// Language is the storefront language the price variant was resolved for.
	Language string

	// Quantity is the number of units. Callers pin bundles to one before
	// building the input.
	Quantity int64

	// UnitPrice is the gross price per unit in the store currency.
	UnitPrice decimal.Decimal

	// ShippingFee is the shipping cost for the order; zero for digital carts.
	ShippingFee decimal.Decimal

	// ShippingCountry is the destination country code; empty for digital carts.
	ShippingCountry string

	// Currency is the three-letter ISO currency code (e.g., "eur").
	Currency string

	// SuccessURL and CancelURL are where Stripe redirects the customer.
	SuccessURL string
	CancelURL  string
}

// CheckoutResult contains the output of a successfully created session.
type CheckoutResult struct {
	// SessionID is the Stripe Checkout Session ID (e.g., "cs_test_...").
	SessionID string

	// SessionURL is the hosted payment page the customer is redirected to.
	SessionURL string
}

// CreateCheckoutSession creates a Stripe Checkout Session and returns the
// hosted page URL the customer should be redirected to.
//
// Shipping is added as its own line item when the fee is positive, and the
// full order context (order id, plan id, country, fee) goes into metadata on
// both the session and the PaymentIntent.
func (s *Service) CreateCheckoutSession(input CheckoutInput) (CheckoutResult, error) {
	if err := validateCheckoutInput(input); err != nil {
		return CheckoutResult{}, fmt.Errorf("validating checkout input: %w", err)
	}

	lineItems := []*stripe.CheckoutSessionLineItemParams{
		{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(input.Currency),
				UnitAmount: stripe.Int64(decimalToCents(input.UnitPrice)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(input.ProductName),
					Metadata: map[string]string{
						MetaProductID: input.ProductID,
					},
				},
			},
			Quantity: stripe.Int64(input.Quantity),
		},
	}

	if input.ShippingFee.IsPositive() {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(input.Currency),
				UnitAmount: stripe.Int64(decimalToCents(input.ShippingFee)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Shipping"),
				},
			},
			Quantity: stripe.Int64(1),
		})
	}

	metadata := map[string]string{
		MetaOrderID:     input.OrderID.String(),
		MetaProductID:   input.ProductID,
		MetaPlanID:      input.PlanID,
		MetaLanguage:    input.Language,
		MetaCountry:     input.ShippingCountry,
		MetaShippingFee: input.ShippingFee.StringFixed(2),
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(input.Email),
		SuccessURL:    stripe.String(input.SuccessURL),
		CancelURL:     stripe.String(input.CancelURL),
		LineItems:     lineItems,
		Metadata:      metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}

	s.logger.Info("creating stripe checkout session",
		slog.String("order_id", input.OrderID.String()),
		slog.String("product_id", input.ProductID),
		slog.String("country", input.ShippingCountry),
		slog.String("currency", input.Currency),
	)

	sess, err := session.New(params)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("creating stripe checkout session: %w", err)
	}

	s.logger.Info("stripe checkout session created",
		slog.String("session_id", sess.ID),
		slog.String("order_id", input.OrderID.String()),
	)

	return CheckoutResult{
		SessionID:  sess.ID,
		SessionURL: sess.URL,
	}, nil
}

// VerifyWebhookSignature validates the payload from a Stripe webhook request
// using the provided signature header and webhook secret. Returns the parsed
// Event on success.
//
// The signature header is the value of the "Stripe-Signature" HTTP header.
// Events with timestamps older than the SDK's default 5 minute tolerance are
// rejected to prevent replay.
func (s *Service) VerifyWebhookSignature(payload []byte, sigHeader string, webhookSecret string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("verifying webhook signature: %w", err)
	}

	s.logger.Debug("webhook signature verified",
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
	)

	return event, nil
}

// decimalToCents converts a shopspring/decimal value representing a currency
// amount (e.g., 42.50) to the smallest currency unit (e.g., 4250 cents).
// The value is rounded to 2 decimal places before conversion.
func decimalToCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// validateCheckoutInput performs basic validation before calling Stripe.
func validateCheckoutInput(input CheckoutInput) error {
	if input.Email == "" {
		return ErrMissingEmail
	}
	if input.ProductID == "" || input.ProductName == "" {
		return ErrMissingProduct
	}
	if input.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if input.SuccessURL == "" || input.CancelURL == "" {
		return ErrMissingURLs
	}
	return nil
}
