package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/cooklab/api/internal/services/fulfillment"
	cookstripe "github.com/cooklab/api/internal/stripe"
)

// SignatureVerifier validates a raw webhook payload against its signature
// header. Satisfied by the Stripe service; faked in tests.
type SignatureVerifier interface {
	VerifyWebhookSignature(payload []byte, sigHeader string, secret string) (stripe.Event, error)
}

// PaymentCompletedHandler consumes verified payment events. Satisfied by the
// fulfillment service.
type PaymentCompletedHandler interface {
	HandlePaymentCompleted(ctx context.Context, order fulfillment.Order) error
}

// WebhookHandler handles incoming Stripe webhook events.
type WebhookHandler struct {
	verifier    SignatureVerifier
	fulfillment PaymentCompletedHandler
	logger      *slog.Logger
	secret      string // webhook signing secret
}

// NewWebhookHandler creates a new Stripe webhook handler.
func NewWebhookHandler(
	verifier SignatureVerifier,
	fulfillmentSvc PaymentCompletedHandler,
	logger *slog.Logger,
	webhookSecret string,
) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		verifier:    verifier,
		fulfillment: fulfillmentSvc,
		logger:      logger,
		secret:      webhookSecret,
	}
}

// RegisterRoutes registers the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/webhooks/stripe", h.HandleStripeWebhook)
}

type webhookResponse struct {
	Received bool `json:"received"`
}

// HandleStripeWebhook handles POST /api/v1/webhooks/stripe.
//
// The signature is verified over the raw body before any business field is
// parsed; a missing or invalid signature is rejected with 401 and nothing
// else runs. A verified checkout.session.completed event is handed to the
// fulfillment service; unknown event types are acknowledged as no-ops.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	// Stripe requires the raw body for signature verification.
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid body"})
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := h.verifier.VerifyWebhookSignature(body, sigHeader, h.secret)
	if err != nil {
		// Security-relevant: either a misconfigured endpoint or someone
		// posting forged events.
		h.logger.Warn("webhook signature verification failed",
			"error", err,
			"remote", r.RemoteAddr,
		)
		writeJSON(w, http.StatusUnauthorized, errorJSON{Error: "invalid signature"})
		return
	}

	h.logger.Info("stripe webhook received",
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
	)

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutSessionCompleted(w, r, event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", string(event.Type))
		writeJSON(w, http.StatusOK, webhookResponse{Received: true})
	}
}

// handleCheckoutSessionCompleted extracts the order context from session
// metadata (set by the checkout handler at session creation) and runs
// fulfillment.
func (h *WebhookHandler) handleCheckoutSessionCompleted(w http.ResponseWriter, r *http.Request, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to unmarshal checkout session", "error", err, "event_id", event.ID)
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "malformed event payload"})
		return
	}

	orderIDStr := session.Metadata[cookstripe.MetaOrderID]
	orderID, err := uuid.Parse(orderIDStr)
	if err != nil {
		h.logger.Error("checkout session missing or invalid order_id metadata",
			"session_id", session.ID,
			"order_id", orderIDStr,
		)
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "missing order metadata"})
		return
	}

	email := session.CustomerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		email = session.CustomerDetails.Email
	}
	if email == "" {
		h.logger.Error("checkout session has no customer email", "session_id", session.ID)
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "missing customer email"})
		return
	}

	shippingFee := decimal.Zero
	if raw := session.Metadata[cookstripe.MetaShippingFee]; raw != "" {
		if fee, err := decimal.NewFromString(raw); err == nil {
			shippingFee = fee
		}
	}

	order := fulfillment.Order{
		ID:              orderID,
		StripeSessionID: session.ID,
		Email:           email,
		ProductID:       session.Metadata[cookstripe.MetaProductID],
		PlanID:          session.Metadata[cookstripe.MetaPlanID],
		Language:        session.Metadata[cookstripe.MetaLanguage],
		Country:         session.Metadata[cookstripe.MetaCountry],
		ShippingFee:     shippingFee,
	}

	err = h.fulfillment.HandlePaymentCompleted(r.Context(), order)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, webhookResponse{Received: true})
	case errors.Is(err, fulfillment.ErrFulfillmentFailed):
		// The order is durably recorded; acknowledging stops Stripe from
		// amplifying a membership-provider outage with redeliveries. The
		// failure is in the order record and logs for manual follow-up.
		writeJSON(w, http.StatusOK, webhookResponse{Received: true})
	default:
		// Not recorded: let Stripe redeliver.
		h.logger.Error("fulfillment not recorded, requesting redelivery",
			"error", err,
			"session_id", session.ID,
		)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal error"})
	}
}
