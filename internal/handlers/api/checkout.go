package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/cooklab/api/internal/catalog"
	"github.com/cooklab/api/internal/pricing"
	cookstripe "github.com/cooklab/api/internal/stripe"
)

// SessionCreator creates hosted payment sessions. Satisfied by the Stripe
// service; faked in tests.
type SessionCreator interface {
	CreateCheckoutSession(input cookstripe.CheckoutInput) (cookstripe.CheckoutResult, error)
}

// CheckoutHandler holds dependencies for the checkout API endpoints.
type CheckoutHandler struct {
	catalog    *catalog.Catalog
	engine     *pricing.Engine
	sessions   SessionCreator
	logger     *slog.Logger
	successURL string
	cancelURL  string
}

// NewCheckoutHandler creates a new checkout handler with all required dependencies.
func NewCheckoutHandler(
	cat *catalog.Catalog,
	engine *pricing.Engine,
	sessions SessionCreator,
	logger *slog.Logger,
	successURL string,
	cancelURL string,
) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		catalog:    cat,
		engine:     engine,
		sessions:   sessions,
		logger:     logger,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// --- JSON request/response types ---

type createCheckoutRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Language  string `json:"language"`
	Country   string `json:"country"`
	Email     string `json:"email"`
}

type createCheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	OrderID     string `json:"order_id"`
}

type quoteRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Language  string `json:"language"`
	Country   string `json:"country"`
}

type quoteResponse struct {
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

// --- Handlers ---

// Quote handles POST /api/v1/checkout/quote. It prices the cart without any
// side effects; the storefront calls this on every quantity or country
// change.
func (h *CheckoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}

	_, q, ok := h.price(w, req.ProductID, req.Language, req.Country, req.Quantity)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		Subtotal: q.Subtotal.StringFixed(2),
		Shipping: q.Shipping.StringFixed(2),
		Total:    q.Total.StringFixed(2),
		Currency: q.Currency,
	})
}

// CreateCheckout handles POST /api/v1/checkout.
// It validates the request, prices the cart, creates a Stripe Checkout
// Session, and returns the hosted payment page URL.
func (h *CheckoutHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req createCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return
	}

	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "email is required"})
		return
	}

	product, q, ok := h.price(w, req.ProductID, req.Language, req.Country, req.Quantity)
	if !ok {
		return
	}

	price, err := product.PriceFor(req.Language)
	if err != nil {
		// price() already resolved the same variant; this cannot fail here.
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
		return
	}

	quantity := int64(req.Quantity)
	if product.Kind == catalog.KindBundle {
		quantity = 1
	}

	orderID := uuid.New()
	result, err := h.sessions.CreateCheckoutSession(cookstripe.CheckoutInput{
		OrderID:         orderID,
		Email:           req.Email,
		ProductID:       product.ID,
		ProductName:     product.Name,
		PlanID:          price.PlanID,
		Language:        price.Language,
		Quantity:        quantity,
		UnitPrice:       price.Amount,
		ShippingFee:     q.Shipping,
		ShippingCountry: req.Country,
		Currency:        q.Currency,
		SuccessURL:      h.successURL,
		CancelURL:       h.cancelURL,
	})
	if err != nil {
		h.logger.Error("failed to create checkout session",
			"error", err,
			"order_id", orderID,
			"product_id", product.ID,
		)
		// Upstream failures are sanitized; the processor error never reaches
		// the customer.
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "checkout is temporarily unavailable"})
		return
	}

	h.logger.Info("checkout session created",
		slog.String("order_id", orderID.String()),
		slog.String("session_id", result.SessionID),
		slog.String("product_id", product.ID),
		slog.String("total", q.Total.StringFixed(2)),
	)

	writeJSON(w, http.StatusOK, createCheckoutResponse{
		CheckoutURL: result.SessionURL,
		OrderID:     orderID.String(),
	})
}

// price resolves the product and prices the cart, writing the error response
// itself when validation fails.
func (h *CheckoutHandler) price(w http.ResponseWriter, productID, language, country string, quantity int) (catalog.Product, pricing.Quote, bool) {
	if productID == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "product_id is required"})
		return catalog.Product{}, pricing.Quote{}, false
	}

	product, err := h.catalog.Get(productID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "unknown product", Details: productID})
		return catalog.Product{}, pricing.Quote{}, false
	}

	q, err := h.engine.Quote(product, language, country, quantity)
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrCountryRequired):
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: "country is required for this product"})
		case errors.Is(err, pricing.ErrInvalidQuantity):
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: "quantity must be a positive integer"})
		default:
			h.logger.Error("failed to price cart", "error", err, "product_id", productID)
			writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
		}
		return catalog.Product{}, pricing.Quote{}, false
	}

	return product, q, true
}
