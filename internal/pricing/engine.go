package pricing

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/cooklab/api/internal/catalog"
)

var (
	// ErrCountryRequired is returned when a shipping-requiring product is
	// priced without a destination country. An empty country is an input
	// error, never silently free shipping.
	ErrCountryRequired = errors.New("destination country is required for products that ship")

	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
)

// Quote is the full price breakdown for one cart.
type Quote struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
	Currency string

	// RateID identifies the shipping rate applied; empty for digital carts.
	RateID string
}

// Engine computes subtotal, shipping, and total from a product, quantity, and
// destination country. All arithmetic is decimal; nothing here touches
// binary floating point.
type Engine struct {
	table  *Table
	logger *slog.Logger
}

// NewEngine creates a pricing engine over the given rate table.
func NewEngine(table *Table, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{table: table, logger: logger}
}

// Shipping computes the shipping cost for a product kind, destination, and
// quantity.
//
//   - Digital products never ship; the cost is zero regardless of country.
//   - Physical and bundle products require a country; the rate is resolved
//     through the table's fallback chain.
//   - Shipping is charged once per order, not per unit: books ship together
//     in one parcel, and a bundle counts as exactly one shippable unit
//     whatever quantity was requested.
func (e *Engine) Shipping(kind catalog.Kind, country string, quantity int) (decimal.Decimal, string, error) {
	if kind == catalog.KindDigital {
		return decimal.Zero, "", nil
	}
	if country == "" {
		return decimal.Zero, "", ErrCountryRequired
	}
	if quantity < 1 {
		return decimal.Zero, "", ErrInvalidQuantity
	}

	rate := e.table.Lookup(country)
	return rate.Price.Round(2), rate.ID, nil
}

// Subtotal computes base price times quantity. Bundles are sold as a single
// unit, so their quantity is pinned to one.
func (e *Engine) Subtotal(base decimal.Decimal, kind catalog.Kind, quantity int) (decimal.Decimal, error) {
	if quantity < 1 {
		return decimal.Zero, ErrInvalidQuantity
	}
	if kind == catalog.KindBundle {
		quantity = 1
	}
	return base.Mul(decimal.NewFromInt(int64(quantity))).Round(2), nil
}

// Quote prices a full cart: subtotal, shipping, and their sum.
func (e *Engine) Quote(product catalog.Product, lang, country string, quantity int) (Quote, error) {
	price, err := product.PriceFor(lang)
	if err != nil {
		return Quote{}, fmt.Errorf("resolving price: %w", err)
	}

	subtotal, err := e.Subtotal(price.Amount, product.Kind, quantity)
	if err != nil {
		return Quote{}, err
	}

	shipping, rateID, err := e.Shipping(product.Kind, country, quantity)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal.Add(shipping),
		Currency: price.Currency,
		RateID:   rateID,
	}

	e.logger.Debug("cart priced",
		slog.String("product", product.ID),
		slog.String("country", country),
		slog.Int("quantity", quantity),
		slog.String("subtotal", q.Subtotal.StringFixed(2)),
		slog.String("shipping", q.Shipping.StringFixed(2)),
		slog.String("total", q.Total.StringFixed(2)),
	)

	return q, nil
}
