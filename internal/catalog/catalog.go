package catalog

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound is returned when a product ID is not in the catalog.
	ErrProductNotFound = errors.New("product not found")

	// ErrPriceNotFound is returned when a product has no price variant for the
	// requested language and no default variant to fall back to.
	ErrPriceNotFound = errors.New("no price variant for language")
)

// Kind describes how a product is fulfilled after payment.
type Kind string

const (
	// KindDigital products grant a membership plan only; no shipment.
	KindDigital Kind = "digital"

	// KindPhysical products are shipped; no plan is granted.
	KindPhysical Kind = "physical"

	// KindBundle products combine a digital and a physical component. A bundle
	// is always sold as exactly one shippable unit.
	KindBundle Kind = "bundle"
)

// DefaultLanguage is the price-variant fallback when a language has no
// dedicated variant.
const DefaultLanguage = "en"

// Price is a per-language price variant of a product.
type Price struct {
	// Language is the storefront language this variant applies to.
	Language string

	// Amount is the gross unit price in the variant's currency.
	Amount decimal.Decimal

	// Currency is the three-letter ISO currency code (e.g., "eur").
	Currency string

	// StripePriceID references the pre-created Stripe Price object.
	StripePriceID string

	// PlanID is the membership-provider plan granted after payment. Empty for
	// purely physical products.
	PlanID string
}

// Component is one part of a bundle product.
type Component struct {
	// ProductID references another catalog product.
	ProductID string

	// ScalesWithQuantity reports whether this component multiplies with the
	// ordered quantity. The default bundle rule pins quantity to one, so this
	// is false for all built-in bundles.
	ScalesWithQuantity bool
}

// Product is an immutable catalog entry, defined at configuration time.
type Product struct {
	ID         string
	Kind       Kind
	Name       string
	Prices     []Price
	Components []Component
}

// RequiresShipping reports whether a destination country must be selected
// before this product can be checked out.
func (p Product) RequiresShipping() bool {
	return p.Kind != KindDigital
}

// PriceFor resolves the price variant for a language, falling back to the
// default language when the requested one has no variant.
func (p Product) PriceFor(lang string) (Price, error) {
	var fallback *Price
	for i := range p.Prices {
		if p.Prices[i].Language == lang {
			return p.Prices[i], nil
		}
		if p.Prices[i].Language == DefaultLanguage {
			fallback = &p.Prices[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return Price{}, fmt.Errorf("product %s, language %s: %w", p.ID, lang, ErrPriceNotFound)
}

// Catalog is a fixed set of products keyed by ID.
type Catalog struct {
	products map[string]Product
}

// New builds a catalog from the given products.
func New(products ...Product) *Catalog {
	m := make(map[string]Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &Catalog{products: m}
}

// Get returns the product with the given ID.
func (c *Catalog) Get(id string) (Product, error) {
	p, ok := c.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	return p, nil
}

// MustGet is Get for IDs known at compile time, such as fixtures. It panics
// on a missing product.
func (c *Catalog) MustGet(id string) Product {
	p, err := c.Get(id)
	if err != nil {
		panic(err)
	}
	return p
}

// Default returns the built-in shop catalog: the video course, the printed
// recipe book, and the bundle of both.
func Default() *Catalog {
	return New(
		Product{
			ID:   "course",
			Kind: KindDigital,
			Name: "Online Cooking Course",
			Prices: []Price{
				{Language: "en", Amount: decimal.RequireFromString("89.00"), Currency: "eur", StripePriceID: "price_course_en", PlanID: "plan_course_en"},
				{Language: "de", Amount: decimal.RequireFromString("89.00"), Currency: "eur", StripePriceID: "price_course_de", PlanID: "plan_course_de"},
				{Language: "fr", Amount: decimal.RequireFromString("89.00"), Currency: "eur", StripePriceID: "price_course_fr", PlanID: "plan_course_fr"},
				{Language: "es", Amount: decimal.RequireFromString("89.00"), Currency: "eur", StripePriceID: "price_course_es", PlanID: "plan_course_es"},
			},
		},
		Product{
			ID:   "book",
			Kind: KindPhysical,
			Name: "Printed Recipe Book",
			Prices: []Price{
				{Language: "en", Amount: decimal.RequireFromString("20.00"), Currency: "eur", StripePriceID: "price_book_en"},
				{Language: "de", Amount: decimal.RequireFromString("20.00"), Currency: "eur", StripePriceID: "price_book_de"},
			},
		},
		Product{
			ID:   "bundle",
			Kind: KindBundle,
			Name: "Course + Recipe Book Bundle",
			Prices: []Price{
				{Language: "en", Amount: decimal.RequireFromString("99.00"), Currency: "eur", StripePriceID: "price_bundle_en", PlanID: "plan_course_en"},
				{Language: "de", Amount: decimal.RequireFromString("99.00"), Currency: "eur", StripePriceID: "price_bundle_de", PlanID: "plan_course_de"},
			},
			Components: []Component{
				{ProductID: "course"},
				{ProductID: "book"},
			},
		},
	)
}
