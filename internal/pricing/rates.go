package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoDefaultRate is returned when a table is built without an
	// international default rate.
	ErrNoDefaultRate = errors.New("rate table requires an international default rate")

	// ErrDuplicateCountry is returned when two rates claim the same country.
	ErrDuplicateCountry = errors.New("country covered by more than one rate")
)

// Rate is one shipping-rate table entry: a price, a human label, and the set
// of ISO country codes it covers. A rate with an empty country set acts as a
// region-independent entry and can only be reached as the default.
type Rate struct {
	ID        string
	Label     string
	Price     decimal.Decimal
	Countries []string
}

// Table maps destination countries to shipping rates. Lookup resolution is a
// fallback chain: exact country match, then region bucket membership, then
// the international default. A table always carries a default, so lookup
// never fails once the table is constructed.
type Table struct {
	rates       []Rate
	defaultRate Rate
	byCountry   map[string]Rate
}

// NewTable builds a rate table from region rates and an international
// default. Construction fails if any country appears in more than one rate.
func NewTable(rates []Rate, defaultRate Rate) (*Table, error) {
	if defaultRate.ID == "" {
		return nil, ErrNoDefaultRate
	}

	byCountry := make(map[string]Rate)
	for _, r := range rates {
		for _, c := range r.Countries {
			if prev, ok := byCountry[c]; ok {
				return nil, fmt.Errorf("country %s in rates %s and %s: %w", c, prev.ID, r.ID, ErrDuplicateCountry)
			}
			byCountry[c] = r
		}
	}

	return &Table{
		rates:       rates,
		defaultRate: defaultRate,
		byCountry:   byCountry,
	}, nil
}

// Lookup resolves the shipping rate for a destination country. Countries not
// covered by any configured rate fall through to the international default.
func (t *Table) Lookup(country string) Rate {
	if r, ok := t.byCountry[country]; ok {
		return r
	}
	return t.defaultRate
}

// Default returns the rate for destinations outside every configured region.
func (t *Table) Default() Rate {
	return t.defaultRate
}

// euCountries is the EU region bucket, minus Austria which has its own
// domestic rate.
var euCountries = []string{
	"BE", "BG", "HR", "CY", "CZ", "DK", "EE", "FI", "FR", "DE", "GR", "HU",
	"IE", "IT", "LV", "LT", "LU", "MT", "NL", "PL", "PT", "RO", "SK", "SI",
	"ES", "SE",
}

// DefaultTable returns the shop's configured shipping rates: a domestic
// Austrian rate, an EU bucket, and the international default.
func DefaultTable() *Table {
	t, err := NewTable(
		[]Rate{
			{
				ID:        "shr_domestic_at",
				Label:     "Austria",
				Price:     decimal.RequireFromString("5.00"),
				Countries: []string{"AT"},
			},
			{
				ID:        "shr_eu",
				Label:     "European Union",
				Price:     decimal.RequireFromString("10.00"),
				Countries: euCountries,
			},
		},
		Rate{
			ID:    "shr_international",
			Label: "International",
			Price: decimal.RequireFromString("15.00"),
		},
	)
	if err != nil {
		// The built-in table is static; a construction error is a programmer
		// mistake caught by tests.
		panic(err)
	}
	return t
}
