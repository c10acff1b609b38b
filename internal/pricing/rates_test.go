package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewTableValidation(t *testing.T) {
	rate := func(id string, countries ...string) Rate {
		return Rate{ID: id, Price: decimal.New(5, 0), Countries: countries}
	}

	t.Run("missing default", func(t *testing.T) {
		_, err := NewTable([]Rate{rate("a", "AT")}, Rate{})
		if !errors.Is(err, ErrNoDefaultRate) {
			t.Errorf("expected ErrNoDefaultRate, got %v", err)
		}
	})

	t.Run("duplicate country", func(t *testing.T) {
		_, err := NewTable([]Rate{rate("a", "AT"), rate("b", "DE", "AT")}, rate("intl"))
		if !errors.Is(err, ErrDuplicateCountry) {
			t.Errorf("expected ErrDuplicateCountry, got %v", err)
		}
	})

	t.Run("valid", func(t *testing.T) {
		tbl, err := NewTable([]Rate{rate("a", "AT"), rate("b", "DE", "FR")}, rate("intl"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := tbl.Lookup("FR").ID; got != "b" {
			t.Errorf("expected rate b for FR, got %s", got)
		}
	})
}

func TestLookupFallbackChain(t *testing.T) {
	tbl := DefaultTable()

	tests := []struct {
		name    string
		country string
		wantID  string
	}{
		{"exact domestic match", "AT", "shr_domestic_at"},
		{"region bucket member", "FR", "shr_eu"},
		{"another bucket member", "SE", "shr_eu"},
		{"outside every region", "US", "shr_international"},
		{"unknown code", "XX", "shr_international"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tbl.Lookup(tt.country).ID; got != tt.wantID {
				t.Errorf("Lookup(%q) = %s, want %s", tt.country, got, tt.wantID)
			}
		})
	}
}

func TestEveryEUCountryCovered(t *testing.T) {
	tbl := DefaultTable()
	for _, c := range euCountries {
		if got := tbl.Lookup(c).ID; got != "shr_eu" {
			t.Errorf("Lookup(%q) = %s, want shr_eu", c, got)
		}
	}
}
