package checkout

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cooklab/api/internal/catalog"
	"github.com/cooklab/api/internal/pricing"
)

func testOrchestrator() *Orchestrator {
	return NewOrchestrator(pricing.NewEngine(pricing.DefaultTable(), nil))
}

func testProduct(kind catalog.Kind, price string) catalog.Product {
	return catalog.Product{
		ID:   "p",
		Kind: kind,
		Name: "Test Product",
		Prices: []catalog.Price{
			{Language: "en", Amount: decimal.RequireFromString(price), Currency: "eur", PlanID: "plan_p"},
		},
	}
}

// apply runs a sequence of events, failing the test on any transition error.
func apply(t *testing.T, o *Orchestrator, m Machine, events ...Event) (Machine, []Effect) {
	t.Helper()
	var last []Effect
	for _, ev := range events {
		var err error
		m, last, err = o.Transition(m, ev)
		if err != nil {
			t.Fatalf("transition %T: unexpected error: %v", ev, err)
		}
	}
	return m, last
}

func hasEffect[E Effect](effects []Effect) (E, bool) {
	for _, e := range effects {
		if typed, ok := e.(E); ok {
			return typed, true
		}
	}
	var zero E
	return zero, false
}

func TestLoadedDigitalPricesImmediately(t *testing.T) {
	o := testOrchestrator()
	m, effects := apply(t, o, NewMachine(),
		Loaded{Product: testProduct(catalog.KindDigital, "89.00"), Language: "en", Quantity: 1})

	if m.State != StatePriced {
		t.Fatalf("expected Priced, got %s", m.State)
	}
	display, ok := hasEffect[EffectUpdateDisplay](effects)
	if !ok {
		t.Fatal("expected EffectUpdateDisplay")
	}
	if !display.Quote.Shipping.IsZero() {
		t.Errorf("digital shipping must be zero, got %s", display.Quote.Shipping)
	}
	if !display.Quote.Total.Equal(decimal.RequireFromString("89.00")) {
		t.Errorf("total = %s, want 89.00", display.Quote.Total)
	}
}

func TestLoadedPhysicalWithoutCountryAwaitsSelection(t *testing.T) {
	o := testOrchestrator()
	m, effects := apply(t, o, NewMachine(),
		Loaded{Product: testProduct(catalog.KindPhysical, "20.00"), Language: "en", Quantity: 1})

	if m.State != StateAwaitingSelection {
		t.Fatalf("expected AwaitingSelection, got %s", m.State)
	}
	if len(effects) != 0 {
		t.Errorf("expected no effects, got %v", effects)
	}
}

func TestSelectionChangesReprice(t *testing.T) {
	o := testOrchestrator()
	m, effects := apply(t, o, NewMachine(),
		Loaded{Product: testProduct(catalog.KindPhysical, "20.00"), Language: "en", Quantity: 1},
		CountryChanged{Country: "AT"},
		QuantityChanged{Quantity: 3},
	)

	if m.State != StatePriced {
		t.Fatalf("expected Priced, got %s", m.State)
	}
	display, ok := hasEffect[EffectUpdateDisplay](effects)
	if !ok {
		t.Fatal("expected EffectUpdateDisplay")
	}
	if !display.Quote.Subtotal.Equal(decimal.RequireFromString("60.00")) {
		t.Errorf("subtotal = %s, want 60.00", display.Quote.Subtotal)
	}
	if !display.Quote.Shipping.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("shipping = %s, want 5.00", display.Quote.Shipping)
	}
	if !display.Quote.Total.Equal(decimal.RequireFromString("65.00")) {
		t.Errorf("total = %s, want 65.00", display.Quote.Total)
	}

	// Any further change self-loops back to Priced.
	m, _ = apply(t, o, m, CountryChanged{Country: "US"})
	if m.State != StatePriced {
		t.Errorf("expected Priced after reprice, got %s", m.State)
	}
}

func TestSubmitRequiresCountryForShipping(t *testing.T) {
	o := testOrchestrator()
	m, effects := apply(t, o, NewMachine(),
		Loaded{Product: testProduct(catalog.KindPhysical, "20.00"), Language: "en", Quantity: 1},
		SubmitRequested{Email: "cook@example.com"},
	)

	if m.State != StateAwaitingSelection {
		t.Fatalf("expected AwaitingSelection, got %s", m.State)
	}
	if _, ok := hasEffect[EffectShowError](effects); !ok {
		t.Error("expected a local validation error")
	}
	if _, ok := hasEffect[EffectCreateSession](effects); ok {
		t.Error("validation failures must not reach the session service")
	}
}

func TestSubmitRequiresEmail(t *testing.T) {
	o := testOrchestrator()
	m, effects := apply(t, o, NewMachine(),
		Loaded{Product: testProduct(catalog.KindDigital, "89.00"), Language: "en", Quantity: 1},
		SubmitRequested{Email: ""},
	)

	if m.State != StatePriced {
		t.Fatalf("expected Priced, got %s", m.State)
	}
	if _, ok := hasEffect[EffectCreateSession](effects); ok {
		t.Error("missing email must not reach the session service")
	}
}

func TestSubmitEmitsSingleSessionCall(t *testing.T) {
	o := testOrchestrator()
	m, effects := apply(t, o, NewMachine(),
		Loaded{Product: testProduct(catalog.KindBundle, "30.00"), Language: "en", Quantity: 5},
		CountryChanged{Country: "FR"},
		SubmitRequested{Email: "cook@example.com"},
	)

	if m.State != StateSubmitting {
		t.Fatalf("expected Submitting, got %s", m.State)
	}
	if _, ok := hasEffect[EffectDisableSubmit](effects); !ok {
		t.Error("expected submit trigger to be disabled")
	}
	create, ok := hasEffect[EffectCreateSession](effects)
	if !ok {
		t.Fatal("expected EffectCreateSession")
	}
	if create.Request.Quantity != 1 {
		t.Errorf("bundle quantity must be pinned to 1, got %d", create.Request.Quantity)
	}
	if !create.Request.Total.Equal(decimal.RequireFromString("40.00")) {
		t.Errorf("total = %s, want 40.00", create.Request.Total)
	}
	if create.Request.OrderID.String() == "" {
		t.Error("expected an order id on the snapshot")
	}

	// A second submit while submitting is a silent no-op.
	m2, effects2, err := o.Transition(m, SubmitRequested{Email: "cook@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m2.State != StateSubmitting || len(effects2) != 0 {
		t.Errorf("double submission must be a no-op, got state %s effects %v", m2.State, effects2)
	}
}

func TestSessionCreatedRedirectsAndTerminates(t *testing.T) {
	o := testOrchestrator()
	m, effects := apply(t, o, NewMachine(),
		Loaded{Product: testProduct(catalog.KindDigital, "89.00"), Language: "en", Quantity: 1},
		SubmitRequested{Email: "cook@example.com"},
		SessionCreated{URL: "https://checkout.stripe.com/cs_123"},
	)

	if m.State != StateRedirected {
		t.Fatalf("expected Redirected, got %s", m.State)
	}
	nav, ok := hasEffect[EffectNavigate](effects)
	if !ok || nav.URL != "https://checkout.stripe.com/cs_123" {
		t.Errorf("expected navigate effect, got %v", effects)
	}

	_, _, err := o.Transition(m, QuantityChanged{Quantity: 2})
	if !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal, got %v", err)
	}
}

func TestSessionFailedAllowsRetry(t *testing.T) {
	o := testOrchestrator()
	m, effects := apply(t, o, NewMachine(),
		Loaded{Product: testProduct(catalog.KindDigital, "89.00"), Language: "en", Quantity: 1},
		SubmitRequested{Email: "cook@example.com"},
		SessionFailed{Reason: "checkout is unavailable, please try again"},
	)

	if m.State != StateFailed {
		t.Fatalf("expected Failed, got %s", m.State)
	}
	if _, ok := hasEffect[EffectShowError](effects); !ok {
		t.Error("expected user-facing error")
	}
	if _, ok := hasEffect[EffectEnableSubmit](effects); !ok {
		t.Error("expected submit to be re-enabled")
	}

	firstOrder := m.Pending.OrderID

	m, effects = apply(t, o, m, RetryRequested{})
	if m.State != StateSubmitting {
		t.Fatalf("expected Submitting after retry, got %s", m.State)
	}
	create, ok := hasEffect[EffectCreateSession](effects)
	if !ok {
		t.Fatal("expected EffectCreateSession on retry")
	}
	if create.Request.OrderID != firstOrder {
		t.Error("retry must resubmit the same snapshot")
	}
}

func TestFailedStateAllowsRepricing(t *testing.T) {
	o := testOrchestrator()
	m, _ := apply(t, o, NewMachine(),
		Loaded{Product: testProduct(catalog.KindPhysical, "20.00"), Language: "en", Quantity: 1},
		CountryChanged{Country: "AT"},
		SubmitRequested{Email: "cook@example.com"},
		SessionFailed{Reason: "upstream down"},
		CountryChanged{Country: "DE"},
	)

	if m.State != StatePriced {
		t.Fatalf("expected Priced after changing selection, got %s", m.State)
	}
	if m.Pending != nil {
		t.Error("reprice must drop the stale snapshot")
	}
}

func TestInvalidQuantityShowsError(t *testing.T) {
	o := testOrchestrator()
	m, effects := apply(t, o, NewMachine(),
		Loaded{Product: testProduct(catalog.KindDigital, "89.00"), Language: "en", Quantity: 1},
		QuantityChanged{Quantity: 0},
	)

	if _, ok := hasEffect[EffectShowError](effects); !ok {
		t.Error("expected validation error for zero quantity")
	}
	if m.Cart.Quantity != 1 {
		t.Errorf("quantity must be unchanged, got %d", m.Cart.Quantity)
	}
}

func TestEventsOutOfOrder(t *testing.T) {
	o := testOrchestrator()

	_, _, err := o.Transition(NewMachine(), SessionCreated{URL: "x"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	m, _ := apply(t, o, NewMachine(),
		Loaded{Product: testProduct(catalog.KindDigital, "89.00"), Language: "en", Quantity: 1})
	_, _, err = o.Transition(m, RetryRequested{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}
