// Package checkout models the storefront checkout flow as an explicit state
// machine. Every transition is a pure function of (machine, event) to
// (machine, effects), so the flow is testable without any UI: the caller
// applies the returned effects (update the displayed totals, call the
// session service, navigate to the payment page).
package checkout

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cooklab/api/internal/catalog"
	"github.com/cooklab/api/internal/pricing"
)

var (
	// ErrInvalidTransition is returned when an event is not meaningful in the
	// machine's current state.
	ErrInvalidTransition = errors.New("event not valid in current state")

	// ErrTerminal is returned for events delivered after the machine reached
	// Redirected. A new checkout starts a fresh machine.
	ErrTerminal = errors.New("checkout already redirected")
)

// State is one node of the checkout flow.
type State string

const (
	StateIdle              State = "idle"
	StateAwaitingSelection State = "awaiting_selection"
	StatePriced            State = "priced"
	StateSubmitting        State = "submitting"
	StateRedirected        State = "redirected"
	StateFailed            State = "failed"
)

// Cart is the mutable user selection the machine prices.
type Cart struct {
	Product  catalog.Product
	Language string
	Quantity int
	Country  string
}

// SessionRequest is the immutable snapshot handed to the session service when
// the user submits. It is built once per attempt and never mutated.
type SessionRequest struct {
	OrderID  uuid.UUID
	Product  catalog.Product
	Language string
	Quantity int
	Country  string
	Email    string
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
	Currency string
}

// Machine is the checkout flow state. It is a value; Transition returns an
// updated copy.
type Machine struct {
	State   State
	Cart    Cart
	Quote   pricing.Quote
	Pending *SessionRequest
}

// --- Events ---

// Event is a user action or an asynchronous result fed into the machine.
type Event interface{ isEvent() }

// Loaded carries the page defaults read at load time.
type Loaded struct {
	Product  catalog.Product
	Language string
	Quantity int
	Country  string
}

// QuantityChanged fires when the user changes the quantity selector.
type QuantityChanged struct{ Quantity int }

// CountryChanged fires when the user selects a destination country.
type CountryChanged struct{ Country string }

// SubmitRequested fires when the user presses the checkout button.
type SubmitRequested struct{ Email string }

// SessionCreated is the successful response from the session service.
type SessionCreated struct{ URL string }

// SessionFailed is a failed session-service call.
type SessionFailed struct{ Reason string }

// RetryRequested fires when the user retries after a failed submission.
type RetryRequested struct{}

func (Loaded) isEvent()          {}
func (QuantityChanged) isEvent() {}
func (CountryChanged) isEvent()  {}
func (SubmitRequested) isEvent() {}
func (SessionCreated) isEvent()  {}
func (SessionFailed) isEvent()   {}
func (RetryRequested) isEvent()  {}

// --- Effects ---

// Effect is a side effect the caller must perform after a transition.
type Effect interface{ isEffect() }

// EffectUpdateDisplay refreshes the shown subtotal, shipping, and total.
type EffectUpdateDisplay struct{ Quote pricing.Quote }

// EffectCreateSession calls the session service with the snapshot. The
// machine emits this exactly once per Priced→Submitting transition.
type EffectCreateSession struct{ Request SessionRequest }

// EffectNavigate redirects the customer to the hosted payment page.
type EffectNavigate struct{ URL string }

// EffectShowError surfaces a user-facing validation or submission error.
type EffectShowError struct{ Message string }

// EffectDisableSubmit and EffectEnableSubmit guard against double submission.
type EffectDisableSubmit struct{}
type EffectEnableSubmit struct{}

func (EffectUpdateDisplay) isEffect() {}
func (EffectCreateSession) isEffect() {}
func (EffectNavigate) isEffect()      {}
func (EffectShowError) isEffect()     {}
func (EffectDisableSubmit) isEffect() {}
func (EffectEnableSubmit) isEffect()  {}

// Orchestrator evaluates transitions against the pricing engine.
type Orchestrator struct {
	engine *pricing.Engine
}

// NewOrchestrator creates an orchestrator over the given pricing engine.
func NewOrchestrator(engine *pricing.Engine) *Orchestrator {
	return &Orchestrator{engine: engine}
}

// NewMachine returns a machine in the Idle state.
func NewMachine() Machine {
	return Machine{State: StateIdle}
}

// Transition applies one event. It returns the next machine state and the
// effects the caller must execute, in order.
func (o *Orchestrator) Transition(m Machine, ev Event) (Machine, []Effect, error) {
	if m.State == StateRedirected {
		return m, nil, ErrTerminal
	}

	switch ev := ev.(type) {
	case Loaded:
		if m.State != StateIdle {
			return m, nil, ErrInvalidTransition
		}
		m.Cart = Cart{
			Product:  ev.Product,
			Language: ev.Language,
			Quantity: ev.Quantity,
			Country:  ev.Country,
		}
		if m.Cart.Quantity < 1 {
			m.Cart.Quantity = 1
		}
		m.State = StateAwaitingSelection
		return o.reprice(m)

	case QuantityChanged:
		if !m.selecting() {
			return m, nil, ErrInvalidTransition
		}
		if ev.Quantity < 1 {
			return m, []Effect{EffectShowError{Message: "quantity must be at least 1"}}, nil
		}
		m.Cart.Quantity = ev.Quantity
		return o.reprice(m)

	case CountryChanged:
		if !m.selecting() {
			return m, nil, ErrInvalidTransition
		}
		m.Cart.Country = ev.Country
		return o.reprice(m)

	case SubmitRequested:
		switch m.State {
		case StateSubmitting:
			// Double submission guard: the trigger is disabled, but a stray
			// event must still be a no-op.
			return m, nil, nil
		case StatePriced:
			return o.submit(m, ev.Email)
		case StateAwaitingSelection:
			// Priced was never reached, so something required is missing.
			return m, []Effect{EffectShowError{Message: "please select a shipping country"}}, nil
		default:
			return m, nil, ErrInvalidTransition
		}

	case SessionCreated:
		if m.State != StateSubmitting {
			return m, nil, ErrInvalidTransition
		}
		m.State = StateRedirected
		return m, []Effect{EffectNavigate{URL: ev.URL}}, nil

	case SessionFailed:
		if m.State != StateSubmitting {
			return m, nil, ErrInvalidTransition
		}
		m.State = StateFailed
		return m, []Effect{
			EffectShowError{Message: ev.Reason},
			EffectEnableSubmit{},
		}, nil

	case RetryRequested:
		if m.State != StateFailed || m.Pending == nil {
			return m, nil, ErrInvalidTransition
		}
		m.State = StateSubmitting
		return m, []Effect{
			EffectDisableSubmit{},
			EffectCreateSession{Request: *m.Pending},
		}, nil

	default:
		return m, nil, ErrInvalidTransition
	}
}

// selecting reports whether user selection events are accepted. Changes after
// a failed submission drop back into the pricing loop.
func (m Machine) selecting() bool {
	return m.State == StateAwaitingSelection || m.State == StatePriced || m.State == StateFailed
}

// reprice recomputes the quote after a selection change. A cart that cannot
// be priced yet (shipping product without a country) stays in
// AwaitingSelection; anything priceable lands in Priced with a display
// update.
func (o *Orchestrator) reprice(m Machine) (Machine, []Effect, error) {
	q, err := o.engine.Quote(m.Cart.Product, m.Cart.Language, m.Cart.Country, m.Cart.Quantity)
	if err != nil {
		if errors.Is(err, pricing.ErrCountryRequired) {
			m.State = StateAwaitingSelection
			m.Pending = nil
			return m, nil, nil
		}
		return m, nil, err
	}
	m.State = StatePriced
	m.Quote = q
	m.Pending = nil
	return m, []Effect{EffectUpdateDisplay{Quote: q}}, nil
}

// submit validates locally and, when valid, snapshots the request and emits
// exactly one session-service call. Validation failures never reach the
// network.
func (o *Orchestrator) submit(m Machine, email string) (Machine, []Effect, error) {
	if email == "" {
		return m, []Effect{EffectShowError{Message: "email is required"}}, nil
	}
	if m.Cart.Product.RequiresShipping() && m.Cart.Country == "" {
		return m, []Effect{EffectShowError{Message: "please select a shipping country"}}, nil
	}

	quantity := m.Cart.Quantity
	if m.Cart.Product.Kind == catalog.KindBundle {
		quantity = 1
	}

	req := SessionRequest{
		OrderID:  uuid.New(),
		Product:  m.Cart.Product,
		Language: m.Cart.Language,
		Quantity: quantity,
		Country:  m.Cart.Country,
		Email:    email,
		Subtotal: m.Quote.Subtotal,
		Shipping: m.Quote.Shipping,
		Total:    m.Quote.Total,
		Currency: m.Quote.Currency,
	}

	m.State = StateSubmitting
	m.Pending = &req
	return m, []Effect{
		EffectDisableSubmit{},
		EffectCreateSession{Request: req},
	}, nil
}
