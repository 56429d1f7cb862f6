package domain

import "time"

// Event is an input of the payment machine.
type Event interface {
	eventName() string
}

// Start is the user asking to pay.
type Start struct {
	Amount        Amount
	Currency      string
	Authenticated bool
	Context       BookingContext
	// RequestKey makes the create call idempotent, Locator names the saved context.
	RequestKey string
	Locator    string
}

// Created is a successful create-payment response.
type Created struct {
	SessionID     string
	TransactionID string
	RedirectURL   string
}

type CreateFailed struct{ Err error }

// Returned is the browser coming back from the provider.
type Returned struct{ TransactionID string }

type Verified struct {
	Status        ServerStatus
	TransactionID string
}

type VerifyFailed struct{ Err error }

// Retry is the manual way out of failed.
type Retry struct{}

// Resume continues a flow from a saved context after a login or provider detour.
type Resume struct{ Snapshot Snapshot }

func (Start) eventName() string        { return "start" }
func (Created) eventName() string      { return "created" }
func (CreateFailed) eventName() string { return "create_failed" }
func (Returned) eventName() string     { return "returned" }
func (Verified) eventName() string     { return "verified" }
func (VerifyFailed) eventName() string { return "verify_failed" }
func (Retry) eventName() string        { return "retry" }
func (Resume) eventName() string       { return "resume" }

// EventName is the log name of an event.
func EventName(e Event) string { return e.eventName() }

// Effect is work the machine asks its driver to perform.
type Effect interface {
	effectName() string
}

type CreateSession struct {
	Amount     Amount
	Currency   string
	Context    BookingContext
	RequestKey string
}

type Redirect struct {
	URL   string
	Delay time.Duration
}

// Verify asks for one status check after Delay. Attempt is its 1-based number.
type Verify struct {
	TransactionID string
	Delay         time.Duration
	Attempt       int
}

type SaveContext struct{ Snapshot Snapshot }

type DiscardContext struct{ Locator string }

type RequireLogin struct{ Locator string }

type Succeeded struct{ TransactionID string }

type Failed struct{ Err error }

func (CreateSession) effectName() string  { return "create_session" }
func (Redirect) effectName() string       { return "redirect" }
func (Verify) effectName() string         { return "verify" }
func (SaveContext) effectName() string    { return "save_context" }
func (DiscardContext) effectName() string { return "discard_context" }
func (RequireLogin) effectName() string   { return "require_login" }
func (Succeeded) effectName() string      { return "succeeded" }
func (Failed) effectName() string         { return "failed" }

func EffectName(e Effect) string { return e.effectName() }
