package domain

import (
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
)

// ServerStatus is the backend's status of a payment session.
type ServerStatus string

const (
	ServerCreated   ServerStatus = "CREATED"
	ServerPending   ServerStatus = "PENDING"
	ServerPaid      ServerStatus = "PAID"
	ServerFailed    ServerStatus = "FAILED"
	ServerCancelled ServerStatus = "CANCELLED"
	ServerExpired   ServerStatus = "EXPIRED"
)

// State is the progress of one payment attempt as the user sees it. It never
// mixes with ServerStatus, Reconcile joins the two.
type State string

const (
	StateIdle         State = "idle"
	StateCreating     State = "creating"
	StateRedirecting  State = "redirecting"
	StateVerifying    State = "verifying"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateAuthRequired State = "auth_required"
)

func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Outcome is what a server status means for the UI machine.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomePaid    Outcome = "paid"
	OutcomeFailed  Outcome = "failed"
)

// Reconcile maps a server status onto the machine. Failed outcomes come with
// the provider error to surface. An unknown status is a provider failure.
func Reconcile(s ServerStatus) (Outcome, error) {
	switch s {
	case ServerPaid:
		return OutcomePaid, nil
	case ServerCreated, ServerPending:
		return OutcomePending, nil
	case ServerCancelled:
		return OutcomeFailed, ErrCancelled
	case ServerFailed:
		return OutcomeFailed, ErrPaymentFailed
	case ServerExpired:
		return OutcomeFailed, ErrExpired
	default:
		return OutcomeFailed, apperror.New(apperror.KindProvider, CodeUnknownStatus, "unknown payment status "+string(s))
	}
}

// PushStatus is the payment status carried by push notifications.
type PushStatus string

const (
	PushInitiated  PushStatus = "INITIATED"
	PushProcessing PushStatus = "PROCESSING"
	PushCompleted  PushStatus = "COMPLETED"
	PushFailed     PushStatus = "FAILED"
)

// ServerStatusOf translates a pushed status. Only terminal pushes are final
// enough to settle a verification, the others report false.
func ServerStatusOf(p PushStatus) (ServerStatus, bool) {
	switch p {
	case PushCompleted:
		return ServerPaid, true
	case PushFailed:
		return ServerFailed, true
	default:
		return "", false
	}
}

// Session is the backend record of a payment attempt.
type Session struct {
	ID            string       `json:"id"`
	AuctionID     string       `json:"auctionId"`
	UserID        string       `json:"userId"`
	TransactionID string       `json:"appTransId"`
	Amount        Amount       `json:"amount"`
	Currency      string       `json:"currency"`
	Status        ServerStatus `json:"status"`
	OrderURL      string       `json:"orderUrl,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	ExpiresAt     time.Time    `json:"expiresAt"`
}

// Booking is created by the backend once a payment is settled.
type Booking struct {
	ID              string    `json:"id"`
	ReferenceNumber string    `json:"referenceNumber"`
	PropertyID      string    `json:"propertyId"`
	PropertyName    string    `json:"propertyName"`
	CheckIn         string    `json:"checkIn"`
	CheckOut        string    `json:"checkOut"`
	GuestCount      int       `json:"guestCount"`
	TotalAmount     Amount    `json:"totalAmount"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}
