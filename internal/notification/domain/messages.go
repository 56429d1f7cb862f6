package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MessageType tags an inbound notification.
type MessageType string

const (
	TypeAuctionResult     MessageType = "AUCTION_RESULT"
	TypeSecondChanceOffer MessageType = "SECOND_CHANCE_OFFER"
	TypePaymentStatus     MessageType = "PAYMENT_STATUS"
	TypeBookingConfirmed  MessageType = "BOOKING_CONFIRMED"
)

// Types lists every message type the discriminator accepts.
var Types = []MessageType{TypeAuctionResult, TypeSecondChanceOffer, TypePaymentStatus, TypeBookingConfirmed}

type ResultKind string

const (
	ResultFullWin    ResultKind = "FULL_WIN"
	ResultPartialWin ResultKind = "PARTIAL_WIN"
	ResultLost       ResultKind = "LOST"
)

// PaymentState is the status carried by PAYMENT_STATUS messages.
type PaymentState string

const (
	PaymentInitiated  PaymentState = "INITIATED"
	PaymentProcessing PaymentState = "PROCESSING"
	PaymentCompleted  PaymentState = "COMPLETED"
	PaymentFailed     PaymentState = "FAILED"
)

// DedupKey identifies a message for de-duplication: its type plus the id of
// the thing it reports on.
type DedupKey struct {
	Type MessageType
	ID   string
}

func (k DedupKey) String() string { return string(k.Type) + ":" + k.ID }

// Message is one of the four notification kinds.
type Message interface {
	MessageType() MessageType
	Recipient() string
	DedupKey() DedupKey
}

// BaseMessage carries the type tag shared by every message.
type BaseMessage struct {
	Type MessageType `json:"type"`
}

type AuctionResult struct {
	BaseMessage
	AuctionID       string          `json:"auctionId"`
	UserID          string          `json:"userId"`
	Result          ResultKind      `json:"result"`
	AwardedNights   []string        `json:"awardedNights,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDeadline time.Time       `json:"paymentDeadline"`
	PropertyName    string          `json:"propertyName"`
}

type SecondChanceOffer struct {
	BaseMessage
	OfferID          string          `json:"offerId"`
	AuctionID        string          `json:"auctionId"`
	UserID           string          `json:"userId"`
	OfferedNights    []string        `json:"offeredNights"`
	Amount           decimal.Decimal `json:"amount"`
	ResponseDeadline time.Time       `json:"responseDeadline"`
	PropertyName     string          `json:"propertyName"`
}

type PaymentStatus struct {
	BaseMessage
	PaymentID     string       `json:"paymentId"`
	UserID        string       `json:"userId"`
	Status        PaymentState `json:"status"`
	TransactionID string       `json:"transactionId,omitempty"`
}

type BookingConfirmed struct {
	BaseMessage
	BookingID    string `json:"bookingId"`
	UserID       string `json:"userId"`
	PropertyName string `json:"propertyName"`
	CheckIn      string `json:"checkIn"`
	CheckOut     string `json:"checkOut"`
}

func (m *AuctionResult) MessageType() MessageType     { return TypeAuctionResult }
func (m *SecondChanceOffer) MessageType() MessageType { return TypeSecondChanceOffer }
func (m *PaymentStatus) MessageType() MessageType     { return TypePaymentStatus }
func (m *BookingConfirmed) MessageType() MessageType  { return TypeBookingConfirmed }

func (m *AuctionResult) Recipient() string     { return m.UserID }
func (m *SecondChanceOffer) Recipient() string { return m.UserID }
func (m *PaymentStatus) Recipient() string     { return m.UserID }
func (m *BookingConfirmed) Recipient() string  { return m.UserID }

// An auction result is applied once per auction whatever the wording of later
// copies. Payment statuses are keyed by payment and status so progress from
// PROCESSING to COMPLETED is not mistaken for a duplicate.
func (m *AuctionResult) DedupKey() DedupKey {
	return DedupKey{Type: TypeAuctionResult, ID: m.AuctionID}
}

func (m *SecondChanceOffer) DedupKey() DedupKey {
	return DedupKey{Type: TypeSecondChanceOffer, ID: m.OfferID}
}

func (m *PaymentStatus) DedupKey() DedupKey {
	return DedupKey{Type: TypePaymentStatus, ID: m.PaymentID + "/" + string(m.Status)}
}

func (m *BookingConfirmed) DedupKey() DedupKey {
	return DedupKey{Type: TypeBookingConfirmed, ID: m.BookingID}
}
