package domain

import (
	"context"
	"time"
)

// CreateRequest is the body of a create-payment call.
type CreateRequest struct {
	AuctionID      string   `json:"auctionId"`
	SelectedNights []string `json:"selectedNights"`
	Amount         Amount   `json:"amount"`
	OrderInfo      string   `json:"orderInfo"`
	RedirectParams string   `json:"redirectParams,omitempty"`
	// IdempotencyKey is sent as a header, not in the body.
	IdempotencyKey string `json:"-"`
}

type CreateResult struct {
	SessionID     string `json:"id,omitempty"`
	RedirectURL   string `json:"orderUrl"`
	TransactionID string `json:"appTransId"`
	Amount        Amount `json:"amount"`
}

type StatusResult struct {
	Status        ServerStatus `json:"status"`
	TransactionID string       `json:"transactionId,omitempty"`
	Amount        Amount       `json:"amount,omitempty"`
	PaidAt        *time.Time   `json:"paidAt,omitempty"`
}

// PaymentGateway is the backend side of payment sessions.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	VerifyPayment(ctx context.Context, transactionID string) (*StatusResult, error)
	GetBooking(ctx context.Context, paymentID string) (*Booking, error)
}
