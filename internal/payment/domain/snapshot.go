package domain

import (
	"context"
	"time"
)

// BookingContext is what the payment is for. It travels with the flow through
// every detour.
type BookingContext struct {
	AuctionID    string   `json:"auctionId"`
	WinnerID     string   `json:"winnerId,omitempty"`
	PropertyName string   `json:"propertyName,omitempty"`
	Nights       []string `json:"selectedNights"`
	OrderInfo    string   `json:"orderInfo,omitempty"`
	ReturnURL    string   `json:"returnUrl,omitempty"`
}

// Snapshot is the pre-redirect state kept outside the machine so a login or
// provider round trip resumes where it stopped.
type Snapshot struct {
	Locator       string         `json:"locator"`
	UserID        string         `json:"userId"`
	Stage         State          `json:"stage"`
	Amount        Amount         `json:"amount"`
	Currency      string         `json:"currency"`
	Context       BookingContext `json:"context"`
	RequestKey    string         `json:"requestKey"`
	SessionID     string         `json:"sessionId,omitempty"`
	TransactionID string         `json:"transactionId,omitempty"`
	Attempts      int            `json:"attempts"`
	SavedAt       time.Time      `json:"savedAt"`
}

// ReturnContextStore is the durable key-value slot for snapshots.
type ReturnContextStore interface {
	Save(ctx context.Context, snap Snapshot, ttl time.Duration) error
	Load(ctx context.Context, locator string) (*Snapshot, error)
	Delete(ctx context.Context, locator string) error
}
