package domain

import (
	"time"

	"github.com/google/uuid"
)

// Objective is how the auction ranks bids.
type Objective string

const (
	ObjectiveHighestTotal    Objective = "HIGHEST_TOTAL"
	ObjectiveHighestPerNight Objective = "HIGHEST_PER_NIGHT"
	ObjectiveHybrid          Objective = "HYBRID"
)

type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "PENDING"
	AuctionActive    AuctionStatus = "ACTIVE"
	AuctionCompleted AuctionStatus = "COMPLETED"
	AuctionCancelled AuctionStatus = "CANCELLED"
)

// Auction is read only on this side, winners are computed by the backend.
type Auction struct {
	ID         string        `json:"id"`
	PropertyID string        `json:"propertyId"`
	StartDate  Date          `json:"startDate"`
	EndDate    Date          `json:"endDate"`
	Objective  Objective     `json:"objective"`
	Status     AuctionStatus `json:"status"`
}

type BidStatus string

const (
	BidActive    BidStatus = "ACTIVE"
	BidWithdrawn BidStatus = "WITHDRAWN"
	BidExpired   BidStatus = "EXPIRED"
)

// Bid covers [CheckIn, CheckOut), check-out day is not a night.
type Bid struct {
	ID            string    `json:"id"`
	AuctionID     string    `json:"auctionId"`
	UserID        string    `json:"userId"`
	CheckIn       Date      `json:"checkIn"`
	CheckOut      Date      `json:"checkOut"`
	TotalAmount   int64     `json:"totalAmount"`
	PricePerNight int64     `json:"pricePerNight"`
	AllowPartial  bool      `json:"allowPartial"`
	Status        BidStatus `json:"status"`
}

// Nights is the number of nights the bid spans.
func (b Bid) Nights() int { return b.CheckIn.DaysUntil(b.CheckOut) }

// Span returns the part of the bid the win/loss calculator needs.
func (b Bid) Span() BidSpan {
	return BidSpan{CheckIn: b.CheckIn, CheckOut: b.CheckOut, PricePerNight: b.PricePerNight}
}

// AwardedNight is one calendar night granted to a winner.
type AwardedNight struct {
	Date          Date      `json:"date"`
	PricePerNight int64     `json:"pricePerNight"`
	RangeID       uuid.UUID `json:"rangeId"`
	IsSelected    bool      `json:"isSelected"`
}

// NightRange is a maximal run of consecutive awarded nights. EndDate is the
// last awarded night, not a check-out day.
type NightRange struct {
	RangeID     uuid.UUID      `json:"rangeId"`
	StartDate   Date           `json:"startDate"`
	EndDate     Date           `json:"endDate"`
	Nights      []AwardedNight `json:"nights"`
	TotalAmount int64          `json:"totalAmount"`
}

func (r NightRange) Len() int { return len(r.Nights) }

type WinType string

const (
	WinFull    WinType = "FULL"
	WinPartial WinType = "PARTIAL"
)

type WinnerStatus string

const (
	WinnerNotified  WinnerStatus = "NOTIFIED"
	WinnerConfirmed WinnerStatus = "CONFIRMED"
	WinnerDeclined  WinnerStatus = "DECLINED"
	WinnerPaid      WinnerStatus = "PAID"
	WinnerExpired   WinnerStatus = "EXPIRED"
)

// WinnerRecord is the backend's outcome of an auction for one bidder, joined
// with the bid it was awarded for.
type WinnerRecord struct {
	ID              string         `json:"id"`
	AuctionID       string         `json:"auctionId"`
	BidID           string         `json:"bidId"`
	UserID          string         `json:"userId"`
	PropertyName    string         `json:"propertyName"`
	WinType         WinType        `json:"winType"`
	AwardedNights   []AwardedNight `json:"awardedNights"`
	TotalAmount     int64          `json:"totalAmount"`
	Status          WinnerStatus   `json:"status"`
	PaymentDeadline time.Time      `json:"paymentDeadline"`
	Bid             Bid            `json:"bid"`
}

// Open reports whether the record still waits for the winner's decision.
func (w WinnerRecord) Open(now time.Time) bool {
	return w.Status == WinnerNotified && now.Before(w.PaymentDeadline)
}
