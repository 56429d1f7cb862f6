package domain

import "context"

// DeclineKind tells the analytics endpoint which decision was declined.
type DeclineKind string

const (
	DeclineFull         DeclineKind = "full"
	DeclinePartial      DeclineKind = "partial"
	DeclineSecondChance DeclineKind = "second_chance"
)

// WinnerGateway is the backend side of winner records and market prices.
type WinnerGateway interface {
	ListWinners(ctx context.Context) ([]WinnerRecord, error)
	GetWinner(ctx context.Context, auctionID string) (*WinnerRecord, error)
	AcceptWinner(ctx context.Context, auctionID string) error
	AcceptPartial(ctx context.Context, auctionID string, nights []Date) error
	DeclineWinner(ctx context.Context, auctionID, reason string) error
	TrackDecline(ctx context.Context, id, reason string, kind DeclineKind) error
	MarketPrices(ctx context.Context, userID, auctionID string) (map[Date]*int64, error)
}
