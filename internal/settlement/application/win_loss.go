package application

import (
	"context"
	"fmt"

	"github.com/cristianortiz/auctionSettlement/internal/settlement/domain"
)

// GetWinLossUseCase recomputes the win/loss report from fresh market prices.
type GetWinLossUseCase struct {
	gateway    domain.WinnerGateway
	thresholds domain.Thresholds
}

func NewGetWinLossUseCase(gateway domain.WinnerGateway, thresholds domain.Thresholds) *GetWinLossUseCase {
	return &GetWinLossUseCase{gateway: gateway, thresholds: thresholds}
}

func (uc *GetWinLossUseCase) Execute(ctx context.Context, userID string, bid domain.Bid) (*domain.WinLossReport, error) {
	market, err := uc.gateway.MarketPrices(ctx, userID, bid.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("win/loss: auction %s: %w", bid.AuctionID, err)
	}
	report, err := domain.CalculateWinLoss(bid.Span(), market, uc.thresholds)
	if err != nil {
		return nil, err
	}
	return &report, nil
}
