package application

import (
	"context"

	"github.com/cristianortiz/auctionSettlement/internal/settlement/domain"
	"github.com/google/uuid"
)

// SettlementService exposes the winner decision use cases to the infra layer.
type SettlementService interface {
	GetDecision(ctx context.Context, auctionID string) (*DecisionDTO, error)
	ToggleRange(ctx context.Context, auctionID string, rangeID uuid.UUID) (*DecisionDTO, error)
	Proceed(ctx context.Context, auctionID string) (*PaymentRequest, error)
	Decline(ctx context.Context, auctionID, reason string) error
	WinLoss(ctx context.Context, userID string, bid domain.Bid) (*domain.WinLossReport, error)
	// Forget drops the cached decision so the next read refetches the winner record.
	Forget(auctionID string)
	// Reset drops every cached decision, used when the user signs out.
	Reset()
}

type settlementService struct {
	store       *decisionStore
	getDecision *GetDecisionUseCase
	toggle      *ToggleRangeUseCase
	proceed     *ProceedUseCase
	decline     *DeclineUseCase
	winLoss     *GetWinLossUseCase
}

func NewSettlementService(gateway domain.WinnerGateway, thresholds domain.Thresholds) SettlementService {
	store := newDecisionStore()
	return &settlementService{
		store:       store,
		getDecision: NewGetDecisionUseCase(gateway, store, thresholds),
		toggle:      NewToggleRangeUseCase(store),
		proceed:     NewProceedUseCase(gateway, store),
		decline:     NewDeclineUseCase(gateway, store),
		winLoss:     NewGetWinLossUseCase(gateway, thresholds),
	}
}

func (s *settlementService) GetDecision(ctx context.Context, auctionID string) (*DecisionDTO, error) {
	return s.getDecision.Execute(ctx, auctionID)
}

func (s *settlementService) ToggleRange(ctx context.Context, auctionID string, rangeID uuid.UUID) (*DecisionDTO, error) {
	return s.toggle.Execute(ctx, auctionID, rangeID)
}

func (s *settlementService) Proceed(ctx context.Context, auctionID string) (*PaymentRequest, error) {
	return s.proceed.Execute(ctx, auctionID)
}

func (s *settlementService) Decline(ctx context.Context, auctionID, reason string) error {
	return s.decline.Execute(ctx, auctionID, reason)
}

func (s *settlementService) WinLoss(ctx context.Context, userID string, bid domain.Bid) (*domain.WinLossReport, error) {
	return s.winLoss.Execute(ctx, userID, bid)
}

func (s *settlementService) Forget(auctionID string) { s.store.forget(auctionID) }

func (s *settlementService) Reset() { s.store.reset() }
