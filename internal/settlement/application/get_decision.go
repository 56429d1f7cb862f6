package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/cristianortiz/auctionSettlement/internal/settlement/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// decisionStore keeps one decision per auction for the signed in user.
type decisionStore struct {
	mu    sync.Mutex
	byKey map[string]*decision
}

func newDecisionStore() *decisionStore {
	return &decisionStore{byKey: make(map[string]*decision)}
}

func (s *decisionStore) get(auctionID string) (*decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byKey[auctionID]
	return d, ok
}

func (s *decisionStore) put(auctionID string, d *decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[auctionID] = d
}

func (s *decisionStore) forget(auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, auctionID)
}

func (s *decisionStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey = make(map[string]*decision)
}

// GetDecisionUseCase loads a winner record and builds the decision screen for it.
// A decision already in progress is returned as is, so toggles survive a reload.
type GetDecisionUseCase struct {
	gateway    domain.WinnerGateway
	store      *decisionStore
	thresholds domain.Thresholds
}

func NewGetDecisionUseCase(gateway domain.WinnerGateway, store *decisionStore, thresholds domain.Thresholds) *GetDecisionUseCase {
	return &GetDecisionUseCase{gateway: gateway, store: store, thresholds: thresholds}
}

func (uc *GetDecisionUseCase) Execute(ctx context.Context, auctionID string) (*DecisionDTO, error) {
	if d, ok := uc.store.get(auctionID); ok {
		return d.dto(), nil
	}

	record, err := uc.gateway.GetWinner(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("get decision: failed to get winner for auction %s: %w", auctionID, err)
	}
	if record == nil {
		return nil, domain.ErrWinnerNotFound
	}

	d, err := newDecision(*record)
	if err != nil {
		log.Warn("GetDecisionUseCase: winner record has invalid nights",
			zap.String("auctionID", auctionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("get decision: auction %s: %w", auctionID, err)
	}

	// win/loss is informative only, the decision stands without it
	if d.kind != DecisionLost && !record.Bid.CheckIn.IsZero() {
		market, err := uc.gateway.MarketPrices(ctx, record.UserID, auctionID)
		if err != nil {
			log.Warn("GetDecisionUseCase: market prices unavailable",
				zap.String("auctionID", auctionID),
				zap.Error(err),
			)
		} else if report, err := domain.CalculateWinLoss(record.Bid.Span(), market, uc.thresholds); err == nil {
			d.winLoss = &report
		}
	}

	uc.store.put(auctionID, d)
	log.Info("Decision built",
		zap.String("auctionID", auctionID),
		zap.String("kind", string(d.kind)),
		zap.Int64("awardedTotal", d.selection.FullTotal()),
	)
	return d.dto(), nil
}
