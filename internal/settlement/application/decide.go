package application

import (
	"context"
	"fmt"

	"github.com/cristianortiz/auctionSettlement/internal/settlement/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errDecisionNotLoaded = apperror.New(apperror.KindNotFound, "DECISION_NOT_LOADED", "open the decision before changing it")

// ToggleRangeUseCase flips one night range of an open decision.
type ToggleRangeUseCase struct {
	store *decisionStore
}

func NewToggleRangeUseCase(store *decisionStore) *ToggleRangeUseCase {
	return &ToggleRangeUseCase{store: store}
}

func (uc *ToggleRangeUseCase) Execute(_ context.Context, auctionID string, rangeID uuid.UUID) (*DecisionDTO, error) {
	d, ok := uc.store.get(auctionID)
	if !ok {
		return nil, errDecisionNotLoaded
	}
	if _, err := d.selection.Toggle(rangeID); err != nil {
		return nil, err
	}
	return d.dto(), nil
}

// ProceedUseCase accepts the selected nights with the backend and returns the
// payment request for them. A partial selection is accepted as a partial offer.
type ProceedUseCase struct {
	gateway domain.WinnerGateway
	store   *decisionStore
}

func NewProceedUseCase(gateway domain.WinnerGateway, store *decisionStore) *ProceedUseCase {
	return &ProceedUseCase{gateway: gateway, store: store}
}

func (uc *ProceedUseCase) Execute(ctx context.Context, auctionID string) (req *PaymentRequest, err error) {
	d, ok := uc.store.get(auctionID)
	if !ok {
		return nil, errDecisionNotLoaded
	}
	if d.kind == DecisionLost {
		return nil, apperror.Conflict("AUCTION_LOST", "nothing was awarded for auction %s", auctionID)
	}

	nights, total, err := d.selection.Proceed()
	if err != nil {
		return nil, err
	}
	// the selection only stays closed once the backend took the decision
	defer func() {
		if err != nil {
			d.selection.Reopen()
		}
	}()

	if d.kind == DecisionFullWin && d.selection.SelectedCount() == len(d.selection.Ranges()) {
		err = uc.gateway.AcceptWinner(ctx, auctionID)
	} else {
		dates := make([]domain.Date, len(nights))
		for i, n := range nights {
			dates[i] = n.Date
		}
		err = uc.gateway.AcceptPartial(ctx, auctionID, dates)
	}
	if err != nil {
		log.Error("ProceedUseCase: backend rejected acceptance",
			zap.String("auctionID", auctionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("proceed: auction %s: %w", auctionID, err)
	}

	log.Info("Winner proceeded to payment",
		zap.String("auctionID", auctionID),
		zap.Int("nights", len(nights)),
		zap.Int64("amount", total),
	)
	return &PaymentRequest{
		AuctionID: auctionID,
		WinnerID:  d.record.ID,
		Amount:    total,
		Nights:    nights,
	}, nil
}

// DeclineUseCase declines the whole decision, whatever is selected.
type DeclineUseCase struct {
	gateway domain.WinnerGateway
	store   *decisionStore
}

func NewDeclineUseCase(gateway domain.WinnerGateway, store *decisionStore) *DeclineUseCase {
	return &DeclineUseCase{gateway: gateway, store: store}
}

func (uc *DeclineUseCase) Execute(ctx context.Context, auctionID, reason string) error {
	d, ok := uc.store.get(auctionID)
	if !ok {
		return errDecisionNotLoaded
	}
	if err := d.selection.Decline(); err != nil {
		return err
	}

	if err := uc.gateway.DeclineWinner(ctx, auctionID, reason); err != nil {
		d.selection.Reopen()
		log.Error("DeclineUseCase: backend decline failed",
			zap.String("auctionID", auctionID),
			zap.Error(err),
		)
		return fmt.Errorf("decline: auction %s: %w", auctionID, err)
	}

	if reason != "" {
		kind := domain.DeclineFull
		if d.kind == DecisionPartialWin {
			kind = domain.DeclinePartial
		}
		if err := uc.gateway.TrackDecline(ctx, d.record.ID, reason, kind); err != nil {
			log.Warn("DeclineUseCase: decline reason not tracked", zap.String("auctionID", auctionID), zap.Error(err))
		}
	}
	log.Info("Winner declined", zap.String("auctionID", auctionID), zap.String("reason", reason))
	return nil
}
