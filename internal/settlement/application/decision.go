package application

import (
	"slices"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/settlement/domain"
	"github.com/shopspring/decimal"
)

// DecisionKind is which decision screen the winner gets.
type DecisionKind string

const (
	DecisionFullWin    DecisionKind = "FULL_WIN"
	DecisionPartialWin DecisionKind = "PARTIAL_WIN"
	DecisionLost       DecisionKind = "LOST"
)

// DecisionDTO is the output DTO rendered by the decision screens.
type DecisionDTO struct {
	AuctionID         string                  `json:"auction_id"`
	WinnerID          string                  `json:"winner_id"`
	PropertyName      string                  `json:"property_name"`
	Kind              DecisionKind            `json:"kind"`
	Ranges            []domain.NightRange     `json:"ranges"`
	SelectedTotal     int64                   `json:"selected_total"`
	AwardedTotal      int64                   `json:"awarded_total"`
	OriginalTotal     int64                   `json:"original_total"`
	PercentOfOriginal float64                 `json:"percent_of_original"`
	AwardedNights     int                     `json:"awarded_nights"`
	RequestedNights   int                     `json:"requested_nights"`
	CanProceed        bool                    `json:"can_proceed"`
	Outcome           domain.SelectionOutcome `json:"outcome,omitempty"`
	PaymentDeadline   time.Time               `json:"payment_deadline"`
	WinLoss           *domain.WinLossReport   `json:"win_loss,omitempty"`
}

// PaymentRequest is what a proceed hands over to the payment session.
type PaymentRequest struct {
	AuctionID string                `json:"auction_id"`
	WinnerID  string                `json:"winner_id"`
	Amount    int64                 `json:"amount"`
	Nights    []domain.AwardedNight `json:"nights"`
}

// decision holds the mutable selection of one winner record.
type decision struct {
	record    domain.WinnerRecord
	kind      DecisionKind
	selection *domain.Selection
	winLoss   *domain.WinLossReport
}

// ClassifyWin derives the decision kind from the record and the bid it was awarded for.
func ClassifyWin(record domain.WinnerRecord, ranges []domain.NightRange) DecisionKind {
	awarded := len(domain.FlattenRanges(ranges))
	switch {
	case awarded == 0:
		return DecisionLost
	case record.WinType == domain.WinPartial:
		return DecisionPartialWin
	case record.WinType == domain.WinFull:
		return DecisionFullWin
	case len(ranges) == 1 && awarded == record.Bid.Nights():
		return DecisionFullWin
	default:
		return DecisionPartialWin
	}
}

func newDecision(record domain.WinnerRecord) (*decision, error) {
	nights := slices.Clone(record.AwardedNights)
	for i := range nights {
		if nights[i].PricePerNight == 0 {
			nights[i].PricePerNight = record.Bid.PricePerNight
		}
	}
	ranges, err := domain.GroupNights(nights)
	if err != nil {
		return nil, err
	}
	return &decision{
		record:    record,
		kind:      ClassifyWin(record, ranges),
		selection: domain.NewSelection(ranges),
	}, nil
}

func (d *decision) dto() *DecisionDTO {
	ranges := d.selection.Ranges()
	awarded := d.selection.FullTotal()
	original := d.record.Bid.TotalAmount
	if original == 0 {
		original = d.record.Bid.PricePerNight * int64(d.record.Bid.Nights())
	}

	dto := &DecisionDTO{
		AuctionID:       d.record.AuctionID,
		WinnerID:        d.record.ID,
		PropertyName:    d.record.PropertyName,
		Kind:            d.kind,
		Ranges:          ranges,
		SelectedTotal:   d.selection.SelectedTotal(),
		AwardedTotal:    awarded,
		OriginalTotal:   original,
		AwardedNights:   len(domain.FlattenRanges(ranges)),
		RequestedNights: d.record.Bid.Nights(),
		CanProceed:      d.kind != DecisionLost && d.selection.SelectedCount() > 0 && d.selection.Outcome() == domain.OutcomeUndecided,
		Outcome:         d.selection.Outcome(),
		PaymentDeadline: d.record.PaymentDeadline,
		WinLoss:         d.winLoss,
	}
	if original > 0 {
		dto.PercentOfOriginal, _ = decimal.NewFromInt(awarded).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(original)).
			Round(1).
			Float64()
	}
	return dto
}
