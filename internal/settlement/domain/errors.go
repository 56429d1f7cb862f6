package domain

import "github.com/cristianortiz/auctionSettlement/internal/shared/apperror"

var (
	ErrInvalidDate     = apperror.New(apperror.KindValidation, "INVALID_DATE", "invalid calendar date")
	ErrDuplicateNight  = apperror.New(apperror.KindValidation, "DUPLICATE_NIGHT", "night awarded more than once")
	ErrInvalidBidSpan  = apperror.New(apperror.KindValidation, "INVALID_BID_SPAN", "check-out must be after check-in")
	ErrInvalidPrice    = apperror.New(apperror.KindValidation, "INVALID_PRICE", "price cannot be negative")
	ErrEmptySelection  = apperror.New(apperror.KindValidation, "EMPTY_SELECTION", "select at least one range to continue")
	ErrSelectionClosed = apperror.New(apperror.KindConflict, "SELECTION_CLOSED", "decision already taken")
	ErrRangeNotFound   = apperror.New(apperror.KindNotFound, "RANGE_NOT_FOUND", "night range not found")
	ErrWinnerNotFound  = apperror.New(apperror.KindNotFound, "WINNER_NOT_FOUND", "winner record not found")
)
