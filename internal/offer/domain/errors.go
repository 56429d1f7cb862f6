package domain

import "github.com/cristianortiz/auctionSettlement/internal/shared/apperror"

var (
	ErrOfferNotWaiting = apperror.New(apperror.KindConflict, "OFFER_NOT_WAITING", "offer was already answered or expired")
	ErrOfferExpired    = apperror.New(apperror.KindConflict, "OFFER_EXPIRED", "offer response deadline has passed")
	ErrOfferNotFound   = apperror.New(apperror.KindNotFound, "OFFER_NOT_FOUND", "offer not found")
	ErrInvalidOffer    = apperror.New(apperror.KindValidation, "INVALID_OFFER", "offer is missing its id or deadline")
)
