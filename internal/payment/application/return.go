package application

import (
	"net/url"

	"github.com/cristianortiz/auctionSettlement/internal/payment/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
)

// ReturnParams is what the provider appends to the return URL.
type ReturnParams struct {
	TransactionID string
	Locator       string
}

// ParseReturnQuery reads a provider return query. The provider is not
// consistent about the casing of the transaction parameter.
func ParseReturnQuery(rawQuery string) (ReturnParams, error) {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ReturnParams{}, apperror.Validation(domain.CodeMissingTransaction, "malformed return query: %v", err)
	}
	p := ReturnParams{
		TransactionID: q.Get("apptransid"),
		Locator:       q.Get("locator"),
	}
	if p.TransactionID == "" {
		p.TransactionID = q.Get("appTransId")
	}
	if p.TransactionID == "" && p.Locator == "" {
		return p, domain.ErrMissingTransaction
	}
	return p, nil
}
