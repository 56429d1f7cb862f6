package domain

import (
	"fmt"

	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/shopspring/decimal"
)

// Amount is an integral currency amount, the currency has no minor unit.
type Amount int64

// Validate checks the amount is strictly positive and within the provider limit.
func (a Amount) Validate(max Amount) error {
	switch {
	case a <= 0:
		return apperror.Validation(CodeInvalidAmount, "amount must be greater than 0, got %d", a)
	case max > 0 && a > max:
		return apperror.Validation(CodeInvalidAmount, "amount %d exceeds the limit of %d", a, max)
	}
	return nil
}

// ParseAmount reads a decimal string, rejecting fractions and anything that is
// not a finite number.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, apperror.Validation(CodeInvalidAmount, "amount %q is not a number", s)
	}
	if !d.IsInteger() {
		return 0, apperror.Validation(CodeInvalidAmount, "amount %s has a fractional part", d)
	}
	if !d.BigInt().IsInt64() {
		return 0, apperror.Validation(CodeInvalidAmount, "amount %s is out of range", d)
	}
	return Amount(d.IntPart()), nil
}

func (a Amount) String() string { return fmt.Sprintf("%d", int64(a)) }
