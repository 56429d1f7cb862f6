package domain

import (
	"fmt"
	"slices"

	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/google/uuid"
)

var rangeNamespace = uuid.MustParse("8f0b5a52-6c1e-4d8e-9a57-3c0f6b1d2e41")

// RangeID is derived from the range bounds so regrouping the same nights
// always yields the same identifiers.
func RangeID(start, end Date) uuid.UUID {
	return uuid.NewSHA1(rangeNamespace, []byte(start.String()+"/"+end.String()))
}

// GroupNights collapses awarded nights into maximal consecutive ranges sorted
// by start date. A date present twice is rejected, nothing is merged.
// The input slice is not modified.
func GroupNights(nights []AwardedNight) ([]NightRange, error) {
	if len(nights) == 0 {
		return []NightRange{}, nil
	}

	sorted := slices.Clone(nights)
	slices.SortStableFunc(sorted, func(a, b AwardedNight) int { return a.Date.Compare(b.Date) })

	for i, n := range sorted {
		if n.PricePerNight < 0 {
			return nil, ErrInvalidPrice
		}
		if i > 0 && n.Date == sorted[i-1].Date {
			return nil, &apperror.Error{
				Kind:    ErrDuplicateNight.Kind,
				Code:    ErrDuplicateNight.Code,
				Message: fmt.Sprintf("night %s awarded more than once", n.Date),
			}
		}
	}

	var ranges []NightRange
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i-1].Date.NextDayIs(sorted[i].Date) {
			continue
		}
		ranges = append(ranges, buildRange(sorted[start:i]))
		start = i
	}
	return ranges, nil
}

func buildRange(run []AwardedNight) NightRange {
	r := NightRange{
		StartDate: run[0].Date,
		EndDate:   run[len(run)-1].Date,
		Nights:    make([]AwardedNight, len(run)),
	}
	r.RangeID = RangeID(r.StartDate, r.EndDate)
	for i, n := range run {
		n.RangeID = r.RangeID
		r.Nights[i] = n
		r.TotalAmount += n.PricePerNight
	}
	return r
}

// FlattenRanges returns the nights of every range in range order.
func FlattenRanges(ranges []NightRange) []AwardedNight {
	var out []AwardedNight
	for _, r := range ranges {
		out = append(out, r.Nights...)
	}
	return out
}

// NightsFromDates prices a plain list of awarded dates at a flat nightly rate.
func NightsFromDates(dates []Date, pricePerNight int64) []AwardedNight {
	out := make([]AwardedNight, len(dates))
	for i, d := range dates {
		out[i] = AwardedNight{Date: d, PricePerNight: pricePerNight, IsSelected: true}
	}
	return out
}
