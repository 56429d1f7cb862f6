package domain

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/peterldowns/testy/check"
)

func night(s string, price int64) AwardedNight {
	return AwardedNight{Date: MustParseDate(s), PricePerNight: price, IsSelected: true}
}

func TestGroupNights(t *testing.T) {
	tests := []struct {
		name       string
		nights     []AwardedNight
		wantRanges [][2]string
		wantTotals []int64
	}{
		{"empty input", nil, nil, nil},
		{"single night", []AwardedNight{night("2025-08-01", 100)}, [][2]string{{"2025-08-01", "2025-08-01"}}, []int64{100}},
		{
			"three consecutive nights unordered",
			[]AwardedNight{night("2025-08-03", 100), night("2025-08-01", 100), night("2025-08-02", 100)},
			[][2]string{{"2025-08-01", "2025-08-03"}},
			[]int64{300},
		},
		{
			"gap splits ranges",
			[]AwardedNight{night("2025-08-01", 100), night("2025-08-03", 120)},
			[][2]string{{"2025-08-01", "2025-08-01"}, {"2025-08-03", "2025-08-03"}},
			[]int64{100, 120},
		},
		{
			"month boundary stays consecutive",
			[]AwardedNight{night("2025-08-31", 90), night("2025-09-01", 110), night("2025-09-05", 50)},
			[][2]string{{"2025-08-31", "2025-09-01"}, {"2025-09-05", "2025-09-05"}},
			[]int64{200, 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges, err := GroupNights(tt.nights)
			check.NoError(t, err)
			check.Equal(t, len(tt.wantRanges), len(ranges))
			for i, r := range ranges {
				check.Equal(t, tt.wantRanges[i][0], r.StartDate.String())
				check.Equal(t, tt.wantRanges[i][1], r.EndDate.String())
				check.Equal(t, tt.wantTotals[i], r.TotalAmount)
				check.Equal(t, RangeID(r.StartDate, r.EndDate), r.RangeID)
				for _, n := range r.Nights {
					check.Equal(t, r.RangeID, n.RangeID)
				}
			}
		})
	}
}

func TestGroupNights_DuplicateDateFails(t *testing.T) {
	_, err := GroupNights([]AwardedNight{night("2025-08-01", 100), night("2025-08-02", 100), night("2025-08-01", 100)})
	check.Error(t, err)
	check.True(t, errors.Is(err, ErrDuplicateNight))
	check.True(t, errors.Is(err, apperror.ErrValidation))
	check.True(t, strings.Contains(err.Error(), "2025-08-01"))
}

func TestGroupNights_NegativePriceFails(t *testing.T) {
	_, err := GroupNights([]AwardedNight{night("2025-08-01", -1)})
	check.True(t, errors.Is(err, ErrInvalidPrice))
}

func TestGroupNights_DoesNotMutateInput(t *testing.T) {
	in := []AwardedNight{night("2025-08-02", 1), night("2025-08-01", 2)}
	_, err := GroupNights(in)
	check.NoError(t, err)
	check.Equal(t, "2025-08-02", in[0].Date.String())
}

// randomNights draws distinct dates from a 60 day window.
func randomNights(r *rand.Rand) []AwardedNight {
	base := NewDate(2025, 1, 1)
	var out []AwardedNight
	for _, offset := range r.Perm(60)[:r.Intn(30)] {
		out = append(out, AwardedNight{Date: base.AddDays(offset), PricePerNight: int64(r.Intn(500))})
	}
	return out
}

func TestGroupNights_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		nights := randomNights(r)
		ranges, err := GroupNights(nights)
		check.NoError(t, err)

		count := 0
		for i, rg := range ranges {
			count += rg.Len()
			var total int64
			for j, n := range rg.Nights {
				total += n.PricePerNight
				if j > 0 {
					check.True(t, rg.Nights[j-1].Date.NextDayIs(n.Date))
				}
			}
			check.Equal(t, total, rg.TotalAmount)
			if i > 0 {
				// adjacent ranges could never be merged
				check.True(t, ranges[i-1].EndDate.AddDays(1).Before(rg.StartDate))
			}
		}
		check.Equal(t, len(nights), count)

		again, err := GroupNights(FlattenRanges(ranges))
		check.NoError(t, err)
		check.Equal(t, ranges, again)
	}
}
