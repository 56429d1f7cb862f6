package domain

import (
	"github.com/shopspring/decimal"
)

type DayStatus string

const (
	DayWin    DayStatus = "WIN"
	DayLose   DayStatus = "LOSE"
	DayNoData DayStatus = "NO_DATA"
)

// OverallStatus labels a win rate against the configured thresholds.
type OverallStatus string

const (
	OverallFavorable OverallStatus = "favorable"
	OverallWinning   OverallStatus = "winning"
	OverallAtRisk    OverallStatus = "at_risk"
	OverallNoData    OverallStatus = "no_data"
)

const (
	percentPlaces = 2
	winRatePlaces = 1
)

var hundred = decimal.NewFromInt(100)

// BidSpan is a nightly price over [CheckIn, CheckOut).
type BidSpan struct {
	CheckIn       Date
	CheckOut      Date
	PricePerNight int64
}

// Thresholds are win rate percentages. A rate >= Favorable is favorable,
// >= Winning is winning, anything lower is at risk.
type Thresholds struct {
	Winning   float64
	Favorable float64
}

type DailyComparison struct {
	Date                 Date      `json:"date"`
	BidPrice             int64     `json:"bid_price"`
	MarketPrice          *int64    `json:"market_price"`
	Status               DayStatus `json:"status"`
	Difference           *int64    `json:"difference"`
	DifferencePercentage *float64  `json:"difference_percentage"`
}

type WinLossSummary struct {
	TotalDays  int     `json:"total_days"`
	WinDays    int     `json:"win_days"`
	LoseDays   int     `json:"lose_days"`
	NoDataDays int     `json:"no_data_days"`
	WinRate    float64 `json:"win_rate"`
	NoData     bool    `json:"no_data"`
}

type BidInfo struct {
	CheckIn       Date  `json:"check_in"`
	CheckOut      Date  `json:"check_out"`
	PricePerNight int64 `json:"price_per_night"`
	TotalAmount   int64 `json:"total_amount"`
	Nights        int   `json:"nights"`
}

type WinLossReport struct {
	Bid     BidInfo           `json:"bid_info"`
	Days    []DailyComparison `json:"daily_comparison"`
	Summary WinLossSummary    `json:"summary"`
	Overall OverallStatus     `json:"overall_status"`
}

// CalculateWinLoss compares the bid's nightly price with the market price of
// every night in the span. A nil or missing market price is NO_DATA and is
// left out of the win rate. The result depends on the arguments only.
func CalculateWinLoss(span BidSpan, market map[Date]*int64, th Thresholds) (WinLossReport, error) {
	if span.CheckIn.IsZero() || !span.CheckIn.Before(span.CheckOut) {
		return WinLossReport{}, ErrInvalidBidSpan
	}
	if span.PricePerNight < 0 {
		return WinLossReport{}, ErrInvalidPrice
	}

	nights := span.CheckIn.DaysUntil(span.CheckOut)
	report := WinLossReport{
		Bid: BidInfo{
			CheckIn:       span.CheckIn,
			CheckOut:      span.CheckOut,
			PricePerNight: span.PricePerNight,
			TotalAmount:   span.PricePerNight * int64(nights),
			Nights:        nights,
		},
		Days: make([]DailyComparison, 0, nights),
	}

	for d := span.CheckIn; d.Before(span.CheckOut); d = d.AddDays(1) {
		day := compareDay(d, span.PricePerNight, market[d])
		switch day.Status {
		case DayWin:
			report.Summary.WinDays++
		case DayLose:
			report.Summary.LoseDays++
		default:
			report.Summary.NoDataDays++
		}
		report.Days = append(report.Days, day)
	}

	report.Summary.TotalDays = len(report.Days)
	report.Summary.WinRate, report.Summary.NoData = winRate(report.Summary.WinDays, report.Summary.LoseDays)
	report.Overall = th.Label(report.Summary)
	return report, nil
}

func compareDay(d Date, bid int64, market *int64) DailyComparison {
	day := DailyComparison{Date: d, BidPrice: bid, Status: DayNoData}
	if market == nil {
		return day
	}
	m := *market
	diff := bid - m
	day.MarketPrice = &m
	day.Difference = &diff
	if bid >= m {
		day.Status = DayWin
	} else {
		day.Status = DayLose
	}
	if m != 0 {
		pct, _ := decimal.NewFromInt(diff).
			Div(decimal.NewFromInt(m)).
			Mul(hundred).
			Round(percentPlaces).
			Float64()
		day.DifferencePercentage = &pct
	}
	return day
}

// winRate is wins over decided days as a percentage. With no decided day the
// rate is undefined, reported as 0 with the no-data flag set.
func winRate(win, lose int) (float64, bool) {
	decided := win + lose
	if decided == 0 {
		return 0, true
	}
	rate, _ := decimal.NewFromInt(int64(win)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(decided))).
		Round(winRatePlaces).
		Float64()
	return rate, false
}

func (th Thresholds) Label(s WinLossSummary) OverallStatus {
	switch {
	case s.NoData:
		return OverallNoData
	case s.WinRate >= th.Favorable:
		return OverallFavorable
	case s.WinRate >= th.Winning:
		return OverallWinning
	default:
		return OverallAtRisk
	}
}
