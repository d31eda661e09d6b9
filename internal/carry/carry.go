// Package carry holds the pure math for perpetual and dated futures:
// basis, annualized premium, funding cashflows, cash-and-carry PnL and
// cost-of-carry fair pricing. Every function is stateless and free of
// I/O; bad inputs surface as ErrInvalidInput or ErrInsufficientData.
package carry

import (
	"errors"
	"fmt"
	"math"
	"time"

	"perpcarry/internal/models"
)

var (
	// ErrInvalidInput marks non-positive or non-finite numeric arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientData marks a forecast requested with too few observations.
	ErrInsufficientData = errors.New("insufficient data")
)

// Side selects which leg of a perp position a cashflow applies to.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ForecastWindow is the number of recent settled rates averaged by
// PredictedNextFunding.
const ForecastWindow = 3

// Binance USD-M funding rule constants: default interest rate per 8h
// interval and the clamp bound on (interest - premium).
const (
	interestPerInterval = 0.0001
	premiumClampBound   = 0.0005
)

const secondsPerYear = 365.0 * 24.0 * 3600.0

func validPrice(x float64) bool {
	return x > 0 && !math.IsNaN(x) && !math.IsInf(x, 0)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Basis returns mark minus index.
func Basis(mark, index float64) (float64, error) {
	if !validPrice(mark) || !validPrice(index) {
		return 0, fmt.Errorf("basis: mark=%v index=%v: %w", mark, index, ErrInvalidInput)
	}
	return mark - index, nil
}

// FractionalBasis returns the basis as a fraction of the index price,
// (mark - index) / index.
func FractionalBasis(mark, index float64) (float64, error) {
	b, err := Basis(mark, index)
	if err != nil {
		return 0, err
	}
	return b / index, nil
}

// AnnualizedPremiumPct scales the fractional basis by the number of
// funding periods per year and expresses it in percent.
func AnnualizedPremiumPct(mark, index, periodsPerYear float64) (float64, error) {
	if periodsPerYear <= 0 || !finite(periodsPerYear) {
		return 0, fmt.Errorf("annualized premium: periods per year %v: %w", periodsPerYear, ErrInvalidInput)
	}
	frac, err := FractionalBasis(mark, index)
	if err != nil {
		return 0, err
	}
	return frac * periodsPerYear * 100, nil
}

// AnnualizeBasis converts a period basis fraction into an annualized rate
// via (1 + b)^(1/T) - 1, which stays well behaved for small T.
func AnnualizeBasis(b, tYears float64) (float64, error) {
	if tYears <= 0 || !finite(tYears) || !finite(b) {
		return 0, fmt.Errorf("annualize basis: b=%v T=%v: %w", b, tYears, ErrInvalidInput)
	}
	return math.Pow(1+b, 1/tYears) - 1, nil
}

// FundingPnL returns the funding cashflow for one interval. Positive
// funding means longs pay and shorts receive, so a long position loses
// notional*rate and a short gains it.
func FundingPnL(notional, rate float64, side Side) float64 {
	if side == SideLong {
		return -notional * rate
	}
	return notional * rate
}

// CumulativeFundingPnL applies FundingPnL observation by observation, in
// time order, and returns the running sum. The result is a fresh slice
// on every call; an empty input yields an empty series.
func CumulativeFundingPnL(notional float64, obs []models.FundingObservation, side Side) []models.FundingPnLPoint {
	series := make([]models.FundingPnLPoint, 0, len(obs))
	total := 0.0
	for _, o := range obs {
		pnl := FundingPnL(notional, o.FundingRate, side)
		total += pnl
		series = append(series, models.FundingPnLPoint{
			Time:       o.FundingTime,
			PnL:        pnl,
			Cumulative: total,
		})
	}
	return series
}

// CashAndCarryPnL returns the price-leg PnL of a long-spot/short-perp
// position holding notional units, realized from basis convergence:
// notional * ((perpEntry - perpExit) + (spotExit - spotEntry)). Funding
// collected over the holding period is the caller's to add, via
// CumulativeFundingPnL.
func CashAndCarryPnL(spotEntry, perpEntry, spotExit, perpExit, notional float64) (float64, error) {
	for _, p := range []float64{spotEntry, perpEntry, spotExit, perpExit} {
		if !validPrice(p) {
			return 0, fmt.Errorf("cash and carry: price %v: %w", p, ErrInvalidInput)
		}
	}
	if notional <= 0 || !finite(notional) {
		return 0, fmt.Errorf("cash and carry: notional %v: %w", notional, ErrInvalidInput)
	}
	return notional * ((perpEntry - perpExit) + (spotExit - spotEntry)), nil
}

// CashAndCarryNetOfFees sums the funding harvested by the short-perp leg
// of a cash-and-carry over the given interval rates, minus taker fees
// paid once on opening both legs. feeBpsPerLeg is in basis points.
func CashAndCarryNetOfFees(spotQty, entryPrice float64, rates []float64, feeBpsPerLeg float64) float64 {
	notional := spotQty * entryPrice
	fees := notional * (feeBpsPerLeg / 10000.0) * 2.0
	funding := 0.0
	for _, r := range rates {
		funding += FundingPnL(notional, r, SideShort)
	}
	return funding - fees
}

// CostOfCarryFairPrice prices a dated future by classic cost of carry:
// F = S * exp((r - q) * T).
func CostOfCarryFairPrice(spot, riskFree, dividendYield, tYears float64) (float64, error) {
	if !validPrice(spot) {
		return 0, fmt.Errorf("cost of carry: spot %v: %w", spot, ErrInvalidInput)
	}
	if tYears < 0 || !finite(tYears) {
		return 0, fmt.Errorf("cost of carry: time to expiry %v: %w", tYears, ErrInvalidInput)
	}
	if !finite(riskFree) || !finite(dividendYield) {
		return 0, fmt.Errorf("cost of carry: rate %v yield %v: %w", riskFree, dividendYield, ErrInvalidInput)
	}
	return spot * math.Exp((riskFree-dividendYield)*tYears), nil
}

// PredictedNextFunding forecasts the next funding rate as the simple
// mean of the most recent ForecastWindow observed rates, newest last.
func PredictedNextFunding(recent []float64) (float64, error) {
	if len(recent) < ForecastWindow {
		return 0, fmt.Errorf("predicted next funding: have %d rates, need %d: %w",
			len(recent), ForecastWindow, ErrInsufficientData)
	}
	window := recent[len(recent)-ForecastWindow:]
	sum := 0.0
	for _, r := range window {
		sum += r
	}
	return sum / ForecastWindow, nil
}

// PredictedFundingFromPremium applies the documented Binance USD-M rule:
// funding = premium + clamp(interest - premium, -0.05%, +0.05%).
func PredictedFundingFromPremium(premiumIndex float64) float64 {
	return premiumIndex + clamp(interestPerInterval-premiumIndex, -premiumClampBound, premiumClampBound)
}

// YearFraction returns the ACT/365F year fraction between two instants,
// floored just above zero so it is safe to divide by.
func YearFraction(start, end time.Time) float64 {
	return math.Max(1e-12, end.Sub(start).Seconds()/secondsPerYear)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
