// Package pricing implements the outlier-resistant value estimator and the
// buy/sell verdict logic.
//
// The estimator is a fixed single-trim mean ("sanity average"): with three
// or more comparable prices, exactly one instance of the minimum and one of
// the maximum are dropped before averaging, regardless of how many values
// tie at the extremes. With fewer than three prices it is the plain mean.
//
// All monetary values use shopspring/decimal — never float64 for money.
package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places for the final estimate,
// matching the corpus's native currency precision.
const PriceScale int32 = 2

// Verdict categories.
const (
	VerdictGoodDeal     = "GOOD DEAL"
	VerdictOverpriced   = "OVERPRICED"
	VerdictFairPrice    = "FAIR PRICE"
	VerdictInsufficient = "INSUFFICIENT DATA"
)

// DefaultFairBand is the default relative band within which an asking
// price is considered fair: |asking - estimate| / estimate <= 0.10.
var DefaultFairBand = decimal.NewFromFloat(0.10)

// Estimate computes the sanity average of comparable prices.
// The caller must not invoke it with an empty slice; matching a listing to
// zero comparables short-circuits to INSUFFICIENT DATA before pricing.
//
// Intermediate math runs at full precision; only the final result is
// rounded, using round-half-to-even at PriceScale.
func Estimate(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) >= 3 {
		sorted := make([]decimal.Decimal, len(prices))
		copy(sorted, prices)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].LessThan(sorted[j])
		})
		// Drop one minimum and one maximum instance, not every tied value.
		prices = sorted[1 : len(sorted)-1]
	}

	sum := decimal.Zero
	for _, p := range prices {
		sum = sum.Add(p)
	}
	return sum.Div(decimal.NewFromInt(int64(len(prices)))).RoundBank(PriceScale)
}

// Appraisal is the verdict for one listing given its asking price and the
// estimated market value.
type Appraisal struct {
	// ProfitLoss = asking - estimate. Negative means the listing is priced
	// below the estimated value. Nil when no estimate exists.
	ProfitLoss *decimal.Decimal

	// Verdict is one of the Verdict* categories.
	Verdict string

	// Summary is the human-readable verdict line.
	Summary string
}

// Appraise computes the verdict for an asking price against an estimate.
// A nil estimate yields INSUFFICIENT DATA. fairBand is the relative band
// treated as fair pricing; pass DefaultFairBand unless tuned.
func Appraise(asking decimal.Decimal, estimate *decimal.Decimal, fairBand decimal.Decimal) Appraisal {
	if estimate == nil {
		return Appraisal{
			Verdict: VerdictInsufficient,
			Summary: VerdictInsufficient + " - No comparable sales found",
		}
	}

	delta := asking.Sub(*estimate)

	if !estimate.IsZero() && delta.Abs().Div(*estimate).LessThanOrEqual(fairBand) {
		return Appraisal{
			ProfitLoss: &delta,
			Verdict:    VerdictFairPrice,
			Summary:    VerdictFairPrice + " - Listing matches market value",
		}
	}

	if delta.IsNegative() {
		return Appraisal{
			ProfitLoss: &delta,
			Verdict:    VerdictGoodDeal,
			Summary:    fmt.Sprintf("%s - Potential profit: $%s", VerdictGoodDeal, delta.Neg().StringFixedBank(PriceScale)),
		}
	}

	return Appraisal{
		ProfitLoss: &delta,
		Verdict:    VerdictOverpriced,
		Summary:    fmt.Sprintf("%s - Potential loss: $%s", VerdictOverpriced, delta.StringFixedBank(PriceScale)),
	}
}
