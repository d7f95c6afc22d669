package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/gdxemberai/gmm-tools/internal/pricing"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func ds(fs ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(fs))
	for i, f := range fs {
		out[i] = d(f)
	}
	return out
}

func TestEstimate_FewerThanThreeIsPlainMean(t *testing.T) {
	cases := []struct {
		name   string
		prices []decimal.Decimal
		want   string
	}{
		{"single", ds(42.50), "42.5"},
		{"pair", ds(100, 200), "150"},
		{"pair with cents", ds(10.01, 10.02), "10.02"}, // 10.015 rounds half-to-even
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := pricing.Estimate(tc.prices)
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("Estimate(%v) = %s, want %s", tc.prices, got, tc.want)
			}
		})
	}
}

func TestEstimate_TrimsExactlyOneMinOneMax(t *testing.T) {
	cases := []struct {
		name   string
		prices []decimal.Decimal
		want   string
	}{
		{"three values keeps middle", ds(140, 160, 180), "160"},
		{"classic outlier", ds(50, 100, 150, 200, 1000), "150"},
		// Duplicates at the extremes: only one instance of min and one of
		// max are dropped, so [10,10,10,100] -> mean(10,10) = 10.
		{"duplicate minimum", ds(10, 10, 10, 100), "10"},
		{"duplicate maximum", ds(5, 90, 90, 90), "90"},
		{"all equal", ds(25, 25, 25), "25"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := pricing.Estimate(tc.prices)
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("Estimate(%v) = %s, want %s", tc.prices, got, tc.want)
			}
		})
	}
}

func TestEstimate_DoesNotMutateInput(t *testing.T) {
	prices := ds(300, 100, 200)
	pricing.Estimate(prices)
	if !prices[0].Equal(d(300)) || !prices[1].Equal(d(100)) {
		t.Errorf("Estimate reordered the caller's slice: %v", prices)
	}
}

func TestEstimate_RoundHalfToEven(t *testing.T) {
	// Trimmed to [10.01, 10.02]; mean 10.015 rounds to 10.02 (even cent).
	got := pricing.Estimate(ds(1, 10.01, 10.02, 500))
	if !got.Equal(d(10.02)) {
		t.Errorf("expected banker's rounding to 10.02, got %s", got)
	}
	// Trimmed to [10.02, 10.03]; mean 10.025 also rounds to 10.02.
	got = pricing.Estimate(ds(1, 10.02, 10.03, 500))
	if !got.Equal(d(10.02)) {
		t.Errorf("expected banker's rounding to 10.02, got %s", got)
	}
}

func TestAppraise_InsufficientData(t *testing.T) {
	a := pricing.Appraise(d(100), nil, pricing.DefaultFairBand)
	if a.Verdict != pricing.VerdictInsufficient {
		t.Errorf("expected %s, got %s", pricing.VerdictInsufficient, a.Verdict)
	}
	if a.ProfitLoss != nil {
		t.Errorf("expected nil profit/loss, got %s", a.ProfitLoss)
	}
}

func TestAppraise_FairWithinBand(t *testing.T) {
	// Asking 150 vs estimate 160: |delta|/estimate = 6.25%, inside 10%.
	est := d(160)
	a := pricing.Appraise(d(150), &est, pricing.DefaultFairBand)
	if a.Verdict != pricing.VerdictFairPrice {
		t.Fatalf("expected %s, got %s", pricing.VerdictFairPrice, a.Verdict)
	}
	if !a.ProfitLoss.Equal(d(-10)) {
		t.Errorf("expected profit/loss -10, got %s", a.ProfitLoss)
	}
}

func TestAppraise_GoodDealBelowBand(t *testing.T) {
	// Asking 100 vs estimate 160: 37.5% below, well outside the band.
	est := d(160)
	a := pricing.Appraise(d(100), &est, pricing.DefaultFairBand)
	if a.Verdict != pricing.VerdictGoodDeal {
		t.Fatalf("expected %s, got %s", pricing.VerdictGoodDeal, a.Verdict)
	}
	if !a.ProfitLoss.Equal(d(-60)) {
		t.Errorf("expected profit/loss -60, got %s", a.ProfitLoss)
	}
	if a.Summary != "GOOD DEAL - Potential profit: $60.00" {
		t.Errorf("unexpected summary %q", a.Summary)
	}
}

func TestAppraise_Overpriced(t *testing.T) {
	est := d(100)
	a := pricing.Appraise(d(150), &est, pricing.DefaultFairBand)
	if a.Verdict != pricing.VerdictOverpriced {
		t.Fatalf("expected %s, got %s", pricing.VerdictOverpriced, a.Verdict)
	}
	if !a.ProfitLoss.Equal(d(50)) {
		t.Errorf("expected profit/loss 50, got %s", a.ProfitLoss)
	}
	if a.Summary != "OVERPRICED - Potential loss: $50.00" {
		t.Errorf("unexpected summary %q", a.Summary)
	}
}

func TestAppraise_BandBoundaryIsFair(t *testing.T) {
	// Exactly 10% above the estimate sits on the boundary and is fair.
	est := d(100)
	a := pricing.Appraise(d(110), &est, pricing.DefaultFairBand)
	if a.Verdict != pricing.VerdictFairPrice {
		t.Errorf("expected boundary to be %s, got %s", pricing.VerdictFairPrice, a.Verdict)
	}
}

func TestAppraise_CustomBand(t *testing.T) {
	// A tighter 1% band flips the 6.25% case to GOOD DEAL.
	est := d(160)
	a := pricing.Appraise(d(150), &est, d(0.01))
	if a.Verdict != pricing.VerdictGoodDeal {
		t.Errorf("expected %s with 1%% band, got %s", pricing.VerdictGoodDeal, a.Verdict)
	}
}
