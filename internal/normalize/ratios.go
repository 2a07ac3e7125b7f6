package normalize

import (
	"github.com/shopspring/decimal"
)

// ratioPlaces matches the DECIMAL(18,4) ratio columns.
const ratioPlaces = 4

var (
	hundred = decimal.NewFromInt(100)

	// MaxRatio is the largest magnitude a DECIMAL(18,4) column stores.
	// Tiny spend against real revenue would otherwise overflow it.
	MaxRatio = decimal.RequireFromString("99999999999999.9999")
)

// Ratios are the derived metrics of one fact row.
type Ratios struct {
	CTR  decimal.Decimal // percent
	CPC  decimal.Decimal
	CPA  decimal.Decimal
	ROAS decimal.Decimal
	ROI  decimal.Decimal // percent
}

// ComputeRatios derives every ratio from the base counters.  A zero
// denominator yields 0 for that ratio; results are clamped to ±MaxRatio.
func ComputeRatios(impressions, clicks int64, conversions, spend, revenue decimal.Decimal) Ratios {
	imp := decimal.NewFromInt(impressions)
	clk := decimal.NewFromInt(clicks)
	return Ratios{
		CTR:  clamp(safeDiv(clk, imp).Mul(hundred)),
		CPC:  clamp(safeDiv(spend, clk)),
		CPA:  clamp(safeDiv(spend, conversions)),
		ROAS: clamp(safeDiv(revenue, spend)),
		ROI:  clamp(safeDiv(revenue.Sub(spend), spend).Mul(hundred)),
	}
}

func safeDiv(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}

func clamp(d decimal.Decimal) decimal.Decimal {
	d = d.Round(ratioPlaces)
	switch {
	case d.GreaterThan(MaxRatio):
		return MaxRatio
	case d.LessThan(MaxRatio.Neg()):
		return MaxRatio.Neg()
	}
	return d
}
