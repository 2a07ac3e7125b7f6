package normalize

import (
	"github.com/shopspring/decimal"
)

// Cost and budget unit converters.  Each platform reports money in its own
// unit; everything stored canonically is in whole currency units.

// GoogleMicrosToCurrency converts Google Ads micros (1e-6 of the account
// currency) to currency units.  5000000 micros is 5.00.
func GoogleMicrosToCurrency(micros decimal.Decimal) decimal.Decimal {
	return micros.Shift(-6)
}

// MetaMinorUnitsToCurrency converts Meta budget fields, which are expressed
// in the currency's minor unit (cents for USD), to currency units.
func MetaMinorUnitsToCurrency(minor decimal.Decimal) decimal.Decimal {
	return minor.Shift(-2)
}

// MetaSpendToCurrency converts Insights `spend`, which Meta already reports
// in whole currency units as a decimal string.
func MetaSpendToCurrency(spend decimal.Decimal) decimal.Decimal {
	return spend
}

// TikTokSpendToCurrency converts report `spend` and campaign `budget`, both
// in whole currency units.
func TikTokSpendToCurrency(spend decimal.Decimal) decimal.Decimal {
	return spend
}

// LinkedInAmountToCurrency converts `costInLocalCurrency` and budget
// `amount` values, both whole-unit decimal strings.
func LinkedInAmountToCurrency(amount decimal.Decimal) decimal.Decimal {
	return amount
}
