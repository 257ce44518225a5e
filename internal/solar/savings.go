package solar

import "math"

// DefaultSellPriceKr is the flat grid sell-back tariff in kr/kWh.
const DefaultSellPriceKr = 0.60

// defaultMonthlyPriceKr is used for months missing from the price table.
const defaultMonthlyPriceKr = 1.0

var monthAbbrevs = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// MonthName returns the 3-letter abbreviation for a 1-based month number.
func MonthName(month int) string {
	return monthAbbrevs[month-1]
}

// ConsumptionRate derives the fraction of produced energy assumed
// self-consumed. The min() clamps it to at most 1.0; a non-positive
// production yields 0.
func ConsumptionRate(annualConsumptionKWh, annualProductionKWh float64) float64 {
	if annualProductionKWh <= 0 {
		return 0
	}
	return math.Min(annualConsumptionKWh, annualProductionKWh) / annualProductionKWh
}

// MonthlySavings computes the kr saving per month: self-consumed production
// valued at that month's local price, the remainder sold at the flat
// sell-back price. Months missing from the price table fall back to
// 1.0 kr/kWh.
func MonthlySavings(production MonthlySeries, monthlyPrices map[string]float64, consumptionRate, sellPrice float64) []MonthlySaving {
	out := make([]MonthlySaving, 0, 12)
	for i, kWhProduced := range production {
		price, ok := monthlyPrices[monthAbbrevs[i]]
		if !ok {
			price = defaultMonthlyPriceKr
		}

		usedSavings := kWhProduced * consumptionRate * price
		soldEarnings := kWhProduced * (1 - consumptionRate) * sellPrice
		out = append(out, MonthlySaving{Month: i + 1, SavingsKr: usedSavings + soldEarnings})
	}
	return out
}

// NewSavingsResult sums monthly savings into a SavingsResult. PaybackYears is
// intentionally left zero: the payback formula was never settled.
func NewSavingsResult(monthly []MonthlySaving) SavingsResult {
	var annual float64
	for _, m := range monthly {
		annual += m.SavingsKr
	}
	return SavingsResult{AnnualSavingsKr: annual, Monthly: monthly}
}
