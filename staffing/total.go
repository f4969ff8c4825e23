package staffing

import "github.com/shopspring/decimal"

// =============================================================================
// ORDER TOTAL CALCULATOR
// =============================================================================

type TotalInput struct {
	MonthlySalary *decimal.Decimal
	DailySalary   *decimal.Decimal
	Period        Period
	ManagementFee decimal.Decimal
	Adjustments   []Adjustment
}

type TotalResult struct {
	TotalAmount   decimal.Decimal
	DailyRate     decimal.Decimal
	BaseDays      int
	AdjustmentSum decimal.Decimal
}

// EffectiveDays is base days plus the signed adjustment sum.
func (r TotalResult) EffectiveDays() decimal.Decimal {
	return decimal.NewFromInt(int64(r.BaseDays)).Add(r.AdjustmentSum)
}

// CalculateTotal computes round2(dailyRate * (baseDays + adjustments) + fee).
// The caller's caregiver fallback is not consulted here; pass the resolved
// monthly salary in MonthlySalary when one applies. Pure: identical input
// always yields identical output.
func CalculateTotal(in TotalInput) TotalResult {
	rate := ResolveRate(in.MonthlySalary, in.DailySalary, nil)
	baseDays := DaysBetween(in.Period.Start, in.Period.End) + 1

	sum := decimal.Zero
	for _, a := range in.Adjustments {
		sum = sum.Add(a.Value)
	}

	res := TotalResult{DailyRate: rate.Daily, BaseDays: baseDays, AdjustmentSum: sum}
	res.TotalAmount = Round2(rate.Daily.Mul(res.EffectiveDays()).Add(in.ManagementFee))
	return res
}
