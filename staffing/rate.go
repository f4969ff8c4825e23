package staffing

import "github.com/shopspring/decimal"

// =============================================================================
// SALARY RATE RESOLVER
// =============================================================================

// StandardWorkingDaysPerMonth converts a monthly salary into a daily rate.
// Fixed business policy; do not derive from calendar math.
const StandardWorkingDaysPerMonth = 26

var workingDays = decimal.NewFromInt(StandardWorkingDaysPerMonth)

// Rate is a resolved daily rate and the salary it was derived from.
type Rate struct {
	Daily decimal.Decimal
	Base  decimal.Decimal
	Mode  SalaryMode
}

// IsZero reports that no salary could be resolved.
func (r Rate) IsZero() bool { return !r.Daily.IsPositive() }

// ResolveRate applies the fixed priority:
//  1. explicit daily salary > 0
//  2. order monthly salary / 26
//  3. caregiver monthly salary / 26
//  4. zero
func ResolveRate(orderMonthly, orderDaily, caregiverMonthly *decimal.Decimal) Rate {
	if positive(orderDaily) {
		return Rate{Daily: *orderDaily, Base: *orderDaily, Mode: SalaryDaily}
	}
	if positive(orderMonthly) {
		return Rate{Daily: orderMonthly.Div(workingDays), Base: *orderMonthly, Mode: SalaryMonthly}
	}
	if positive(caregiverMonthly) {
		return Rate{Daily: caregiverMonthly.Div(workingDays), Base: *caregiverMonthly, Mode: SalaryMonthly}
	}
	return Rate{Mode: SalaryDaily}
}

// ResolveDailyRate is ResolveRate for callers that cannot proceed without a
// rate. It returns ErrMissingSalaryConfig when the rate resolves to zero.
func ResolveDailyRate(orderMonthly, orderDaily, caregiverMonthly *decimal.Decimal) (decimal.Decimal, error) {
	r := ResolveRate(orderMonthly, orderDaily, caregiverMonthly)
	if r.IsZero() {
		return decimal.Zero, &MissingSalaryError{}
	}
	return r.Daily, nil
}

func positive(d *decimal.Decimal) bool { return d != nil && d.IsPositive() }

// Round2 rounds a money value to cents.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// DecimalPtr is a convenience for optional salary fields.
func DecimalPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}
