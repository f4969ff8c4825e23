package orders

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// INPUTS
// =============================================================================

// DefaultServiceType is used when an order names no service type.
const DefaultServiceType = "GENERAL"

var phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// OrderInput is the full set of writable order fields for create and update.
type OrderInput struct {
	// CaregiverRef is an id, worker id, name or phone.
	CaregiverRef   string
	CaregiverPhone string

	ClientName      string
	ClientPhone     string
	ClientLocation  string
	Address         string
	ServiceType     string
	ContactName     string
	ContactPhone    string
	DispatcherName  string
	DispatcherPhone string
	Remarks         string

	StartDate string
	EndDate   string
	Status    staffing.OrderStatus

	MonthlySalary *decimal.Decimal
	DailySalary   *decimal.Decimal
	ManagementFee decimal.Decimal
	// TotalAmount overrides the computed total on create when positive.
	TotalAmount  *decimal.Decimal
	DurationDays int

	Fields map[string]string
}

// AdjustmentInput is one overtime/leave/substitute entry.
type AdjustmentInput struct {
	Date         string
	Type         string
	Value        decimal.Decimal
	SubstituteID string
	Remarks      string
}

// validator accumulates field-level problems.
type validator struct {
	errs staffing.ValidationErrors
}

func newValidator() *validator { return &validator{errs: staffing.ValidationErrors{}} }

func (v *validator) required(field, value, msg string) {
	if strings.TrimSpace(value) == "" {
		v.errs.Add(field, msg)
	}
}

func (v *validator) phone(field, value string, required bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			v.errs.Add(field, "is required")
		}
		return
	}
	if !phonePattern.MatchString(value) {
		v.errs.Add(field, "must be a valid 11-digit mobile number")
	}
}

func (v *validator) nonNegative(field string, d *decimal.Decimal) {
	if d != nil && d.IsNegative() {
		v.errs.Add(field, "must not be negative")
	}
}

func (v *validator) day(field, raw string) (staffing.Day, bool) {
	if strings.TrimSpace(raw) == "" {
		v.errs.Add(field, "is required")
		return staffing.Day{}, false
	}
	d, err := staffing.ParseDay(raw)
	if err != nil {
		v.errs.Add(field, "must be a valid date in YYYY-MM-DD format")
		return staffing.Day{}, false
	}
	return d, true
}

func (v *validator) err() error {
	if v.errs.Empty() {
		return nil
	}
	return v.errs
}

// validate checks an OrderInput and returns its period.
func (in OrderInput) validate() (staffing.Period, error) {
	v := newValidator()
	v.required("caregiverId", in.CaregiverRef, "please select a caregiver")
	v.phone("caregiverPhone", in.CaregiverPhone, false)
	v.required("clientName", in.ClientName, "is required")
	v.phone("clientPhone", in.ClientPhone, true)
	v.required("clientLocation", in.ClientLocation, "is required")
	v.required("address", in.Address, "is required")
	v.required("dispatcherName", in.DispatcherName, "is required")
	v.phone("dispatcherPhone", in.DispatcherPhone, false)
	v.phone("contactPhone", in.ContactPhone, false)
	v.nonNegative("monthlySalary", in.MonthlySalary)
	v.nonNegative("dailySalary", in.DailySalary)
	v.nonNegative("managementFee", &in.ManagementFee)
	v.nonNegative("totalAmount", in.TotalAmount)
	if in.DurationDays < 0 {
		v.errs.Add("durationDays", "must not be negative")
	}
	if in.Status != "" && !in.Status.Valid() {
		v.errs.Add("status", "unknown order status")
	}

	start, okStart := v.day("startDate", in.StartDate)
	end, okEnd := v.day("endDate", in.EndDate)
	if okStart && okEnd && end.Before(start) {
		v.errs.Add("startDate", "must be on or before endDate")
		v.errs.Add("endDate", "must be on or after startDate")
	}
	return staffing.Period{Start: start, End: end}, v.err()
}

// validate checks an AdjustmentInput and returns its parsed day and type.
func (in AdjustmentInput) validate() (staffing.Day, staffing.AdjustmentType, error) {
	v := newValidator()
	var day staffing.Day
	if !datePattern.MatchString(strings.TrimSpace(in.Date)) {
		v.errs.Add("date", "must be YYYY-MM-DD (e.g. 2024-01-01)")
	} else {
		day, _ = v.day("date", in.Date)
	}
	kind, err := staffing.ParseAdjustmentType(in.Type)
	if err != nil {
		v.errs.Add("type", "must be OVERTIME, LEAVE or SUBSTITUTE")
	}
	if in.Value.IsZero() {
		v.errs.Add("value", "must be a non-zero day delta")
	}
	return day, kind, v.err()
}
