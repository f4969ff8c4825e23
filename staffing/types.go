/*
types.go - Core records of the settlement engine

PURPOSE:
  Defines caregivers, orders, the typed order extension data (adjustments,
  settlement history, custom field values) and monthly salary settlements.
  Everything here is plain data; behavior lives in rate.go, total.go,
  lifecycle.go and the orders/finance packages.

KEY TYPES:
  Caregiver:         Employment status and live availability are separate
  Order:             One caregiver, one client, one inclusive day period
  CustomData:        Typed adjustments + settlement history + field values
  SalarySettlement:  One row per caregiver x month
  SettlementDetail:  Candidate view computed by finance.Aggregator

MONEY:
  All amounts and rates are decimal.Decimal. Rounding to 2 places happens
  at computation boundaries (Round2), never per term.

SEE ALSO:
  - customdata.go: Append rules for adjustments and settlement history
  - store.go: Persistence interfaces
*/
package staffing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CAREGIVER
// =============================================================================

// EmploymentStatus is the HR lifecycle of a caregiver.
type EmploymentStatus string

const (
	EmploymentPending     EmploymentStatus = "PENDING"
	EmploymentActive      EmploymentStatus = "ACTIVE"
	EmploymentInactive    EmploymentStatus = "INACTIVE"
	EmploymentSuspended   EmploymentStatus = "SUSPENDED"
	EmploymentBlacklisted EmploymentStatus = "BLACKLISTED"
)

func (s EmploymentStatus) Valid() bool {
	switch s {
	case EmploymentPending, EmploymentActive, EmploymentInactive, EmploymentSuspended, EmploymentBlacklisted:
		return true
	}
	return false
}

// Availability is the live scheduling flag owned by the order lifecycle.
type Availability string

const (
	AvailabilityIdle Availability = "IDLE"
	AvailabilityBusy Availability = "BUSY"
)

func (a Availability) Valid() bool {
	return a == AvailabilityIdle || a == AvailabilityBusy
}

type Caregiver struct {
	ID               string
	WorkerID         string
	Name             string
	Phone            string
	MonthlySalary    *decimal.Decimal
	EmploymentStatus EmploymentStatus
	Availability     Availability
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// =============================================================================
// ORDER
// =============================================================================

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderServing   OrderStatus = "SERVING" // legacy alias of CONFIRMED
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderServing, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// IsActive reports whether an order still holds its caregiver.
func (s OrderStatus) IsActive() bool {
	return s == OrderPending || s == OrderConfirmed || s == OrderServing
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

type SalaryMode string

const (
	SalaryDaily   SalaryMode = "DAILY"
	SalaryMonthly SalaryMode = "MONTHLY"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "UNPAID"
	PaymentPaid   PaymentStatus = "PAID"
)

type Order struct {
	ID          string
	OrderNo     string
	CaregiverID string

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

	Period Period
	Status OrderStatus

	// Rate snapshot taken at creation; only an explicit update changes it.
	SalaryMode    SalaryMode
	DailySalary   *decimal.Decimal
	MonthlySalary *decimal.Decimal

	DurationDays     int
	ManagementFee    decimal.Decimal
	TotalAmount      decimal.Decimal
	Amount           decimal.Decimal // TotalAmount - ManagementFee
	PaymentStatus    PaymentStatus
	ActualWorkedDays decimal.Decimal

	CustomData CustomData

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// ADJUSTMENTS & SETTLEMENT HISTORY (embedded in Order.CustomData)
// =============================================================================

// AdjustmentType is a closed set; use ParseAdjustmentType at the boundary.
type AdjustmentType string

const (
	AdjustmentOvertime   AdjustmentType = "OVERTIME"
	AdjustmentLeave      AdjustmentType = "LEAVE"
	AdjustmentSubstitute AdjustmentType = "SUBSTITUTE"
)

type Adjustment struct {
	Date             Day             `json:"date"`
	Type             AdjustmentType  `json:"type"`
	Value            decimal.Decimal `json:"value"`
	SubstituteID     string          `json:"substituteId,omitempty"`
	SubstituteName   string          `json:"substituteName,omitempty"`
	CalculatedAmount decimal.Decimal `json:"calculatedAmount"`
	Remarks          string          `json:"remarks,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

type SettlementType string

const (
	SettlementFull    SettlementType = "FULL"
	SettlementPartial SettlementType = "PARTIAL"
)

type SettlementSource string

const (
	SourceOrderSettlement SettlementSource = "ORDER_SETTLEMENT"
	SourceFinanceCenter   SettlementSource = "FINANCE_CENTER"
)

type SettlementHistoryEntry struct {
	Month       Month            `json:"month"`
	ActualDays  decimal.Decimal  `json:"actualDays"`
	TotalAmount decimal.Decimal  `json:"totalAmount"`
	Type        SettlementType   `json:"type"`
	Source      SettlementSource `json:"source"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// =============================================================================
// SALARY SETTLEMENT (one per caregiver x month)
// =============================================================================

type SettlementStatus string

const (
	SettlementPending SettlementStatus = "PENDING" // candidate, not persisted
	SettlementSettled SettlementStatus = "SETTLED"
	SettlementPaid    SettlementStatus = "PAID"
)

type SalarySettlement struct {
	ID          string
	CaregiverID string
	Month       Month
	TotalAmount decimal.Decimal
	Status      SettlementStatus
	Details     []SettlementItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SettlementItem is one order's contribution to a caregiver's month.
type SettlementItem struct {
	OrderID        string          `json:"orderId"`
	OrderNo        string          `json:"orderNo"`
	ClientName     string          `json:"clientName"`
	Start          Day             `json:"startDate"`
	End            Day             `json:"endDate"`
	CalcStart      Day             `json:"calcStart"`
	CalcEnd        Day             `json:"calcEnd"`
	DaysInMonth    int             `json:"daysInMonth"`
	ActualDays     decimal.Decimal `json:"actualDays"`
	SalaryMode     SalaryMode      `json:"salaryMode"`
	BaseSalary     decimal.Decimal `json:"baseSalary"`
	DailyRate      decimal.Decimal `json:"dailyRate"`
	Amount         decimal.Decimal `json:"amount"`
	SettlementType SettlementType  `json:"settlementType"`
	IsOrderSettled bool            `json:"isOrderSettled"`
}

// SettlementDetail aggregates a caregiver's items for one month.
type SettlementDetail struct {
	CaregiverID      string
	CaregiverName    string
	WorkerID         string
	Month            Month
	TotalDays        decimal.Decimal
	TotalAmount      decimal.Decimal
	OrderCount       int
	AllOrdersSettled bool
	Items            []SettlementItem
	Status           SettlementStatus
}
