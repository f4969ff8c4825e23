/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain records in package staffing from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Requests accept numbers or numeric strings (decimal.Decimal). Responses
  carry plain JSON numbers rounded to cents; days keep their fraction.

VALIDATION:
  Validation is done by the services, not in DTOs. The only checks here are
  date/month formats that must be parsed before a service can be called.

SEE ALSO:
  - handlers.go: Uses these types
  - staffing/types.go: Domain records
*/
package api

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/homecare/settlement-engine/finance"
	"github.com/homecare/settlement-engine/orders"
	"github.com/homecare/settlement-engine/staffing"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data,omitempty"`
	Error   staffing.Code       `json:"error,omitempty"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// =============================================================================
// CAREGIVERS
// =============================================================================

type CaregiverDTO struct {
	ID               string   `json:"id"`
	WorkerID         string   `json:"worker_id"`
	Name             string   `json:"name"`
	Phone            string   `json:"phone,omitempty"`
	MonthlySalary    *float64 `json:"monthly_salary"`
	EmploymentStatus string   `json:"employment_status"`
	Availability     string   `json:"availability"`
	CreatedAt        string   `json:"created_at,omitempty"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
}

type CaregiverRequest struct {
	WorkerID         string           `json:"worker_id"`
	Name             string           `json:"name"`
	Phone            string           `json:"phone"`
	MonthlySalary    *decimal.Decimal `json:"monthly_salary"`
	EmploymentStatus string           `json:"employment_status"`
}

func (r CaregiverRequest) input() orders.CaregiverInput {
	return orders.CaregiverInput{
		WorkerID:         r.WorkerID,
		Name:             r.Name,
		Phone:            r.Phone,
		MonthlySalary:    r.MonthlySalary,
		EmploymentStatus: staffing.EmploymentStatus(r.EmploymentStatus),
	}
}

func toCaregiverDTO(c staffing.Caregiver) CaregiverDTO {
	return CaregiverDTO{
		ID:               c.ID,
		WorkerID:         c.WorkerID,
		Name:             c.Name,
		Phone:            c.Phone,
		MonthlySalary:    moneyPtr(c.MonthlySalary),
		EmploymentStatus: string(c.EmploymentStatus),
		Availability:     string(c.Availability),
		CreatedAt:        timestamp(c.CreatedAt),
		UpdatedAt:        timestamp(c.UpdatedAt),
	}
}

// TimelineEntryDTO is one booking on a caregiver's timeline.
type TimelineEntryDTO struct {
	OrderID     string  `json:"order_id"`
	OrderNo     string  `json:"order_no"`
	ClientName  string  `json:"client_name"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	Status      string  `json:"status"`
	TotalAmount float64 `json:"total_amount"`
}

// =============================================================================
// ORDERS
// =============================================================================

type OrderDTO struct {
	ID              string `json:"id"`
	OrderNo         string `json:"order_no"`
	CaregiverID     string `json:"caregiver_id"`
	ClientName      string `json:"client_name"`
	ClientPhone     string `json:"client_phone"`
	ClientLocation  string `json:"client_location"`
	Address         string `json:"address"`
	ServiceType     string `json:"service_type"`
	ContactName     string `json:"contact_name,omitempty"`
	ContactPhone    string `json:"contact_phone,omitempty"`
	DispatcherName  string `json:"dispatcher_name"`
	DispatcherPhone string `json:"dispatcher_phone,omitempty"`
	Remarks         string `json:"remarks,omitempty"`

	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`

	SalaryMode       string   `json:"salary_mode"`
	DailySalary      *float64 `json:"daily_salary"`
	MonthlySalary    *float64 `json:"monthly_salary"`
	DurationDays     int      `json:"duration_days"`
	ManagementFee    float64  `json:"management_fee"`
	TotalAmount      float64  `json:"total_amount"`
	Amount           float64  `json:"amount"`
	PaymentStatus    string   `json:"payment_status"`
	ActualWorkedDays float64  `json:"actual_worked_days"`

	Adjustments       []AdjustmentDTO        `json:"adjustments"`
	SettlementHistory []SettlementHistoryDTO `json:"settlement_history"`
	Fields            map[string]string      `json:"fields,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type AdjustmentDTO struct {
	Date             string  `json:"date"`
	Type             string  `json:"type"`
	Value            float64 `json:"value"`
	SubstituteID     string  `json:"substitute_id,omitempty"`
	SubstituteName   string  `json:"substitute_name,omitempty"`
	CalculatedAmount float64 `json:"calculated_amount"`
	Remarks          string  `json:"remarks,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

type SettlementHistoryDTO struct {
	Month       string  `json:"month"`
	ActualDays  float64 `json:"actual_days"`
	TotalAmount float64 `json:"total_amount"`
	Type        string  `json:"type"`
	Source      string  `json:"source"`
	CreatedAt   string  `json:"created_at"`
}

// OrderRequest is the body of create and update.
type OrderRequest struct {
	CaregiverID     string `json:"caregiver_id"`
	CaregiverPhone  string `json:"caregiver_phone"`
	ClientName      string `json:"client_name"`
	ClientPhone     string `json:"client_phone"`
	ClientLocation  string `json:"client_location"`
	Address         string `json:"address"`
	ServiceType     string `json:"service_type"`
	ContactName     string `json:"contact_name"`
	ContactPhone    string `json:"contact_phone"`
	DispatcherName  string `json:"dispatcher_name"`
	DispatcherPhone string `json:"dispatcher_phone"`
	Remarks         string `json:"remarks"`

	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`

	MonthlySalary *decimal.Decimal `json:"monthly_salary"`
	DailySalary   *decimal.Decimal `json:"daily_salary"`
	ManagementFee decimal.Decimal  `json:"management_fee"`
	TotalAmount   *decimal.Decimal `json:"total_amount"`
	DurationDays  int              `json:"duration_days"`

	Fields map[string]string `json:"fields"`
}

func (r OrderRequest) input() orders.OrderInput {
	return orders.OrderInput{
		CaregiverRef:    r.CaregiverID,
		CaregiverPhone:  r.CaregiverPhone,
		ClientName:      r.ClientName,
		ClientPhone:     r.ClientPhone,
		ClientLocation:  r.ClientLocation,
		Address:         r.Address,
		ServiceType:     r.ServiceType,
		ContactName:     r.ContactName,
		ContactPhone:    r.ContactPhone,
		DispatcherName:  r.DispatcherName,
		DispatcherPhone: r.DispatcherPhone,
		Remarks:         r.Remarks,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		Status:          staffing.OrderStatus(r.Status),
		MonthlySalary:   r.MonthlySalary,
		DailySalary:     r.DailySalary,
		ManagementFee:   r.ManagementFee,
		TotalAmount:     r.TotalAmount,
		DurationDays:    r.DurationDays,
		Fields:          r.Fields,
	}
}

type AdjustmentRequest struct {
	Date         string          `json:"date"`
	Type         string          `json:"type"`
	Value        decimal.Decimal `json:"value"`
	SubstituteID string          `json:"substitute_id"`
	Remarks      string          `json:"remarks"`
}

type SettleOrderRequest struct {
	ActualDays  decimal.Decimal `json:"actual_days"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Month       string          `json:"month"`
}

func toOrderDTO(o staffing.Order) OrderDTO {
	dto := OrderDTO{
		ID:                o.ID,
		OrderNo:           o.OrderNo,
		CaregiverID:       o.CaregiverID,
		ClientName:        o.ClientName,
		ClientPhone:       o.ClientPhone,
		ClientLocation:    o.ClientLocation,
		Address:           o.Address,
		ServiceType:       o.ServiceType,
		ContactName:       o.ContactName,
		ContactPhone:      o.ContactPhone,
		DispatcherName:    o.DispatcherName,
		DispatcherPhone:   o.DispatcherPhone,
		Remarks:           o.Remarks,
		StartDate:         o.Period.Start.String(),
		EndDate:           o.Period.End.String(),
		Status:            string(o.Status),
		SalaryMode:        string(o.SalaryMode),
		DailySalary:       moneyPtr(o.DailySalary),
		MonthlySalary:     moneyPtr(o.MonthlySalary),
		DurationDays:      o.DurationDays,
		ManagementFee:     money(o.ManagementFee),
		TotalAmount:       money(o.TotalAmount),
		Amount:            money(o.Amount),
		PaymentStatus:     string(o.PaymentStatus),
		ActualWorkedDays:  o.ActualWorkedDays.InexactFloat64(),
		Adjustments:       make([]AdjustmentDTO, 0, len(o.CustomData.Adjustments)),
		SettlementHistory: make([]SettlementHistoryDTO, 0, len(o.CustomData.SettlementHistory)),
		Fields:            o.CustomData.Fields,
		CreatedAt:         timestamp(o.CreatedAt),
		UpdatedAt:         timestamp(o.UpdatedAt),
	}
	for _, a := range o.CustomData.Adjustments {
		dto.Adjustments = append(dto.Adjustments, AdjustmentDTO{
			Date:             a.Date.String(),
			Type:             string(a.Type),
			Value:            a.Value.InexactFloat64(),
			SubstituteID:     a.SubstituteID,
			SubstituteName:   a.SubstituteName,
			CalculatedAmount: money(a.CalculatedAmount),
			Remarks:          a.Remarks,
			CreatedAt:        timestamp(a.CreatedAt),
		})
	}
	for _, e := range o.CustomData.SettlementHistory {
		dto.SettlementHistory = append(dto.SettlementHistory, SettlementHistoryDTO{
			Month:       e.Month.String(),
			ActualDays:  e.ActualDays.InexactFloat64(),
			TotalAmount: money(e.TotalAmount),
			Type:        string(e.Type),
			Source:      string(e.Source),
			CreatedAt:   timestamp(e.CreatedAt),
		})
	}
	return dto
}

func toOrderDTOs(list []staffing.Order) []OrderDTO {
	dtos := make([]OrderDTO, len(list))
	for i, o := range list {
		dtos[i] = toOrderDTO(o)
	}
	return dtos
}

// =============================================================================
// FINANCE
// =============================================================================

// SettlementItemDTO is one order's line in a candidate or a settlement.
type SettlementItemDTO struct {
	OrderID        string  `json:"order_id"`
	OrderNo        string  `json:"order_no"`
	ClientName     string  `json:"client_name"`
	StartDate      string  `json:"start_date,omitempty"`
	EndDate        string  `json:"end_date,omitempty"`
	CalcStart      string  `json:"calc_start,omitempty"`
	CalcEnd        string  `json:"calc_end,omitempty"`
	DaysInMonth    int     `json:"days_in_month"`
	ActualDays     float64 `json:"actual_days"`
	SalaryMode     string  `json:"salary_mode,omitempty"`
	BaseSalary     float64 `json:"base_salary"`
	DailyRate      float64 `json:"daily_rate"`
	Amount         float64 `json:"amount"`
	SettlementType string  `json:"settlement_type,omitempty"`
	IsOrderSettled bool    `json:"is_order_settled"`
}

// SettlementItemRequest mirrors SettlementItemDTO so a client can post a
// candidate back unchanged. Amounts may be numbers or numeric strings.
type SettlementItemRequest struct {
	OrderID        string          `json:"order_id"`
	OrderNo        string          `json:"order_no"`
	ClientName     string          `json:"client_name"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	CalcStart      string          `json:"calc_start"`
	CalcEnd        string          `json:"calc_end"`
	DaysInMonth    int             `json:"days_in_month"`
	ActualDays     decimal.Decimal `json:"actual_days"`
	SalaryMode     string          `json:"salary_mode"`
	BaseSalary     decimal.Decimal `json:"base_salary"`
	DailyRate      decimal.Decimal `json:"daily_rate"`
	Amount         decimal.Decimal `json:"amount"`
	SettlementType string          `json:"settlement_type"`
	IsOrderSettled bool            `json:"is_order_settled"`
}

type SettlementDetailDTO struct {
	CaregiverID      string              `json:"caregiver_id"`
	CaregiverName    string              `json:"caregiver_name"`
	WorkerID         string              `json:"worker_id"`
	Month            string              `json:"month"`
	TotalDays        float64             `json:"total_days"`
	TotalAmount      float64             `json:"total_amount"`
	OrderCount       int                 `json:"order_count"`
	AllOrdersSettled bool                `json:"all_orders_settled"`
	Status           string              `json:"status"`
	Items            []SettlementItemDTO `json:"items"`
}

type SettlementDTO struct {
	ID          string              `json:"id"`
	CaregiverID string              `json:"caregiver_id"`
	Month       string              `json:"month"`
	TotalAmount float64             `json:"total_amount"`
	Status      string              `json:"status"`
	Details     []SettlementItemDTO `json:"details"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
}

// SettlementRequest is the body of createOrUpdateSettlement.
type SettlementRequest struct {
	CaregiverID string                  `json:"caregiver_id"`
	Month       string                  `json:"month"`
	TotalAmount decimal.Decimal         `json:"total_amount"`
	Items       []SettlementItemRequest `json:"items"`
}

// detail converts the request, reporting unparsable dates and months.
func (r SettlementRequest) detail() (staffing.SettlementDetail, error) {
	verrs := staffing.ValidationErrors{}
	d := staffing.SettlementDetail{
		CaregiverID: r.CaregiverID,
		TotalAmount: r.TotalAmount,
		Items:       make([]staffing.SettlementItem, 0, len(r.Items)),
	}
	if r.Month != "" {
		m, err := staffing.ParseMonth(r.Month)
		if err != nil {
			verrs.Add("month", "must be YYYY-MM")
		}
		d.Month = m
	}
	for i, it := range r.Items {
		item := staffing.SettlementItem{
			OrderID:        it.OrderID,
			OrderNo:        it.OrderNo,
			ClientName:     it.ClientName,
			DaysInMonth:    it.DaysInMonth,
			ActualDays:     it.ActualDays,
			SalaryMode:     staffing.SalaryMode(it.SalaryMode),
			BaseSalary:     it.BaseSalary,
			DailyRate:      it.DailyRate,
			Amount:         it.Amount,
			SettlementType: staffing.SettlementType(it.SettlementType),
			IsOrderSettled: it.IsOrderSettled,
		}
		if item.OrderID == "" {
			verrs.Add(itemField(i, "order_id"), "is required")
		}
		switch item.SettlementType {
		case "", staffing.SettlementFull, staffing.SettlementPartial:
		default:
			verrs.Add(itemField(i, "settlement_type"), "must be FULL or PARTIAL")
		}
		for _, f := range []struct {
			name string
			raw  string
			dst  *staffing.Day
		}{
			{"start_date", it.StartDate, &item.Start},
			{"end_date", it.EndDate, &item.End},
			{"calc_start", it.CalcStart, &item.CalcStart},
			{"calc_end", it.CalcEnd, &item.CalcEnd},
		} {
			if f.raw == "" {
				continue
			}
			day, err := staffing.ParseDay(f.raw)
			if err != nil {
				verrs.Add(itemField(i, f.name), "must be YYYY-MM-DD")
				continue
			}
			*f.dst = day
		}
		d.Items = append(d.Items, item)
	}
	if !verrs.Empty() {
		return staffing.SettlementDetail{}, verrs
	}
	return d, nil
}

func itemField(i int, name string) string {
	return "items[" + strconv.Itoa(i) + "]." + name
}

func toSettlementItemDTOs(items []staffing.SettlementItem) []SettlementItemDTO {
	dtos := make([]SettlementItemDTO, len(items))
	for i, it := range items {
		dtos[i] = SettlementItemDTO{
			OrderID:        it.OrderID,
			OrderNo:        it.OrderNo,
			ClientName:     it.ClientName,
			StartDate:      dayString(it.Start),
			EndDate:        dayString(it.End),
			CalcStart:      dayString(it.CalcStart),
			CalcEnd:        dayString(it.CalcEnd),
			DaysInMonth:    it.DaysInMonth,
			ActualDays:     it.ActualDays.InexactFloat64(),
			SalaryMode:     string(it.SalaryMode),
			BaseSalary:     money(it.BaseSalary),
			DailyRate:      money(it.DailyRate),
			Amount:         money(it.Amount),
			SettlementType: string(it.SettlementType),
			IsOrderSettled: it.IsOrderSettled,
		}
	}
	return dtos
}

func toSettlementDetailDTO(d staffing.SettlementDetail) SettlementDetailDTO {
	return SettlementDetailDTO{
		CaregiverID:      d.CaregiverID,
		CaregiverName:    d.CaregiverName,
		WorkerID:         d.WorkerID,
		Month:            d.Month.String(),
		TotalDays:        d.TotalDays.InexactFloat64(),
		TotalAmount:      money(d.TotalAmount),
		OrderCount:       d.OrderCount,
		AllOrdersSettled: d.AllOrdersSettled,
		Status:           string(d.Status),
		Items:            toSettlementItemDTOs(d.Items),
	}
}

// CandidateDTOs converts settlement candidates for JSON output.
func CandidateDTOs(list []staffing.SettlementDetail) []SettlementDetailDTO {
	dtos := make([]SettlementDetailDTO, len(list))
	for i, d := range list {
		dtos[i] = toSettlementDetailDTO(d)
	}
	return dtos
}

func toSettlementDTO(s staffing.SalarySettlement) SettlementDTO {
	return SettlementDTO{
		ID:          s.ID,
		CaregiverID: s.CaregiverID,
		Month:       s.Month.String(),
		TotalAmount: money(s.TotalAmount),
		Status:      string(s.Status),
		Details:     toSettlementItemDTOs(s.Details),
		CreatedAt:   timestamp(s.CreatedAt),
		UpdatedAt:   timestamp(s.UpdatedAt),
	}
}

type SettlementRunDTO struct {
	ID             string  `json:"id"`
	Month          string  `json:"month"`
	CandidateCount int     `json:"candidate_count"`
	PendingDays    float64 `json:"pending_days"`
	PendingAmount  float64 `json:"pending_amount"`
	SettledCount   int     `json:"settled_count"`
	RanAt          string  `json:"ran_at"`
}

func toSettlementRunDTO(r finance.SettlementRun) SettlementRunDTO {
	return SettlementRunDTO{
		ID:             r.ID,
		Month:          r.Month.String(),
		CandidateCount: r.CandidateCount,
		PendingDays:    r.PendingDays.InexactFloat64(),
		PendingAmount:  money(r.PendingAmount),
		SettledCount:   r.SettledCount,
		RanAt:          timestamp(r.RanAt),
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) float64 {
	return staffing.Round2(d).InexactFloat64()
}

func moneyPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	v := money(*d)
	return &v
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func dayString(d staffing.Day) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}
