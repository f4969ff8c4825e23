/*
aggregator.go - Monthly salary settlement for the finance center

PURPOSE:
  Computes, per caregiver, what each order is worth within one calendar
  month, and persists the month's settlement. Saving a settlement syncs a
  history entry back into every order it covers so that order-level and
  finance-level settlement never double count a month.

CANDIDATES:
  1. Orders with status PENDING/CONFIRMED/SERVING/COMPLETED overlapping the month
  2. Caregivers that already have a settlement row for the month are skipped
  3. Each order is clipped to the month; its daily rate follows the order,
     then the caregiver's monthly salary / 26
  4. An order already settled for the month contributes its recorded days
  5. Caregivers with no days left are dropped; the rest sorted by name

SEE ALSO:
  - runs.go: Scheduled snapshots of the candidates
  - export.go, slip.go: Spreadsheet and PDF renderings
*/
package finance

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/homecare/settlement-engine/logging"
	"github.com/homecare/settlement-engine/metrics"
	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// AGGREGATOR
// =============================================================================

// billableStatuses are the order statuses that earn salary in a month.
var billableStatuses = []staffing.OrderStatus{
	staffing.OrderConfirmed,
	staffing.OrderServing,
	staffing.OrderCompleted,
	staffing.OrderPending,
}

type Aggregator struct {
	store   staffing.TxStore
	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// Options configures optional collaborators. Zero values are valid.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Recorder
	Now     func() time.Time
}

func NewAggregator(store staffing.TxStore, opts Options) *Aggregator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		store:   store,
		logger:  logging.OrNop(opts.Logger).Named("finance"),
		metrics: opts.Metrics,
		now:     now,
	}
}

func (a *Aggregator) fail(op string, err error) error {
	e := staffing.AsError(err)
	a.metrics.Error(op, string(e.Code))
	if staffing.IsClientError(e) {
		a.logger.Info("settlement operation rejected",
			zap.String("operation", op),
			zap.String("code", string(e.Code)),
			zap.String("message", e.Message),
		)
	} else {
		a.logger.Error("settlement operation failed",
			zap.String("operation", op),
			zap.Error(err),
		)
	}
	return e
}

// =============================================================================
// CANDIDATES
// =============================================================================

// Candidates returns the caregivers still to be settled for month.
func (a *Aggregator) Candidates(ctx context.Context, month staffing.Month) ([]staffing.SettlementDetail, error) {
	defer a.metrics.ObserveCandidates(time.Now())

	if month.IsZero() {
		return nil, a.fail("candidates", monthRequired())
	}
	bounds := month.Period()

	list, err := a.store.ListOrders(ctx, staffing.OrderFilter{
		Statuses:    billableStatuses,
		Overlapping: &bounds,
	})
	if err != nil {
		return nil, a.fail("candidates", err)
	}
	settled, err := a.settledCaregivers(ctx, month)
	if err != nil {
		return nil, a.fail("candidates", err)
	}

	var order []string
	byCaregiver := make(map[string][]staffing.Order)
	for _, o := range list {
		if settled[o.CaregiverID] {
			continue
		}
		if _, ok := byCaregiver[o.CaregiverID]; !ok {
			order = append(order, o.CaregiverID)
		}
		byCaregiver[o.CaregiverID] = append(byCaregiver[o.CaregiverID], o)
	}

	var result []staffing.SettlementDetail
	for _, caregiverID := range order {
		caregiver, err := a.store.GetCaregiver(ctx, caregiverID)
		if err != nil {
			return nil, a.fail("candidates", err)
		}
		detail := buildDetail(caregiverID, caregiver, month, byCaregiver[caregiverID])
		if !detail.TotalDays.IsPositive() {
			continue
		}
		result = append(result, detail)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CaregiverName < result[j].CaregiverName
	})
	return result, nil
}

func (a *Aggregator) settledCaregivers(ctx context.Context, month staffing.Month) (map[string]bool, error) {
	rows, err := a.store.ListSettlements(ctx, month)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		out[r.CaregiverID] = true
	}
	return out, nil
}

// buildDetail computes one caregiver's items for month. caregiver may be nil
// when the record was removed; its orders still settle on their own rates.
func buildDetail(caregiverID string, caregiver *staffing.Caregiver, month staffing.Month, list []staffing.Order) staffing.SettlementDetail {
	detail := staffing.SettlementDetail{
		CaregiverID:      caregiverID,
		Month:            month,
		TotalDays:        decimal.Zero,
		TotalAmount:      decimal.Zero,
		AllOrdersSettled: true,
		Status:           staffing.SettlementPending,
	}
	var fallback *decimal.Decimal
	if caregiver != nil {
		detail.CaregiverName = caregiver.Name
		detail.WorkerID = caregiver.WorkerID
		fallback = caregiver.MonthlySalary
	}

	bounds := month.Period()
	for _, o := range list {
		item, ok := settlementItem(o, bounds, month, fallback)
		if !ok {
			continue
		}
		detail.Items = append(detail.Items, item)
		detail.TotalDays = detail.TotalDays.Add(item.ActualDays)
		detail.TotalAmount = detail.TotalAmount.Add(item.Amount)
		if !item.IsOrderSettled {
			detail.AllOrdersSettled = false
		}
	}
	detail.OrderCount = len(detail.Items)
	if detail.OrderCount == 0 {
		detail.AllOrdersSettled = false
	}
	detail.TotalAmount = staffing.Round2(detail.TotalAmount)
	return detail
}

func settlementItem(o staffing.Order, bounds staffing.Period, month staffing.Month, fallback *decimal.Decimal) (staffing.SettlementItem, bool) {
	calc := o.Period.Clip(bounds)
	if !calc.Valid() {
		return staffing.SettlementItem{}, false
	}
	rate := staffing.ResolveRate(o.MonthlySalary, o.DailySalary, fallback)
	days := calc.Days()

	item := staffing.SettlementItem{
		OrderID:        o.ID,
		OrderNo:        o.OrderNo,
		ClientName:     o.ClientName,
		Start:          o.Period.Start,
		End:            o.Period.End,
		CalcStart:      calc.Start,
		CalcEnd:        calc.End,
		DaysInMonth:    days,
		ActualDays:     decimal.NewFromInt(int64(days)),
		SalaryMode:     rate.Mode,
		BaseSalary:     rate.Base,
		DailyRate:      staffing.Round2(rate.Daily),
		SettlementType: settlementType(o, month),
	}
	if h, ok := o.CustomData.SettlementFor(month); ok {
		item.ActualDays = h.ActualDays
		item.IsOrderSettled = true
	}
	item.Amount = staffing.Round2(rate.Daily.Mul(item.ActualDays))
	return item, true
}

func settlementType(o staffing.Order, month staffing.Month) staffing.SettlementType {
	if o.Period.End.After(month.LastDay()) {
		return staffing.SettlementPartial
	}
	return staffing.SettlementFull
}

// =============================================================================
// HISTORY
// =============================================================================

// History returns the month's persisted settlements, newest first.
func (a *Aggregator) History(ctx context.Context, month staffing.Month) ([]staffing.SalarySettlement, error) {
	if month.IsZero() {
		return nil, a.fail("history", monthRequired())
	}
	rows, err := a.store.ListSettlements(ctx, month)
	if err != nil {
		return nil, a.fail("history", err)
	}
	return rows, nil
}

// Detail returns one caregiver's month: the persisted settlement when there
// is one, otherwise the pending candidate.
func (a *Aggregator) Detail(ctx context.Context, caregiverID string, month staffing.Month) (*staffing.SettlementDetail, error) {
	if month.IsZero() {
		return nil, a.fail("settlement_detail", monthRequired())
	}
	st, err := a.store.GetSettlement(ctx, caregiverID, month)
	if err != nil {
		return nil, a.fail("settlement_detail", err)
	}
	if st != nil {
		caregiver, err := a.store.GetCaregiver(ctx, caregiverID)
		if err != nil {
			return nil, a.fail("settlement_detail", err)
		}
		d := DetailFromSettlement(*st, caregiver)
		return &d, nil
	}

	candidates, err := a.Candidates(ctx, month)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if c.CaregiverID == caregiverID {
			return &c, nil
		}
	}
	return nil, a.fail("settlement_detail", &staffing.Error{
		Code:    staffing.CodeCaregiverNotFound,
		Message: "nothing to settle for caregiver " + caregiverID + " in " + month.String(),
		Err:     staffing.ErrCaregiverNotFound,
	})
}

// =============================================================================
// CREATE OR UPDATE
// =============================================================================

// CreateOrUpdate persists a caregiver's month and writes a FINANCE_CENTER
// history entry into each covered order that has none for the month. Items
// whose order has since been deleted are kept in the settlement and skipped
// by the sync.
func (a *Aggregator) CreateOrUpdate(ctx context.Context, detail staffing.SettlementDetail) (*staffing.SalarySettlement, error) {
	verrs := staffing.ValidationErrors{}
	if detail.CaregiverID == "" {
		verrs.Add("caregiverId", "is required")
	}
	if detail.Month.IsZero() {
		verrs.Add("month", "is required (YYYY-MM)")
	}
	if detail.TotalAmount.IsNegative() {
		verrs.Add("totalAmount", "must not be negative")
	}
	if !verrs.Empty() {
		return nil, a.fail("save_settlement", verrs)
	}

	now := a.now().UTC()
	var saved staffing.SalarySettlement
	synced := 0
	var missing []string
	err := a.store.WithTx(ctx, func(tx staffing.Store) error {
		existing, err := tx.GetSettlement(ctx, detail.CaregiverID, detail.Month)
		if err != nil {
			return err
		}
		saved = staffing.SalarySettlement{
			ID:          uuid.NewString(),
			CaregiverID: detail.CaregiverID,
			Month:       detail.Month,
			TotalAmount: staffing.Round2(detail.TotalAmount),
			Status:      staffing.SettlementSettled,
			Details:     detail.Items,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if existing != nil {
			saved.ID = existing.ID
			saved.Status = existing.Status
			saved.CreatedAt = existing.CreatedAt
		}
		if err := tx.SaveSettlement(ctx, saved); err != nil {
			return err
		}

		for _, item := range detail.Items {
			o, err := tx.GetOrder(ctx, item.OrderID)
			if err != nil {
				return err
			}
			if o == nil {
				missing = append(missing, item.OrderID)
				continue
			}
			ok, err := syncOrder(ctx, tx, o, item, detail.Month, now)
			if err != nil {
				return err
			}
			if ok {
				synced++
			}
		}
		return nil
	})
	if err != nil {
		return nil, a.fail("save_settlement", err)
	}

	a.metrics.SettlementSaved()
	if len(missing) > 0 {
		a.logger.Info("settlement items reference deleted orders",
			zap.String("caregiver_id", saved.CaregiverID),
			zap.String("month", saved.Month.String()),
			zap.Strings("order_ids", missing),
		)
	}
	a.logger.Info("settlement saved",
		zap.String("caregiver_id", saved.CaregiverID),
		zap.String("month", saved.Month.String()),
		zap.String("total", saved.TotalAmount.StringFixed(2)),
		zap.Int("items", len(saved.Details)),
		zap.Int("orders_synced", synced),
	)
	return &saved, nil
}

// syncOrder marks an order PAID and records the month in its history when
// absent. It reports whether a history entry was added.
func syncOrder(ctx context.Context, tx staffing.Store, o *staffing.Order, item staffing.SettlementItem, month staffing.Month, now time.Time) (bool, error) {
	added := false
	if _, ok := o.CustomData.SettlementFor(month); !ok {
		days := item.ActualDays
		if days.IsZero() {
			days = decimal.NewFromInt(int64(item.DaysInMonth))
		}
		kind := item.SettlementType
		if kind == "" {
			kind = settlementType(*o, month)
		}
		if err := o.CustomData.AppendSettlement(staffing.SettlementHistoryEntry{
			Month:       month,
			ActualDays:  days,
			TotalAmount: staffing.Round2(item.Amount),
			Type:        kind,
			Source:      staffing.SourceFinanceCenter,
			CreatedAt:   now,
		}); err != nil {
			return false, err
		}
		added = true
	}
	o.PaymentStatus = staffing.PaymentPaid
	o.UpdatedAt = now
	return added, tx.SaveOrder(ctx, *o)
}

func monthRequired() error {
	verrs := staffing.ValidationErrors{}
	verrs.Add("month", "is required (YYYY-MM)")
	return verrs
}
