package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// CREATE
// =============================================================================

// Create books a caregiver for a client. The availability check, the rate
// snapshot and the caregiver's BUSY flag are one transaction.
func (s *Service) Create(ctx context.Context, in OrderInput) (*staffing.Order, error) {
	period, err := in.validate()
	if err != nil {
		return nil, s.fail("create_order", err)
	}
	if err := s.validateFields(ctx, in.Fields); err != nil {
		return nil, s.fail("create_order", err)
	}
	status := in.Status
	if status == "" {
		status = staffing.OrderPending
	}

	var created staffing.Order
	err = s.store.WithTx(ctx, func(tx staffing.Store) error {
		caregiver, err := tx.FindCaregiver(ctx, in.CaregiverRef)
		if err != nil {
			return err
		}
		if caregiver == nil {
			return caregiverNotFound(in.CaregiverRef)
		}
		if err := checkAvailability(ctx, tx, caregiver, period, ""); err != nil {
			return err
		}

		monthly := in.MonthlySalary
		if !isPositive(monthly) {
			monthly = caregiver.MonthlySalary
		}
		rate := staffing.ResolveRate(monthly, in.DailySalary, nil)
		if rate.IsZero() {
			return &staffing.MissingSalaryError{CaregiverName: caregiver.Name}
		}
		total := staffing.CalculateTotal(staffing.TotalInput{
			MonthlySalary: monthly,
			DailySalary:   in.DailySalary,
			Period:        period,
			ManagementFee: in.ManagementFee,
		})
		if isPositive(in.TotalAmount) {
			total.TotalAmount = staffing.Round2(*in.TotalAmount)
		}

		duration := in.DurationDays
		if duration == 0 {
			duration = total.BaseDays
		}
		now := s.now().UTC()
		created = staffing.Order{
			ID:               uuid.NewString(),
			OrderNo:          newOrderNo(now.UnixMilli()),
			CaregiverID:      caregiver.ID,
			Period:           period,
			Status:           status,
			SalaryMode:       rate.Mode,
			DailySalary:      in.DailySalary,
			MonthlySalary:    monthly,
			DurationDays:     duration,
			ManagementFee:    in.ManagementFee,
			TotalAmount:      total.TotalAmount,
			Amount:           total.TotalAmount.Sub(in.ManagementFee),
			PaymentStatus:    staffing.PaymentUnpaid,
			ActualWorkedDays: decimal.Zero,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		applyParties(&created, in)
		created.CustomData.Fields = copyFields(in.Fields)

		if err := tx.SaveOrder(ctx, created); err != nil {
			return err
		}
		if status.IsActive() {
			return tx.SetAvailability(ctx, caregiver.ID, staffing.AvailabilityBusy)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("create_order", err)
	}

	s.metrics.OrderCreated()
	s.logger.Info("order created",
		zap.String("order_id", created.ID),
		zap.String("order_no", created.OrderNo),
		zap.String("caregiver_id", created.CaregiverID),
		zap.String("period", created.Period.String()),
		zap.String("total", created.TotalAmount.StringFixed(2)),
	)
	return &created, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update replaces an order's writable fields. The total is recomputed from
// the base terms only: rates come from the input, falling back to the rates
// stored on the order. Adjustments are not re-applied. A nil in.Fields keeps
// the stored custom field values as they are, without re-validating them.
func (s *Service) Update(ctx context.Context, id string, in OrderInput) (*staffing.Order, error) {
	period, err := in.validate()
	if err != nil {
		return nil, s.fail("update_order", err)
	}
	if in.Fields != nil {
		if err := s.validateFields(ctx, in.Fields); err != nil {
			return nil, s.fail("update_order", err)
		}
	}

	var updated staffing.Order
	var previous staffing.OrderStatus
	err = s.store.WithTx(ctx, func(tx staffing.Store) error {
		existing, err := loadOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		previous = existing.Status
		status := in.Status
		if status == "" {
			status = existing.Status
		}
		if err := staffing.CheckTransition(existing.Status, status); err != nil {
			return err
		}

		caregiver, err := tx.FindCaregiver(ctx, in.CaregiverRef)
		if err != nil {
			return err
		}
		if caregiver == nil {
			return caregiverNotFound(in.CaregiverRef)
		}
		if status != staffing.OrderCancelled {
			if err := checkAvailability(ctx, tx, caregiver, period, existing.ID); err != nil {
				return err
			}
		}

		monthly := existing.MonthlySalary
		if in.MonthlySalary != nil {
			monthly = in.MonthlySalary
		}
		daily := existing.DailySalary
		if in.DailySalary != nil {
			daily = in.DailySalary
		}
		total := staffing.CalculateTotal(staffing.TotalInput{
			MonthlySalary: monthly,
			DailySalary:   daily,
			Period:        period,
			ManagementFee: in.ManagementFee,
		})

		updated = *existing
		applyParties(&updated, in)
		updated.CaregiverID = caregiver.ID
		updated.Period = period
		updated.Status = status
		updated.MonthlySalary = monthly
		updated.DailySalary = daily
		updated.SalaryMode = staffing.ResolveRate(monthly, daily, nil).Mode
		updated.ManagementFee = in.ManagementFee
		updated.TotalAmount = total.TotalAmount
		updated.Amount = total.TotalAmount.Sub(in.ManagementFee)
		updated.DurationDays = in.DurationDays
		if updated.DurationDays == 0 {
			updated.DurationDays = total.BaseDays
		}
		if in.Fields != nil {
			updated.CustomData.Fields = copyFields(in.Fields)
		}
		updated.UpdatedAt = s.now().UTC()

		if err := tx.SaveOrder(ctx, updated); err != nil {
			return err
		}
		return reassign(ctx, tx, *existing, updated)
	})
	if err != nil {
		return nil, s.fail("update_order", err)
	}

	if updated.Status != previous {
		s.metrics.Transition(string(updated.Status))
	}
	s.logger.Info("order updated",
		zap.String("order_id", updated.ID),
		zap.String("status", string(updated.Status)),
		zap.String("total", updated.TotalAmount.StringFixed(2)),
	)
	return &updated, nil
}

// reassign keeps caregiver availability in step with an update: a terminal
// status releases the caregiver, and a caregiver swap moves the BUSY flag.
func reassign(ctx context.Context, tx staffing.Store, before, after staffing.Order) error {
	if !before.Status.IsActive() {
		return nil
	}
	if staffing.ReleasesCaregiver(after.Status) {
		return release(ctx, tx, before.CaregiverID)
	}
	if before.CaregiverID != after.CaregiverID {
		if err := release(ctx, tx, before.CaregiverID); err != nil {
			return err
		}
		return tx.SetAvailability(ctx, after.CaregiverID, staffing.AvailabilityBusy)
	}
	return nil
}

// release marks a caregiver IDLE. A caregiver removed in the meantime is
// not an error.
func release(ctx context.Context, tx staffing.Store, caregiverID string) error {
	err := tx.SetAvailability(ctx, caregiverID, staffing.AvailabilityIdle)
	if errors.Is(err, staffing.ErrCaregiverNotFound) {
		return nil
	}
	return err
}

// =============================================================================
// SETTLE
// =============================================================================

// SettleInput is the payload of a per-month order settlement.
type SettleInput struct {
	ActualDays  decimal.Decimal
	TotalAmount decimal.Decimal
	// Month is YYYY-MM; empty means the current month.
	Month string
}

// Settle records the settlement of one month of an order. An order whose
// end falls after the month is settled PARTIAL and stays CONFIRMED; an order
// ending within the month is settled FULL and completed. The caregiver is
// released only if the order still held them.
func (s *Service) Settle(ctx context.Context, id string, in SettleInput) (*staffing.Order, error) {
	month := staffing.MonthOf(s.now())
	verrs := staffing.ValidationErrors{}
	if strings.TrimSpace(in.Month) != "" {
		m, err := staffing.ParseMonth(in.Month)
		if err != nil {
			verrs.Add("month", "must be YYYY-MM")
		}
		month = m
	}
	if in.ActualDays.IsNegative() {
		verrs.Add("actual_days", "must not be negative")
	}
	if in.TotalAmount.IsNegative() {
		verrs.Add("total_amount", "must not be negative")
	}
	if !verrs.Empty() {
		return nil, s.fail("settle_order", verrs)
	}

	var settled staffing.Order
	err := s.store.WithTx(ctx, func(tx staffing.Store) error {
		o, err := loadOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.Status == staffing.OrderCancelled {
			return &staffing.TransitionError{From: o.Status, To: staffing.OrderCompleted}
		}

		partial := o.Period.End.After(month.LastDay())
		entry := staffing.SettlementHistoryEntry{
			Month:       month,
			ActualDays:  in.ActualDays,
			TotalAmount: staffing.Round2(in.TotalAmount),
			Type:        staffing.SettlementFull,
			Source:      staffing.SourceOrderSettlement,
			CreatedAt:   s.now().UTC(),
		}
		if partial {
			entry.Type = staffing.SettlementPartial
		}
		if err := o.CustomData.AppendSettlement(entry); err != nil {
			var already *staffing.AlreadySettledError
			if errors.As(err, &already) {
				already.OrderNo = o.OrderNo
			}
			return err
		}

		wasActive := o.Status.IsActive()
		o.ActualWorkedDays = o.ActualWorkedDays.Add(in.ActualDays)
		o.PaymentStatus = staffing.PaymentPaid
		switch {
		case !partial:
			o.Status = staffing.OrderCompleted
		case o.Status == staffing.OrderPending:
			o.Status = staffing.OrderConfirmed
		}
		o.UpdatedAt = s.now().UTC()

		if err := tx.SaveOrder(ctx, *o); err != nil {
			return err
		}
		settled = *o
		if !partial && wasActive {
			return release(ctx, tx, o.CaregiverID)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("settle_order", err)
	}

	s.metrics.Transition(string(settled.Status))
	s.logger.Info("order settled",
		zap.String("order_id", settled.ID),
		zap.String("month", month.String()),
		zap.String("actual_days", in.ActualDays.String()),
		zap.String("status", string(settled.Status)),
	)
	return &settled, nil
}

// =============================================================================
// COMPLETE / CANCEL / DELETE
// =============================================================================

// Complete closes an order and releases its caregiver. Only cancelled
// orders cannot be completed.
func (s *Service) Complete(ctx context.Context, id string) (*staffing.Order, error) {
	return s.finish(ctx, "complete_order", id, staffing.OrderCompleted)
}

// Cancel cancels a non-completed order and releases its caregiver.
func (s *Service) Cancel(ctx context.Context, id string) (*staffing.Order, error) {
	return s.finish(ctx, "cancel_order", id, staffing.OrderCancelled)
}

func (s *Service) finish(ctx context.Context, op, id string, target staffing.OrderStatus) (*staffing.Order, error) {
	var result staffing.Order
	err := s.store.WithTx(ctx, func(tx staffing.Store) error {
		o, err := loadOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := staffing.CheckTransition(o.Status, target); err != nil {
			return err
		}
		wasActive := o.Status.IsActive()
		o.Status = target
		o.UpdatedAt = s.now().UTC()
		if err := tx.SaveOrder(ctx, *o); err != nil {
			return err
		}
		result = *o
		if wasActive {
			return release(ctx, tx, o.CaregiverID)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}
	s.metrics.Transition(string(target))
	s.logger.Info("order status changed",
		zap.String("order_id", result.ID),
		zap.String("status", string(target)),
	)
	return &result, nil
}

// Delete removes an order. An order that still held its caregiver releases
// it first.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.WithTx(ctx, func(tx staffing.Store) error {
		o, err := loadOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.Status.IsActive() {
			if err := release(ctx, tx, o.CaregiverID); err != nil {
				return err
			}
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return s.fail("delete_order", err)
	}
	s.logger.Info("order deleted", zap.String("order_id", id))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func newOrderNo(millis int64) string {
	return fmt.Sprintf("ORD-%d-%s", millis, strings.ToUpper(uuid.NewString()[:4]))
}

func applyParties(o *staffing.Order, in OrderInput) {
	o.ClientName = strings.TrimSpace(in.ClientName)
	o.ClientPhone = strings.TrimSpace(in.ClientPhone)
	o.ClientLocation = strings.TrimSpace(in.ClientLocation)
	o.Address = strings.TrimSpace(in.Address)
	o.ServiceType = strings.TrimSpace(in.ServiceType)
	if o.ServiceType == "" {
		o.ServiceType = DefaultServiceType
	}
	o.ContactName = strings.TrimSpace(in.ContactName)
	o.ContactPhone = strings.TrimSpace(in.ContactPhone)
	o.DispatcherName = strings.TrimSpace(in.DispatcherName)
	o.DispatcherPhone = strings.TrimSpace(in.DispatcherPhone)
	o.Remarks = in.Remarks
}

func copyFields(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func isPositive(d *decimal.Decimal) bool { return d != nil && d.IsPositive() }
