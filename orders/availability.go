package orders

import (
	"context"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// AVAILABILITY CHECKER
// =============================================================================

// checkAvailability fails with a *staffing.ConflictError when another
// non-cancelled order of the caregiver overlaps period. Completed orders
// still occupy their days. excludeOrderID skips the order being
// updated. It must be called with the transaction's Store.
func checkAvailability(ctx context.Context, tx staffing.Store, caregiver *staffing.Caregiver, period staffing.Period, excludeOrderID string) error {
	conflicts, err := tx.ListOrders(ctx, staffing.OrderFilter{
		CaregiverIDs:    []string{caregiver.ID},
		ExcludeStatuses: []staffing.OrderStatus{staffing.OrderCancelled},
		Overlapping:     &period,
		ExcludeOrderID:  excludeOrderID,
	})
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		return nil
	}
	c := conflicts[0]
	return &staffing.ConflictError{
		CaregiverName: caregiver.Name,
		Existing:      c.Period,
		OrderNo:       c.OrderNo,
	}
}

// CheckAvailability reports whether caregiverID is free for [start, end].
// It returns nil when free and a SCHEDULING_CONFLICT error otherwise. Writes
// repeat this check inside their own transaction.
func (s *Service) CheckAvailability(ctx context.Context, caregiverID, start, end string, excludeOrderID string) error {
	period, err := staffing.NewPeriod(start, end)
	if err != nil {
		verrs := staffing.ValidationErrors{}
		verrs.Add("period", err.Error())
		return s.fail("check_availability", verrs)
	}
	caregiver, err := s.store.FindCaregiver(ctx, caregiverID)
	if err != nil {
		return s.fail("check_availability", err)
	}
	if caregiver == nil {
		return s.fail("check_availability", caregiverNotFound(caregiverID))
	}
	if err := checkAvailability(ctx, s.store, caregiver, period, excludeOrderID); err != nil {
		return s.fail("check_availability", err)
	}
	return nil
}
