package orders

import (
	"context"

	"go.uber.org/zap"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// ADJUSTMENT LEDGER
// =============================================================================

// AddAdjustment appends an overtime, leave or substitute entry to an order
// and recomputes its total over all adjustments.
//
// Unlike Update, the rate here falls back to the caregiver's current
// monthly salary when the order carries no rate of its own.
func (s *Service) AddAdjustment(ctx context.Context, orderID string, in AdjustmentInput) (*staffing.Order, error) {
	day, kind, err := in.validate()
	if err != nil {
		return nil, s.fail("add_adjustment", err)
	}

	var result staffing.Order
	var entry staffing.Adjustment
	err = s.store.WithTx(ctx, func(tx staffing.Store) error {
		o, err := loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		caregiver, err := tx.GetCaregiver(ctx, o.CaregiverID)
		if err != nil {
			return err
		}

		monthly := o.MonthlySalary
		if !isPositive(monthly) && caregiver != nil {
			monthly = caregiver.MonthlySalary
		}
		rate := staffing.ResolveRate(monthly, o.DailySalary, nil)
		if rate.IsZero() {
			missing := &staffing.MissingSalaryError{}
			if caregiver != nil {
				missing.CaregiverName = caregiver.Name
			}
			return missing
		}

		entry = staffing.Adjustment{
			Date:             day,
			Type:             kind,
			Value:            in.Value,
			CalculatedAmount: staffing.Round2(rate.Daily.Mul(in.Value)),
			Remarks:          in.Remarks,
			CreatedAt:        s.now().UTC(),
		}
		if in.SubstituteID != "" {
			entry.SubstituteID = in.SubstituteID
			// Best effort: an unknown substitute keeps its raw id.
			if sub, err := tx.FindCaregiver(ctx, in.SubstituteID); err == nil && sub != nil {
				entry.SubstituteName = sub.Name
			}
		}
		o.CustomData.AppendAdjustment(entry)

		total := staffing.CalculateTotal(staffing.TotalInput{
			MonthlySalary: monthly,
			DailySalary:   o.DailySalary,
			Period:        o.Period,
			ManagementFee: o.ManagementFee,
			Adjustments:   o.CustomData.Adjustments,
		})
		o.TotalAmount = total.TotalAmount
		o.Amount = total.TotalAmount.Sub(o.ManagementFee)
		o.UpdatedAt = s.now().UTC()

		if err := tx.SaveOrder(ctx, *o); err != nil {
			return err
		}
		result = *o
		return nil
	})
	if err != nil {
		return nil, s.fail("add_adjustment", err)
	}

	s.metrics.Adjustment(string(kind))
	s.logger.Info("order adjustment added",
		zap.String("order_id", result.ID),
		zap.String("type", string(kind)),
		zap.String("value", entry.Value.String()),
		zap.String("amount", entry.CalculatedAmount.StringFixed(2)),
		zap.String("total", result.TotalAmount.StringFixed(2)),
	)
	return &result, nil
}
