package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// SETTLEMENT RUNS - Monthly snapshot of what is still waiting to be settled
// =============================================================================

// SettlementRun records one evaluation of a month's candidates.
type SettlementRun struct {
	ID             string
	Month          staffing.Month
	CandidateCount int
	PendingDays    decimal.Decimal
	PendingAmount  decimal.Decimal
	SettledCount   int
	RanAt          time.Time
}

// RunStore persists settlement runs.
type RunStore interface {
	SaveRun(ctx context.Context, r SettlementRun) error
	ListRuns(ctx context.Context, limit int) ([]SettlementRun, error)
}

// RecordRun computes candidates and history for month and stores a summary.
func (a *Aggregator) RecordRun(ctx context.Context, runs RunStore, month staffing.Month) (*SettlementRun, error) {
	candidates, err := a.Candidates(ctx, month)
	if err != nil {
		return nil, err
	}
	settled, err := a.History(ctx, month)
	if err != nil {
		return nil, err
	}

	run := SettlementRun{
		ID:            uuid.NewString(),
		Month:         month,
		PendingDays:   decimal.Zero,
		PendingAmount: decimal.Zero,
		SettledCount:  len(settled),
		RanAt:         a.now().UTC(),
	}
	for _, c := range candidates {
		run.CandidateCount++
		run.PendingDays = run.PendingDays.Add(c.TotalDays)
		run.PendingAmount = run.PendingAmount.Add(c.TotalAmount)
	}

	if err := runs.SaveRun(ctx, run); err != nil {
		return nil, a.fail("record_run", fmt.Errorf("failed to save settlement run: %w", err))
	}
	a.logger.Info("settlement run recorded",
		zap.String("month", month.String()),
		zap.Int("candidates", run.CandidateCount),
		zap.String("pending_amount", run.PendingAmount.StringFixed(2)),
		zap.Int("settled", run.SettledCount),
	)
	return &run, nil
}
