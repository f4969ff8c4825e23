package sqlite

import (
	"context"
	"fmt"

	"github.com/homecare/settlement-engine/finance"
	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// SETTLEMENT RUNS
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, r finance.SettlementRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlement_runs (id, month, candidate_count, pending_days, pending_amount, settled_count, ran_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Month.String(), r.CandidateCount, r.PendingDays.String(), r.PendingAmount.String(),
		r.SettledCount, formatTime(r.RanAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save settlement run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]finance.SettlementRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, month, candidate_count, pending_days, pending_amount, settled_count, ran_at
		FROM settlement_runs
		ORDER BY ran_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement runs: %w", err)
	}
	defer rows.Close()

	var runs []finance.SettlementRun
	for rows.Next() {
		var r finance.SettlementRun
		var month, days, amount, ranAt string
		if err := rows.Scan(&r.ID, &month, &r.CandidateCount, &days, &amount, &r.SettledCount, &ranAt); err != nil {
			return nil, err
		}
		r.Month, _ = staffing.ParseMonth(month)
		r.PendingDays = parseDecimal(days)
		r.PendingAmount = parseDecimal(amount)
		r.RanAt = parseTime(ranAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
