package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// SALARY SETTLEMENTS
// =============================================================================

const settlementColumns = `id, caregiver_id, month, total_amount, status, details, created_at, updated_at`

func (s *Store) GetSettlement(ctx context.Context, caregiverID string, month staffing.Month) (*staffing.SalarySettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSettlement(ctx, s.db, caregiverID, month)
}

func (s *Store) ListSettlements(ctx context.Context, month staffing.Month) ([]staffing.SalarySettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSettlements(ctx, s.db, month)
}

func (s *Store) SaveSettlement(ctx context.Context, st staffing.SalarySettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSettlement(ctx, s.db, st)
}

func getSettlement(ctx context.Context, q querier, caregiverID string, month staffing.Month) (*staffing.SalarySettlement, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM salary_settlements WHERE caregiver_id = ? AND month = ?`,
		caregiverID, month.String())
	st, err := scanSettlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settlement %s/%s: %w", caregiverID, month, err)
	}
	return st, nil
}

func listSettlements(ctx context.Context, q querier, month staffing.Month) ([]staffing.SalarySettlement, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+settlementColumns+` FROM salary_settlements WHERE month = ? ORDER BY created_at DESC`,
		month.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements for %s: %w", month, err)
	}
	defer rows.Close()

	var result []staffing.SalarySettlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}
	return result, rows.Err()
}

// saveSettlement upserts on (caregiver_id, month); id and created_at of an
// existing row are kept.
func saveSettlement(ctx context.Context, q querier, st staffing.SalarySettlement) error {
	details, err := json.Marshal(st.Details)
	if err != nil {
		return fmt.Errorf("failed to encode settlement details: %w", err)
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = now
	}

	query := `
		INSERT INTO salary_settlements (` + settlementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(caregiver_id, month) DO UPDATE SET
			total_amount = excluded.total_amount,
			status = excluded.status,
			details = excluded.details,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		st.ID, st.CaregiverID, st.Month.String(), st.TotalAmount.String(), string(st.Status),
		string(details), formatTime(st.CreatedAt), formatTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save settlement %s/%s: %w", st.CaregiverID, st.Month, err)
	}
	return nil
}

func scanSettlement(row rowScanner) (*staffing.SalarySettlement, error) {
	var st staffing.SalarySettlement
	var month, total, status, details, createdAt, updatedAt string
	if err := row.Scan(&st.ID, &st.CaregiverID, &month, &total, &status, &details, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m, err := staffing.ParseMonth(month)
	if err != nil {
		return nil, err
	}
	st.Month = m
	st.TotalAmount = parseDecimal(total)
	st.Status = staffing.SettlementStatus(status)
	st.CreatedAt = parseTime(createdAt)
	st.UpdatedAt = parseTime(updatedAt)
	if details != "" {
		if err := json.Unmarshal([]byte(details), &st.Details); err != nil {
			return nil, fmt.Errorf("failed to decode settlement details %s: %w", st.ID, err)
		}
	}
	return &st, nil
}
