package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// ORDERS
// =============================================================================

const orderColumns = `id, order_no, caregiver_id, client_name, client_phone, client_location,
	address, service_type, contact_name, contact_phone, dispatcher_name, dispatcher_phone,
	remarks, start_date, end_date, status, salary_mode, daily_salary, monthly_salary,
	duration_days, management_fee, total_amount, amount, payment_status,
	actual_worked_days, custom_data, created_at, updated_at`

func (s *Store) GetOrder(ctx context.Context, id string) (*staffing.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getOrder(ctx, s.db, id)
}

func (s *Store) SaveOrder(ctx context.Context, o staffing.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveOrder(ctx, s.db, o)
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteOrder(ctx, s.db, id)
}

func (s *Store) ListOrders(ctx context.Context, f staffing.OrderFilter) ([]staffing.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listOrders(ctx, s.db, f)
}

func getOrder(ctx context.Context, q querier, id string) (*staffing.Order, error) {
	row := q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return o, nil
}

func saveOrder(ctx context.Context, q querier, o staffing.Order) error {
	customData, err := json.Marshal(o.CustomData)
	if err != nil {
		return fmt.Errorf("failed to encode custom data for order %s: %w", o.ID, err)
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			caregiver_id = excluded.caregiver_id,
			client_name = excluded.client_name,
			client_phone = excluded.client_phone,
			client_location = excluded.client_location,
			address = excluded.address,
			service_type = excluded.service_type,
			contact_name = excluded.contact_name,
			contact_phone = excluded.contact_phone,
			dispatcher_name = excluded.dispatcher_name,
			dispatcher_phone = excluded.dispatcher_phone,
			remarks = excluded.remarks,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			status = excluded.status,
			salary_mode = excluded.salary_mode,
			daily_salary = excluded.daily_salary,
			monthly_salary = excluded.monthly_salary,
			duration_days = excluded.duration_days,
			management_fee = excluded.management_fee,
			total_amount = excluded.total_amount,
			amount = excluded.amount,
			payment_status = excluded.payment_status,
			actual_worked_days = excluded.actual_worked_days,
			custom_data = excluded.custom_data,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		o.ID, o.OrderNo, o.CaregiverID, o.ClientName, o.ClientPhone, o.ClientLocation,
		o.Address, o.ServiceType, o.ContactName, o.ContactPhone, o.DispatcherName, o.DispatcherPhone,
		o.Remarks, o.Period.Start.String(), o.Period.End.String(), string(o.Status),
		string(o.SalaryMode), nullDecimal(o.DailySalary), nullDecimal(o.MonthlySalary),
		o.DurationDays, o.ManagementFee.String(), o.TotalAmount.String(), o.Amount.String(),
		string(o.PaymentStatus), o.ActualWorkedDays.String(), string(customData),
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", o.ID, err)
	}
	return nil
}

func deleteOrder(ctx context.Context, q querier, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete order %s: %w", id, err)
	}
	return nil
}

func listOrders(ctx context.Context, q querier, f staffing.OrderFilter) ([]staffing.Order, error) {
	var where []string
	var args []any

	if len(f.CaregiverIDs) > 0 {
		where = append(where, "caregiver_id IN ("+placeholders(len(f.CaregiverIDs))+")")
		for _, id := range f.CaregiverIDs {
			args = append(args, id)
		}
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if len(f.ExcludeStatuses) > 0 {
		where = append(where, "status NOT IN ("+placeholders(len(f.ExcludeStatuses))+")")
		for _, st := range f.ExcludeStatuses {
			args = append(args, string(st))
		}
	}
	if f.Overlapping != nil {
		where = append(where, "start_date <= ? AND end_date >= ?")
		args = append(args, f.Overlapping.End.String(), f.Overlapping.Start.String())
	}
	if f.ExcludeOrderID != "" {
		where = append(where, "id <> ?")
		args = append(args, f.ExcludeOrderID)
	}
	if f.ClientQuery != "" {
		like := likePattern(f.ClientQuery)
		where = append(where, `(LOWER(client_name) LIKE ? ESCAPE '\' OR IFNULL(client_phone, '') LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	if f.DispatcherQuery != "" {
		like := likePattern(f.DispatcherQuery)
		where = append(where, `(LOWER(IFNULL(dispatcher_name, '')) LIKE ? ESCAPE '\' OR IFNULL(dispatcher_phone, '') LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var result []staffing.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	return result, rows.Err()
}

func scanOrder(row rowScanner) (*staffing.Order, error) {
	var o staffing.Order
	var clientPhone, clientLocation, address, serviceType, contactName, contactPhone sql.NullString
	var dispatcherName, dispatcherPhone, remarks, dailySalary, monthlySalary, customData sql.NullString
	var start, end, status, salaryMode, fee, total, amount, paymentStatus, worked, createdAt, updatedAt string

	if err := row.Scan(
		&o.ID, &o.OrderNo, &o.CaregiverID, &o.ClientName, &clientPhone, &clientLocation,
		&address, &serviceType, &contactName, &contactPhone, &dispatcherName, &dispatcherPhone,
		&remarks, &start, &end, &status, &salaryMode, &dailySalary, &monthlySalary,
		&o.DurationDays, &fee, &total, &amount, &paymentStatus,
		&worked, &customData, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	o.ClientPhone = clientPhone.String
	o.ClientLocation = clientLocation.String
	o.Address = address.String
	o.ServiceType = serviceType.String
	o.ContactName = contactName.String
	o.ContactPhone = contactPhone.String
	o.DispatcherName = dispatcherName.String
	o.DispatcherPhone = dispatcherPhone.String
	o.Remarks = remarks.String
	o.Period = staffing.Period{Start: parseDay(start), End: parseDay(end)}
	o.Status = staffing.OrderStatus(status)
	o.SalaryMode = staffing.SalaryMode(salaryMode)
	o.DailySalary = parseNullDecimal(dailySalary)
	o.MonthlySalary = parseNullDecimal(monthlySalary)
	o.ManagementFee = parseDecimal(fee)
	o.TotalAmount = parseDecimal(total)
	o.Amount = parseDecimal(amount)
	o.PaymentStatus = staffing.PaymentStatus(paymentStatus)
	o.ActualWorkedDays = parseDecimal(worked)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)

	if customData.Valid && customData.String != "" {
		if err := json.Unmarshal([]byte(customData.String), &o.CustomData); err != nil {
			return nil, fmt.Errorf("failed to decode custom data for order %s: %w", o.ID, err)
		}
	}
	return &o, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
