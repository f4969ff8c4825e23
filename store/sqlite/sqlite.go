/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements staffing.TxStore (caregivers, orders, salary settlements),
  fields.Store (custom field definitions) and finance.RunStore (settlement
  runs) on one SQLite database.

INTERFACES IMPLEMENTED:
  staffing.TxStore: Caregiver/order/settlement CRUD + WithTx
  fields.Store:     Custom field definitions
  finance.RunStore: Settlement run snapshots

KEY TABLES:
  caregivers:          Profiles; employment_status and availability columns
  orders:              Orders; custom_data holds adjustments + history JSON
  salary_settlements:  One row per (caregiver_id, month)
  field_definitions:   Unique per (target_model, name)
  settlement_runs:     Cron snapshots

STORAGE BOUNDARY:
  Money is stored as decimal TEXT, days as YYYY-MM-DD TEXT (lexicographic
  order equals calendar order), CustomData and settlement details as JSON.
  Nothing outside this package sees the serialized forms.

CONCURRENCY:
  Uses sync.RWMutex plus a single connection. Transactions begin with
  _txlock=immediate, so a read-check-write sequence inside WithTx cannot
  interleave with another writer.

USAGE:
  store, err := sqlite.New("./data/settlement.db")
  if err != nil {
      return err
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - staffing/store.go: Interface definitions
  - staffing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/homecare/settlement-engine/staffing"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// has a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewFromDB wraps an already opened, already migrated database.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS caregivers (
		id TEXT PRIMARY KEY,
		worker_id TEXT UNIQUE,
		name TEXT NOT NULL,
		phone TEXT,
		monthly_salary TEXT,
		employment_status TEXT NOT NULL DEFAULT 'PENDING',
		availability TEXT NOT NULL DEFAULT 'IDLE',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_caregivers_name ON caregivers(name);
	CREATE INDEX IF NOT EXISTS idx_caregivers_phone ON caregivers(phone);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		order_no TEXT NOT NULL UNIQUE,
		caregiver_id TEXT NOT NULL REFERENCES caregivers(id),
		client_name TEXT NOT NULL,
		client_phone TEXT,
		client_location TEXT,
		address TEXT,
		service_type TEXT,
		contact_name TEXT,
		contact_phone TEXT,
		dispatcher_name TEXT,
		dispatcher_phone TEXT,
		remarks TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		salary_mode TEXT NOT NULL,
		daily_salary TEXT,
		monthly_salary TEXT,
		duration_days INTEGER NOT NULL DEFAULT 0,
		management_fee TEXT NOT NULL DEFAULT '0',
		total_amount TEXT NOT NULL DEFAULT '0',
		amount TEXT NOT NULL DEFAULT '0',
		payment_status TEXT NOT NULL DEFAULT 'UNPAID',
		actual_worked_days TEXT NOT NULL DEFAULT '0',
		custom_data TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Availability checks and month scans (hot path)
	CREATE INDEX IF NOT EXISTS idx_orders_caregiver_dates
		ON orders(caregiver_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_orders_dates_status
		ON orders(start_date, end_date, status);

	CREATE TABLE IF NOT EXISTS salary_settlements (
		id TEXT PRIMARY KEY,
		caregiver_id TEXT NOT NULL REFERENCES caregivers(id),
		month TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		details TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(caregiver_id, month)
	);

	CREATE INDEX IF NOT EXISTS idx_settlements_month ON salary_settlements(month);

	CREATE TABLE IF NOT EXISTS field_definitions (
		id TEXT PRIMARY KEY,
		target_model TEXT NOT NULL,
		name TEXT NOT NULL,
		label TEXT NOT NULL,
		field_type TEXT NOT NULL,
		options_json TEXT,
		required INTEGER NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE(target_model, name)
	);

	CREATE TABLE IF NOT EXISTS settlement_runs (
		id TEXT PRIMARY KEY,
		month TEXT NOT NULL,
		candidate_count INTEGER NOT NULL,
		pending_days TEXT NOT NULL,
		pending_amount TEXT NOT NULL,
		settled_count INTEGER NOT NULL,
		ran_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// All reads and writes made through the Store passed to fn use the same
// *sql.Tx; the parent's lock is held for the whole call.
func (s *Store) WithTx(ctx context.Context, fn func(store staffing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetCaregiver(ctx context.Context, id string) (*staffing.Caregiver, error) {
	return getCaregiver(ctx, ts.tx, id)
}

func (ts *txStore) FindCaregiver(ctx context.Context, ref string) (*staffing.Caregiver, error) {
	return findCaregiver(ctx, ts.tx, ref)
}

func (ts *txStore) SearchCaregivers(ctx context.Context, f staffing.CaregiverFilter) ([]staffing.Caregiver, error) {
	return searchCaregivers(ctx, ts.tx, f)
}

func (ts *txStore) SaveCaregiver(ctx context.Context, c staffing.Caregiver) error {
	return saveCaregiver(ctx, ts.tx, c)
}

func (ts *txStore) SetAvailability(ctx context.Context, caregiverID string, a staffing.Availability) error {
	return setAvailability(ctx, ts.tx, caregiverID, a)
}

func (ts *txStore) GetOrder(ctx context.Context, id string) (*staffing.Order, error) {
	return getOrder(ctx, ts.tx, id)
}

func (ts *txStore) SaveOrder(ctx context.Context, o staffing.Order) error {
	return saveOrder(ctx, ts.tx, o)
}

func (ts *txStore) DeleteOrder(ctx context.Context, id string) error {
	return deleteOrder(ctx, ts.tx, id)
}

func (ts *txStore) ListOrders(ctx context.Context, f staffing.OrderFilter) ([]staffing.Order, error) {
	return listOrders(ctx, ts.tx, f)
}

func (ts *txStore) GetSettlement(ctx context.Context, caregiverID string, month staffing.Month) (*staffing.SalarySettlement, error) {
	return getSettlement(ctx, ts.tx, caregiverID, month)
}

func (ts *txStore) ListSettlements(ctx context.Context, month staffing.Month) ([]staffing.SalarySettlement, error) {
	return listSettlements(ctx, ts.tx, month)
}

func (ts *txStore) SaveSettlement(ctx context.Context, st staffing.SalarySettlement) error {
	return saveSettlement(ctx, ts.tx, st)
}

// =============================================================================
// CAREGIVERS
// =============================================================================

const caregiverColumns = `id, worker_id, name, phone, monthly_salary, employment_status,
	availability, created_at, updated_at`

func (s *Store) GetCaregiver(ctx context.Context, id string) (*staffing.Caregiver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCaregiver(ctx, s.db, id)
}

func (s *Store) FindCaregiver(ctx context.Context, ref string) (*staffing.Caregiver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findCaregiver(ctx, s.db, ref)
}

func (s *Store) SearchCaregivers(ctx context.Context, f staffing.CaregiverFilter) ([]staffing.Caregiver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return searchCaregivers(ctx, s.db, f)
}

func (s *Store) SaveCaregiver(ctx context.Context, c staffing.Caregiver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCaregiver(ctx, s.db, c)
}

func (s *Store) SetAvailability(ctx context.Context, caregiverID string, a staffing.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setAvailability(ctx, s.db, caregiverID, a)
}

func getCaregiver(ctx context.Context, q querier, id string) (*staffing.Caregiver, error) {
	row := q.QueryRowContext(ctx, `SELECT `+caregiverColumns+` FROM caregivers WHERE id = ?`, id)
	c, err := scanCaregiver(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load caregiver %s: %w", id, err)
	}
	return c, nil
}

func findCaregiver(ctx context.Context, q querier, ref string) (*staffing.Caregiver, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	query := `SELECT ` + caregiverColumns + ` FROM caregivers
		WHERE id = ? OR worker_id = ? OR name = ? OR phone = ?
		ORDER BY CASE
			WHEN id = ? THEN 0
			WHEN worker_id = ? THEN 1
			WHEN name = ? THEN 2
			ELSE 3
		END, created_at
		LIMIT 1`
	row := q.QueryRowContext(ctx, query, ref, ref, ref, ref, ref, ref, ref)
	c, err := scanCaregiver(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find caregiver %q: %w", ref, err)
	}
	return c, nil
}

func searchCaregivers(ctx context.Context, q querier, f staffing.CaregiverFilter) ([]staffing.Caregiver, error) {
	var where []string
	var args []any
	if f.Availability != "" {
		where = append(where, "availability = ?")
		args = append(args, string(f.Availability))
	}
	if f.EmploymentStatus != "" {
		where = append(where, "employment_status = ?")
		args = append(args, string(f.EmploymentStatus))
	}
	if f.Query != "" {
		like := likePattern(f.Query)
		where = append(where, `(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(IFNULL(worker_id, '')) LIKE ? ESCAPE '\' OR IFNULL(phone, '') LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}

	query := `SELECT ` + caregiverColumns + ` FROM caregivers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search caregivers: %w", err)
	}
	defer rows.Close()

	var result []staffing.Caregiver
	for rows.Next() {
		c, err := scanCaregiver(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func saveCaregiver(ctx context.Context, q querier, c staffing.Caregiver) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	query := `
		INSERT INTO caregivers (` + caregiverColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			worker_id = excluded.worker_id,
			name = excluded.name,
			phone = excluded.phone,
			monthly_salary = excluded.monthly_salary,
			employment_status = excluded.employment_status,
			availability = excluded.availability,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		c.ID, nullString(c.WorkerID), c.Name, nullString(c.Phone), nullDecimal(c.MonthlySalary),
		string(c.EmploymentStatus), string(c.Availability),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("worker id %s already in use: %w", c.WorkerID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to save caregiver %s: %w", c.ID, err)
	}
	return nil
}

func setAvailability(ctx context.Context, q querier, id string, a staffing.Availability) error {
	res, err := q.ExecContext(ctx,
		`UPDATE caregivers SET availability = ?, updated_at = ? WHERE id = ?`,
		string(a), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to set availability for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return staffing.ErrCaregiverNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCaregiver(row rowScanner) (*staffing.Caregiver, error) {
	var c staffing.Caregiver
	var workerID, phone, salary sql.NullString
	var employment, availability, createdAt, updatedAt string
	if err := row.Scan(&c.ID, &workerID, &c.Name, &phone, &salary,
		&employment, &availability, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.WorkerID = workerID.String
	c.Phone = phone.String
	c.MonthlySalary = parseNullDecimal(salary)
	c.EmploymentStatus = staffing.EmploymentStatus(employment)
	c.Availability = staffing.Availability(availability)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// Reset deletes all rows (demo scenarios only).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"salary_settlements", "orders", "caregivers", "settlement_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDay(s string) staffing.Day {
	d, _ := staffing.ParseDay(s)
	return d
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a case-folded substring pattern for LIKE ... ESCAPE '\'.
// Wildcards typed by the user match literally.
func likePattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(q))) + "%"
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
