/*
store.go - Persistence interface for caregivers, orders and settlements

PURPOSE:
  Defines the interface between the engine and the database. The engine
  never talks SQL; it reads and writes whole records through Store and
  groups multi-record changes with TxStore.WithTx.

KEY INTERFACES:
  Store:   Caregiver, order and settlement CRUD + upsert
  TxStore: Store + WithTx for atomic multi-record operations

READ CONTRACT:
  Get* methods return (nil, nil) when the record does not exist. Callers
  decide whether absence is an error (ORDER_NOT_FOUND, ...).

ATOMICITY:
  Every engine operation runs inside WithTx. Reads that feed a decision are
  made through the Store handed to fn, so they see the same transaction as
  the writes that follow. Write transactions are serialized by both
  implementations, which makes check-then-insert (availability) atomic
  within one process.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - staffing/store/memory.go: In-memory for tests and dev

SEE ALSO:
  - orders/service.go, finance/aggregator.go: Callers
*/
package staffing

import "context"

// =============================================================================
// FILTERS
// =============================================================================

// CaregiverFilter narrows SearchCaregivers. Zero values match everything.
type CaregiverFilter struct {
	Query            string // substring of name, worker id or phone
	Availability     Availability
	EmploymentStatus EmploymentStatus
}

// OrderFilter narrows ListOrders. Zero values match everything.
type OrderFilter struct {
	CaregiverIDs    []string
	Statuses        []OrderStatus // include only these
	ExcludeStatuses []OrderStatus
	Overlapping     *Period // orders whose period overlaps this one
	ExcludeOrderID  string
	ClientQuery     string // substring of client name or phone
	DispatcherQuery string // substring of dispatcher name or phone
}

// Matches applies the filter to an order in memory. SQL stores push the same
// predicates into their WHERE clause.
func (f OrderFilter) Matches(o Order) bool {
	if len(f.CaregiverIDs) > 0 && !containsString(f.CaregiverIDs, o.CaregiverID) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, o.Status) {
		return false
	}
	if containsStatus(f.ExcludeStatuses, o.Status) {
		return false
	}
	if f.Overlapping != nil && !o.Period.Overlaps(*f.Overlapping) {
		return false
	}
	if f.ExcludeOrderID != "" && o.ID == f.ExcludeOrderID {
		return false
	}
	if f.ClientQuery != "" && !containsFold(f.ClientQuery, o.ClientName, o.ClientPhone) {
		return false
	}
	if f.DispatcherQuery != "" && !containsFold(f.DispatcherQuery, o.DispatcherName, o.DispatcherPhone) {
		return false
	}
	return true
}

// Matches applies the filter to a caregiver in memory.
func (f CaregiverFilter) Matches(c Caregiver) bool {
	if f.Availability != "" && c.Availability != f.Availability {
		return false
	}
	if f.EmploymentStatus != "" && c.EmploymentStatus != f.EmploymentStatus {
		return false
	}
	if f.Query != "" && !containsFold(f.Query, c.Name, c.WorkerID, c.Phone) {
		return false
	}
	return true
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	GetCaregiver(ctx context.Context, id string) (*Caregiver, error)

	// FindCaregiver resolves a reference by id, then worker id, name, phone.
	FindCaregiver(ctx context.Context, ref string) (*Caregiver, error)

	SearchCaregivers(ctx context.Context, f CaregiverFilter) ([]Caregiver, error)

	// SaveCaregiver inserts or replaces a caregiver.
	SaveCaregiver(ctx context.Context, c Caregiver) error

	SetAvailability(ctx context.Context, caregiverID string, a Availability) error

	GetOrder(ctx context.Context, id string) (*Order, error)

	// SaveOrder inserts or replaces an order, including its CustomData.
	SaveOrder(ctx context.Context, o Order) error

	DeleteOrder(ctx context.Context, id string) error

	// ListOrders returns matching orders, newest first.
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)

	GetSettlement(ctx context.Context, caregiverID string, month Month) (*SalarySettlement, error)

	// ListSettlements returns the settlements of a month, newest first.
	ListSettlements(ctx context.Context, month Month) ([]SalarySettlement, error)

	// SaveSettlement upserts on (CaregiverID, Month).
	SaveSettlement(ctx context.Context, s SalarySettlement) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
