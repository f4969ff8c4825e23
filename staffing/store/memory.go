// Package store provides an in-memory staffing.TxStore.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	data memoryData
}

type settlementKey struct {
	CaregiverID string
	Month       staffing.Month
}

type memoryData struct {
	caregivers  map[string]staffing.Caregiver
	orders      map[string]staffing.Order
	settlements map[settlementKey]staffing.SalarySettlement
}

func NewMemory() *Memory {
	return &Memory{data: newMemoryData()}
}

func newMemoryData() memoryData {
	return memoryData{
		caregivers:  make(map[string]staffing.Caregiver),
		orders:      make(map[string]staffing.Order),
		settlements: make(map[settlementKey]staffing.SalarySettlement),
	}
}

func (m *Memory) GetCaregiver(_ context.Context, id string) (*staffing.Caregiver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getCaregiver(id), nil
}

func (m *Memory) FindCaregiver(_ context.Context, ref string) (*staffing.Caregiver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.findCaregiver(ref), nil
}

func (m *Memory) SearchCaregivers(_ context.Context, f staffing.CaregiverFilter) ([]staffing.Caregiver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.searchCaregivers(f), nil
}

func (m *Memory) SaveCaregiver(_ context.Context, c staffing.Caregiver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.saveCaregiver(c)
	return nil
}

func (m *Memory) SetAvailability(_ context.Context, caregiverID string, a staffing.Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.setAvailability(caregiverID, a)
}

func (m *Memory) GetOrder(_ context.Context, id string) (*staffing.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getOrder(id), nil
}

func (m *Memory) SaveOrder(_ context.Context, o staffing.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.saveOrder(o)
	return nil
}

func (m *Memory) DeleteOrder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data.orders, id)
	return nil
}

func (m *Memory) ListOrders(_ context.Context, f staffing.OrderFilter) ([]staffing.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listOrders(f), nil
}

func (m *Memory) GetSettlement(_ context.Context, caregiverID string, month staffing.Month) (*staffing.SalarySettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getSettlement(caregiverID, month), nil
}

func (m *Memory) ListSettlements(_ context.Context, month staffing.Month) ([]staffing.SalarySettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listSettlements(month), nil
}

func (m *Memory) SaveSettlement(_ context.Context, s staffing.SalarySettlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.saveSettlement(s)
	return nil
}

// =============================================================================
// UNLOCKED OPERATIONS - shared by Memory and the transactional view
// =============================================================================

func (d memoryData) getCaregiver(id string) *staffing.Caregiver {
	c, ok := d.caregivers[id]
	if !ok {
		return nil
	}
	return &c
}

func (d memoryData) findCaregiver(ref string) *staffing.Caregiver {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if c := d.getCaregiver(ref); c != nil {
		return c
	}
	all := d.searchCaregivers(staffing.CaregiverFilter{})
	for _, match := range []func(staffing.Caregiver) bool{
		func(c staffing.Caregiver) bool { return c.WorkerID == ref },
		func(c staffing.Caregiver) bool { return c.Name == ref },
		func(c staffing.Caregiver) bool { return c.Phone == ref },
	} {
		for _, c := range all {
			if match(c) {
				c := c
				return &c
			}
		}
	}
	return nil
}

func (d memoryData) searchCaregivers(f staffing.CaregiverFilter) []staffing.Caregiver {
	var result []staffing.Caregiver
	for _, c := range d.caregivers {
		if f.Matches(c) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (d memoryData) saveCaregiver(c staffing.Caregiver) {
	if existing, ok := d.caregivers[c.ID]; ok && c.CreatedAt.IsZero() {
		c.CreatedAt = existing.CreatedAt
	}
	d.caregivers[c.ID] = c
}

func (d memoryData) setAvailability(id string, a staffing.Availability) error {
	c, ok := d.caregivers[id]
	if !ok {
		return staffing.ErrCaregiverNotFound
	}
	c.Availability = a
	c.UpdatedAt = time.Now().UTC()
	d.caregivers[id] = c
	return nil
}

func (d memoryData) getOrder(id string) *staffing.Order {
	o, ok := d.orders[id]
	if !ok {
		return nil
	}
	o.CustomData = o.CustomData.Clone()
	return &o
}

func (d memoryData) saveOrder(o staffing.Order) {
	o.CustomData = o.CustomData.Clone()
	d.orders[o.ID] = o
}

func (d memoryData) listOrders(f staffing.OrderFilter) []staffing.Order {
	var result []staffing.Order
	for _, o := range d.orders {
		if f.Matches(o) {
			o.CustomData = o.CustomData.Clone()
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (d memoryData) getSettlement(caregiverID string, month staffing.Month) *staffing.SalarySettlement {
	s, ok := d.settlements[settlementKey{CaregiverID: caregiverID, Month: month}]
	if !ok {
		return nil
	}
	s.Details = append([]staffing.SettlementItem(nil), s.Details...)
	return &s
}

func (d memoryData) listSettlements(month staffing.Month) []staffing.SalarySettlement {
	var result []staffing.SalarySettlement
	for k, s := range d.settlements {
		if k.Month == month {
			s.Details = append([]staffing.SettlementItem(nil), s.Details...)
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (d memoryData) saveSettlement(s staffing.SalarySettlement) {
	k := settlementKey{CaregiverID: s.CaregiverID, Month: s.Month}
	if existing, ok := d.settlements[k]; ok {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	}
	s.Details = append([]staffing.SettlementItem(nil), s.Details...)
	d.settlements[k] = s
}

func (d memoryData) clone() memoryData {
	out := newMemoryData()
	for k, v := range d.caregivers {
		out.caregivers[k] = v
	}
	for k, v := range d.orders {
		v.CustomData = v.CustomData.Clone()
		out.orders[k] = v
	}
	for k, v := range d.settlements {
		out.settlements[k] = v
	}
	return out
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole call, so transactions are serialized.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(staffing.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.data.clone()

	if err := fn(&txMemoryView{data: tm.data}); err != nil {
		tm.data = snapshot
		return err
	}
	return nil
}

type txMemoryView struct {
	data memoryData
}

func (tv *txMemoryView) GetCaregiver(_ context.Context, id string) (*staffing.Caregiver, error) {
	return tv.data.getCaregiver(id), nil
}

func (tv *txMemoryView) FindCaregiver(_ context.Context, ref string) (*staffing.Caregiver, error) {
	return tv.data.findCaregiver(ref), nil
}

func (tv *txMemoryView) SearchCaregivers(_ context.Context, f staffing.CaregiverFilter) ([]staffing.Caregiver, error) {
	return tv.data.searchCaregivers(f), nil
}

func (tv *txMemoryView) SaveCaregiver(_ context.Context, c staffing.Caregiver) error {
	tv.data.saveCaregiver(c)
	return nil
}

func (tv *txMemoryView) SetAvailability(_ context.Context, caregiverID string, a staffing.Availability) error {
	return tv.data.setAvailability(caregiverID, a)
}

func (tv *txMemoryView) GetOrder(_ context.Context, id string) (*staffing.Order, error) {
	return tv.data.getOrder(id), nil
}

func (tv *txMemoryView) SaveOrder(_ context.Context, o staffing.Order) error {
	tv.data.saveOrder(o)
	return nil
}

func (tv *txMemoryView) DeleteOrder(_ context.Context, id string) error {
	delete(tv.data.orders, id)
	return nil
}

func (tv *txMemoryView) ListOrders(_ context.Context, f staffing.OrderFilter) ([]staffing.Order, error) {
	return tv.data.listOrders(f), nil
}

func (tv *txMemoryView) GetSettlement(_ context.Context, caregiverID string, month staffing.Month) (*staffing.SalarySettlement, error) {
	return tv.data.getSettlement(caregiverID, month), nil
}

func (tv *txMemoryView) ListSettlements(_ context.Context, month staffing.Month) ([]staffing.SalarySettlement, error) {
	return tv.data.listSettlements(month), nil
}

func (tv *txMemoryView) SaveSettlement(_ context.Context, s staffing.SalarySettlement) error {
	tv.data.saveSettlement(s)
	return nil
}
