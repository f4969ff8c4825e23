package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homecare/settlement-engine/fields"
	"github.com/homecare/settlement-engine/finance"
	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func day(s string) staffing.Day {
	d, err := staffing.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func saveTestCaregiver(t *testing.T, s *Store, id, workerID, name, phone string) {
	t.Helper()
	require.NoError(t, s.SaveCaregiver(context.Background(), staffing.Caregiver{
		ID:               id,
		WorkerID:         workerID,
		Name:             name,
		Phone:            phone,
		MonthlySalary:    staffing.DecimalPtr(7800),
		EmploymentStatus: staffing.EmploymentActive,
		Availability:     staffing.AvailabilityIdle,
	}))
}

func testOrder(id, caregiverID, start, end string, status staffing.OrderStatus) staffing.Order {
	return staffing.Order{
		ID:             id,
		OrderNo:        "ORD-" + id,
		CaregiverID:    caregiverID,
		ClientName:     "Client " + id,
		ClientPhone:    "13912345678",
		DispatcherName: "Dispatcher Liu",
		Period:         staffing.Period{Start: day(start), End: day(end)},
		Status:         status,
		SalaryMode:     staffing.SalaryDaily,
		DailySalary:    staffing.DecimalPtr(300),
		ManagementFee:  decimal.NewFromInt(500),
		TotalAmount:    decimal.NewFromInt(3500),
		Amount:         decimal.NewFromInt(3000),
		PaymentStatus:  staffing.PaymentUnpaid,
	}
}

// =============================================================================
// CAREGIVERS
// =============================================================================

func TestStore_CaregiverRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveTestCaregiver(t, s, "cg-1", "W001", "Wang Fang", "13800000001")

	got, err := s.GetCaregiver(ctx, "cg-1")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "W001", got.WorkerID)
	assert.True(t, got.MonthlySalary.Equal(decimal.NewFromInt(7800)))
	assert.Equal(t, staffing.EmploymentActive, got.EmploymentStatus)
	assert.Equal(t, staffing.AvailabilityIdle, got.Availability)
	assert.False(t, got.CreatedAt.IsZero())

	missing, err := s.GetCaregiver(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_FindCaregiverByAnyReference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveTestCaregiver(t, s, "cg-1", "W001", "Wang Fang", "13800000001")

	for _, ref := range []string{"cg-1", "W001", "Wang Fang", "13800000001", " W001 "} {
		t.Run(ref, func(t *testing.T) {
			got, err := s.FindCaregiver(ctx, ref)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "cg-1", got.ID)
		})
	}

	got, err := s.FindCaregiver(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_SearchCaregivers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveTestCaregiver(t, s, "cg-1", "W001", "Wang Fang", "13800000001")
	saveTestCaregiver(t, s, "cg-2", "W002", "Li Na", "13800000002")
	require.NoError(t, s.SetAvailability(ctx, "cg-2", staffing.AvailabilityBusy))

	byName, err := s.SearchCaregivers(ctx, staffing.CaregiverFilter{Query: "wang"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "cg-1", byName[0].ID)

	busy, err := s.SearchCaregivers(ctx, staffing.CaregiverFilter{Availability: staffing.AvailabilityBusy})
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, "cg-2", busy[0].ID)
}

func TestStore_SearchTreatsWildcardsLiterally(t *testing.T) {
	// GIVEN: One caregiver and one order whose names contain LIKE wildcards
	ctx := context.Background()
	s := newTestStore(t)
	saveTestCaregiver(t, s, "cg-1", "W001", "Wang Fang", "13800000001")
	saveTestCaregiver(t, s, "cg-2", "W_002", "Li 100% Na", "13800000002")
	plain := testOrder("o-1", "cg-1", "2024-03-01", "2024-03-10", staffing.OrderPending)
	wild := testOrder("o-2", "cg-2", "2024-03-01", "2024-03-10", staffing.OrderPending)
	wild.ClientName = "Zhou_Min"
	require.NoError(t, s.SaveOrder(ctx, plain))
	require.NoError(t, s.SaveOrder(ctx, wild))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"underscore", "_", []string{"cg-2"}},
		{"percent", "%", []string{"cg-2"}},
		{"backslash", `\`, nil},
		{"literal substring", "w_0", []string{"cg-2"}},
	}
	for _, tt := range tests {
		t.Run("caregivers "+tt.name, func(t *testing.T) {
			list, err := s.SearchCaregivers(ctx, staffing.CaregiverFilter{Query: tt.query})
			require.NoError(t, err)
			var ids []string
			for _, c := range list {
				ids = append(ids, c.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}

	// WHEN/THEN: The client search matches the underscore only where it is typed
	list, err := s.ListOrders(ctx, staffing.OrderFilter{ClientQuery: "_"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "o-2", list[0].ID)
	list, err = s.ListOrders(ctx, staffing.OrderFilter{DispatcherQuery: "%"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_SetAvailabilityUnknownCaregiver(t *testing.T) {
	s := newTestStore(t)

	err := s.SetAvailability(context.Background(), "ghost", staffing.AvailabilityBusy)

	assert.ErrorIs(t, err, staffing.ErrCaregiverNotFound)
}

func TestStore_DuplicateWorkerID(t *testing.T) {
	s := newTestStore(t)
	saveTestCaregiver(t, s, "cg-1", "W001", "Wang Fang", "")

	err := s.SaveCaregiver(context.Background(), staffing.Caregiver{
		ID: "cg-2", WorkerID: "W001", Name: "Other",
		EmploymentStatus: staffing.EmploymentActive, Availability: staffing.AvailabilityIdle,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in use")
}

// =============================================================================
// ORDERS
// =============================================================================

func TestStore_OrderRoundTripKeepsCustomData(t *testing.T) {
	// GIVEN: An order carrying an adjustment, a settlement entry and a field value
	ctx := context.Background()
	s := newTestStore(t)
	saveTestCaregiver(t, s, "cg-1", "W001", "Wang Fang", "")
	o := testOrder("o-1", "cg-1", "2024-03-20", "2024-04-10", staffing.OrderConfirmed)
	o.CustomData.AppendAdjustment(staffing.Adjustment{
		Date:             day("2024-03-22"),
		Type:             staffing.AdjustmentOvertime,
		Value:            decimal.NewFromInt(1),
		CalculatedAmount: decimal.NewFromInt(300),
	})
	require.NoError(t, o.CustomData.AppendSettlement(staffing.SettlementHistoryEntry{
		Month:       staffing.Month{Year: 2024, Month: time.March},
		ActualDays:  decimal.NewFromInt(12),
		TotalAmount: decimal.NewFromInt(3600),
		Type:        staffing.SettlementPartial,
		Source:      staffing.SourceOrderSettlement,
	}))
	o.CustomData.Fields = map[string]string{"floor": "3"}

	// WHEN: Saving and loading it
	require.NoError(t, s.SaveOrder(ctx, o))
	got, err := s.GetOrder(ctx, "o-1")

	// THEN: Everything survives the JSON column
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, o.Period, got.Period)
	assert.True(t, got.DailySalary.Equal(decimal.NewFromInt(300)))
	assert.Nil(t, got.MonthlySalary)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(3500)))
	require.Len(t, got.CustomData.Adjustments, 1)
	assert.Equal(t, staffing.AdjustmentOvertime, got.CustomData.Adjustments[0].Type)
	assert.True(t, got.CustomData.AdjustmentSum().Equal(decimal.NewFromInt(1)))
	entry, ok := got.CustomData.SettlementFor(staffing.Month{Year: 2024, Month: time.March})
	require.True(t, ok)
	assert.Equal(t, staffing.SettlementPartial, entry.Type)
	assert.Equal(t, "3", got.CustomData.Fields["floor"])
}

func TestStore_ListOrdersFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveTestCaregiver(t, s, "cg-1", "W001", "Wang Fang", "")
	saveTestCaregiver(t, s, "cg-2", "W002", "Li Na", "")
	require.NoError(t, s.SaveOrder(ctx, testOrder("o-1", "cg-1", "2024-03-01", "2024-03-10", staffing.OrderPending)))
	require.NoError(t, s.SaveOrder(ctx, testOrder("o-2", "cg-1", "2024-03-11", "2024-03-20", staffing.OrderCancelled)))
	require.NoError(t, s.SaveOrder(ctx, testOrder("o-3", "cg-2", "2024-04-01", "2024-04-05", staffing.OrderCompleted)))

	march := staffing.Month{Year: 2024, Month: time.March}.Period()
	tests := []struct {
		name   string
		filter staffing.OrderFilter
		want   []string
	}{
		{"all", staffing.OrderFilter{}, []string{"o-1", "o-2", "o-3"}},
		{"by caregiver", staffing.OrderFilter{CaregiverIDs: []string{"cg-2"}}, []string{"o-3"}},
		{"overlapping march", staffing.OrderFilter{Overlapping: &march}, []string{"o-1", "o-2"}},
		{"exclude cancelled", staffing.OrderFilter{ExcludeStatuses: []staffing.OrderStatus{staffing.OrderCancelled}}, []string{"o-1", "o-3"}},
		{"statuses", staffing.OrderFilter{Statuses: []staffing.OrderStatus{staffing.OrderCompleted}}, []string{"o-3"}},
		{"exclude id", staffing.OrderFilter{CaregiverIDs: []string{"cg-1"}, ExcludeOrderID: "o-1"}, []string{"o-2"}},
		{"client query", staffing.OrderFilter{ClientQuery: "client o-3"}, []string{"o-3"}},
		{"dispatcher query", staffing.OrderFilter{DispatcherQuery: "liu"}, []string{"o-1", "o-2", "o-3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListOrders(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, o := range list {
				ids = append(ids, o.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestStore_DeleteOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveTestCaregiver(t, s, "cg-1", "W001", "Wang Fang", "")
	require.NoError(t, s.SaveOrder(ctx, testOrder("o-1", "cg-1", "2024-03-01", "2024-03-10", staffing.OrderPending)))

	require.NoError(t, s.DeleteOrder(ctx, "o-1"))

	got, err := s.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes, then fails
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	// WHEN: Running it
	err := s.WithTx(ctx, func(tx staffing.Store) error {
		if err := tx.SaveCaregiver(ctx, staffing.Caregiver{
			ID: "cg-1", Name: "Wang Fang",
			EmploymentStatus: staffing.EmploymentActive, Availability: staffing.AvailabilityIdle,
		}); err != nil {
			return err
		}
		got, err := tx.GetCaregiver(ctx, "cg-1")
		require.NoError(t, err)
		require.NotNil(t, got, "writes are visible inside the transaction")
		return boom
	})

	// THEN: The error is returned and nothing was written
	assert.ErrorIs(t, err, boom)
	got, err := s.GetCaregiver(ctx, "cg-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveTestCaregiver(t, s, "cg-1", "W001", "Wang Fang", "")

	err := s.WithTx(ctx, func(tx staffing.Store) error {
		if err := tx.SaveOrder(ctx, testOrder("o-1", "cg-1", "2024-03-01", "2024-03-10", staffing.OrderPending)); err != nil {
			return err
		}
		return tx.SetAvailability(ctx, "cg-1", staffing.AvailabilityBusy)
	})

	require.NoError(t, err)
	c, err := s.GetCaregiver(ctx, "cg-1")
	require.NoError(t, err)
	assert.Equal(t, staffing.AvailabilityBusy, c.Availability)
	o, err := s.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.NotNil(t, o)
}

// =============================================================================
// SETTLEMENTS, FIELDS, RUNS
// =============================================================================

func TestStore_SettlementUpsertKeepsOneRowPerMonth(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveTestCaregiver(t, s, "cg-1", "W001", "Wang Fang", "")
	march := staffing.Month{Year: 2024, Month: time.March}
	st := staffing.SalarySettlement{
		ID:          "st-1",
		CaregiverID: "cg-1",
		Month:       march,
		TotalAmount: decimal.NewFromInt(3600),
		Status:      staffing.SettlementSettled,
		Details:     []staffing.SettlementItem{{OrderID: "o-1", ActualDays: decimal.NewFromInt(12)}},
	}
	require.NoError(t, s.SaveSettlement(ctx, st))

	st.ID = "st-2"
	st.TotalAmount = decimal.NewFromInt(2800)
	require.NoError(t, s.SaveSettlement(ctx, st))

	list, err := s.ListSettlements(ctx, march)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "st-1", list[0].ID)
	assert.True(t, list[0].TotalAmount.Equal(decimal.NewFromInt(2800)))
	require.Len(t, list[0].Details, 1)
	assert.Equal(t, "o-1", list[0].Details[0].OrderID)

	got, err := s.GetSettlement(ctx, "cg-1", march)
	require.NoError(t, err)
	require.NotNil(t, got)
	none, err := s.GetSettlement(ctx, "cg-1", march.Previous())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_FieldDefinitions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	def := fields.Definition{
		ID: "f-1", TargetModel: fields.TargetOrder, Name: "pets", Label: "Pets",
		Type: fields.TypeSelect, Options: []string{"cat", "dog"}, Required: true,
	}
	require.NoError(t, s.SaveField(ctx, def))

	dup := def
	dup.ID = "f-2"
	assert.ErrorIs(t, s.SaveField(ctx, dup), fields.ErrDuplicateField)

	list, err := s.ListFields(ctx, fields.TargetOrder)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"cat", "dog"}, list[0].Options)
	assert.True(t, list[0].Required)

	others, err := s.ListFields(ctx, fields.TargetCaregiver)
	require.NoError(t, err)
	assert.Empty(t, others)

	require.NoError(t, s.DeleteField(ctx, "f-1"))
	list, err = s.ListFields(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_RunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2024, time.April, 1, 3, 0, 0, 0, time.UTC)
	for i, month := range []time.Month{time.February, time.March} {
		require.NoError(t, s.SaveRun(ctx, finance.SettlementRun{
			ID:             "run-" + month.String(),
			Month:          staffing.Month{Year: 2024, Month: month},
			CandidateCount: i + 1,
			PendingDays:    decimal.NewFromInt(12),
			PendingAmount:  decimal.RequireFromString("3600.50"),
			RanAt:          base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := s.ListRuns(ctx, 1)

	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, staffing.Month{Year: 2024, Month: time.March}, runs[0].Month)
	assert.Equal(t, 2, runs[0].CandidateCount)
	assert.Equal(t, "3600.5", runs[0].PendingAmount.String())
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveTestCaregiver(t, s, "cg-1", "W001", "Wang Fang", "")
	require.NoError(t, s.SaveOrder(ctx, testOrder("o-1", "cg-1", "2024-03-01", "2024-03-10", staffing.OrderPending)))

	require.NoError(t, s.Reset(ctx))

	orders, err := s.ListOrders(ctx, staffing.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	caregivers, err := s.SearchCaregivers(ctx, staffing.CaregiverFilter{})
	require.NoError(t, err)
	assert.Empty(t, caregivers)
}
