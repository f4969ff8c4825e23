package orders_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/homecare/settlement-engine/fields"
	"github.com/homecare/settlement-engine/metrics"
	"github.com/homecare/settlement-engine/orders"
	"github.com/homecare/settlement-engine/staffing"
	"github.com/homecare/settlement-engine/staffing/store"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

var fixedNow = time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx     context.Context
	store   *store.TxMemory
	fields  *fields.MemoryStore
	metrics *metrics.Recorder
	svc     *orders.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		store:   store.NewTxMemory(),
		fields:  fields.NewMemoryStore(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.svc = orders.NewService(f.store, orders.Options{
		Fields:  f.fields,
		Logger:  zap.NewNop(),
		Metrics: f.metrics,
		Now:     func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) caregiver(t *testing.T, id, workerID, name string, monthly *decimal.Decimal) staffing.Caregiver {
	t.Helper()
	c := staffing.Caregiver{
		ID:               id,
		WorkerID:         workerID,
		Name:             name,
		Phone:            "1380000" + workerID[1:] + "0",
		MonthlySalary:    monthly,
		EmploymentStatus: staffing.EmploymentActive,
		Availability:     staffing.AvailabilityIdle,
		CreatedAt:        fixedNow,
	}
	require.NoError(t, f.store.SaveCaregiver(f.ctx, c))
	return c
}

func (f *fixture) availability(t *testing.T, id string) staffing.Availability {
	t.Helper()
	c, err := f.store.GetCaregiver(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c.Availability
}

func orderInput(caregiverRef, start, end string) orders.OrderInput {
	return orders.OrderInput{
		CaregiverRef:   caregiverRef,
		ClientName:     "Li Ming",
		ClientPhone:    "13912345678",
		ClientLocation: "Chaoyang",
		Address:        "12 Garden Road",
		DispatcherName: "Zhao Lei",
		StartDate:      start,
		EndDate:        end,
		DailySalary:    staffing.DecimalPtr(300),
		ManagementFee:  decimal.NewFromInt(500),
	}
}

func assertCode(t *testing.T, err error, code staffing.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, staffing.CodeOf(err), "unexpected error: %v", err)
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_ComputesTotalAndMarksCaregiverBusy(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)

	// WHEN: A 10 day order at 300/day with a 500 fee is created
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))

	// THEN: Total is 300*10 + 500 and the caregiver is BUSY
	require.NoError(t, err)
	assert.Equal(t, "3500.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, "3000.00", o.Amount.StringFixed(2))
	assert.Equal(t, 10, o.DurationDays)
	assert.Equal(t, staffing.OrderPending, o.Status)
	assert.Equal(t, staffing.SalaryDaily, o.SalaryMode)
	assert.Equal(t, staffing.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, orders.DefaultServiceType, o.ServiceType)
	assert.True(t, strings.HasPrefix(o.OrderNo, "ORD-"), o.OrderNo)
	assert.Equal(t, staffing.AvailabilityBusy, f.availability(t, "cg-1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersCreated))
}

func TestCreate_ResolvesCaregiverByWorkerID(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)

	o, err := f.svc.Create(f.ctx, orderInput("W001", "2024-03-01", "2024-03-10"))

	require.NoError(t, err)
	assert.Equal(t, "cg-1", o.CaregiverID)
}

func TestCreate_FallsBackToCaregiverMonthlySalary(t *testing.T) {
	// GIVEN: A caregiver on 7800/month and an order without its own rate
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", staffing.DecimalPtr(7800))
	in := orderInput("cg-1", "2024-03-01", "2024-03-10")
	in.DailySalary = nil
	in.ManagementFee = decimal.Zero

	o, err := f.svc.Create(f.ctx, in)

	// THEN: 7800/26 = 300 per day, and the monthly rate is snapshotted
	require.NoError(t, err)
	assert.Equal(t, "3000.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, staffing.SalaryMonthly, o.SalaryMode)
	require.NotNil(t, o.MonthlySalary)
	assert.True(t, o.MonthlySalary.Equal(decimal.NewFromInt(7800)))
}

func TestCreate_MissingSalary(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	in := orderInput("cg-1", "2024-03-01", "2024-03-10")
	in.DailySalary = nil

	_, err := f.svc.Create(f.ctx, in)

	assertCode(t, err, staffing.CodeMissingSalaryConfig)
	assert.Contains(t, err.Error(), "Wang Fang")
	assert.Equal(t, staffing.AvailabilityIdle, f.availability(t, "cg-1"), "nothing is written")
}

func TestCreate_CallerTotalOverridesComputed(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	in := orderInput("cg-1", "2024-03-01", "2024-03-10")
	in.TotalAmount = staffing.DecimalPtr(4000)

	o, err := f.svc.Create(f.ctx, in)

	require.NoError(t, err)
	assert.Equal(t, "4000.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, "3500.00", o.Amount.StringFixed(2))
}

func TestCreate_UnknownCaregiver(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx, orderInput("nobody", "2024-03-01", "2024-03-10"))

	assertCode(t, err, staffing.CodeCaregiverNotFound)
	assert.True(t, staffing.IsNotFound(err))
}

func TestCreate_ValidationCollectsFieldErrors(t *testing.T) {
	f := newFixture(t)
	in := orderInput("cg-1", "2024-03-10", "2024-03-01")
	in.ClientName = ""
	in.ClientPhone = "12345"
	in.DispatcherPhone = "not-a-phone"
	in.ManagementFee = decimal.NewFromInt(-1)

	_, err := f.svc.Create(f.ctx, in)

	assertCode(t, err, staffing.CodeValidation)
	e := staffing.AsError(err)
	for _, field := range []string{"clientName", "clientPhone", "dispatcherPhone", "managementFee", "startDate", "endDate"} {
		assert.Contains(t, e.Fields, field)
	}
}

func TestCreate_ValidatesCustomFields(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	require.NoError(t, f.fields.SaveField(f.ctx, fields.Definition{
		ID: "fd-1", TargetModel: fields.TargetOrder, Name: "pets", Label: "Pets",
		Type: fields.TypeSelect, Options: []string{"none", "cat"}, Required: true,
	}))

	_, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	assertCode(t, err, staffing.CodeValidation)
	assert.Contains(t, staffing.AsError(err).Fields, "fields.pets")

	in := orderInput("cg-1", "2024-03-01", "2024-03-10")
	in.Fields = map[string]string{"pets": "cat"}
	o, err := f.svc.Create(f.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "cat", o.CustomData.Fields["pets"])
}

func TestUpdate_WithoutFieldsKeepsStoredValues(t *testing.T) {
	// GIVEN: An order created before "pets" became a required field, and one created after
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	older, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-02-01", "2024-02-10"))
	require.NoError(t, err)
	require.NoError(t, f.fields.SaveField(f.ctx, fields.Definition{
		ID: "fd-1", TargetModel: fields.TargetOrder, Name: "pets", Label: "Pets",
		Type: fields.TypeSelect, Options: []string{"none", "cat"}, Required: true,
	}))
	in := orderInput("cg-1", "2024-03-01", "2024-03-10")
	in.Fields = map[string]string{"pets": "cat"}
	newer, err := f.svc.Create(f.ctx, in)
	require.NoError(t, err)

	// WHEN: Both are updated without sending fields
	update := orderInput("cg-1", "2024-03-01", "2024-03-12")
	updated, err := f.svc.Update(f.ctx, newer.ID, update)
	require.NoError(t, err)
	_, err = f.svc.Update(f.ctx, older.ID, orderInput("cg-1", "2024-02-01", "2024-02-05"))

	// THEN: Both succeed and stored values are untouched
	require.NoError(t, err)
	assert.Equal(t, "cat", updated.CustomData.Fields["pets"])
	assert.Equal(t, 12, updated.Period.Days())

	// AND: Sending fields still validates them
	update.Fields = map[string]string{"pets": "parrot"}
	_, err = f.svc.Update(f.ctx, newer.ID, update)
	assertCode(t, err, staffing.CodeValidation)
	assert.Contains(t, staffing.AsError(err).Fields, "fields.pets")
}

// =============================================================================
// AVAILABILITY
// =============================================================================

func TestCreate_RejectsOverlap(t *testing.T) {
	// GIVEN: The caregiver is booked March 1-10
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	first, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)

	// WHEN: A second order touches March 10
	_, err = f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-10", "2024-03-20"))

	// THEN: It is rejected, naming the caregiver and the existing order
	assertCode(t, err, staffing.CodeSchedulingConflict)
	assert.Contains(t, err.Error(), "Wang Fang")
	assert.Contains(t, err.Error(), "2024-03-01")
	assert.Contains(t, err.Error(), first.OrderNo[len(first.OrderNo)-4:])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SchedulingConflicts))

	// AND: Adjacent days are fine
	_, err = f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-11", "2024-03-20"))
	require.NoError(t, err)
}

func TestCreate_CompletedOrdersStillConflictCancelledDoNot(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	a, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)
	b, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-04-01", "2024-04-10"))
	require.NoError(t, err)

	_, err = f.svc.Complete(f.ctx, a.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(f.ctx, b.ID)
	require.NoError(t, err)

	_, err = f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-05", "2024-03-06"))
	assertCode(t, err, staffing.CodeSchedulingConflict)

	_, err = f.svc.Create(f.ctx, orderInput("cg-1", "2024-04-05", "2024-04-06"))
	require.NoError(t, err)
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)

	assertCode(t, f.svc.CheckAvailability(f.ctx, "cg-1", "2024-03-05", "2024-03-15", ""), staffing.CodeSchedulingConflict)
	assert.NoError(t, f.svc.CheckAvailability(f.ctx, "cg-1", "2024-03-05", "2024-03-15", o.ID))
	assert.NoError(t, f.svc.CheckAvailability(f.ctx, "cg-1", "2024-03-11", "2024-03-15", ""))
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdate_RejectsOverlapButNotSelf(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	a, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)
	_, err = f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-20", "2024-03-25"))
	require.NoError(t, err)

	// WHEN: The first order is stretched within its own range
	updated, err := f.svc.Update(f.ctx, a.ID, orderInput("cg-1", "2024-03-01", "2024-03-12"))
	require.NoError(t, err)
	assert.Equal(t, "4100.00", updated.TotalAmount.StringFixed(2))

	// WHEN: It is stretched into the second order
	_, err = f.svc.Update(f.ctx, a.ID, orderInput("cg-1", "2024-03-01", "2024-03-21"))
	assertCode(t, err, staffing.CodeSchedulingConflict)
}

func TestUpdate_RecomputesFromBaseTermsOnly(t *testing.T) {
	// GIVEN: An order with one overtime day
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)
	_, err = f.svc.AddAdjustment(f.ctx, o.ID, orders.AdjustmentInput{Date: "2024-03-05", Type: "OVERTIME", Value: decimal.NewFromInt(1)})
	require.NoError(t, err)

	// WHEN: The order is updated without a rate in the input
	in := orderInput("cg-1", "2024-03-01", "2024-03-10")
	in.DailySalary = nil
	updated, err := f.svc.Update(f.ctx, o.ID, in)

	// THEN: The stored rate is reused and adjustments are not re-applied
	require.NoError(t, err)
	assert.Equal(t, "3500.00", updated.TotalAmount.StringFixed(2))
	assert.Len(t, updated.CustomData.Adjustments, 1, "adjustments are kept")
}

func TestUpdate_CancelReleasesCaregiver(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)

	in := orderInput("cg-1", "2024-03-01", "2024-03-10")
	in.Status = staffing.OrderCancelled
	updated, err := f.svc.Update(f.ctx, o.ID, in)

	require.NoError(t, err)
	assert.Equal(t, staffing.OrderCancelled, updated.Status)
	assert.Equal(t, staffing.AvailabilityIdle, f.availability(t, "cg-1"))
}

func TestUpdate_SwappingCaregiverMovesBusyFlag(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	f.caregiver(t, "cg-2", "W002", "Chen Jing", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)

	_, err = f.svc.Update(f.ctx, o.ID, orderInput("cg-2", "2024-03-01", "2024-03-10"))

	require.NoError(t, err)
	assert.Equal(t, staffing.AvailabilityIdle, f.availability(t, "cg-1"))
	assert.Equal(t, staffing.AvailabilityBusy, f.availability(t, "cg-2"))
}

func TestUpdate_TerminalStatusCannotReopen(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)
	_, err = f.svc.Complete(f.ctx, o.ID)
	require.NoError(t, err)

	in := orderInput("cg-1", "2024-03-01", "2024-03-10")
	in.Status = staffing.OrderPending
	_, err = f.svc.Update(f.ctx, o.ID, in)

	assertCode(t, err, staffing.CodeInvalidTransition)
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func TestAddAdjustment_OvertimeAndLeave(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)

	// WHEN: One overtime day is added
	o, err = f.svc.AddAdjustment(f.ctx, o.ID, orders.AdjustmentInput{Date: "2024-03-05", Type: "overtime", Value: decimal.NewFromInt(1)})
	require.NoError(t, err)

	// THEN: The total grows by one daily rate
	assert.Equal(t, "3800.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, "3300.00", o.Amount.StringFixed(2))
	require.Len(t, o.CustomData.Adjustments, 1)
	assert.Equal(t, staffing.AdjustmentOvertime, o.CustomData.Adjustments[0].Type)
	assert.Equal(t, "300.00", o.CustomData.Adjustments[0].CalculatedAmount.StringFixed(2))

	// WHEN: One leave day is added
	o, err = f.svc.AddAdjustment(f.ctx, o.ID, orders.AdjustmentInput{Date: "2024-03-06", Type: "LEAVE", Value: decimal.NewFromInt(-1)})
	require.NoError(t, err)

	// THEN: The total is back to the base
	assert.Equal(t, "3500.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, "-300.00", o.CustomData.Adjustments[1].CalculatedAmount.StringFixed(2))
}

func TestAddAdjustment_ResolvesSubstituteName(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	f.caregiver(t, "cg-2", "W002", "Chen Jing", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)

	o, err = f.svc.AddAdjustment(f.ctx, o.ID, orders.AdjustmentInput{
		Date: "2024-03-04", Type: "SUBSTITUTE", Value: decimal.NewFromInt(-1), SubstituteID: "W002",
	})
	require.NoError(t, err)
	assert.Equal(t, "Chen Jing", o.CustomData.Adjustments[0].SubstituteName)

	o, err = f.svc.AddAdjustment(f.ctx, o.ID, orders.AdjustmentInput{
		Date: "2024-03-05", Type: "SUBSTITUTE", Value: decimal.NewFromInt(-1), SubstituteID: "W999",
	})
	require.NoError(t, err)
	assert.Empty(t, o.CustomData.Adjustments[1].SubstituteName)
	assert.Equal(t, "W999", o.CustomData.Adjustments[1].SubstituteID)
}

func TestAddAdjustment_FallsBackToLiveCaregiverSalary(t *testing.T) {
	// GIVEN: An order stored without any rate, for a caregiver on 5200/month
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", staffing.DecimalPtr(5200))
	require.NoError(t, f.store.SaveOrder(f.ctx, staffing.Order{
		ID: "o-1", OrderNo: "ORD-1-ABCD", CaregiverID: "cg-1", ClientName: "Li Ming",
		Period: staffing.Period{Start: staffing.NewDay(2024, time.March, 1), End: staffing.NewDay(2024, time.March, 10)},
		Status: staffing.OrderConfirmed, CreatedAt: fixedNow,
	}))

	o, err := f.svc.AddAdjustment(f.ctx, "o-1", orders.AdjustmentInput{Date: "2024-03-02", Type: "OVERTIME", Value: decimal.NewFromInt(1)})

	// THEN: 5200/26 = 200 per day, 11 effective days
	require.NoError(t, err)
	assert.Equal(t, "200.00", o.CustomData.Adjustments[0].CalculatedAmount.StringFixed(2))
	assert.Equal(t, "2200.00", o.TotalAmount.StringFixed(2))
}

func TestAddAdjustment_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddAdjustment(f.ctx, "o-1", orders.AdjustmentInput{Date: "2024/03/02", Type: "BONUS", Value: decimal.Zero})

	assertCode(t, err, staffing.CodeValidation)
	e := staffing.AsError(err)
	assert.Contains(t, e.Fields, "date")
	assert.Contains(t, e.Fields, "type")
	assert.Contains(t, e.Fields, "value")
}

func TestAddAdjustment_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddAdjustment(f.ctx, "missing", orders.AdjustmentInput{Date: "2024-03-02", Type: "OVERTIME", Value: decimal.NewFromInt(1)})

	assertCode(t, err, staffing.CodeOrderNotFound)
}

// =============================================================================
// SETTLE
// =============================================================================

func TestSettle_CrossMonthOrder(t *testing.T) {
	// GIVEN: An order from March 20 to April 10
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-20", "2024-04-10"))
	require.NoError(t, err)

	// WHEN: March is settled
	o, err = f.svc.Settle(f.ctx, o.ID, orders.SettleInput{ActualDays: decimal.NewFromInt(12), TotalAmount: decimal.NewFromInt(3600), Month: "2024-03"})
	require.NoError(t, err)

	// THEN: PARTIAL, still CONFIRMED, caregiver still BUSY
	require.Len(t, o.CustomData.SettlementHistory, 1)
	assert.Equal(t, staffing.SettlementPartial, o.CustomData.SettlementHistory[0].Type)
	assert.Equal(t, staffing.SourceOrderSettlement, o.CustomData.SettlementHistory[0].Source)
	assert.Equal(t, staffing.OrderConfirmed, o.Status)
	assert.Equal(t, staffing.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, staffing.AvailabilityBusy, f.availability(t, "cg-1"))

	// WHEN: April is settled
	o, err = f.svc.Settle(f.ctx, o.ID, orders.SettleInput{ActualDays: decimal.NewFromInt(10), TotalAmount: decimal.NewFromInt(3000), Month: "2024-04"})
	require.NoError(t, err)

	// THEN: FULL, COMPLETED, caregiver IDLE
	require.Len(t, o.CustomData.SettlementHistory, 2)
	assert.Equal(t, staffing.SettlementFull, o.CustomData.SettlementHistory[1].Type)
	assert.Equal(t, staffing.OrderCompleted, o.Status)
	assert.True(t, o.ActualWorkedDays.Equal(decimal.NewFromInt(22)))
	assert.Equal(t, staffing.AvailabilityIdle, f.availability(t, "cg-1"))
}

func TestSettle_SameMonthTwice(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-20", "2024-04-10"))
	require.NoError(t, err)
	settle := orders.SettleInput{ActualDays: decimal.NewFromInt(12), TotalAmount: decimal.NewFromInt(3600), Month: "2024-03"}

	_, err = f.svc.Settle(f.ctx, o.ID, settle)
	require.NoError(t, err)
	_, err = f.svc.Settle(f.ctx, o.ID, settle)

	assertCode(t, err, staffing.CodeAlreadySettled)
	assert.Contains(t, err.Error(), o.OrderNo)
	stored, err := f.svc.Get(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, stored.CustomData.SettlementHistory, 1)
	assert.True(t, stored.ActualWorkedDays.Equal(decimal.NewFromInt(12)), "second settle writes nothing")
}

func TestSettle_DefaultsToCurrentMonth(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)

	o, err = f.svc.Settle(f.ctx, o.ID, orders.SettleInput{ActualDays: decimal.NewFromInt(10), TotalAmount: decimal.NewFromInt(3000)})

	require.NoError(t, err)
	assert.Equal(t, "2024-03", o.CustomData.SettlementHistory[0].Month.String())
	assert.Equal(t, staffing.OrderCompleted, o.Status)
}

func TestSettle_CompletedOrderKeepsNewBooking(t *testing.T) {
	// GIVEN: A completed order and a later booking of the same caregiver
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	done, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)
	_, err = f.svc.Complete(f.ctx, done.ID)
	require.NoError(t, err)
	_, err = f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-11", "2024-03-20"))
	require.NoError(t, err)
	require.Equal(t, staffing.AvailabilityBusy, f.availability(t, "cg-1"))

	// WHEN: The completed order's month is settled in full
	o, err := f.svc.Settle(f.ctx, done.ID, orders.SettleInput{ActualDays: decimal.NewFromInt(10), TotalAmount: decimal.NewFromInt(3000), Month: "2024-03"})

	// THEN: It is settled, but the caregiver stays booked
	require.NoError(t, err)
	assert.Equal(t, staffing.SettlementFull, o.CustomData.SettlementHistory[0].Type)
	assert.Equal(t, staffing.OrderCompleted, o.Status)
	assert.Equal(t, staffing.AvailabilityBusy, f.availability(t, "cg-1"))
}

func TestSettle_CancelledOrder(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)
	_, err = f.svc.Cancel(f.ctx, o.ID)
	require.NoError(t, err)

	_, err = f.svc.Settle(f.ctx, o.ID, orders.SettleInput{ActualDays: decimal.NewFromInt(10), Month: "2024-03"})

	assertCode(t, err, staffing.CodeInvalidTransition)
}

func TestSettle_InvalidMonth(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Settle(f.ctx, "o-1", orders.SettleInput{Month: "March"})

	assertCode(t, err, staffing.CodeValidation)
}

// =============================================================================
// COMPLETE / CANCEL / DELETE
// =============================================================================

func TestComplete_ReleasesCaregiver(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)

	o, err = f.svc.Complete(f.ctx, o.ID)

	require.NoError(t, err)
	assert.Equal(t, staffing.OrderCompleted, o.Status)
	assert.Equal(t, staffing.AvailabilityIdle, f.availability(t, "cg-1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrderTransitions.WithLabelValues("COMPLETED")))

	_, err = f.svc.Complete(f.ctx, o.ID)
	assert.NoError(t, err, "completing twice is allowed")
}

func TestCancel_CompletedOrderIsRejected(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	o, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)
	_, err = f.svc.Complete(f.ctx, o.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(f.ctx, o.ID)
	assertCode(t, err, staffing.CodeInvalidTransition)

	_, err = f.svc.Complete(f.ctx, "missing")
	assertCode(t, err, staffing.CodeOrderNotFound)
}

func TestDelete_ActiveOrderReleasesCaregiver(t *testing.T) {
	for _, status := range []staffing.OrderStatus{staffing.OrderPending, staffing.OrderConfirmed} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
			in := orderInput("cg-1", "2024-03-01", "2024-03-10")
			in.Status = status
			o, err := f.svc.Create(f.ctx, in)
			require.NoError(t, err)
			require.Equal(t, staffing.AvailabilityBusy, f.availability(t, "cg-1"))

			require.NoError(t, f.svc.Delete(f.ctx, o.ID))

			assert.Equal(t, staffing.AvailabilityIdle, f.availability(t, "cg-1"))
			_, err = f.svc.Get(f.ctx, o.ID)
			assertCode(t, err, staffing.CodeOrderNotFound)
		})
	}
}

func TestDelete_TerminalOrderLeavesCaregiverUnchanged(t *testing.T) {
	for _, finish := range []string{"complete", "cancel"} {
		t.Run(finish, func(t *testing.T) {
			// GIVEN: A finished order and a second active one keeping the caregiver BUSY
			f := newFixture(t)
			f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
			done, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
			require.NoError(t, err)
			if finish == "complete" {
				_, err = f.svc.Complete(f.ctx, done.ID)
			} else {
				_, err = f.svc.Cancel(f.ctx, done.ID)
			}
			require.NoError(t, err)
			_, err = f.svc.Create(f.ctx, orderInput("cg-1", "2024-04-01", "2024-04-10"))
			require.NoError(t, err)

			// WHEN: The finished order is deleted
			require.NoError(t, f.svc.Delete(f.ctx, done.ID))

			// THEN: The caregiver stays BUSY
			assert.Equal(t, staffing.AvailabilityBusy, f.availability(t, "cg-1"))
		})
	}
}

func TestDelete_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Delete(f.ctx, "missing")

	assertCode(t, err, staffing.CodeOrderNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OperationErrors.WithLabelValues("delete_order", "ORDER_NOT_FOUND")))
}

// =============================================================================
// SEARCH / TIMELINE
// =============================================================================

func TestSearch(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	f.caregiver(t, "cg-2", "W002", "Chen Jing", nil)
	a, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)
	in := orderInput("cg-2", "2024-03-05", "2024-03-20")
	in.ClientName = "Zhou Hua"
	in.DispatcherName = "Sun Yue"
	b, err := f.svc.Create(f.ctx, in)
	require.NoError(t, err)

	ids := func(list []staffing.Order) []string {
		var out []string
		for _, o := range list {
			out = append(out, o.ID)
		}
		return out
	}

	cases := []struct {
		name  string
		query orders.SearchQuery
		want  []string
	}{
		{"all orders", orders.SearchQuery{}, []string{a.ID, b.ID}},
		{"by caregiver name", orders.SearchQuery{Text: "chen", Type: orders.SearchCaregiver}, []string{b.ID}},
		{"by worker id", orders.SearchQuery{Text: "W001", Type: orders.SearchCaregiver}, []string{a.ID}},
		{"by client", orders.SearchQuery{Text: "zhou", Type: orders.SearchClient}, []string{b.ID}},
		{"by dispatcher", orders.SearchQuery{Text: "Sun", Type: orders.SearchDispatcher}, []string{b.ID}},
		{"by date", orders.SearchQuery{Text: "2024-03-15", Type: orders.SearchDate}, []string{b.ID}},
		{"unknown caregiver", orders.SearchQuery{Text: "nobody", Type: orders.SearchCaregiver}, nil},
		{"any attribute", orders.SearchQuery{Text: "Li Ming"}, []string{a.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.svc.Search(f.ctx, tc.query)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.want, ids(got))
		})
	}

	_, err = f.svc.Search(f.ctx, orders.SearchQuery{Text: "x", Type: "phone"})
	assertCode(t, err, staffing.CodeValidation)
}

func TestTimeline_OrderedByStartWithoutCancelled(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	late, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-05-01", "2024-05-10"))
	require.NoError(t, err)
	early, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)
	dropped, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-04-01", "2024-04-10"))
	require.NoError(t, err)
	_, err = f.svc.Cancel(f.ctx, dropped.ID)
	require.NoError(t, err)

	entries, err := f.svc.Timeline(f.ctx, "cg-1")

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, early.ID, entries[0].OrderID)
	assert.Equal(t, late.ID, entries[1].OrderID)

	_, err = f.svc.Timeline(f.ctx, "missing")
	assertCode(t, err, staffing.CodeCaregiverNotFound)
}

// =============================================================================
// CAREGIVERS
// =============================================================================

func TestCreateCaregiver(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.CreateCaregiver(f.ctx, orders.CaregiverInput{WorkerID: "W010", Name: "Liu Yan", Phone: "13700000010", MonthlySalary: staffing.DecimalPtr(6500)})

	require.NoError(t, err)
	assert.Equal(t, staffing.AvailabilityIdle, c.Availability)
	assert.Equal(t, staffing.EmploymentActive, c.EmploymentStatus)

	_, err = f.svc.CreateCaregiver(f.ctx, orders.CaregiverInput{WorkerID: "W010", Name: "Other"})
	assertCode(t, err, staffing.CodeValidation)
	assert.Contains(t, staffing.AsError(err).Fields, "workerId")

	_, err = f.svc.CreateCaregiver(f.ctx, orders.CaregiverInput{Name: "No Id", Phone: "123"})
	assertCode(t, err, staffing.CodeValidation)
	assert.Contains(t, staffing.AsError(err).Fields, "phone")

	found, err := f.svc.GetCaregiver(f.ctx, "13700000010")
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)
}

func TestUpdateCaregiver_KeepsAvailability(t *testing.T) {
	f := newFixture(t)
	f.caregiver(t, "cg-1", "W001", "Wang Fang", nil)
	_, err := f.svc.Create(f.ctx, orderInput("cg-1", "2024-03-01", "2024-03-10"))
	require.NoError(t, err)

	c, err := f.svc.UpdateCaregiver(f.ctx, "cg-1", orders.CaregiverInput{
		WorkerID: "W001", Name: "Wang Fang", EmploymentStatus: staffing.EmploymentSuspended,
	})

	require.NoError(t, err)
	assert.Equal(t, staffing.EmploymentSuspended, c.EmploymentStatus)
	assert.Equal(t, staffing.AvailabilityBusy, c.Availability)

	_, err = f.svc.UpdateCaregiver(f.ctx, "missing", orders.CaregiverInput{WorkerID: "W009", Name: "X"})
	assertCode(t, err, staffing.CodeCaregiverNotFound)
}
