/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with caregivers
  and orders through the regular services, so every row a scenario creates
  went through validation, availability checks and total calculation.
  Dates are relative to the current month so settlement screens always
  have something to show.

AVAILABLE SCENARIOS:
  single-order:      One caregiver, one order inside the current month
  cross-month:       Order spanning two months, previous month settled PARTIAL
  adjustments:       Overtime, leave and substitute entries on one order
  month-end:         Previous month with one caregiver settled by finance,
                     others still pending, plus a recorded settlement run

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create caregivers
 3. Create orders
 4. Optionally add adjustments and settlements

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "cross-month"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - orders/service.go, finance/aggregator.go: The services used here
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/homecare/settlement-engine/orders"
	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-order",
		Name:        "Single Order",
		Description: "One caregiver on a daily rate, one pending order this month",
	},
	{
		ID:          "cross-month",
		Name:        "Cross-Month Order",
		Description: "Order from the 20th of last month to the 10th of this month, last month settled PARTIAL",
	},
	{
		ID:          "adjustments",
		Name:        "Adjustments",
		Description: "Overtime, leave and a substitute caregiver on one order",
	},
	{
		ID:          "month-end",
		Name:        "Month-End Settlement",
		Description: "Last month's orders for three caregivers, one already settled by finance",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"single-order": (*Handler).loadSingleOrderScenario,
	"cross-month":  (*Handler).loadCrossMonthScenario,
	"adjustments":  (*Handler).loadAdjustmentsScenario,
	"month-end":    (*Handler).loadMonthEndScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	if _, ok := scenarioLoaders[req.ScenarioID]; !ok {
		writeError(w, fieldError("scenario_id", "unknown scenario"))
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}
	if err := h.reset(ctx); err != nil {
		return err
	}
	if err := load(h, ctx); err != nil {
		h.logger.Error("failed to load scenario", zap.String("scenario", id), zap.Error(err))
		return err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.logger.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSingleOrderScenario(ctx context.Context) error {
	month := staffing.MonthOf(h.now())
	if _, err := h.seedCaregiver(ctx, "W001", "Li Na", "13800000001", "7800"); err != nil {
		return err
	}
	_, err := h.Orders.Create(ctx, demoOrder("W001", "Chen Jianguo",
		month.FirstDay(), month.FirstDay().AddDays(9), "300", staffing.OrderPending))
	return err
}

func (h *Handler) loadCrossMonthScenario(ctx context.Context) error {
	month := staffing.MonthOf(h.now())
	prev := month.Previous()
	if _, err := h.seedCaregiver(ctx, "W002", "Wang Fang", "13800000002", "7800"); err != nil {
		return err
	}

	start := prev.FirstDay().AddDays(19)
	o, err := h.Orders.Create(ctx, demoOrder("W002", "Zhou Lan",
		start, month.FirstDay().AddDays(9), "300", staffing.OrderConfirmed))
	if err != nil {
		return err
	}

	// Settle last month's share of the order.
	days := staffing.Period{Start: start, End: prev.LastDay()}.Days()
	_, err = h.Orders.Settle(ctx, o.ID, orders.SettleInput{
		ActualDays:  decimal.NewFromInt(int64(days)),
		TotalAmount: decimal.NewFromInt(int64(300 * days)),
		Month:       prev.String(),
	})
	return err
}

func (h *Handler) loadAdjustmentsScenario(ctx context.Context) error {
	month := staffing.MonthOf(h.now())
	if _, err := h.seedCaregiver(ctx, "W003", "Zhao Min", "13800000003", "7280"); err != nil {
		return err
	}
	if _, err := h.seedCaregiver(ctx, "W004", "Sun Li", "13800000004", "6500"); err != nil {
		return err
	}

	in := demoOrder("W003", "Liu Dehua", month.FirstDay(), month.FirstDay().AddDays(19), "", staffing.OrderConfirmed)
	in.MonthlySalary = demoMoney("7280")
	o, err := h.Orders.Create(ctx, in)
	if err != nil {
		return err
	}

	adjustments := []orders.AdjustmentInput{
		{Date: month.FirstDay().AddDays(4).String(), Type: "OVERTIME", Value: decimal.NewFromInt(1), Remarks: "Night shift"},
		{Date: month.FirstDay().AddDays(11).String(), Type: "LEAVE", Value: decimal.NewFromInt(-2), Remarks: "Personal leave"},
		{Date: month.FirstDay().AddDays(14).String(), Type: "SUBSTITUTE", Value: decimal.NewFromInt(-1), SubstituteID: "W004"},
	}
	for _, adj := range adjustments {
		if _, err := h.Orders.AddAdjustment(ctx, o.ID, adj); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadMonthEndScenario(ctx context.Context) error {
	prev := staffing.MonthOf(h.now()).Previous()

	caregivers := []struct {
		workerID, name, phone, salary string
	}{
		{"W005", "Huang Mei", "13800000005", "7800"},
		{"W006", "Xu Ying", "13800000006", "6760"},
		{"W007", "He Jing", "13800000007", "5200"},
	}
	for _, c := range caregivers {
		if _, err := h.seedCaregiver(ctx, c.workerID, c.name, c.phone, c.salary); err != nil {
			return err
		}
	}

	first, err := h.Orders.Create(ctx, demoOrder("W005", "Ma Xiulan",
		prev.FirstDay(), prev.FirstDay().AddDays(14), "", staffing.OrderConfirmed))
	if err != nil {
		return err
	}
	if _, err := h.Orders.Complete(ctx, first.ID); err != nil {
		return err
	}
	if _, err := h.Orders.Create(ctx, demoOrder("W006", "Guo Fang",
		prev.FirstDay().AddDays(9), prev.LastDay(), "", staffing.OrderServing)); err != nil {
		return err
	}
	if _, err := h.Orders.Create(ctx, demoOrder("W007", "Tang Wei",
		prev.FirstDay().AddDays(24), prev.LastDay().AddDays(5), "", staffing.OrderConfirmed)); err != nil {
		return err
	}

	// Finance settles the first caregiver from its candidate.
	candidates, err := h.Finance.Candidates(ctx, prev)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if c.WorkerID != "W005" {
			continue
		}
		if _, err := h.Finance.CreateOrUpdate(ctx, c); err != nil {
			return err
		}
	}

	_, err = h.Finance.RecordRun(ctx, h.Store, prev)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) seedCaregiver(ctx context.Context, workerID, name, phone, monthly string) (*staffing.Caregiver, error) {
	return h.Orders.CreateCaregiver(ctx, orders.CaregiverInput{
		WorkerID:         workerID,
		Name:             name,
		Phone:            phone,
		MonthlySalary:    demoMoney(monthly),
		EmploymentStatus: staffing.EmploymentActive,
	})
}

// demoOrder builds an order input; an empty daily rate falls back to the
// caregiver's monthly salary.
func demoOrder(caregiver, client string, start, end staffing.Day, daily string, status staffing.OrderStatus) orders.OrderInput {
	return orders.OrderInput{
		CaregiverRef:   caregiver,
		ClientName:     client,
		ClientPhone:    "13900000000",
		ClientLocation: "Chaoyang",
		Address:        "12 Demo Road",
		ServiceType:    "LIVE_IN",
		DispatcherName: "Demo Dispatcher",
		StartDate:      start.String(),
		EndDate:        end.String(),
		Status:         status,
		DailySalary:    demoMoney(daily),
		ManagementFee:  decimal.NewFromInt(500),
	}
}

func demoMoney(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d := decimal.RequireFromString(s)
	return &d
}
