/*
handlers.go - HTTP request handlers

PURPOSE:
  Implements all REST API endpoints. Handlers decode requests, call the
  order service or the finance aggregator, and encode the result envelope.

ENDPOINT GROUPS:
  Caregivers:   CRUD + timeline
  Orders:       Create, update, adjustments, settle, complete, cancel, delete
  Finance:      Candidates, history, save, export, slip, runs
  Fields:       Custom field definitions
  Scenarios:    Demo data (see scenarios.go)

ERROR HANDLING:
  Every failure is written by writeError, which maps the staffing error
  code onto the HTTP status:
  - 400: VALIDATION_ERROR
  - 404: ORDER_NOT_FOUND, CAREGIVER_NOT_FOUND
  - 409: SCHEDULING_CONFLICT, ALREADY_SETTLED, INVALID_TRANSITION
  - 422: MISSING_SALARY_CONFIG
  - 500: SERVER_ERROR (details stay in the server log)

SEE ALSO:
  - dto.go: Request/response types
  - server.go: Route definitions
  - orders/service.go, finance/aggregator.go: Business logic
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/homecare/settlement-engine/fields"
	"github.com/homecare/settlement-engine/finance"
	"github.com/homecare/settlement-engine/logging"
	"github.com/homecare/settlement-engine/metrics"
	"github.com/homecare/settlement-engine/orders"
	"github.com/homecare/settlement-engine/staffing"
	"github.com/homecare/settlement-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Orders  *orders.Service
	Finance *finance.Aggregator

	logger *zap.Logger
	now    func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// Options configures NewHandler. Zero values are fine.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Recorder
	Now     func() time.Time
}

// NewHandler wires the services on top of store.
func NewHandler(store *sqlite.Store, opts Options) *Handler {
	logger := logging.OrNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		Store: store,
		Orders: orders.NewService(store, orders.Options{
			Fields:  store,
			Logger:  logger,
			Metrics: opts.Metrics,
			Now:     now,
		}),
		Finance: finance.NewAggregator(store, finance.Options{
			Logger:  logger,
			Metrics: opts.Metrics,
			Now:     now,
		}),
		logger: logger.Named("api"),
		now:    now,
	}
}

// =============================================================================
// CAREGIVER HANDLERS
// =============================================================================

// ListCaregivers returns caregivers, optionally filtered by
// ?search=&availability=&employment_status=.
func (h *Handler) ListCaregivers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Orders.ListCaregivers(r.Context(), staffing.CaregiverFilter{
		Query:            q.Get("search"),
		Availability:     staffing.Availability(q.Get("availability")),
		EmploymentStatus: staffing.EmploymentStatus(q.Get("employment_status")),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]CaregiverDTO, len(list))
	for i, c := range list {
		dtos[i] = toCaregiverDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCaregiver returns a single caregiver by id, worker id, name or phone.
func (h *Handler) GetCaregiver(w http.ResponseWriter, r *http.Request) {
	c, err := h.Orders.GetCaregiver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaregiverDTO(*c))
}

// CreateCaregiver registers a caregiver.
func (h *Handler) CreateCaregiver(w http.ResponseWriter, r *http.Request) {
	var req CaregiverRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Orders.CreateCaregiver(r.Context(), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCaregiverDTO(*c))
}

// UpdateCaregiver replaces a caregiver's profile.
func (h *Handler) UpdateCaregiver(w http.ResponseWriter, r *http.Request) {
	var req CaregiverRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Orders.UpdateCaregiver(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaregiverDTO(*c))
}

// GetTimeline returns the caregiver's bookings by start date.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Orders.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]TimelineEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = TimelineEntryDTO{
			OrderID:     e.OrderID,
			OrderNo:     e.OrderNo,
			ClientName:  e.ClientName,
			StartDate:   e.Period.Start.String(),
			EndDate:     e.Period.End.String(),
			Status:      string(e.Status),
			TotalAmount: money(e.TotalAmount),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// ListOrders searches orders: ?search=&type=all|caregiver|client|dispatcher|date&status=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Orders.Search(r.Context(), orders.SearchQuery{
		Text:   q.Get("search"),
		Type:   orders.SearchType(q.Get("type")),
		Status: staffing.OrderStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTOs(list))
}

// GetOrder returns a single order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*o))
}

// CreateOrder books a caregiver for a client.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Orders.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(*o))
}

// UpdateOrder replaces an order's fields.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Orders.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*o))
}

// AddAdjustment appends an overtime, leave or substitute entry.
func (h *Handler) AddAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Orders.AddAdjustment(r.Context(), chi.URLParam(r, "id"), orders.AdjustmentInput{
		Date:         req.Date,
		Type:         req.Type,
		Value:        req.Value,
		SubstituteID: req.SubstituteID,
		Remarks:      req.Remarks,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(*o))
}

// SettleOrder records one month of an order as settled.
func (h *Handler) SettleOrder(w http.ResponseWriter, r *http.Request) {
	var req SettleOrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Orders.Settle(r.Context(), chi.URLParam(r, "id"), orders.SettleInput{
		ActualDays:  req.ActualDays,
		TotalAmount: req.TotalAmount,
		Month:       req.Month,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*o))
}

// CompleteOrder marks an order COMPLETED and frees its caregiver.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*o))
}

// CancelOrder marks an order CANCELLED and frees its caregiver.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*o))
}

// DeleteOrder removes an order.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Orders.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// =============================================================================
// FINANCE HANDLERS
// =============================================================================

// ListCandidates returns the month's unsettled caregivers.
func (h *Handler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	candidates, err := h.Finance.Candidates(r.Context(), month)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CandidateDTOs(candidates))
}

// ListSettlements returns the month's persisted settlements.
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	history, err := h.Finance.History(r.Context(), month)
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]SettlementDTO, len(history))
	for i, s := range history {
		dtos[i] = toSettlementDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveSettlement creates or updates a caregiver's month.
func (h *Handler) SaveSettlement(w http.ResponseWriter, r *http.Request) {
	var req SettlementRequest
	if !decode(w, r, &req) {
		return
	}
	detail, err := req.detail()
	if err != nil {
		writeError(w, err)
		return
	}
	saved, err := h.Finance.CreateOrUpdate(r.Context(), detail)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(*saved))
}

// ExportSettlements streams the month's report as an xlsx workbook.
func (h *Handler) ExportSettlements(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	if month.IsZero() {
		month = staffing.MonthOf(h.now())
	}
	report, err := h.Finance.Report(r.Context(), month)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := finance.ExportWorkbook(&buf, month, report); err != nil {
		h.logger.Error("settlement export failed", zap.String("month", month.String()), zap.Error(err))
		writeError(w, err)
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		fmt.Sprintf("settlements-%s.xlsx", month), buf.Bytes())
}

// GetSlip renders one caregiver's month as a PDF.
func (h *Handler) GetSlip(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	if month.IsZero() {
		month = staffing.MonthOf(h.now())
	}
	detail, err := h.Finance.Detail(r.Context(), chi.URLParam(r, "caregiverId"), month)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := finance.WriteSlip(&buf, *detail); err != nil {
		h.logger.Error("settlement slip failed", zap.String("caregiver_id", detail.CaregiverID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeFile(w, "application/pdf",
		fmt.Sprintf("slip-%s-%s.pdf", detail.WorkerID, month), buf.Bytes())
}

// ListRuns returns the latest settlement runs (?limit=, default 20).
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fieldError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}
	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list settlement runs", zap.Error(err))
		writeError(w, err)
		return
	}

	dtos := make([]SettlementRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSettlementRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// FIELD DEFINITION HANDLERS
// =============================================================================

// ListFields returns definitions, optionally for one ?target=.
func (h *Handler) ListFields(w http.ResponseWriter, r *http.Request) {
	target := fields.TargetModel(r.URL.Query().Get("target"))
	if target != "" && !target.Valid() {
		writeError(w, fieldError("target", "must be caregiver, order or client"))
		return
	}
	defs, err := h.Store.ListFields(r.Context(), target)
	if err != nil {
		h.logger.Error("failed to list fields", zap.Error(err))
		writeError(w, err)
		return
	}
	if defs == nil {
		defs = []fields.Definition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

// CreateField stores a new definition.
func (h *Handler) CreateField(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, badRequest(err))
		return
	}
	def, err := fields.Parse(body)
	if err != nil {
		if !staffing.IsClientError(err) {
			err = badRequest(err)
		}
		writeError(w, err)
		return
	}
	def.CreatedAt = h.now().UTC()

	if err := h.Store.SaveField(r.Context(), def); err != nil {
		if errors.Is(err, fields.ErrDuplicateField) {
			writeError(w, fieldError("name", "is already defined for "+string(def.TargetModel)))
			return
		}
		h.logger.Error("failed to save field", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

// DeleteField removes a definition. Deleting an unknown id is a no-op.
func (h *Handler) DeleteField(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.DeleteField(r.Context(), id); err != nil {
		h.logger.Error("failed to delete field", zap.String("id", id), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.logger.Error("failed to reset database", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, Envelope{Success: true, Data: data})
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// writeError converts err into the failure envelope.
func writeError(w http.ResponseWriter, err error) {
	e := staffing.AsError(err)
	writeEnvelope(w, statusFor(e.Code), Envelope{
		Success: false,
		Error:   e.Code,
		Message: e.Message,
		Errors:  e.Fields,
	})
}

func statusFor(code staffing.Code) int {
	switch code {
	case staffing.CodeValidation:
		return http.StatusBadRequest
	case staffing.CodeOrderNotFound, staffing.CodeCaregiverNotFound:
		return http.StatusNotFound
	case staffing.CodeSchedulingConflict, staffing.CodeAlreadySettled, staffing.CodeInvalidTransition:
		return http.StatusConflict
	case staffing.CodeMissingSalaryConfig:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// decode reads a JSON body into dst, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, badRequest(err))
		return false
	}
	return true
}

func badRequest(err error) error {
	return &staffing.Error{
		Code:    staffing.CodeValidation,
		Message: "invalid request body",
		Err:     err,
	}
}

func fieldError(field, msg string) error {
	verrs := staffing.ValidationErrors{}
	verrs.Add(field, msg)
	return verrs
}

// monthParam parses ?month=YYYY-MM. A missing month yields the zero Month.
func monthParam(w http.ResponseWriter, r *http.Request) (staffing.Month, bool) {
	raw := r.URL.Query().Get("month")
	if raw == "" {
		return staffing.Month{}, true
	}
	m, err := staffing.ParseMonth(raw)
	if err != nil {
		writeError(w, fieldError("month", "must be YYYY-MM"))
		return staffing.Month{}, false
	}
	return m, true
}
