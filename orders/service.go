/*
service.go - Order operations of the settlement engine

PURPOSE:
  Owns every write to an order: creation, field updates, adjustments,
  per-month settlement, completion, cancellation and deletion. Each
  operation runs inside one store transaction so that its reads (caregiver,
  conflicting orders) and its writes commit or roll back together.

OPERATIONS:
  Create        validate -> availability -> rate snapshot -> total -> BUSY
  Update        validate -> availability (excluding self) -> total -> status
  AddAdjustment append typed adjustment, recompute total
  Settle        append settlement history entry for one month
  Complete      terminal COMPLETED, caregiver IDLE
  Cancel        terminal CANCELLED, caregiver IDLE
  Delete        remove order, release caregiver when it was active

ERRORS:
  Every failure leaves the service as *staffing.Error (see fail). Server
  errors are logged with their cause; client errors at info level.

SEE ALSO:
  - availability.go: Conflict detection
  - adjustments.go: Adjustment ledger
  - lifecycle.go: Status changes
  - staffing/store.go: TxStore contract
*/
package orders

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/homecare/settlement-engine/fields"
	"github.com/homecare/settlement-engine/logging"
	"github.com/homecare/settlement-engine/metrics"
	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store   staffing.TxStore
	fields  fields.Store
	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// Options configures optional collaborators. Zero values are valid.
type Options struct {
	// Fields enables validation of custom order field values.
	Fields  fields.Store
	Logger  *zap.Logger
	Metrics *metrics.Recorder
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func NewService(store staffing.TxStore, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   store,
		fields:  opts.Fields,
		logger:  logging.OrNop(opts.Logger).Named("orders"),
		metrics: opts.Metrics,
		now:     now,
	}
}

// fail converts err to a boundary error, logs it and counts it.
func (s *Service) fail(op string, err error) error {
	e := staffing.AsError(err)
	s.metrics.Error(op, string(e.Code))
	if e.Code == staffing.CodeSchedulingConflict {
		s.metrics.Conflict()
	}
	if staffing.IsClientError(e) {
		s.logger.Info("order operation rejected",
			zap.String("operation", op),
			zap.String("code", string(e.Code)),
			zap.String("message", e.Message),
		)
	} else {
		s.logger.Error("order operation failed",
			zap.String("operation", op),
			zap.Error(err),
		)
	}
	return e
}

// validateFields checks custom order field values against their definitions.
func (s *Service) validateFields(ctx context.Context, values map[string]string) error {
	if s.fields == nil {
		return nil
	}
	defs, err := s.fields.ListFields(ctx, fields.TargetOrder)
	if err != nil {
		return err
	}
	if verrs := fields.ValidateValues(defs, values); !verrs.Empty() {
		return verrs
	}
	return nil
}

// loadOrder fetches an order inside a transaction or returns ErrOrderNotFound.
func loadOrder(ctx context.Context, tx staffing.Store, id string) (*staffing.Order, error) {
	o, err := tx.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, &staffing.Error{
			Code:    staffing.CodeOrderNotFound,
			Message: "order " + id + " not found",
			Err:     staffing.ErrOrderNotFound,
		}
	}
	return o, nil
}

func caregiverNotFound(ref string) error {
	return &staffing.Error{
		Code:    staffing.CodeCaregiverNotFound,
		Message: "caregiver " + ref + " not found",
		Err:     staffing.ErrCaregiverNotFound,
	}
}
