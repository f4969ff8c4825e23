/*
scheduler.go - Automated monthly settlement runs

PURPOSE:
  On a cron schedule (SETTLEMENT_RUN_SCHEDULE, default 03:00 on the 1st),
  evaluates the previous month's settlement candidates and records a
  SettlementRun snapshot: how many caregivers are still unsettled and for
  how much. Runs never settle anything themselves.

DESIGN:
  - robfig/cron with a Recover chain so a panicking job does not kill the
    process
  - Every run gets its own bounded context
  - Runs are listed at GET /api/finance/runs

USAGE:
  scheduler := NewSettlementRunScheduler(handler, cfg.SettlementRunSchedule)
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  <-scheduler.Stop().Done()

SEE ALSO:
  - finance/runs.go: RecordRun
  - cmd/server/main.go: settle-run command (manual run)
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/homecare/settlement-engine/finance"
	"github.com/homecare/settlement-engine/staffing"
)

const runTimeout = 5 * time.Minute

// SettlementRunScheduler records monthly settlement runs.
type SettlementRunScheduler struct {
	Schedule string

	cron    *cron.Cron
	finance *finance.Aggregator
	runs    finance.RunStore
	logger  *zap.Logger
	now     func() time.Time
}

// NewSettlementRunScheduler creates a scheduler over the handler's services.
func NewSettlementRunScheduler(h *Handler, schedule string) *SettlementRunScheduler {
	logger := h.logger.Named("scheduler")
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	return &SettlementRunScheduler{
		Schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger))),
		finance:  h.Finance,
		runs:     h.Store,
		logger:   logger,
		now:      h.now,
	}
}

// Start registers the job and starts the cron scheduler.
func (s *SettlementRunScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.Schedule, s.run); err != nil {
		return fmt.Errorf("invalid settlement run schedule %q: %w", s.Schedule, err)
	}
	s.cron.Start()
	s.logger.Info("scheduled settlement run job", zap.String("schedule", s.Schedule))
	return nil
}

// Stop stops the scheduler. The returned context is done once a running
// job has finished.
func (s *SettlementRunScheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunNow records a run for month immediately.
func (s *SettlementRunScheduler) RunNow(ctx context.Context, month staffing.Month) (*finance.SettlementRun, error) {
	return s.finance.RecordRun(ctx, s.runs, month)
}

func (s *SettlementRunScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	month := staffing.MonthOf(s.now()).Previous()
	if _, err := s.RunNow(ctx, month); err != nil {
		s.logger.Error("settlement run failed", zap.String("month", month.String()), zap.Error(err))
	}
}
