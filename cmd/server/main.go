/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the settlement engine server, or runs one-off
  settlement jobs against the same database.

COMMANDS:
  serve                     HTTP server + monthly settlement run scheduler
  candidates --month M      Print the month's settlement candidates as JSON
  settle-run --month M      Record a settlement run once (default: last month)

FLAGS (override environment):
  --port    HTTP server port (PORT)
  --db      SQLite database path (DB_PATH), ":memory:" for in-memory

ENVIRONMENT:
  See config/config.go. A .env file in the working directory is loaded.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler, waiting for a running job
  2. Stop accepting new connections
  3. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Settlement run scheduler
  - config/config.go: Settings
*/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/homecare/settlement-engine/api"
	"github.com/homecare/settlement-engine/config"
	"github.com/homecare/settlement-engine/logging"
	"github.com/homecare/settlement-engine/metrics"
	"github.com/homecare/settlement-engine/staffing"
	"github.com/homecare/settlement-engine/store/sqlite"
)

const serviceName = "settlement-engine"

var rootCmd = &cobra.Command{
	Use:   "settlement-engine",
	Short: "Home-care order and salary settlement engine",
	Long: `Books caregivers onto client orders, prices them, and settles
caregiver salaries month by month.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().Int("port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().String("db", "settlement.db", "SQLite database path")
	_ = viper.BindPFlag("PORT", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("DB_PATH", rootCmd.PersistentFlags().Lookup("db"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *sqlite.Store
	registry *prometheus.Registry
	handler  *api.Handler
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to initialize database", zap.String("db_path", cfg.DBPath), zap.Error(err))
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler := api.NewHandler(store, api.Options{
		Logger:  logger,
		Metrics: metrics.New(registry),
	})
	return &app{cfg: cfg, logger: logger, store: store, registry: registry, handler: handler}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// monthFlag parses --month, falling back to def when empty.
func monthFlag(cmd *cobra.Command, def staffing.Month) (staffing.Month, error) {
	raw, _ := cmd.Flags().GetString("month")
	if raw == "" {
		return def, nil
	}
	m, err := staffing.ParseMonth(raw)
	if err != nil {
		return staffing.Month{}, fmt.Errorf("--month must be YYYY-MM: %w", err)
	}
	return m, nil
}

// =============================================================================
// ONE-OFF JOBS
// =============================================================================

func init() {
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(settleRunCmd)

	candidatesCmd.Flags().String("month", "", "Month to evaluate (YYYY-MM, default: current month)")
	settleRunCmd.Flags().String("month", "", "Month to evaluate (YYYY-MM, default: previous month)")
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Print settlement candidates for a month as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		month, err := monthFlag(cmd, staffing.MonthOf(time.Now()))
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		candidates, err := a.handler.Finance.Candidates(cmd.Context(), month)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(api.CandidateDTOs(candidates))
	},
}

var settleRunCmd = &cobra.Command{
	Use:   "settle-run",
	Short: "Record a settlement run once",
	RunE: func(cmd *cobra.Command, args []string) error {
		month, err := monthFlag(cmd, staffing.MonthOf(time.Now()).Previous())
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		scheduler := api.NewSettlementRunScheduler(a.handler, a.cfg.SettlementRunSchedule)
		run, err := scheduler.RunNow(cmd.Context(), month)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "month %s: %d caregivers pending (%s days, %s), %d settled\n",
			run.Month, run.CandidateCount, run.PendingDays, run.PendingAmount.StringFixed(2), run.SettledCount)
		return nil
	},
}
