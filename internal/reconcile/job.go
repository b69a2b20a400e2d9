// Package reconcile periodically samples ledger totals for monitoring.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
)

var (
	ledgerMass = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_mass",
		Help: "Sum of all account balances at the last reconciliation run",
	})
	pendingTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_pending_transactions",
		Help: "Transactions awaiting settlement at the last reconciliation run",
	})
)

// Source is the read-only view the job samples.
type Source interface {
	LedgerMass(ctx context.Context) (domain.Amount, error)
	CountTransactions(ctx context.Context, status domain.TxStatus) (int64, error)
}

// Snapshot is one reconciliation sample.
type Snapshot struct {
	Mass    domain.Amount
	Pending int64
}

type Job struct {
	source  Source
	logger  *slog.Logger
	timeout time.Duration
}

func NewJob(source Source, logger *slog.Logger) *Job {
	return &Job{source: source, logger: logger, timeout: 30 * time.Second}
}

// Run takes one sample and publishes it as gauges.
func (j *Job) Run(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	mass, err := j.source.LedgerMass(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	pending, err := j.source.CountTransactions(ctx, domain.TxPending)
	if err != nil {
		return Snapshot{}, err
	}

	f, _ := mass.Float64()
	ledgerMass.Set(f)
	pendingTransactions.Set(float64(pending))

	j.logger.Info("ledger reconciled", "ledger_mass", mass.String(), "pending_transactions", pending)
	return Snapshot{Mass: mass, Pending: pending}, nil
}

// Schedule registers the job on a new cron scheduler and starts it. Callers
// stop it with Stop on shutdown.
func Schedule(spec string, job *Job, logger *slog.Logger) (*cron.Cron, error) {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	_, err := c.AddFunc(spec, func() {
		if _, err := job.Run(context.Background()); err != nil {
			logger.Error("reconciliation failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	logger.Info("scheduled reconciliation job", "schedule", spec)
	c.Start()
	return c, nil
}
