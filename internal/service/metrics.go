package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Money-movement operations processed, labeled by operation and outcome kind",
	}, []string{"operation", "outcome"})

	ledgerMutationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_mutation_retries_total",
		Help: "Atomic mutation attempts retried after a concurrent update conflict",
	}, []string{"operation"})

	ledgerSettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_settlements_total",
		Help: "Settlement attempts on pending transactions, labeled by outcome kind",
	}, []string{"outcome"})
)

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(KindOf(err))
}
