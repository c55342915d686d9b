package swap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "htlcswap",
		Subsystem: "trades",
		Name:      "running",
		Help:      "Trade runs currently in progress.",
	}, []string{"kind"})

	stepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "htlcswap",
		Subsystem: "trades",
		Name:      "step_transitions_total",
		Help:      "Persisted step transitions by kind and target step.",
	}, []string{"kind", "step"})

	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "htlcswap",
		Subsystem: "trades",
		Name:      "runs_finished_total",
		Help:      "Trade runs that exited, by kind and result.",
	}, []string{"kind", "result"})

	tricksters = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "htlcswap",
		Subsystem: "trades",
		Name:      "amount_mismatch_total",
		Help:      "Deposits found with an amount other than the agreed one.",
	}, []string{"currency"})

	pushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "htlcswap",
		Subsystem: "trades",
		Name:      "spend_pushes_total",
		Help:      "Contract spends submitted, by currency and node verdict.",
	}, []string{"currency", "status"})
)
