package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// gateTransitions counts accepted gate actions.
	// Labels: stage, action
	gateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aecoa",
		Name:      "gate_transitions_total",
		Help:      "Accepted gate actions by stage and action",
	}, []string{"stage", "action"})

	// gateRejectedTransitions counts actions the state machine refused.
	// Labels: stage
	gateRejectedTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aecoa",
		Name:      "gate_rejected_transitions_total",
		Help:      "Gate actions refused as invalid transitions",
	}, []string{"stage"})
)
