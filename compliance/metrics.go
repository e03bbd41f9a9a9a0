package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// checkResults counts requirement verdicts.
	// Labels: verdict (PASS, FAIL, NOT_APPLICABLE, INCONCLUSIVE)
	checkResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aecoa",
		Name:      "check_results_total",
		Help:      "Requirement checks by verdict",
	}, []string{"verdict"})

	// evaluationDuration measures whole-table evaluations
	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aecoa",
		Name:      "evaluation_duration_seconds",
		Help:      "Time to evaluate a requirement table against a measurement index",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
)

func recordResults(results []CheckResult) {
	for _, r := range results {
		checkResults.WithLabelValues(string(r.Verdict)).Inc()
	}
}
