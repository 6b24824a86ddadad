package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// TestsStartedTotal tracks how many test agent Jobs the engine has created.
	TestsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testsys_tests_started_total",
			Help: "Total number of test agent jobs started by the engine",
		},
		[]string{"namespace", "test"},
	)

	// TestsTerminalTotal tracks how Tests ended, labeled by terminal kind
	// (TestDone, or the name of an ErrorKind).
	TestsTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testsys_tests_terminal_total",
			Help: "Total number of Tests that reached a terminal state, by kind",
		},
		[]string{"namespace", "kind"},
	)

	// ResourceJobsStartedTotal tracks how many provider agent Jobs the
	// engine has created, labeled by task (create/destroy).
	ResourceJobsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testsys_resource_jobs_started_total",
			Help: "Total number of resource provider jobs started by the engine",
		},
		[]string{"namespace", "resource", "task"},
	)

	// ReconciliationDuration tracks how long reconciliations take.
	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "testsys_reconciliation_duration_seconds",
			Help:    "Time spent reconciling Test and Resource objects",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"namespace", "kind"},
	)

	// ActiveJobs tracks the number of currently running agent Jobs.
	ActiveJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "testsys_active_jobs",
			Help: "Number of currently active agent jobs",
		},
		[]string{"namespace", "kind"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		TestsStartedTotal,
		TestsTerminalTotal,
		ResourceJobsStartedTotal,
		ReconciliationDuration,
		ActiveJobs,
	)
}

// RecordTestStarted increments the test-started counter.
func RecordTestStarted(namespace, test string) {
	TestsStartedTotal.WithLabelValues(namespace, test).Inc()
}

// RecordTestTerminal increments the test-terminal counter for the given kind.
func RecordTestTerminal(namespace, kind string) {
	TestsTerminalTotal.WithLabelValues(namespace, kind).Inc()
}

// RecordResourceJobStarted increments the resource-job-started counter.
func RecordResourceJobStarted(namespace, resource, task string) {
	ResourceJobsStartedTotal.WithLabelValues(namespace, resource, task).Inc()
}

// SetActiveJobs sets the number of active agent jobs of a given kind.
func SetActiveJobs(namespace, kind string, count float64) {
	ActiveJobs.WithLabelValues(namespace, kind).Set(count)
}
