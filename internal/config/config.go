// Package config holds the engine-wide settings threaded through the
// reconcilers. There are no package-level mutable globals here: every
// reconciler receives an EngineConfig value at construction time.
package config

import "time"

// EngineConfig carries the settings the engine needs that are not part of
// any CRD spec: finalizer names, the namespace the engine watches, and the
// grace period an agent has to report liveness once its Job is running.
type EngineConfig struct {
	// Namespace is the namespace the engine's controllers watch.
	Namespace string

	// FinalizerMain is added to a Test/Resource once its status has been
	// initialized, and removed only once its Job finalizer has been removed.
	FinalizerMain string

	// FinalizerTestJob is added to a Test before its Job is created, and
	// removed once the Job has been deleted.
	FinalizerTestJob string

	// FinalizerResourceJob is the Resource-side equivalent of
	// FinalizerTestJob, used for both the creation and destruction Job.
	FinalizerResourceJob string

	// TestStartTimeLimit is how long a Test or Resource Job may be running
	// while its agent's task_state is still Unknown before the engine
	// reports a start timeout.
	TestStartTimeLimit time.Duration
}

// Default returns the engine configuration used when the operator is run
// without overrides.
func Default() EngineConfig {
	return EngineConfig{
		Namespace:            "testsys-bottlerocket-aws",
		FinalizerMain:        "testsys.bottlerocket.aws/main",
		FinalizerTestJob:     "testsys.bottlerocket.aws/test-job",
		FinalizerResourceJob: "testsys.bottlerocket.aws/resource-job",
		TestStartTimeLimit:   5 * time.Minute,
	}
}
