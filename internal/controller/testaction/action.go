// Package testaction implements the Test Reconciler's decision procedure:
// a pure function from observed state to exactly one Action. The executor
// in the controller package is the only thing that ever applies an Action;
// this package never touches a client.
package testaction

// Action is the complete output alphabet of DetermineAction. Every concrete
// type below implements it as a marker; callers type-switch on the
// returned value.
type Action interface {
	isAction()
}

type (
	// Initialize sets status to its zero value on a freshly created Test.
	Initialize struct{}

	// AddMainFinalizer adds the engine's main finalizer.
	AddMainFinalizer struct{}

	// WaitForResources means at least one declared Resource has not yet
	// completed creation.
	WaitForResources struct{}

	// RegisterResourceCreationError durably records a Resource creation
	// failure on the Test's status. One-shot: once recorded, later
	// observations of the same failure become ErrorAction{ResourceErrorExists}.
	RegisterResourceCreationError struct {
		Message string
	}

	// WaitForDependency means the named upstream Test has not yet passed.
	WaitForDependency struct {
		Name string
	}

	// AddJobFinalizer adds the Job finalizer before the Job itself exists,
	// guaranteeing the engine observes the Job's eventual deletion.
	AddJobFinalizer struct{}

	// StartTest creates the agent Job.
	StartTest struct{}

	// WaitForTest means the Job is running (or not yet reporting liveness)
	// and no anomaly has been observed.
	WaitForTest struct{}

	// DeleteJob deletes the Job as part of the deletion sequence.
	DeleteJob struct{}

	// RemoveJobFinalizer removes the Job finalizer once the Job is gone.
	RemoveJobFinalizer struct{}

	// RemoveMainFinalizer removes the main finalizer, letting the API
	// server finish deleting the object.
	RemoveMainFinalizer struct{}

	// TestDone means the agent reported task_state Completed; no further
	// action is needed.
	TestDone struct{}

	// ErrorAction wraps a terminal ErrorKind.
	ErrorAction struct {
		Kind ErrorKind
	}
)

func (Initialize) isAction()                     {}
func (AddMainFinalizer) isAction()                {}
func (WaitForResources) isAction()                {}
func (RegisterResourceCreationError) isAction()   {}
func (WaitForDependency) isAction()               {}
func (AddJobFinalizer) isAction()                 {}
func (StartTest) isAction()                       {}
func (WaitForTest) isAction()                     {}
func (DeleteJob) isAction()                       {}
func (RemoveJobFinalizer) isAction()              {}
func (RemoveMainFinalizer) isAction()             {}
func (TestDone) isAction()                        {}
func (ErrorAction) isAction()                     {}

// ErrorKind is the set of terminal error conditions DetermineAction can
// report. All are terminal: the executor records them and does not retry
// the same transition.
type ErrorKind interface {
	isErrorKind()
}

type (
	// ResourceErrorExists means a Resource creation error was already
	// recorded on this Test; this is the steady-state observation after
	// RegisterResourceCreationError has run once.
	ResourceErrorExists struct {
		Message string
	}

	// Zombie means the object survived past every finalizer the engine
	// manages while under deletion — something outside the engine
	// resurrected it.
	Zombie struct{}

	// TestError means the agent itself reported task_state Error.
	TestError struct {
		Message string
	}

	// JobFailure means the Job reported a JobFailed condition.
	JobFailure struct{}

	// JobStart means the Job has been active for at least the configured
	// grace period without the agent reporting liveness.
	JobStart struct{}

	// JobExitBeforeDone means the container terminated without the agent
	// self-reporting a terminal task_state.
	JobExitBeforeDone struct{}

	// JobTimeout means the observed Job duration exceeded spec.agent.timeout.
	JobTimeout struct{}

	// HandleJobRemovedBeforeDone means the Job vanished mid-run. Left
	// terminal rather than retried; an automatic recreate-and-resume is a
	// possible future extension, not implemented here.
	HandleJobRemovedBeforeDone struct{}

	// DependencyCycle means the depends_on graph reachable from this Test
	// contains a cycle; waiting for it would never resolve.
	DependencyCycle struct {
		Cycle []string
	}
)

func (ResourceErrorExists) isErrorKind()        {}
func (Zombie) isErrorKind()                     {}
func (TestError) isErrorKind()                  {}
func (JobFailure) isErrorKind()                 {}
func (JobStart) isErrorKind()                   {}
func (JobExitBeforeDone) isErrorKind()          {}
func (JobTimeout) isErrorKind()                 {}
func (HandleJobRemovedBeforeDone) isErrorKind() {}
func (DependencyCycle) isErrorKind()            {}
