// Package resourceaction implements the Resource Reconciler's decision
// procedure. It mirrors testaction's shape: creation and destruction are
// each a miniature version of the Test Reconciler's run-a-job state
// machine, without the resource/dependency concerns a Test has.
package resourceaction

// Action is the complete output alphabet of DetermineAction.
type Action interface {
	isAction()
}

type (
	// Initialize sets status to its zero value on a freshly created Resource.
	Initialize struct{}

	// AddMainFinalizer adds the engine's main finalizer.
	AddMainFinalizer struct{}

	// AddJobFinalizer adds the Job finalizer before the relevant Job exists.
	AddJobFinalizer struct{}

	// StartCreation creates the Job that provisions the Resource.
	StartCreation struct{}

	// WaitForCreation means the creation Job is running and no anomaly has
	// been observed.
	WaitForCreation struct{}

	// StartDestruction creates the Job that tears the Resource down.
	StartDestruction struct{}

	// WaitForDestruction means the destruction Job is running and no
	// anomaly has been observed.
	WaitForDestruction struct{}

	// DeleteJob deletes the currently tracked Job as part of the deletion
	// sequence.
	DeleteJob struct{}

	// RemoveJobFinalizer removes the Job finalizer once the Job is gone.
	RemoveJobFinalizer struct{}

	// RemoveMainFinalizer removes the main finalizer.
	RemoveMainFinalizer struct{}

	// Done means creation reached task_state Completed. A completed
	// destruction leads into the finalizer-removal sequence instead.
	Done struct{}

	// ErrorAction wraps a terminal ErrorKind.
	ErrorAction struct {
		Kind ErrorKind
	}
)

func (Initialize) isAction()          {}
func (AddMainFinalizer) isAction()    {}
func (AddJobFinalizer) isAction()     {}
func (StartCreation) isAction()       {}
func (WaitForCreation) isAction()     {}
func (StartDestruction) isAction()    {}
func (WaitForDestruction) isAction()  {}
func (DeleteJob) isAction()           {}
func (RemoveJobFinalizer) isAction()  {}
func (RemoveMainFinalizer) isAction() {}
func (Done) isAction()                {}
func (ErrorAction) isAction()         {}

// ErrorKind is the set of terminal error conditions DetermineAction can
// report.
type ErrorKind interface {
	isErrorKind()
}

type (
	// Zombie means the object survived past every finalizer the engine
	// manages while under deletion.
	Zombie struct{}

	// AgentError means the provisioning or destruction agent reported
	// task_state Error.
	AgentError struct {
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

	// HandleJobRemovedBeforeDone means the Job vanished mid-run.
	HandleJobRemovedBeforeDone struct{}
)

func (Zombie) isErrorKind()                     {}
func (AgentError) isErrorKind()                 {}
func (JobFailure) isErrorKind()                 {}
func (JobStart) isErrorKind()                   {}
func (JobExitBeforeDone) isErrorKind()          {}
func (HandleJobRemovedBeforeDone) isErrorKind() {}
