package resourceaction

import (
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	testsysv1alpha1 "github.com/bottlerocket-test-system/testsys/api/v1alpha1"
	"github.com/bottlerocket-test-system/testsys/internal/config"
	"github.com/bottlerocket-test-system/testsys/internal/jobsupervisor"
)

// Deps bundles the observations DetermineAction needs. JobState reports the
// Job currently backing whichever task (creation or destruction) is active
// for this Resource.
type Deps struct {
	JobState jobsupervisor.JobObservation
}

// DetermineAction is the Resource Reconciler's pure decision procedure.
func DetermineAction(cfg config.EngineConfig, r *testsysv1alpha1.Resource, deps Deps) Action {
	if !r.DeletionTimestamp.IsZero() {
		return determineDeleteAction(cfg, r, deps)
	}

	if r.Status == nil {
		return Initialize{}
	}

	if !controllerutil.ContainsFinalizer(r, cfg.FinalizerMain) {
		return AddMainFinalizer{}
	}

	return creationAction(cfg, r, deps.JobState)
}

func determineDeleteAction(cfg config.EngineConfig, r *testsysv1alpha1.Resource, deps Deps) Action {
	needsDestruction := r.Status != nil &&
		r.Spec.DestructionPolicy != testsysv1alpha1.DestructionPolicyNever &&
		r.Status.Destruction.TaskState != testsysv1alpha1.TaskStateCompleted &&
		r.Status.Destruction.TaskState != testsysv1alpha1.TaskStateError

	if needsDestruction {
		return destructionAction(cfg, r, deps.JobState)
	}

	if deps.JobState.State != jobsupervisor.JobStateNone {
		return DeleteJob{}
	}
	if controllerutil.ContainsFinalizer(r, cfg.FinalizerResourceJob) {
		return RemoveJobFinalizer{}
	}
	if controllerutil.ContainsFinalizer(r, cfg.FinalizerMain) {
		return RemoveMainFinalizer{}
	}
	return ErrorAction{Kind: Zombie{}}
}

func creationAction(cfg config.EngineConfig, r *testsysv1alpha1.Resource, job jobsupervisor.JobObservation) Action {
	if r.Status.Creation.TaskState == testsysv1alpha1.TaskStateCompleted {
		return Done{}
	}
	if r.Status.Creation.TaskState == testsysv1alpha1.TaskStateError {
		return ErrorAction{Kind: AgentError{Message: r.Status.Creation.Error}}
	}

	if !controllerutil.ContainsFinalizer(r, cfg.FinalizerResourceJob) {
		return AddJobFinalizer{}
	}

	running := r.Status.Creation.TaskState == testsysv1alpha1.TaskStateRunning
	switch job.State {
	case jobsupervisor.JobStateNone:
		if running {
			return ErrorAction{Kind: HandleJobRemovedBeforeDone{}}
		}
		return StartCreation{}
	case jobsupervisor.JobStateUnknown:
		return WaitForCreation{}
	case jobsupervisor.JobStateRunning:
		if job.Since != nil && r.Status.Creation.TaskState == testsysv1alpha1.TaskStateUnknown && *job.Since >= cfg.TestStartTimeLimit {
			return ErrorAction{Kind: JobStart{}}
		}
		return WaitForCreation{}
	case jobsupervisor.JobStateFailed:
		return ErrorAction{Kind: JobFailure{}}
	case jobsupervisor.JobStateExited:
		return ErrorAction{Kind: JobExitBeforeDone{}}
	}
	return WaitForCreation{}
}

func destructionAction(cfg config.EngineConfig, r *testsysv1alpha1.Resource, job jobsupervisor.JobObservation) Action {
	running := r.Status.Destruction.TaskState == testsysv1alpha1.TaskStateRunning
	switch job.State {
	case jobsupervisor.JobStateNone:
		if running {
			return ErrorAction{Kind: HandleJobRemovedBeforeDone{}}
		}
		return StartDestruction{}
	case jobsupervisor.JobStateUnknown:
		return WaitForDestruction{}
	case jobsupervisor.JobStateRunning:
		if job.Since != nil && r.Status.Destruction.TaskState == testsysv1alpha1.TaskStateUnknown && *job.Since >= cfg.TestStartTimeLimit {
			return ErrorAction{Kind: JobStart{}}
		}
		return WaitForDestruction{}
	case jobsupervisor.JobStateFailed:
		return ErrorAction{Kind: JobFailure{}}
	case jobsupervisor.JobStateExited:
		return ErrorAction{Kind: JobExitBeforeDone{}}
	}
	return WaitForDestruction{}
}
