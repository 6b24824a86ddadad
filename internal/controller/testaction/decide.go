package testaction

import (
	"context"
	"fmt"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	testsysv1alpha1 "github.com/bottlerocket-test-system/testsys/api/v1alpha1"
	"github.com/bottlerocket-test-system/testsys/internal/config"
	"github.com/bottlerocket-test-system/testsys/internal/dependency"
	"github.com/bottlerocket-test-system/testsys/internal/jobsupervisor"
)

// Deps bundles the observations and lazily-evaluated lookups DetermineAction
// needs. JobState is always required; ResourceReadiness and DependencyWait
// are only invoked when the decision procedure actually reaches the branch
// that needs them, so the caller may defer expensive client calls.
type Deps struct {
	JobState          jobsupervisor.JobObservation
	ResourceReadiness func(ctx context.Context) (dependency.Readiness, error)
	DependencyWait    func(ctx context.Context) (dependency.Wait, error)
}

// DetermineAction is the Test Reconciler's pure decision procedure. It
// returns exactly one Action (or an error if a required lookup failed
// transiently, in which case the caller should retry the whole reconcile
// rather than act on a partial decision).
func DetermineAction(ctx context.Context, cfg config.EngineConfig, t *testsysv1alpha1.Test, deps Deps) (Action, error) {
	if !t.DeletionTimestamp.IsZero() {
		return determineDeleteAction(cfg, t, deps.JobState), nil
	}

	if t.Status == nil {
		return Initialize{}, nil
	}

	if !controllerutil.ContainsFinalizer(t, cfg.FinalizerMain) {
		return AddMainFinalizer{}, nil
	}

	switch t.Status.Agent.TaskState {
	case testsysv1alpha1.TaskStateCompleted:
		return TestDone{}, nil
	case testsysv1alpha1.TaskStateError:
		msg := t.Status.Agent.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return ErrorAction{Kind: TestError{Message: msg}}, nil
	case testsysv1alpha1.TaskStateRunning:
		return preRunAction(ctx, cfg, t, deps, true)
	default: // TaskStateUnknown
		return preRunAction(ctx, cfg, t, deps, false)
	}
}

func determineDeleteAction(cfg config.EngineConfig, t *testsysv1alpha1.Test, job jobsupervisor.JobObservation) Action {
	if job.State != jobsupervisor.JobStateNone {
		return DeleteJob{}
	}
	if controllerutil.ContainsFinalizer(t, cfg.FinalizerTestJob) {
		return RemoveJobFinalizer{}
	}
	if controllerutil.ContainsFinalizer(t, cfg.FinalizerMain) {
		return RemoveMainFinalizer{}
	}
	return ErrorAction{Kind: Zombie{}}
}

func preRunAction(ctx context.Context, cfg config.EngineConfig, t *testsysv1alpha1.Test, deps Deps, running bool) (Action, error) {
	if !running && !controllerutil.ContainsFinalizer(t, cfg.FinalizerTestJob) {
		return AddJobFinalizer{}, nil
	}

	job := deps.JobState
	switch job.State {
	case jobsupervisor.JobStateNone:
		if running {
			return ErrorAction{Kind: HandleJobRemovedBeforeDone{}}, nil
		}
		return notStartedAction(ctx, t, deps)

	case jobsupervisor.JobStateUnknown:
		return WaitForTest{}, nil

	case jobsupervisor.JobStateRunning:
		if job.Since != nil {
			if timeout, ok := parseTimeout(t.Spec.Agent.Timeout); ok && *job.Since > timeout {
				return ErrorAction{Kind: JobTimeout{}}, nil
			}
			if t.Status.Agent.TaskState == testsysv1alpha1.TaskStateUnknown && *job.Since >= cfg.TestStartTimeLimit {
				return ErrorAction{Kind: JobStart{}}, nil
			}
		}
		return WaitForTest{}, nil

	case jobsupervisor.JobStateFailed:
		return ErrorAction{Kind: JobFailure{}}, nil

	case jobsupervisor.JobStateExited:
		return ErrorAction{Kind: JobExitBeforeDone{}}, nil
	}

	return WaitForTest{}, nil
}

func notStartedAction(ctx context.Context, t *testsysv1alpha1.Test, deps Deps) (Action, error) {
	readiness, err := deps.ResourceReadiness(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluating resource readiness: %w", err)
	}

	switch readiness.State {
	case dependency.ReadinessNotReady:
		return WaitForResources{}, nil
	case dependency.ReadinessError:
		if t.Status.ResourceError == nil {
			return RegisterResourceCreationError{Message: readiness.Message}, nil
		}
		return ErrorAction{Kind: ResourceErrorExists{Message: readiness.Message}}, nil
	}

	wait, err := deps.DependencyWait(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluating dependency wait: %w", err)
	}
	switch wait.State {
	case dependency.WaitCycle:
		return ErrorAction{Kind: DependencyCycle{Cycle: wait.Cycle}}, nil
	case dependency.WaitForDependency:
		return WaitForDependency{Name: wait.Name}, nil
	}

	return StartTest{}, nil
}

// parseTimeout parses spec.agent.timeout. A value that fails to parse (or
// is empty) is treated as "no timeout", never as a configuration error.
func parseTimeout(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}
