package testaction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	testsysv1alpha1 "github.com/bottlerocket-test-system/testsys/api/v1alpha1"
	"github.com/bottlerocket-test-system/testsys/internal/config"
	"github.com/bottlerocket-test-system/testsys/internal/dependency"
	"github.com/bottlerocket-test-system/testsys/internal/jobsupervisor"
)

func duration(d time.Duration) *time.Duration { return &d }

func noReadiness(context.Context) (dependency.Readiness, error) {
	return dependency.Readiness{}, assertNotCalled("ResourceReadiness")
}

func noDependencyWait(context.Context) (dependency.Wait, error) {
	return dependency.Wait{}, assertNotCalled("DependencyWait")
}

func assertNotCalled(name string) error {
	panic(name + " should not have been called for this scenario")
}

func readyReadiness(context.Context) (dependency.Readiness, error) {
	return dependency.Readiness{State: dependency.ReadinessReady}, nil
}

func noWait(context.Context) (dependency.Wait, error) {
	return dependency.Wait{State: dependency.WaitNone}, nil
}

// DecideSuite exercises the GOOD / NOT GOOD / REALLY BAD scenario groups
// from the decision table, grouped the same way.
type DecideSuite struct {
	suite.Suite
	cfg config.EngineConfig
}

func TestDecideSuite(t *testing.T) {
	suite.Run(t, new(DecideSuite))
}

func (s *DecideSuite) SetupTest() {
	s.cfg = config.Default()
}

// --- GOOD: lifecycle progresses normally ---

func (s *DecideSuite) TestS1_FreshTestInitializes() {
	t := &testsysv1alpha1.Test{}
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), Initialize{}, action)
}

func (s *DecideSuite) TestS2_NeedsMainFinalizer() {
	t := &testsysv1alpha1.Test{
		Status: &testsysv1alpha1.TestStatus{Agent: testsysv1alpha1.AgentStatus{TaskState: testsysv1alpha1.TaskStateUnknown}},
	}
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), AddMainFinalizer{}, action)
}

func (s *DecideSuite) TestS3_WaitingOnResource() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateUnknown, "r1")
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
		ResourceReadiness: func(context.Context) (dependency.Readiness, error) {
			return dependency.Readiness{State: dependency.ReadinessNotReady}, nil
		},
		DependencyWait: noDependencyWait,
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), WaitForResources{}, action)
}

func (s *DecideSuite) TestS4_ResourceFailedFirstTime() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateUnknown, "r1")
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
		ResourceReadiness: func(context.Context) (dependency.Readiness, error) {
			return dependency.Readiness{State: dependency.ReadinessError, Message: "Creation of resource 'r1' failed"}, nil
		},
		DependencyWait: noDependencyWait,
	})
	require.NoError(s.T(), err)
	if assert.IsType(s.T(), RegisterResourceCreationError{}, action) {
		assert.Equal(s.T(), "Creation of resource 'r1' failed", action.(RegisterResourceCreationError).Message)
	}
}

func (s *DecideSuite) TestResourceErrorAlreadyRecordedIsTerminal() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateUnknown)
	t.Status.ResourceError = &testsysv1alpha1.ResourceError{ResourceName: "r1", Error: "failed"}
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
		ResourceReadiness: func(context.Context) (dependency.Readiness, error) {
			return dependency.Readiness{State: dependency.ReadinessError, Message: "still broken"}, nil
		},
		DependencyWait: noDependencyWait,
	})
	require.NoError(s.T(), err)
	if assert.IsType(s.T(), ErrorAction{}, action) {
		assert.IsType(s.T(), ResourceErrorExists{}, action.(ErrorAction).Kind)
	}
}

func (s *DecideSuite) TestS5_WaitingOnDependency() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateUnknown)
	t.Spec.DependsOn = []string{"t0"}
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState:          jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
		ResourceReadiness: readyReadiness,
		DependencyWait: func(context.Context) (dependency.Wait, error) {
			return dependency.Wait{State: dependency.WaitForDependency, Name: "t0"}, nil
		},
	})
	require.NoError(s.T(), err)
	if assert.IsType(s.T(), WaitForDependency{}, action) {
		assert.Equal(s.T(), "t0", action.(WaitForDependency).Name)
	}
}

func (s *DecideSuite) TestS6_Start() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateUnknown)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState:          jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
		ResourceReadiness: readyReadiness,
		DependencyWait:    noWait,
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), StartTest{}, action)
}

func (s *DecideSuite) TestDependencyCycleIsTerminal() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateUnknown)
	t.Spec.DependsOn = []string{"b"}
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState:          jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
		ResourceReadiness: readyReadiness,
		DependencyWait: func(context.Context) (dependency.Wait, error) {
			return dependency.Wait{State: dependency.WaitCycle, Cycle: []string{"a", "b", "a"}}, nil
		},
	})
	require.NoError(s.T(), err)
	if assert.IsType(s.T(), ErrorAction{}, action) {
		kind, ok := action.(ErrorAction).Kind.(DependencyCycle)
		if assert.True(s.T(), ok) {
			assert.Equal(s.T(), []string{"a", "b", "a"}, kind.Cycle)
		}
	}
}

func (s *DecideSuite) TestAddJobFinalizerBeforeStart() {
	t := &testsysv1alpha1.Test{
		Status: &testsysv1alpha1.TestStatus{Agent: testsysv1alpha1.AgentStatus{TaskState: testsysv1alpha1.TaskStateUnknown}},
	}
	controllerutil.AddFinalizer(t, s.cfg.FinalizerMain)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), AddJobFinalizer{}, action)
}

func (s *DecideSuite) TestWaitForTestWhenJobUnknown() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateUnknown)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateUnknown},
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), WaitForTest{}, action)
}

func (s *DecideSuite) TestTestDoneWhenAgentCompleted() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateCompleted)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateRunning},
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), TestDone{}, action)
}

// --- NOT GOOD: anomalies that are surfaced as terminal errors ---

func (s *DecideSuite) TestAgentReportedError() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateError)
	t.Status.Agent.Error = "assertion failed"
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateRunning},
	})
	require.NoError(s.T(), err)
	if assert.IsType(s.T(), ErrorAction{}, action) {
		kind, ok := action.(ErrorAction).Kind.(TestError)
		if assert.True(s.T(), ok) {
			assert.Equal(s.T(), "assertion failed", kind.Message)
		}
	}
}

func (s *DecideSuite) TestAgentErrorWithNoMessageDefaultsToUnknown() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateError)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateRunning},
	})
	require.NoError(s.T(), err)
	kind := action.(ErrorAction).Kind.(TestError)
	assert.Equal(s.T(), "Unknown error", kind.Message)
}

func (s *DecideSuite) TestS7_JobTimeout() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateRunning)
	t.Spec.Agent.Timeout = "30m"
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateRunning, Since: duration(45 * time.Minute)},
	})
	require.NoError(s.T(), err)
	if assert.IsType(s.T(), ErrorAction{}, action) {
		assert.IsType(s.T(), JobTimeout{}, action.(ErrorAction).Kind)
	}
}

func (s *DecideSuite) TestUnparsableTimeoutIsIgnored() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateRunning)
	t.Spec.Agent.Timeout = "not-a-duration"
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateRunning, Since: duration(45 * time.Minute)},
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), WaitForTest{}, action)
}

func (s *DecideSuite) TestJobStartTimeoutWhenAgentNeverReportsLiveness() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateUnknown)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateRunning, Since: duration(6 * time.Minute)},
	})
	require.NoError(s.T(), err)
	if assert.IsType(s.T(), ErrorAction{}, action) {
		assert.IsType(s.T(), JobStart{}, action.(ErrorAction).Kind)
	}
}

func (s *DecideSuite) TestNoDurationNeverTimesOut() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateUnknown)
	t.Spec.Agent.Timeout = "1s"
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateRunning, Since: nil},
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), WaitForTest{}, action)
}

func (s *DecideSuite) TestJobFailureIsTerminal() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateRunning)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateFailed},
	})
	require.NoError(s.T(), err)
	if assert.IsType(s.T(), ErrorAction{}, action) {
		assert.IsType(s.T(), JobFailure{}, action.(ErrorAction).Kind)
	}
}

func (s *DecideSuite) TestJobExitedBeforeAgentDoneIsTerminal() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateRunning)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateExited},
	})
	require.NoError(s.T(), err)
	if assert.IsType(s.T(), ErrorAction{}, action) {
		assert.IsType(s.T(), JobExitBeforeDone{}, action.(ErrorAction).Kind)
	}
}

// --- REALLY BAD: a vanished Job and a zombie, plus the deletion sequence ---

func (s *DecideSuite) TestJobVanishedMidRun() {
	t := testWithFinalizersAndState(s.cfg, testsysv1alpha1.TaskStateRunning)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
	})
	require.NoError(s.T(), err)
	if assert.IsType(s.T(), ErrorAction{}, action) {
		assert.IsType(s.T(), HandleJobRemovedBeforeDone{}, action.(ErrorAction).Kind)
	}
}

func (s *DecideSuite) TestS8_Zombie() {
	t := &testsysv1alpha1.Test{}
	now := metav1.Now()
	t.DeletionTimestamp = &now
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
	})
	require.NoError(s.T(), err)
	if assert.IsType(s.T(), ErrorAction{}, action) {
		assert.IsType(s.T(), Zombie{}, action.(ErrorAction).Kind)
	}
}

func (s *DecideSuite) TestDeletionWithLiveJobDeletesJobFirst() {
	t := &testsysv1alpha1.Test{}
	now := metav1.Now()
	t.DeletionTimestamp = &now
	controllerutil.AddFinalizer(t, s.cfg.FinalizerMain)
	controllerutil.AddFinalizer(t, s.cfg.FinalizerTestJob)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateRunning},
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), DeleteJob{}, action)
}

func (s *DecideSuite) TestDeletionRemovesJobFinalizerOnceJobGone() {
	t := &testsysv1alpha1.Test{}
	now := metav1.Now()
	t.DeletionTimestamp = &now
	controllerutil.AddFinalizer(t, s.cfg.FinalizerMain)
	controllerutil.AddFinalizer(t, s.cfg.FinalizerTestJob)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), RemoveJobFinalizer{}, action)
}

func (s *DecideSuite) TestDeletionRemovesMainFinalizerLast() {
	t := &testsysv1alpha1.Test{}
	now := metav1.Now()
	t.DeletionTimestamp = &now
	controllerutil.AddFinalizer(t, s.cfg.FinalizerMain)
	action, err := DetermineAction(context.Background(), s.cfg, t, Deps{
		JobState: jobsupervisor.JobObservation{State: jobsupervisor.JobStateNone},
	})
	require.NoError(s.T(), err)
	assert.IsType(s.T(), RemoveMainFinalizer{}, action)
}

func testWithFinalizersAndState(cfg config.EngineConfig, state testsysv1alpha1.TaskState, resources ...string) *testsysv1alpha1.Test {
	t := &testsysv1alpha1.Test{
		Spec: testsysv1alpha1.TestSpec{Resources: resources},
		Status: &testsysv1alpha1.TestStatus{
			Agent: testsysv1alpha1.AgentStatus{TaskState: state},
		},
	}
	controllerutil.AddFinalizer(t, cfg.FinalizerMain)
	controllerutil.AddFinalizer(t, cfg.FinalizerTestJob)
	return t
}
