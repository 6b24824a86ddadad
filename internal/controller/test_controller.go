/*
Copyright 2023.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"context"
	"fmt"
	"time"

	kbatch "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	testsysv1alpha1 "github.com/bottlerocket-test-system/testsys/api/v1alpha1"
	"github.com/bottlerocket-test-system/testsys/internal/agentenv"
	"github.com/bottlerocket-test-system/testsys/internal/config"
	"github.com/bottlerocket-test-system/testsys/internal/controller/testaction"
	"github.com/bottlerocket-test-system/testsys/internal/dependency"
	"github.com/bottlerocket-test-system/testsys/internal/jobsupervisor"
)

// RequeueDelay is how long to wait before requeuing a Test that is waiting
// on a resource, a dependency, or a running agent. It is shorter than the
// teacher's job-polling interval because a Test also races a start timeout
// that the engine must notice promptly.
const RequeueDelay = 5 * time.Second

// TestReconciler reconciles a Test object: it fetches the object and its
// Job, asks testaction.DetermineAction for the next Action, and applies it.
type TestReconciler struct {
	client.Client
	Scheme     *runtime.Scheme
	Recorder   record.EventRecorder
	Config     config.EngineConfig
	Supervisor *jobsupervisor.Supervisor
}

//+kubebuilder:rbac:groups=testsys.bottlerocket.aws,resources=tests,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=testsys.bottlerocket.aws,resources=tests/status,verbs=get;update;patch
//+kubebuilder:rbac:groups=testsys.bottlerocket.aws,resources=tests/finalizers,verbs=update
//+kubebuilder:rbac:groups=testsys.bottlerocket.aws,resources=resources,verbs=get;list;watch
//+kubebuilder:rbac:groups=batch,resources=jobs,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups="",resources=events,verbs=create;update;patch;delete;get;list;watch

// Reconcile drives one Test towards its next Action.
func (r *TestReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("test", req.NamespacedName)

	var test testsysv1alpha1.Test
	if err := r.Get(ctx, req.NamespacedName, &test); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	jobName := jobsupervisor.JobName(test.Name, "test")
	jobState, err := r.Supervisor.GetState(ctx, test.Namespace, jobName)
	if err != nil {
		return ctrl.Result{}, fmt.Errorf("observing job %s: %w", jobName, err)
	}

	deps := testaction.Deps{
		JobState: jobState,
		ResourceReadiness: func(ctx context.Context) (dependency.Readiness, error) {
			return dependency.ResourceReadiness(ctx, r.Client, test.Namespace, test.Spec.Resources)
		},
		DependencyWait: func(ctx context.Context) (dependency.Wait, error) {
			return dependency.DependencyWait(ctx, r.Client, test.Namespace, test.Name, test.Spec.DependsOn)
		},
	}

	action, err := testaction.DetermineAction(ctx, r.Config, &test, deps)
	if err != nil {
		logger.Error(err, "failed to determine next action")
		return ctrl.Result{}, err
	}

	return r.apply(ctx, &test, jobName, action)
}

func (r *TestReconciler) apply(ctx context.Context, test *testsysv1alpha1.Test, jobName string, action testaction.Action) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("test", test.Name)

	switch a := action.(type) {
	case testaction.Initialize:
		test.Status = &testsysv1alpha1.TestStatus{
			Agent: testsysv1alpha1.AgentStatus{TaskState: testsysv1alpha1.TaskStateUnknown},
		}
		if err := r.Status().Update(ctx, test); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: time.Second}, nil

	case testaction.AddMainFinalizer:
		addFinalizer(test, r.Config.FinalizerMain)
		if err := r.Update(ctx, test); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: time.Second}, nil

	case testaction.WaitForResources:
		return ctrl.Result{RequeueAfter: RequeueDelay}, nil

	case testaction.RegisterResourceCreationError:
		test.Status.ResourceError = &testsysv1alpha1.ResourceError{Error: a.Message}
		if err := r.Status().Update(ctx, test); err != nil {
			return ctrl.Result{}, err
		}
		r.event(test, corev1.EventTypeWarning, "ResourceError", a.Message)
		return ctrl.Result{RequeueAfter: RequeueDelay}, nil

	case testaction.WaitForDependency:
		return ctrl.Result{RequeueAfter: RequeueDelay}, nil

	case testaction.AddJobFinalizer:
		addFinalizer(test, r.Config.FinalizerTestJob)
		if err := r.Update(ctx, test); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: time.Second}, nil

	case testaction.StartTest:
		bootstrap, err := agentenv.Encode(agentenv.BootstrapData{
			Kind:          agentenv.ObjectKindTest,
			Namespace:     test.Namespace,
			Name:          test.Name,
			Configuration: test.Spec.Agent.Configuration,
		})
		if err != nil {
			return ctrl.Result{}, err
		}

		owner := ownerReference(test, testsysv1alpha1.GroupVersion.WithKind("Test"))
		spec := jobsupervisor.Spec{
			Name:               jobName,
			Namespace:          test.Namespace,
			Labels:             map[string]string{"testsys.bottlerocket.aws/test": test.Name},
			OwnerReference:     owner,
			Image:              test.Spec.Agent.Image,
			Env:                append(append([]corev1.EnvVar{}, test.Spec.Agent.Env...), corev1.EnvVar{Name: agentenv.BootstrapEnvVar, Value: bootstrap}),
			EnvFrom:            test.Spec.Agent.FromEnv,
			ServiceAccountName: test.Spec.Agent.ServiceAccountName,
			Resources:          test.Spec.Agent.Resources,
			KeepRunning:        test.Spec.Agent.KeepRunning,
		}
		if err := r.Supervisor.Start(ctx, spec); err != nil {
			return ctrl.Result{}, err
		}
		RecordTestStarted(test.Namespace, test.Name)
		r.event(test, corev1.EventTypeNormal, "Started", "Started test agent job")
		return ctrl.Result{RequeueAfter: RequeueDelay}, nil

	case testaction.WaitForTest:
		return ctrl.Result{RequeueAfter: RequeueDelay}, nil

	case testaction.DeleteJob:
		if err := r.Supervisor.Delete(ctx, test.Namespace, jobName); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: time.Second}, nil

	case testaction.RemoveJobFinalizer:
		removeFinalizer(test, r.Config.FinalizerTestJob)
		if err := r.Update(ctx, test); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: time.Second}, nil

	case testaction.RemoveMainFinalizer:
		removeFinalizer(test, r.Config.FinalizerMain)
		if err := r.Update(ctx, test); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil

	case testaction.TestDone:
		RecordTestTerminal(test.Namespace, "TestDone")
		return ctrl.Result{}, nil

	case testaction.ErrorAction:
		logger.Error(fmt.Errorf("%v", a.Kind), "test reached a terminal error state")
		RecordTestTerminal(test.Namespace, fmt.Sprintf("%T", a.Kind))
		r.event(test, corev1.EventTypeWarning, "Error", fmt.Sprintf("%#v", a.Kind))
		return ctrl.Result{}, nil
	}

	return ctrl.Result{}, fmt.Errorf("unhandled action %T", action)
}

func (r *TestReconciler) event(obj runtime.Object, eventType, reason, message string) {
	if r.Recorder == nil {
		return
	}
	r.Recorder.Event(obj, eventType, reason, message)
}

// ownerReference builds the OwnerReference used to tie a Job to the Test or
// Resource that owns it, so deleting the owner garbage-collects the Job.
func ownerReference(obj client.Object, gvk schema.GroupVersionKind) metav1.OwnerReference {
	controller := true
	blockOwnerDeletion := true
	return metav1.OwnerReference{
		APIVersion:         gvk.GroupVersion().String(),
		Kind:               gvk.Kind,
		Name:               obj.GetName(),
		UID:                obj.GetUID(),
		Controller:         &controller,
		BlockOwnerDeletion: &blockOwnerDeletion,
	}
}

// SetupWithManager sets up the controller with the Manager.
func (r *TestReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&testsysv1alpha1.Test{}).
		Owns(&kbatch.Job{}).
		Complete(r)
}
