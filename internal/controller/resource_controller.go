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

	"github.com/kr/pretty"
	"github.com/lukaszraczylo/pandati"
	kbatch "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	testsysv1alpha1 "github.com/bottlerocket-test-system/testsys/api/v1alpha1"
	"github.com/bottlerocket-test-system/testsys/internal/agentenv"
	"github.com/bottlerocket-test-system/testsys/internal/config"
	"github.com/bottlerocket-test-system/testsys/internal/controller/resourceaction"
	"github.com/bottlerocket-test-system/testsys/internal/jobsupervisor"
)

// ResourceReconciler reconciles a Resource object, driving its provider
// agent through creation and, on deletion, destruction.
type ResourceReconciler struct {
	client.Client
	Scheme     *runtime.Scheme
	Recorder   record.EventRecorder
	Config     config.EngineConfig
	Supervisor *jobsupervisor.Supervisor
}

//+kubebuilder:rbac:groups=testsys.bottlerocket.aws,resources=resources,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=testsys.bottlerocket.aws,resources=resources/status,verbs=get;update;patch
//+kubebuilder:rbac:groups=testsys.bottlerocket.aws,resources=resources/finalizers,verbs=update
//+kubebuilder:rbac:groups=batch,resources=jobs,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups="",resources=events,verbs=create;update;patch;delete;get;list;watch

// Reconcile drives one Resource towards its next Action.
func (r *ResourceReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("resource", req.NamespacedName)

	var resource testsysv1alpha1.Resource
	if err := r.Get(ctx, req.NamespacedName, &resource); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	task := currentTask(&resource)
	jobName := jobsupervisor.JobName(resource.Name, string(task))
	jobState, err := r.Supervisor.GetState(ctx, resource.Namespace, jobName)
	if err != nil {
		return ctrl.Result{}, fmt.Errorf("observing job %s: %w", jobName, err)
	}

	before := resource.DeepCopy()
	action := resourceaction.DetermineAction(r.Config, &resource, resourceaction.Deps{JobState: jobState})

	result, err := r.apply(ctx, &resource, jobName, task, action)
	if err != nil {
		logger.Error(err, "failed to apply action", "action", fmt.Sprintf("%T", action))
	}

	if diff, identical, _ := pandati.CompareStructsReplaced(before, &resource); !identical {
		logger.V(1).Info("resource status changed", "diff", pretty.Sprint(diff))
	}

	return result, err
}

// currentTask reports which side of the lifecycle (creation or
// destruction) the Job Supervisor should be watching right now.
func currentTask(r *testsysv1alpha1.Resource) testsysv1alpha1.ResourceAction {
	if !r.DeletionTimestamp.IsZero() && r.Status != nil &&
		r.Spec.DestructionPolicy != testsysv1alpha1.DestructionPolicyNever &&
		r.Status.Destruction.TaskState != testsysv1alpha1.TaskStateCompleted &&
		r.Status.Destruction.TaskState != testsysv1alpha1.TaskStateError {
		return testsysv1alpha1.ResourceActionDestroy
	}
	return testsysv1alpha1.ResourceActionCreate
}

func (r *ResourceReconciler) apply(ctx context.Context, resource *testsysv1alpha1.Resource, jobName string, task testsysv1alpha1.ResourceAction, action resourceaction.Action) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("resource", resource.Name)

	switch a := action.(type) {
	case resourceaction.Initialize:
		resource.Status = &testsysv1alpha1.ResourceStatus{
			Creation:    testsysv1alpha1.TaskStatus{TaskState: testsysv1alpha1.TaskStateUnknown},
			Destruction: testsysv1alpha1.TaskStatus{TaskState: testsysv1alpha1.TaskStateUnknown},
		}
		if err := r.Status().Update(ctx, resource); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: time.Second}, nil

	case resourceaction.AddMainFinalizer:
		addFinalizer(resource, r.Config.FinalizerMain)
		if err := r.Update(ctx, resource); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: time.Second}, nil

	case resourceaction.AddJobFinalizer:
		addFinalizer(resource, r.Config.FinalizerResourceJob)
		if err := r.Update(ctx, resource); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: time.Second}, nil

	case resourceaction.StartCreation, resourceaction.StartDestruction:
		bootstrap, err := agentenv.Encode(agentenv.BootstrapData{
			Kind:          agentenv.ObjectKindResource,
			Task:          agentenv.Task(task),
			Namespace:     resource.Namespace,
			Name:          resource.Name,
			Configuration: resource.Spec.Agent.Configuration,
		})
		if err != nil {
			return ctrl.Result{}, err
		}

		owner := ownerReference(resource, testsysv1alpha1.GroupVersion.WithKind("Resource"))
		spec := jobsupervisor.Spec{
			Name:               jobName,
			Namespace:          resource.Namespace,
			Labels:             map[string]string{"testsys.bottlerocket.aws/resource": resource.Name, "testsys.bottlerocket.aws/task": string(task)},
			OwnerReference:     owner,
			Image:              resource.Spec.Agent.Image,
			Env:                append(append([]corev1.EnvVar{}, resource.Spec.Agent.Env...), corev1.EnvVar{Name: agentenv.BootstrapEnvVar, Value: bootstrap}),
			EnvFrom:            resource.Spec.Agent.FromEnv,
			ServiceAccountName: resource.Spec.Agent.ServiceAccountName,
			Resources:          resource.Spec.Agent.Resources,
			KeepRunning:        resource.Spec.Agent.KeepRunning,
		}
		if err := r.Supervisor.Start(ctx, spec); err != nil {
			return ctrl.Result{}, err
		}
		RecordResourceJobStarted(resource.Namespace, resource.Name, string(task))
		r.event(resource, corev1.EventTypeNormal, "Started", fmt.Sprintf("Started %s job", task))
		return ctrl.Result{RequeueAfter: RequeueDelay}, nil

	case resourceaction.WaitForCreation, resourceaction.WaitForDestruction:
		return ctrl.Result{RequeueAfter: RequeueDelay}, nil

	case resourceaction.DeleteJob:
		if err := r.Supervisor.Delete(ctx, resource.Namespace, jobName); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: time.Second}, nil

	case resourceaction.RemoveJobFinalizer:
		removeFinalizer(resource, r.Config.FinalizerResourceJob)
		if err := r.Update(ctx, resource); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: time.Second}, nil

	case resourceaction.RemoveMainFinalizer:
		removeFinalizer(resource, r.Config.FinalizerMain)
		if err := r.Update(ctx, resource); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil

	case resourceaction.Done:
		return ctrl.Result{}, nil

	case resourceaction.ErrorAction:
		logger.Error(fmt.Errorf("%v", a.Kind), "resource reached a terminal error state")
		r.event(resource, corev1.EventTypeWarning, "Error", fmt.Sprintf("%#v", a.Kind))
		return ctrl.Result{}, nil
	}

	return ctrl.Result{}, fmt.Errorf("unhandled action %T", action)
}

func (r *ResourceReconciler) event(obj runtime.Object, eventType, reason, message string) {
	if r.Recorder == nil {
		return
	}
	r.Recorder.Event(obj, eventType, reason, message)
}

// SetupWithManager sets up the controller with the Manager.
func (r *ResourceReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&testsysv1alpha1.Resource{}).
		Owns(&kbatch.Job{}).
		Complete(r)
}
