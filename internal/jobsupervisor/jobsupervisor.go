// Package jobsupervisor owns the translation between a batch Job's status
// and the coarse state the engine's decision procedures reason about. It
// also creates and deletes the Jobs that back a Test or Resource task.
package jobsupervisor

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// JobState is the coarse lifecycle state a Job can be observed in. It only
// ever matters to the engine in this simplified form; pod-level detail is
// the agent's business, not the engine's.
type JobState string

const (
	// JobStateNone means no Job exists: it was never created, or it has
	// been deleted.
	JobStateNone JobState = "None"
	// JobStateUnknown means the Job exists but has not yet reported an
	// active pod, a failure condition, or a completion condition.
	JobStateUnknown JobState = "Unknown"
	// JobStateRunning means the Job has at least one active pod.
	JobStateRunning JobState = "Running"
	// JobStateFailed means the Job reported a JobFailed condition.
	JobStateFailed JobState = "Failed"
	// JobStateExited means the Job reported a JobComplete condition (the
	// agent process exited; this says nothing about test Outcome).
	JobStateExited JobState = "Exited"
)

// JobObservation is what the supervisor reports back about a Job: its
// coarse state and, when the Job has a recorded start time, how long it has
// been since that start.
type JobObservation struct {
	State    JobState
	Since    *time.Duration
	Message  string
}

// Spec describes the Job the supervisor should create for a task.
type Spec struct {
	Name               string
	Namespace          string
	Labels             map[string]string
	OwnerReference     metav1.OwnerReference
	Image              string
	Args               []string
	Env                []corev1.EnvVar
	EnvFrom            []corev1.EnvFromSource
	ServiceAccountName string
	Resources          *corev1.ResourceRequirements
	KeepRunning        bool
}

// Supervisor creates, observes, and deletes the Jobs that back Test and
// Resource tasks.
type Supervisor struct {
	Client client.Client
	Now    func() time.Time
}

// New builds a Supervisor bound to the given client.
func New(c client.Client) *Supervisor {
	return &Supervisor{Client: c, Now: time.Now}
}

// GetState fetches the named Job and translates its status into a
// JobObservation. A not-found Job is reported as JobStateNone with no error.
func (s *Supervisor) GetState(ctx context.Context, namespace, name string) (JobObservation, error) {
	var job batchv1.Job
	err := s.Client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, &job)
	if apierrors.IsNotFound(err) {
		return JobObservation{State: JobStateNone}, nil
	}
	if err != nil {
		return JobObservation{}, err
	}
	return observe(&job), nil
}

// observe translates a Job's status into the engine's coarse JobState.
// Failure takes precedence over completion, which takes precedence over
// the active-pod count, matching how the Job controller itself orders
// these signals.
func observe(job *batchv1.Job) JobObservation {
	var since *time.Duration
	if job.Status.StartTime != nil {
		d := time.Since(job.Status.StartTime.Time)
		since = &d
	}

	for _, cond := range job.Status.Conditions {
		if cond.Type == batchv1.JobFailed && cond.Status == corev1.ConditionTrue {
			return JobObservation{State: JobStateFailed, Since: since, Message: cond.Message}
		}
	}
	for _, cond := range job.Status.Conditions {
		if cond.Type == batchv1.JobComplete && cond.Status == corev1.ConditionTrue {
			return JobObservation{State: JobStateExited, Since: since}
		}
	}
	if job.Status.Active > 0 {
		return JobObservation{State: JobStateRunning, Since: since}
	}
	return JobObservation{State: JobStateUnknown, Since: since}
}

// Start creates the Job described by spec. Creating a Job that already
// exists is not an error: the engine may call Start again after a requeue
// before it has observed the Job it created last time.
func (s *Supervisor) Start(ctx context.Context, spec Spec) error {
	restartPolicy := corev1.RestartPolicyNever
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: spec.Namespace,
			Labels:    spec.Labels,
			OwnerReferences: []metav1.OwnerReference{
				spec.OwnerReference,
			},
		},
		Spec: batchv1.JobSpec{
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Name:      spec.Name,
					Namespace: spec.Namespace,
					Labels:    spec.Labels,
				},
				Spec: corev1.PodSpec{
					RestartPolicy:      restartPolicy,
					ServiceAccountName: spec.ServiceAccountName,
					Containers: []corev1.Container{
						{
							Name:    spec.Name,
							Image:   spec.Image,
							Args:    spec.Args,
							Env:     spec.Env,
							EnvFrom: spec.EnvFrom,
						},
					},
				},
			},
		},
	}
	if spec.Resources != nil {
		job.Spec.Template.Spec.Containers[0].Resources = *spec.Resources
	}
	// spec.KeepRunning is not read here. The Job never sets a TTL, so the
	// pod is left in place for inspection until the Job is deleted.

	err := s.Client.Create(ctx, job)
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

// Delete removes the named Job and its pods. A missing Job is not an error.
func (s *Supervisor) Delete(ctx context.Context, namespace, name string) error {
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
	}
	err := s.Client.Delete(ctx, job, client.PropagationPolicy(metav1.DeletePropagationBackground))
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

// JobName derives a deterministic Job name from an owning object's name and
// a task discriminator (e.g. "test" or "create"/"destroy"), matching the
// engine's convention of one Job per task rather than per object.
func JobName(ownerName, task string) string {
	return fmt.Sprintf("%s-%s", ownerName, task)
}
