// Package dependency evaluates whether a Test's declared Resources are
// ready and whether its upstream Tests (depends_on) have passed. Both
// functions are read-only: they fetch objects through the supplied client
// but never mutate anything, matching the Test Reconciler's decide/act split.
package dependency

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	testsysv1alpha1 "github.com/bottlerocket-test-system/testsys/api/v1alpha1"
)

// ReadinessState is the verdict resource_readiness returns for a Test.
type ReadinessState string

const (
	ReadinessReady    ReadinessState = "Ready"
	ReadinessNotReady ReadinessState = "NotReady"
	ReadinessError    ReadinessState = "Error"
)

// Readiness is the outcome of evaluating a Test's spec.resources.
type Readiness struct {
	State   ReadinessState
	Message string
}

// ResourceReadiness walks namespace/resources in declared order and returns
// the first non-Completed verdict it finds. An empty list is immediately
// Ready.
func ResourceReadiness(ctx context.Context, c client.Client, namespace string, resources []string) (Readiness, error) {
	for _, name := range resources {
		var res testsysv1alpha1.Resource
		err := c.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, &res)
		if apierrors.IsNotFound(err) {
			return Readiness{State: ReadinessError, Message: fmt.Sprintf("Resource '%s' not found", name)}, nil
		}
		if err != nil {
			return Readiness{}, err
		}

		if msg, ok := res.CreationError(); ok {
			return Readiness{State: ReadinessError, Message: fmt.Sprintf("Error creating resource '%s': %s", name, msg)}, nil
		}

		switch res.TaskState(testsysv1alpha1.ResourceActionCreate) {
		case testsysv1alpha1.TaskStateUnknown, testsysv1alpha1.TaskStateRunning:
			return Readiness{State: ReadinessNotReady}, nil
		case testsysv1alpha1.TaskStateError:
			return Readiness{State: ReadinessError, Message: fmt.Sprintf("Creation of resource '%s' failed", name)}, nil
		case testsysv1alpha1.TaskStateCompleted:
			continue
		}
	}
	return Readiness{State: ReadinessReady}, nil
}
