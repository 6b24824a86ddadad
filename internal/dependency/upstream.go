package dependency

import (
	"context"

	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	testsysv1alpha1 "github.com/bottlerocket-test-system/testsys/api/v1alpha1"
)

// WaitState is the verdict dependency_wait returns for a Test's depends_on.
type WaitState string

const (
	// WaitNone means every upstream Test listed in depends_on has passed
	// (or depends_on is empty): the caller may proceed to StartTest.
	WaitNone WaitState = "None"
	// WaitForDependency means the named upstream Test has not yet passed.
	WaitForDependency WaitState = "WaitForDependency"
	// WaitCycle means the depends_on graph reachable from the Test being
	// evaluated contains a cycle (back to that Test or among its upstreams);
	// waiting would never resolve.
	WaitCycle WaitState = "Cycle"
)

// Wait is the outcome of evaluating a Test's spec.depends_on.
type Wait struct {
	State WaitState
	// Name is set when State is WaitForDependency: the upstream Test being
	// waited on.
	Name string
	// Cycle is set when State is WaitCycle: the dependency chain from the
	// Test being evaluated, ending at the first Test name that repeats (so
	// the cycle is the part of the chain between the two occurrences).
	Cycle []string
}

// DependencyWait evaluates whether testName may proceed given its
// depends_on list. It first checks the full depends_on graph reachable from
// testName for cycles (an addition beyond waiting on immediate upstreams:
// without it, a cyclic depends_on waits forever instead of failing fast),
// then checks each immediate upstream's last recorded result.
func DependencyWait(ctx context.Context, c client.Client, namespace, testName string, dependsOn []string) (Wait, error) {
	if len(dependsOn) == 0 {
		return Wait{State: WaitNone}, nil
	}

	if cycle, err := detectCycle(ctx, c, namespace, testName, dependsOn); err != nil {
		return Wait{}, err
	} else if cycle != nil {
		return Wait{State: WaitCycle, Cycle: cycle}, nil
	}

	for _, name := range dependsOn {
		var upstream testsysv1alpha1.Test
		err := c.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, &upstream)
		if err != nil {
			// Fetch errors, including not-found, are treated as transient:
			// the upstream may simply not exist yet.
			return Wait{State: WaitForDependency, Name: name}, nil
		}

		result, ok := upstream.LastResult()
		if !ok || result.Outcome != testsysv1alpha1.OutcomePass {
			return Wait{State: WaitForDependency, Name: name}, nil
		}
	}

	return Wait{State: WaitNone}, nil
}

// detectCycle walks the depends_on graph reachable from testName via a
// depth-first search, returning the chain of Test names from testName to
// the first name that repeats on the current path, if there is one. A fetch error
// for an upstream Test is not a cycle; it is left for DependencyWait's main
// loop to treat as "not ready yet".
func detectCycle(ctx context.Context, c client.Client, namespace, testName string, dependsOn []string) ([]string, error) {
	visiting := map[string]bool{testName: true}
	path := []string{testName}

	var walk func(names []string) ([]string, error)
	walk = func(names []string) ([]string, error) {
		for _, name := range names {
			if visiting[name] {
				return append(append([]string{}, path...), name), nil
			}

			var upstream testsysv1alpha1.Test
			if err := c.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, &upstream); err != nil {
				continue
			}
			if len(upstream.Spec.DependsOn) == 0 {
				continue
			}

			visiting[name] = true
			path = append(path, name)
			cycle, err := walk(upstream.Spec.DependsOn)
			path = path[:len(path)-1]
			delete(visiting, name)
			if err != nil || cycle != nil {
				return cycle, err
			}
		}
		return nil, nil
	}

	return walk(dependsOn)
}
