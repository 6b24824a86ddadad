package statusview

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/config"

	testsysv1alpha1 "github.com/bottlerocket-test-system/testsys/api/v1alpha1"
)

// Client wraps a Kubernetes client scoped to read-only Test/Resource lookups.
type Client struct {
	client client.Client
}

// NewClient builds a Client from the ambient kubeconfig.
func NewClient() (*Client, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
	}

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to add client-go scheme: %w", err)
	}
	if err := testsysv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to add testsys scheme: %w", err)
	}

	cl, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Client{client: cl}, nil
}

// GetTest retrieves a Test by name and namespace.
func (c *Client) GetTest(ctx context.Context, name, namespace string) (*testsysv1alpha1.Test, error) {
	t := &testsysv1alpha1.Test{}
	if err := c.client.Get(ctx, client.ObjectKey{Name: name, Namespace: namespace}, t); err != nil {
		return nil, fmt.Errorf("failed to get Test %s/%s: %w", namespace, name, err)
	}
	return t, nil
}

// ListTests lists all Tests in a namespace, or every namespace if empty.
func (c *Client) ListTests(ctx context.Context, namespace string) (*testsysv1alpha1.TestList, error) {
	list := &testsysv1alpha1.TestList{}
	var opts []client.ListOption
	if namespace != "" {
		opts = append(opts, client.InNamespace(namespace))
	}
	if err := c.client.List(ctx, list, opts...); err != nil {
		return nil, fmt.Errorf("failed to list Tests: %w", err)
	}
	return list, nil
}

// GetResource retrieves a Resource by name and namespace.
func (c *Client) GetResource(ctx context.Context, name, namespace string) (*testsysv1alpha1.Resource, error) {
	r := &testsysv1alpha1.Resource{}
	if err := c.client.Get(ctx, client.ObjectKey{Name: name, Namespace: namespace}, r); err != nil {
		return nil, fmt.Errorf("failed to get Resource %s/%s: %w", namespace, name, err)
	}
	return r, nil
}

// taskState reports the TaskState string for a Test, StatusNoStatus if
// the engine has not initialized it yet, or StatusResourceError once a
// resource creation error has been recorded on it.
func taskState(t *testsysv1alpha1.Test) string {
	if t.Status == nil {
		return StatusNoStatus
	}
	if t.Status.ResourceError != nil {
		return StatusResourceError
	}
	return string(t.Status.Agent.TaskState)
}

// resourceState reports the TaskState of whichever side of a Resource's
// lifecycle (creation or destruction) is currently active.
func resourceState(r *testsysv1alpha1.Resource) string {
	if r.Status == nil {
		return StatusNoStatus
	}
	if !r.DeletionTimestamp.IsZero() {
		return string(r.Status.Destruction.TaskState)
	}
	return string(r.Status.Creation.TaskState)
}

// BuildTestTree builds a Node tree for a single Test, showing the
// Resources and upstream Tests it depends on as leaves.
func BuildTestTree(t *testsysv1alpha1.Test) *Node {
	root := NewStatusNode(t.Name, taskState(t))
	for _, res := range t.Spec.Resources {
		root.Add(RenderDependency(res, true))
	}
	for _, dep := range t.Spec.DependsOn {
		root.Add(RenderDependency(dep, false))
	}
	return root
}

// BuildResourceTree builds a Node tree for a single Resource, showing both
// its creation and (if applicable) destruction task state.
func BuildResourceTree(r *testsysv1alpha1.Resource) *Node {
	root := NewStatusNode(r.Name, resourceState(r))
	if r.Status != nil {
		root.AddStatus("creation", string(r.Status.Creation.TaskState))
		if r.Spec.DestructionPolicy != testsysv1alpha1.DestructionPolicyNever {
			root.AddStatus("destruction", string(r.Status.Destruction.TaskState))
		}
	}
	return root
}

// Summary is a namespace-wide rollup of Test states.
type Summary struct {
	Namespace string
	Total     int
	Unknown   int
	Running   int
	Completed int
	Error     int
}

// BuildSummary tallies TaskState across a TestList.
func BuildSummary(namespace string, list *testsysv1alpha1.TestList) Summary {
	s := Summary{Namespace: namespace, Total: len(list.Items)}
	for i := range list.Items {
		switch taskState(&list.Items[i]) {
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusError, StatusResourceError:
			s.Error++
		default:
			s.Unknown++
		}
	}
	return s
}
