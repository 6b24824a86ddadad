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

package v1alpha1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// TaskState describes the lifecycle of an agent-driven task as reported by the
// agent itself. It only ever advances: Unknown -> Running -> {Completed, Error}.
// +kubebuilder:validation:Enum=Unknown;Running;Completed;Error
type TaskState string

const (
	TaskStateUnknown   TaskState = "Unknown"
	TaskStateRunning   TaskState = "Running"
	TaskStateCompleted TaskState = "Completed"
	TaskStateError     TaskState = "Error"
)

// Outcome is the pass/fail verdict a test agent records for one run.
// +kubebuilder:validation:Enum=Pass;Fail;Timeout
type Outcome string

const (
	OutcomePass    Outcome = "Pass"
	OutcomeFail    Outcome = "Fail"
	OutcomeTimeout Outcome = "Timeout"
)

// AgentSpec is the portion of a Test or Resource spec that is passed through
// to the agent container largely unexamined by the engine.
type AgentSpec struct {
	// Image is the container image implementing the agent contract.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Image string `json:"image"`
	// Timeout is a human-readable duration string (e.g. "30m"). A value that
	// fails to parse is treated as "no timeout" rather than a spec error.
	// +kubebuilder:validation:Optional
	Timeout string `json:"timeout,omitempty"`
	// Configuration is opaque, provider/agent-specific configuration.
	// +kubebuilder:validation:Optional
	Configuration *runtime.RawExtension `json:"configuration,omitempty"`
	// KeepRunning keeps the Job's pod around after the agent reaches a
	// terminal task_state, for interactive debugging.
	// +kubebuilder:validation:Optional
	KeepRunning bool `json:"keepRunning,omitempty"`
	// FromEnv specifies environment variable sources for the agent container.
	// +kubebuilder:validation:Optional
	FromEnv []corev1.EnvFromSource `json:"fromEnv,omitempty"`
	// Env specifies individual environment variables for the agent container.
	// +kubebuilder:validation:Optional
	Env []corev1.EnvVar `json:"env,omitempty"`
	// ServiceAccountName is the service account the agent pod runs as.
	// +kubebuilder:validation:Optional
	ServiceAccountName string `json:"serviceAccountName,omitempty"`
	// Resources specifies compute resources for the agent container.
	// +kubebuilder:validation:Optional
	Resources *corev1.ResourceRequirements `json:"resources,omitempty"`
}

// TestResult records the outcome of a single test agent run.
type TestResult struct {
	// +kubebuilder:validation:Required
	Outcome    Outcome           `json:"outcome"`
	NumPassed  int               `json:"numPassed,omitempty"`
	NumFailed  int               `json:"numFailed,omitempty"`
	NumSkipped int               `json:"numSkipped,omitempty"`
	Other      map[string]string `json:"other,omitempty"`
}

// AgentStatus is the status sub-object the test agent owns.
type AgentStatus struct {
	// +kubebuilder:default=Unknown
	TaskState TaskState    `json:"taskState"`
	Results   []TestResult `json:"results,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// ResourceError records a resource-creation failure observed by a Test.
// Written once; subsequent observations of the same failure do not overwrite it.
type ResourceError struct {
	ResourceName string `json:"resourceName"`
	Error        string `json:"error"`
}

// TestSpec defines the desired state of a Test.
type TestSpec struct {
	// Resources is the ordered list of Resource names this test requires.
	// +kubebuilder:validation:Optional
	Resources []string `json:"resources,omitempty"`
	// DependsOn is an optional list of other Test names that must have
	// completed with outcome Pass before this test's agent is started.
	// +kubebuilder:validation:Optional
	DependsOn []string `json:"dependsOn,omitempty"`
	// Agent configures the test agent container.
	// +kubebuilder:validation:Required
	Agent AgentSpec `json:"agent"`
}

// TestStatus is the status sub-object the engine is authoritative over.
type TestStatus struct {
	Agent         AgentStatus    `json:"agent"`
	ResourceError *ResourceError `json:"resourceError,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="State",type=string,JSONPath=`.status.agent.taskState`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// Test is the Schema for the tests API. It describes a test to run, the
// Resources it depends on, and any Tests that must Pass before it starts.
type Test struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec TestSpec `json:"spec,omitempty"`
	// Status is nil until the engine's first reconcile initializes it; this
	// distinguishes "freshly created" from "initialized but task not started".
	// +kubebuilder:validation:Optional
	Status *TestStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// TestList contains a list of Test.
type TestList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Test `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Test{}, &TestList{})
}

// LastResult returns the most recent TestResult, if any.
func (t *Test) LastResult() (TestResult, bool) {
	if t.Status == nil || len(t.Status.Agent.Results) == 0 {
		return TestResult{}, false
	}
	return t.Status.Agent.Results[len(t.Status.Agent.Results)-1], true
}
