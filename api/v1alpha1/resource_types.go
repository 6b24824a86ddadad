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
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// ResourceAction identifies which side of a Resource's lifecycle a
// TaskStatus describes.
type ResourceAction string

const (
	ResourceActionCreate  ResourceAction = "create"
	ResourceActionDestroy ResourceAction = "destroy"
)

// DestructionPolicy controls whether a Resource's provider agent is asked to
// tear down provisioned infrastructure when the Resource is deleted.
// +kubebuilder:validation:Enum=OnDeletion;Never
type DestructionPolicy string

const (
	DestructionPolicyOnDeletion DestructionPolicy = "OnDeletion"
	DestructionPolicyNever      DestructionPolicy = "Never"
)

// ResourceSpec defines the desired state of a Resource.
type ResourceSpec struct {
	// Agent configures the provider agent container.
	// +kubebuilder:validation:Required
	Agent AgentSpec `json:"agent"`
	// Configuration is opaque, provider-specific configuration (instance
	// counts, AMI ids, region, and so on).
	// +kubebuilder:validation:Optional
	Configuration *runtime.RawExtension `json:"configuration,omitempty"`
	// DestructionPolicy controls whether deletion runs the destroy agent.
	// +kubebuilder:validation:Optional
	// +kubebuilder:default=OnDeletion
	DestructionPolicy DestructionPolicy `json:"destructionPolicy,omitempty"`
}

// TaskStatus is the state of one side (creation or destruction) of a
// Resource's lifecycle.
type TaskStatus struct {
	// +kubebuilder:default=Unknown
	TaskState TaskState `json:"taskState"`
	Error     string    `json:"error,omitempty"`
}

// ResourceStatus is the status sub-object the engine is authoritative over.
type ResourceStatus struct {
	Creation    TaskStatus `json:"creation"`
	Destruction TaskStatus `json:"destruction"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Creation",type=string,JSONPath=`.status.creation.taskState`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// Resource is the Schema for the resources API. It represents a pool of
// externally provisioned infrastructure required by one or more Tests.
type Resource struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec ResourceSpec `json:"spec,omitempty"`
	// +kubebuilder:validation:Optional
	Status *ResourceStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ResourceList contains a list of Resource.
type ResourceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Resource `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Resource{}, &ResourceList{})
}

// CreationError returns the creation-side error, if the provider agent has
// reported one.
func (r *Resource) CreationError() (string, bool) {
	if r.Status == nil || r.Status.Creation.Error == "" {
		return "", false
	}
	return r.Status.Creation.Error, true
}

// TaskState returns the TaskState for the given ResourceAction.
func (r *Resource) TaskState(action ResourceAction) TaskState {
	if r.Status == nil {
		return TaskStateUnknown
	}
	switch action {
	case ResourceActionDestroy:
		return r.Status.Destruction.TaskState
	default:
		return r.Status.Creation.TaskState
	}
}
