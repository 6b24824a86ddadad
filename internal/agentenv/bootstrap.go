// Package agentenv defines the bootstrap contract the engine hands to
// every agent container it launches: cluster coordinates and the
// opaque spec the agent needs to act, serialized into a single
// environment variable. Agents are external collaborators — this
// package only captures the wire shape, never an agent implementation.
package agentenv

import (
	"encoding/json"
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
)

// BootstrapEnvVar is the name of the environment variable the engine sets
// on every agent container, carrying a JSON-encoded BootstrapData value.
const BootstrapEnvVar = "TESTSYS_BOOTSTRAP_DATA"

// ObjectKind distinguishes which CRD kind an agent is acting on behalf of.
type ObjectKind string

const (
	ObjectKindTest     ObjectKind = "Test"
	ObjectKindResource ObjectKind = "Resource"
)

// Task distinguishes a Resource agent's creation run from its destruction
// run. Unused (empty) for test agents, which have only one kind of run.
type Task string

const (
	TaskNone    Task = ""
	TaskCreate  Task = "create"
	TaskDestroy Task = "destroy"
)

// BootstrapData is everything an agent needs to find its parent object,
// report status back to it, and act on its configuration.
type BootstrapData struct {
	Kind          ObjectKind            `json:"kind"`
	Task          Task                  `json:"task,omitempty"`
	Namespace     string                `json:"namespace"`
	Name          string                `json:"name"`
	Configuration *runtime.RawExtension `json:"configuration,omitempty"`
}

// Encode serializes d for use as an environment variable value.
func Encode(d BootstrapData) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encoding bootstrap data: %w", err)
	}
	return string(b), nil
}

// Decode is the agent-side counterpart to Encode. The engine never calls
// this; it is here so the contract has one canonical definition shared by
// anything (tests, future agent scaffolding) that needs to round-trip it.
func Decode(raw string) (BootstrapData, error) {
	var d BootstrapData
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return BootstrapData{}, fmt.Errorf("decoding bootstrap data: %w", err)
	}
	return d, nil
}
