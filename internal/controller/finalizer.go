package controller

import (
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
)

// addFinalizer adds name to obj's finalizers if absent, reporting whether it
// made a change. Callers are responsible for persisting the object.
func addFinalizer(obj client.Object, name string) bool {
	return controllerutil.AddFinalizer(obj, name)
}

// removeFinalizer removes name from obj's finalizers if present, reporting
// whether it made a change.
func removeFinalizer(obj client.Object, name string) bool {
	return controllerutil.RemoveFinalizer(obj, name)
}
