package controller

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	testsysv1alpha1 "github.com/bottlerocket-test-system/testsys/api/v1alpha1"
)

var _ = Describe("Test deletion", func() {
	var r *TestReconciler
	var ctx context.Context

	BeforeEach(func() {
		r = newFakeReconciler()
		ctx = context.Background()
	})

	reconcile := func(name string) (ctrl.Result, error) {
		return r.Reconcile(ctx, ctrl.Request{NamespacedName: types.NamespacedName{Namespace: testNamespace, Name: name}})
	}

	It("removes the job finalizer once the Job is gone and then the main finalizer", func() {
		now := metav1.Now()
		test := &testsysv1alpha1.Test{
			ObjectMeta: metav1.ObjectMeta{
				Name:              "deleting",
				Namespace:         testNamespace,
				DeletionTimestamp: &now,
				Finalizers:        []string{r.Config.FinalizerMain, r.Config.FinalizerTestJob},
			},
			Status: &testsysv1alpha1.TestStatus{Agent: testsysv1alpha1.AgentStatus{TaskState: testsysv1alpha1.TaskStateUnknown}},
		}
		Expect(r.Create(ctx, test)).To(Succeed())

		_, err := reconcile("deleting")
		Expect(err).NotTo(HaveOccurred())

		var afterFirst testsysv1alpha1.Test
		Expect(r.Get(ctx, types.NamespacedName{Namespace: testNamespace, Name: "deleting"}, &afterFirst)).To(Succeed())
		Expect(controllerutil.ContainsFinalizer(&afterFirst, r.Config.FinalizerTestJob)).To(BeFalse())
		Expect(controllerutil.ContainsFinalizer(&afterFirst, r.Config.FinalizerMain)).To(BeTrue())

		_, err = reconcile("deleting")
		Expect(err).NotTo(HaveOccurred())

		var afterSecond testsysv1alpha1.Test
		err = r.Get(ctx, types.NamespacedName{Namespace: testNamespace, Name: "deleting"}, &afterSecond)
		if err == nil {
			Expect(controllerutil.ContainsFinalizer(&afterSecond, r.Config.FinalizerMain)).To(BeFalse())
		}
	})
})
