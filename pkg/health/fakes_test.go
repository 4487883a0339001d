package health

import (
	"context"
	"time"

	"github.com/operator-framework/api/pkg/operators/v1alpha1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// fakeReader is a scripted ClusterReader. Each func field may be nil, in which case the
// method returns zero values. Call counters let tests vary responses per poll.
type fakeReader struct {
	statusCalls int
	statusFn    func(call int) (v1alpha1.SubscriptionStatus, error)

	podsFn func(namespace, catalogName string) ([]corev1.Pod, error)

	deleted  []string
	deleteFn func(namespace, name string) error

	csvCalls   int
	csvNamesFn func(call int) ([]string, error)

	phaseFn func(namespace, name string) (v1alpha1.ClusterServiceVersionPhase, error)

	catalogsFn func(namespace string) ([]v1alpha1.CatalogSource, error)
}

func (f *fakeReader) GetSubscriptionStatus(ctx context.Context, namespace, name string) (v1alpha1.SubscriptionStatus, error) {
	f.statusCalls++
	if f.statusFn == nil {
		return v1alpha1.SubscriptionStatus{}, nil
	}
	return f.statusFn(f.statusCalls)
}

func (f *fakeReader) ListCatalogPods(ctx context.Context, namespace, catalogName string) ([]corev1.Pod, error) {
	if f.podsFn == nil {
		return nil, nil
	}
	return f.podsFn(namespace, catalogName)
}

func (f *fakeReader) DeleteCatalogSource(ctx context.Context, namespace, name string, timeout time.Duration) error {
	if f.deleteFn != nil {
		if err := f.deleteFn(namespace, name); err != nil {
			return err
		}
	}
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeReader) ListCSVNames(ctx context.Context, namespace string) ([]string, error) {
	f.csvCalls++
	if f.csvNamesFn == nil {
		return nil, nil
	}
	return f.csvNamesFn(f.csvCalls)
}

func (f *fakeReader) GetCSVPhase(ctx context.Context, namespace, name string) (v1alpha1.ClusterServiceVersionPhase, error) {
	if f.phaseFn == nil {
		return "", nil
	}
	return f.phaseFn(namespace, name)
}

func (f *fakeReader) ListCatalogSources(ctx context.Context, namespace string) ([]v1alpha1.CatalogSource, error) {
	if f.catalogsFn == nil {
		return nil, nil
	}
	return f.catalogsFn(namespace)
}

// readyPod returns a pod in phase Running with a true ready condition.
func readyPod(name string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

// unreadyPod returns a pod in the given phase without a ready condition.
func unreadyPod(name string, phase corev1.PodPhase) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status:     corev1.PodStatus{Phase: phase},
	}
}

func failedCondition(message string) v1alpha1.SubscriptionCondition {
	return v1alpha1.SubscriptionCondition{
		Type:    v1alpha1.SubscriptionResolutionFailed,
		Status:  corev1.ConditionTrue,
		Reason:  "ConstraintsNotSatisfiable",
		Message: message,
	}
}
